package filestore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/andrej220/octahe/pkg/config/configstore"
	"gopkg.in/yaml.v3"
)

var _ configstore.ConfigStore = (*FileStore)(nil)

var ErrUnknownFormat = errors.New("unknown config file format")

type Format int

const (
	YAML Format = iota
	TOML
)

// FormatOf picks the format from the file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return YAML, nil
	case ".toml":
		return TOML, nil
	default:
		return 0, fmt.Errorf("%s: %w", path, ErrUnknownFormat)
	}
}

type FileStore struct {
	Path   string
	Format Format
}

func New(path string) (*FileStore, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}
	return &FileStore{Path: path, Format: format}, nil
}

func (f *FileStore) Load(out any) error {
	if out == nil {
		return fmt.Errorf("Load: output parameter must not be nil")
	}

	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("Load: failed to read file %s: %w", f.Path, err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return fmt.Errorf("Load: config file %s is empty", f.Path)
	}

	switch f.Format {
	case TOML:
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("Load: failed to parse TOML in %s: %w", f.Path, err)
		}
	default:
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("Load: failed to parse YAML in %s: %w", f.Path, err)
		}
	}
	return nil
}

func (f *FileStore) Save(in any) error {
	if in == nil {
		return fmt.Errorf("Save: input parameter must not be nil")
	}

	var data []byte
	switch f.Format {
	case TOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(in); err != nil {
			return fmt.Errorf("Save: failed to marshal TOML: %w", err)
		}
		data = buf.Bytes()
	default:
		var err error
		data, err = yaml.Marshal(in)
		if err != nil {
			return fmt.Errorf("Save: failed to marshal YAML: %w", err)
		}
	}

	// Write to temp file first
	tmpPath := f.Path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0600); err != nil {
		return fmt.Errorf("Save: failed to write temp file %s: %w", tmpPath, err)
	}

	// Atomic rename
	if err := os.Rename(tmpPath, f.Path); err != nil {
		return fmt.Errorf("Save: failed to replace %s with %s: %w", f.Path, tmpPath, err)
	}
	return nil
}
