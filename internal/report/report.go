// Package report writes the end-of-run summary of a deployment to a file.
// Reports are output only; nothing reads them back into a later run.
package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const (
	indent = "    " // Default indentation for JSON output (4 spaces)
	prefix = ""     // Default prefix for JSON output
)

type Serializer interface {
	Marshal(data any) ([]byte, error)
}

type Writer interface {
	Write(filename string, data []byte) error
}

type JSONSerializer struct {
	Prefix, Indent string
}

func (s JSONSerializer) Marshal(data any) ([]byte, error) {
	return json.MarshalIndent(data, s.Prefix, s.Indent)
}

// FileWriter writes reports with 0644 permissions, creating parent
// directories. Existing files are replaced only when Overwrite is set.
type FileWriter struct {
	Overwrite bool
}

func (w FileWriter) Write(filename string, data []byte) error {
	if filename == "" {
		return os.ErrInvalid
	}
	if _, err := os.Stat(filename); !os.IsNotExist(err) && !w.Overwrite {
		return os.ErrExist
	}
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}
	return os.WriteFile(filename, append(data, '\n'), 0644)
}

// WriteTo serializes summary and hands it to writer.
func WriteTo(summary any, filename string, serializer Serializer, writer Writer) error {
	if filename == "" {
		return fmt.Errorf("invalid report filename: %w", os.ErrInvalid)
	}
	if summary == nil {
		return fmt.Errorf("nothing to report")
	}

	data, err := serializer.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	if err := writer.Write(filename, data); err != nil {
		return fmt.Errorf("failed to write report %s: %w", filename, err)
	}
	return nil
}

// Write stores summary as indented JSON, replacing any previous report.
func Write(summary any, filename string) error {
	return WriteTo(summary, filename, JSONSerializer{Prefix: prefix, Indent: indent}, FileWriter{Overwrite: true})
}
