// pkg/config/config.go
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/andrej220/octahe/pkg/config/filestore"
	"github.com/andrej220/octahe/pkg/connection"
	"github.com/andrej220/octahe/pkg/workerpool"
	"github.com/go-playground/validator/v10"
)

const DefaultConnectionQuota = workerpool.TotalMaxWorkers

var ErrEmptyPlan = errors.New("plan has no steps")

// Options are the run settings that do not come from the plan file.
type Options struct {
	ConnectionQuota int
	Env             map[string]string
	SSHKeyPath      string
	SSHPassword     string
	SSHHostKey      string
	SSHTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		ConnectionQuota: DefaultConnectionQuota,
		Env:             map[string]string{},
		SSHTimeout:      10 * time.Second,
	}
}

func (o Options) SSH() connection.SSHOptions {
	return connection.SSHOptions{
		KeyPath:  o.SSHKeyPath,
		Password: o.SSHPassword,
		HostKey:  o.SSHHostKey,
		Timeout:  o.SSHTimeout,
	}
}

// MergeEnv returns plan env overlaid with o.Env.
func (o Options) MergeEnv(planEnv map[string]string) map[string]string {
	env := make(map[string]string, len(planEnv)+len(o.Env))
	for k, v := range planEnv {
		env[k] = v
	}
	for k, v := range o.Env {
		env[k] = v
	}
	return env
}

type TargetSpec struct {
	Name string `yaml:"name" toml:"name" validate:"required,targetName"`
	To   string `yaml:"to,omitempty" toml:"to,omitempty"`
}

type StepSpec struct {
	Kind    string   `yaml:"kind" toml:"kind" validate:"required,oneof=RUN EXEC SHELL COPY ADD"`
	Command string   `yaml:"command,omitempty" toml:"command,omitempty"`
	From    []string `yaml:"from,omitempty" toml:"from,omitempty" validate:"omitempty,dive,required"`
	To      string   `yaml:"to,omitempty" toml:"to,omitempty"`
}

// PlanDocument is the plan file as written on disk.
type PlanDocument struct {
	Targets []TargetSpec      `yaml:"targets" toml:"targets" validate:"required,min=1,unique=Name,dive"`
	Env     map[string]string `yaml:"env,omitempty" toml:"env,omitempty"`
	Steps   []StepSpec        `yaml:"steps" toml:"steps" validate:"dive"`

	// BaseDir is the directory of the plan file; copy sources resolve against it.
	BaseDir string `yaml:"-" toml:"-"`
}

var (
	validate     = validator.New()
	targetNameRe = regexp.MustCompile(`^[a-zA-Z0-9_.-]+$`)
)

func init() {
	_ = validate.RegisterValidation("targetName", func(fl validator.FieldLevel) bool {
		return targetNameRe.MatchString(fl.Field().String())
	})
}

// Validate normalizes step kinds to upper case and checks the document.
func (d *PlanDocument) Validate() error {
	if len(d.Steps) == 0 {
		return ErrEmptyPlan
	}
	for i := range d.Steps {
		d.Steps[i].Kind = strings.ToUpper(strings.TrimSpace(d.Steps[i].Kind))
	}
	if err := validate.Struct(d); err != nil {
		return fmt.Errorf("plan validation failed: %w", err)
	}
	for i, s := range d.Steps {
		switch s.Kind {
		case "COPY", "ADD":
			if len(s.From) == 0 || s.To == "" {
				return fmt.Errorf("step %d (%s): from and to are required", i+1, s.Kind)
			}
		default:
			if strings.TrimSpace(s.Command) == "" {
				return fmt.Errorf("step %d (%s): command is required", i+1, s.Kind)
			}
		}
	}
	return nil
}

// LoadPlan reads and validates a YAML or TOML plan file.
func LoadPlan(path string) (*PlanDocument, error) {
	store, err := filestore.New(path)
	if err != nil {
		return nil, err
	}
	doc := &PlanDocument{}
	if err := store.Load(doc); err != nil {
		return nil, err
	}
	if err := doc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	abs, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("resolving plan dir: %w", err)
	}
	doc.BaseDir = abs
	return doc, nil
}

// SavePlan writes doc in the format implied by path.
func SavePlan(path string, doc *PlanDocument) error {
	store, err := filestore.New(path)
	if err != nil {
		return err
	}
	return store.Save(doc)
}
