package main

import (
	"fmt"
	"strings"

	"github.com/andrej220/octahe/internal/deploy"
	"github.com/andrej220/octahe/internal/target"
	"github.com/andrej220/octahe/internal/task"
	"github.com/andrej220/octahe/pkg/config"
)

// buildPlan turns a validated plan document into the steps and targets the
// orchestrator runs.
func buildPlan(doc *config.PlanDocument) (deploy.Plan, error) {
	plan := deploy.Plan{
		Targets: make([]target.Target, 0, len(doc.Targets)),
		Steps:   make([]task.Step, 0, len(doc.Steps)),
	}
	for _, t := range doc.Targets {
		plan.Targets = append(plan.Targets, target.Target{Name: t.Name, To: t.To})
	}
	for i, s := range doc.Steps {
		var (
			action   task.Action
			original string
		)
		switch s.Kind {
		case task.KeyCopy, task.KeyAdd:
			action = task.Copy{SourceFiles: s.From, Destination: s.To}
		default:
			action = task.Command{Text: s.Command}
			original = strings.TrimSpace(s.Command)
		}
		step, err := task.NewStep(s.Kind, action, original)
		if err != nil {
			return deploy.Plan{}, fmt.Errorf("step %d: %w", i+1, err)
		}
		plan.Steps = append(plan.Steps, step)
	}
	return plan, nil
}

// envFlag collects repeated -env KEY=VALUE flags.
type envFlag map[string]string

func (e envFlag) String() string {
	pairs := make([]string, 0, len(e))
	for k, v := range e {
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, ",")
}

func (e envFlag) Set(value string) error {
	k, v, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(k) == "" {
		return fmt.Errorf("expected KEY=VALUE, got %q", value)
	}
	e[strings.TrimSpace(k)] = v
	return nil
}
