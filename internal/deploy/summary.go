package deploy

import (
	"time"

	"github.com/andrej220/octahe/internal/target"
	"github.com/andrej220/octahe/internal/task"
	"github.com/google/uuid"
)

// StepResult is the outcome of one step. Outcome is the registry-wide
// aggregate; TaskState is the step's own record, which can differ from it.
type StepResult struct {
	Index       int        `json:"index"`
	Key         string     `json:"key"`
	Description string     `json:"description"`
	Outcome     task.State `json:"outcome"`
	TaskState   task.State `json:"task_state"`
	Dispatched  int        `json:"dispatched"`
}

type TargetResult struct {
	Name       string `json:"name"`
	Address    string `json:"address,omitempty"`
	State      string `json:"state"`
	FailedStep int    `json:"failed_step,omitempty"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

type Summary struct {
	RunID     uuid.UUID      `json:"run_id"`
	Cancelled bool           `json:"cancelled"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   time.Time      `json:"ended_at"`
	Steps     []StepResult   `json:"steps"`
	Targets   []TargetResult `json:"targets"`
}

// HasFailed reports whether any step ended Failed.
func (s *Summary) HasFailed() bool {
	for _, st := range s.Steps {
		if st.Outcome == task.Failed {
			return true
		}
	}
	return false
}

// HasDegraded reports whether any step ended Degraded.
func (s *Summary) HasDegraded() bool {
	for _, st := range s.Steps {
		if st.Outcome == task.Degraded {
			return true
		}
	}
	return false
}

// FailedTargets returns the targets that failed, in declaration order.
func (s *Summary) FailedTargets() []TargetResult {
	var out []TargetResult
	for _, t := range s.Targets {
		if t.State == target.Failed.String() {
			out = append(out, t)
		}
	}
	return out
}

func (o *Orchestrator) summarize(steps []StepResult, started time.Time) *Summary {
	s := &Summary{
		RunID:     o.runID,
		StartedAt: started,
		EndedAt:   time.Now(),
		Steps:     steps,
	}
	for _, rec := range o.targets.Records() {
		tr := TargetResult{
			Name:    rec.Target.Name,
			Address: rec.Target.To,
			State:   rec.State().String(),
		}
		if step, diag, failed := rec.Failure(); failed {
			tr.FailedStep = step
			tr.Diagnostic = diag
		}
		s.Targets = append(s.Targets, tr)
	}
	return s
}
