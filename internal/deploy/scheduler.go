package deploy

import (
	"context"

	"github.com/andrej220/octahe/internal/lg"
	"github.com/andrej220/octahe/internal/target"
	"github.com/andrej220/octahe/internal/task"
)

// Terminal indicators printed after each step's barrier.
const (
	IndicatorDone     = " --> Done"
	IndicatorDegraded = " --> Degraded"
	IndicatorFailed   = " --> Failed"
)

// Scheduler runs plan steps one at a time, in order.
type Scheduler struct {
	steps      []task.Step
	declared   []target.Target
	targets    *target.Registry
	tasks      *task.Registry
	dispatcher *Dispatcher
}

func NewScheduler(steps []task.Step, declared []target.Target, targets *target.Registry, tasks *task.Registry, dispatcher *Dispatcher) *Scheduler {
	return &Scheduler{
		steps:      steps,
		declared:   declared,
		targets:    targets,
		tasks:      tasks,
		dispatcher: dispatcher,
	}
}

// RunStep runs step number index (1-based) to completion and returns its
// aggregate outcome: Failed when the failed targets across the whole
// registry number as many as the declared targets, Degraded when some have
// failed, Success otherwise.
func (s *Scheduler) RunStep(ctx context.Context, index int) StepResult {
	step := s.steps[index-1]
	rec := s.tasks.GetOrCreate(index, step)
	logger := lg.FromContext(ctx).With(lg.Int("step", index), lg.String("key", rec.Step.Key))

	dispatched := s.dispatcher.Dispatch(ctx, rec, len(s.steps), s.declared)

	failed := s.targets.CountFailed()
	var outcome task.State
	switch {
	case failed == len(s.declared):
		s.dispatcher.printf("%s\n", IndicatorFailed)
		rec.Fail()
		outcome = task.Failed
	case failed > 0:
		s.dispatcher.printf("%s\n", IndicatorDegraded)
		outcome = task.Degraded
	default:
		s.dispatcher.printf("%s\n", IndicatorDone)
		outcome = task.Success
	}
	logger.Info("Step finished",
		lg.String("outcome", outcome.String()),
		lg.Int("dispatched", dispatched),
		lg.Int("failed_targets", failed))

	return StepResult{
		Index:       index,
		Key:         rec.Step.Key,
		Description: rec.Step.Describe(),
		Outcome:     outcome,
		TaskState:   rec.State(),
		Dispatched:  dispatched,
	}
}

// Run executes every step. A Failed step does not stop the run; only
// cancellation of ctx does, checked before each step and once the last step
// is done, since units queued after cancellation are skipped.
func (s *Scheduler) Run(ctx context.Context) ([]StepResult, error) {
	results := make([]StepResult, 0, len(s.steps))
	for i := range s.steps {
		if err := ctx.Err(); err != nil {
			lg.FromContext(ctx).Warn("Run canceled", lg.Int("next_step", i+1), lg.Err(err))
			return results, err
		}
		results = append(results, s.RunStep(ctx, i+1))
	}
	if err := ctx.Err(); err != nil {
		lg.FromContext(ctx).Warn("Run canceled during the last step", lg.Int("step", len(s.steps)), lg.Err(err))
		return results, err
	}
	return results, nil
}
