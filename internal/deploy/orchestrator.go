// Package deploy runs a deployment plan: steps strictly in order, each step
// concurrently across the targets that have not failed yet.
package deploy

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/andrej220/octahe/internal/lg"
	"github.com/andrej220/octahe/internal/target"
	"github.com/andrej220/octahe/internal/task"
	"github.com/andrej220/octahe/pkg/workerpool"
	"github.com/google/uuid"
)

const DefaultConnectionQuota = workerpool.TotalMaxWorkers

// Plan is the ordered list of steps and the targets they run against.
type Plan struct {
	Targets []target.Target
	Steps   []task.Step
}

type Options struct {
	// ConnectionQuota caps simultaneous target operations within a step.
	ConnectionQuota int
	// BaseDir resolves relative copy sources.
	BaseDir string
}

// Orchestrator owns the target and task registries for one run.
type Orchestrator struct {
	plan    Plan
	opts    Options
	targets *target.Registry
	tasks   *task.Registry
	status  io.Writer
	runID   uuid.UUID

	scheduler *Scheduler
}

// NewOrchestrator wires a run. Status lines and step indicators go to status.
func NewOrchestrator(plan Plan, opts Options, newConn target.ConnFactory, status io.Writer) *Orchestrator {
	if opts.ConnectionQuota <= 0 {
		opts.ConnectionQuota = DefaultConnectionQuota
	}
	if status == nil {
		status = io.Discard
	}
	o := &Orchestrator{
		plan:    plan,
		opts:    opts,
		targets: target.NewRegistry(newConn),
		tasks:   task.NewRegistry(),
		status:  status,
		runID:   uuid.New(),
	}
	dispatcher := NewDispatcher(o.targets, opts.ConnectionQuota, opts.BaseDir, status)
	o.scheduler = NewScheduler(plan.Steps, plan.Targets, o.targets, o.tasks, dispatcher)
	return o
}

func (o *Orchestrator) RunID() uuid.UUID          { return o.runID }
func (o *Orchestrator) Targets() *target.Registry { return o.targets }
func (o *Orchestrator) Tasks() *task.Registry     { return o.tasks }
func (o *Orchestrator) Scheduler() *Scheduler     { return o.scheduler }

// Prepare builds a record for every declared target. Every address is
// checked before any record is created, so a malformed target leaves the
// registry empty.
func (o *Orchestrator) Prepare() error {
	for _, t := range o.plan.Targets {
		if t.IsLocal() {
			continue
		}
		if _, err := target.ParseAddress(t); err != nil {
			return err
		}
	}
	for _, t := range o.plan.Targets {
		if _, err := o.targets.GetOrCreate(t); err != nil {
			return err
		}
	}
	return nil
}

// Run prepares the targets and runs the plan. Configuration errors are
// returned before any step starts; target failures never are.
func (o *Orchestrator) Run(ctx context.Context) (*Summary, error) {
	logger := lg.FromContext(ctx).With(lg.String("run_id", o.runID.String()))
	ctx = lg.Attach(ctx, logger)

	if err := o.Prepare(); err != nil {
		return nil, fmt.Errorf("preparing targets: %w", err)
	}
	logger.Info("Starting deployment",
		lg.Int("steps", len(o.plan.Steps)),
		lg.Int("targets", len(o.plan.Targets)),
		lg.Int("quota", o.opts.ConnectionQuota))

	started := time.Now()
	steps, err := o.scheduler.Run(ctx)
	summary := o.summarize(steps, started)
	if err != nil {
		summary.Cancelled = true
		return summary, err
	}
	logger.Info("Deployment finished", lg.Duration("duration", summary.EndedAt.Sub(summary.StartedAt)))
	return summary, nil
}

// Close releases every target connection.
func (o *Orchestrator) Close() error {
	return o.targets.Close()
}
