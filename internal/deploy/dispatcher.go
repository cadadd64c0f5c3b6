package deploy

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/andrej220/octahe/internal/lg"
	"github.com/andrej220/octahe/internal/target"
	"github.com/andrej220/octahe/internal/task"
	"github.com/andrej220/octahe/pkg/workerpool"
)

// unit is one step running on one target.
type unit struct {
	step   *task.Record
	target *target.Record
}

func (u unit) String() string {
	return fmt.Sprintf("step %d %s on %s", u.step.Index, u.step.Step.Key, u.target.Target.Name)
}

// Dispatcher runs a single step across every available target, at most
// quota at a time, and returns once all of them are done.
type Dispatcher struct {
	targets *target.Registry
	quota   int
	baseDir string

	statusMu sync.Mutex
	status   io.Writer
}

func NewDispatcher(targets *target.Registry, quota int, baseDir string, status io.Writer) *Dispatcher {
	return &Dispatcher{targets: targets, quota: quota, baseDir: baseDir, status: status}
}

// Dispatch returns the number of units it queued. When targets exist but all
// of them have failed it does nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, rec *task.Record, total int, declared []target.Target) int {
	if d.targets.Len() > 0 && d.targets.CountAvailable() == 0 {
		lg.FromContext(ctx).Debug("No available targets, skipping step", lg.Int("step", rec.Index))
		return 0
	}

	jobCtx := ctx
	if rec.Step.IsShell() {
		// Swapping the shell cannot fail and is applied even after cancellation.
		jobCtx = context.WithoutCancel(ctx)
	}

	pool := workerpool.NewPool[unit](d.quota)
	dispatched := 0
	for _, t := range declared {
		tr, ok := d.targets.Lookup(t.Name)
		if !ok || !tr.IsAvailable() {
			continue
		}
		if dispatched == 0 {
			d.printf("Step %d/%d : %s %s\n", rec.Index, total, rec.Step.Key, rec.Step.Describe())
			rec.Start()
		}
		pool.Submit(workerpool.Job[unit]{
			Payload: unit{step: rec, target: tr},
			Fn:      d.execute,
			Ctx:     jobCtx,
		})
		dispatched++
	}
	pool.Wait()
	rec.Finish()
	return dispatched
}

func (d *Dispatcher) execute(ctx context.Context, u unit) error {
	conn := u.target.Conn
	var err error
	switch a := u.step.Step.Action.(type) {
	case task.Command:
		if u.step.Step.IsShell() {
			conn.AttachShell(a.Text)
			return nil
		}
		err = conn.Run(ctx, a.Text)
	case task.Copy:
		err = conn.Copy(ctx, d.baseDir, a.Destination, a.SourceFiles)
	default:
		err = fmt.Errorf("unsupported action %T", a)
	}
	if err != nil {
		u.target.Fail(u.step.Index, err.Error())
		u.step.Degrade()
		return fmt.Errorf("target %s: %w", u.target.Target.Name, err)
	}
	return nil
}

func (d *Dispatcher) printf(format string, args ...any) {
	d.statusMu.Lock()
	defer d.statusMu.Unlock()
	fmt.Fprintf(d.status, format, args...)
}
