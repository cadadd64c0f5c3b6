package target

import (
	"errors"
	"fmt"
	"os/user"
	"sync"

	"github.com/andrej220/octahe/pkg/connection"
)

type State int

const (
	Available State = iota
	Failed
)

func (s State) String() string {
	switch s {
	case Available:
		return "available"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Record is the process-lifetime state of one target. Once Failed it never
// becomes Available again.
type Record struct {
	Target  Target
	Address Address
	Conn    connection.Connection

	mu         sync.Mutex
	state      State
	failedStep int
	failedTask string
}

func (r *Record) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

func (r *Record) IsAvailable() bool {
	return r.State() == Available
}

// Fail marks the target failed at step. Diagnostics of the first failure are
// kept; later calls are no-ops and return false.
func (r *Record) Fail(step int, diagnostic string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state == Failed {
		return false
	}
	r.state = Failed
	r.failedStep = step
	r.failedTask = diagnostic
	return true
}

// Failure returns the step and diagnostic of the first failure, ok is false
// while the target is available.
func (r *Record) Failure() (step int, diagnostic string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failedStep, r.failedTask, r.state == Failed
}

// ConnFactory builds the connection owned by a new record.
type ConnFactory func(t Target, addr Address) (connection.Connection, error)

// NewConnFactory picks a Local connection for the localhost sentinel and an
// SSH connection for anything else. A missing user defaults to the current one.
func NewConnFactory(env map[string]string, opts connection.SSHOptions) ConnFactory {
	return func(t Target, addr Address) (connection.Connection, error) {
		if t.IsLocal() {
			return connection.NewLocal(env), nil
		}
		conn := connection.NewSSH(opts, env)
		conn.User = addr.User
		if conn.User == "" {
			conn.User = currentUser()
		}
		conn.Host = addr.Host
		if addr.Port > 0 {
			conn.Port = addr.Port
		}
		return conn, nil
	}
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "root"
}

// Registry maps target names to records. Records are created once and never
// removed.
type Registry struct {
	mu      sync.Mutex
	records map[string]*Record
	order   []string
	newConn ConnFactory
}

func NewRegistry(newConn ConnFactory) *Registry {
	return &Registry{
		records: make(map[string]*Record),
		newConn: newConn,
	}
}

// GetOrCreate returns the record for t.Name, building it on first use.
// Address and connection errors leave the registry unchanged.
func (r *Registry) GetOrCreate(t Target) (*Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.records[t.Name]; ok {
		return rec, nil
	}

	var addr Address
	if !t.IsLocal() {
		var err error
		addr, err = ParseAddress(t)
		if err != nil {
			return nil, err
		}
	}
	conn, err := r.newConn(t, addr)
	if err != nil {
		return nil, fmt.Errorf("target %s: connection: %w", t.Name, err)
	}
	rec := &Record{Target: t, Address: addr, Conn: conn}
	r.records[t.Name] = rec
	r.order = append(r.order, t.Name)
	return rec, nil
}

func (r *Registry) Lookup(name string) (*Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[name]
	return rec, ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Records returns every record in creation order.
func (r *Registry) Records() []*Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Record, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.records[name])
	}
	return out
}

func (r *Registry) CountAvailable() int {
	n := 0
	for _, rec := range r.Records() {
		if rec.IsAvailable() {
			n++
		}
	}
	return n
}

func (r *Registry) CountFailed() int {
	return r.Len() - r.CountAvailable()
}

// Close closes every connection and joins their errors.
func (r *Registry) Close() error {
	var errs []error
	for _, rec := range r.Records() {
		if err := rec.Conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("target %s: %w", rec.Target.Name, err))
		}
	}
	return errors.Join(errs...)
}
