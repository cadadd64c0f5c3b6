package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
)

// maxParallelCopies bounds per-connection file transfers of a single COPY.
const maxParallelCopies = 4

// Local runs commands on the machine octahe itself runs on.
type Local struct {
	Env map[string]string

	mu    sync.Mutex
	shell string
}

var _ Connection = (*Local)(nil)

func NewLocal(env map[string]string) *Local {
	return &Local{Env: env, shell: DefaultShell}
}

func (l *Local) AttachShell(shell string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shell = shell
}

func (l *Local) currentShell() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.shell == "" {
		return DefaultShell
	}
	return l.shell
}

func (l *Local) Run(ctx context.Context, command string) error {
	args := strings.Fields(l.currentShell())
	cmd := exec.CommandContext(ctx, args[0], append(args[1:], command)...)
	cmd.Env = append(os.Environ(), l.environ()...)

	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return &Output{Command: command, ExitCode: exitErr.ExitCode(), Text: out.String()}
	}
	return fmt.Errorf("running %q: %w", command, err)
}

func (l *Local) environ() []string {
	keys := make([]string, 0, len(l.Env))
	for k := range l.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	env := make([]string, 0, len(keys))
	for _, k := range keys {
		env = append(env, k+"="+l.Env[k])
	}
	return env
}

func (l *Local) Copy(ctx context.Context, baseDir, destination string, sourceFiles []string) error {
	items, err := copyPlan(baseDir, destination, sourceFiles)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCopies)
	for _, item := range items {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			return copyLocalFile(item.src, item.dst)
		})
	}
	return g.Wait()
}

func copyLocalFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("copy %s: source is a directory", src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("create destination dir: %w", err)
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}
	return out.Close()
}

func (l *Local) Close() error { return nil }
