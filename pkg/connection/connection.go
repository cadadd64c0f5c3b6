// Package connection provides the capability to run commands and copy files
// on a deployment target, either the local machine or a remote host over SSH.
package connection

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultShell wraps every command unless a SHELL step replaced it.
const DefaultShell = "/bin/sh -c"

// Connection is the capability a target exposes to the scheduler.
type Connection interface {
	// Run executes command through the connection's shell and returns an
	// error carrying the command output when it does not succeed.
	Run(ctx context.Context, command string) error

	// AttachShell replaces the shell invocation later Run calls go through.
	// It never fails.
	AttachShell(shell string)

	// Copy transfers sourceFiles, resolved against baseDir when relative,
	// to destination on the target.
	Copy(ctx context.Context, baseDir, destination string, sourceFiles []string) error

	// Close releases transport resources.
	Close() error
}

// Output is returned when a command ran but reported failure.
type Output struct {
	Command  string
	ExitCode int
	Text     string
}

func (o *Output) Error() string {
	text := strings.TrimSpace(o.Text)
	if text == "" {
		return fmt.Sprintf("command %q exited with status %d", o.Command, o.ExitCode)
	}
	return fmt.Sprintf("command %q exited with status %d: %s", o.Command, o.ExitCode, text)
}

// wrap builds the full command line run on the target: sorted env exports
// followed by the shell invocation with the command escaped as one argument.
func wrap(shell string, env map[string]string, command string) string {
	if shell == "" {
		shell = DefaultShell
	}
	var b strings.Builder
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "export %s=%s; ", k, escape(env[k]))
	}
	b.WriteString(shell)
	b.WriteByte(' ')
	b.WriteString(escape(command))
	return b.String()
}

type copyItem struct {
	src string
	dst string
}

// copyPlan maps each source file to its absolute local path and the path it
// lands at on the target. A destination ending in "/" or a multi-file copy
// is treated as a directory.
func copyPlan(baseDir, destination string, sourceFiles []string) ([]copyItem, error) {
	if len(sourceFiles) == 0 {
		return nil, fmt.Errorf("copy to %s: no source files", destination)
	}
	if destination == "" {
		return nil, fmt.Errorf("copy: empty destination")
	}
	intoDir := strings.HasSuffix(destination, "/") || len(sourceFiles) > 1
	items := make([]copyItem, 0, len(sourceFiles))
	for _, src := range sourceFiles {
		local := src
		if !filepath.IsAbs(local) {
			local = filepath.Join(baseDir, local)
		}
		dst := destination
		if intoDir {
			dst = path.Join(destination, filepath.Base(local))
		}
		items = append(items, copyItem{src: local, dst: dst})
	}
	return items, nil
}
