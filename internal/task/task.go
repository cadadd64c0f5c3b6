package task

import (
	"fmt"
	"strings"
)

// Step keys understood by the dispatcher.
const (
	KeyRun   = "RUN"
	KeyExec  = "EXEC"
	KeyShell = "SHELL"
	KeyCopy  = "COPY"
	KeyAdd   = "ADD"
)

// Action is the payload of a step: either a Command or a Copy.
type Action interface {
	isAction()
	String() string
}

type Command struct {
	Text string
}

type Copy struct {
	SourceFiles []string
	Destination string
}

func (Command) isAction() {}
func (Copy) isAction()    {}

func (c Command) String() string { return c.Text }

func (c Copy) String() string {
	return strings.Join(c.SourceFiles, " ") + " " + c.Destination
}

// Step is one entry of the deployment plan.
type Step struct {
	Key    string
	Action Action
	// Original is the step as written in the plan, used for status lines.
	Original string
}

// IsShell reports whether the step swaps the shell rather than running a
// command.
func (s Step) IsShell() bool {
	_, isCommand := s.Action.(Command)
	return isCommand && strings.EqualFold(s.Key, KeyShell)
}

func (s Step) Describe() string {
	if s.Original != "" {
		return s.Original
	}
	return s.Action.String()
}

// NewStep builds a step from a directive key and checks the payload shape
// the key requires.
func NewStep(key string, action Action, original string) (Step, error) {
	key = strings.ToUpper(key)
	switch a := action.(type) {
	case Command:
		switch key {
		case KeyRun, KeyExec, KeyShell:
		default:
			return Step{}, fmt.Errorf("step %s: command action needs RUN, EXEC or SHELL", key)
		}
		if strings.TrimSpace(a.Text) == "" {
			return Step{}, fmt.Errorf("step %s: empty command", key)
		}
	case Copy:
		switch key {
		case KeyCopy, KeyAdd:
		default:
			return Step{}, fmt.Errorf("step %s: copy action needs COPY or ADD", key)
		}
		if len(a.SourceFiles) == 0 || a.Destination == "" {
			return Step{}, fmt.Errorf("step %s: copy needs source files and a destination", key)
		}
	default:
		return Step{}, fmt.Errorf("step %s: unsupported action %T", key, action)
	}
	return Step{Key: key, Action: action, Original: original}, nil
}
