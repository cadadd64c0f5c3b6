package target

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Localhost is the sentinel name that targets the machine octahe runs on.
const Localhost = "localhost"

var (
	ErrInvalidAddress = errors.New("invalid target address")
	ErrInvalidPort    = errors.New("port is not an integer")
)

// Target is a named deployment destination as declared in the plan.
type Target struct {
	Name string
	// To is the connection address, [user@]host[:port]. Empty means Name.
	To string
}

// Address is a parsed [user@]host[:port]. Port is zero when not given.
type Address struct {
	User string
	Host string
	Port int
}

func (t Target) IsLocal() bool {
	return t.Name == Localhost
}

func (t Target) address() string {
	if t.To == "" {
		return t.Name
	}
	return t.To
}

// ParseAddress splits the target's address. A port that is present but not
// a positive integer is a configuration error; the connection is never
// attempted.
func ParseAddress(t Target) (Address, error) {
	raw := t.address()
	var addr Address
	if i := strings.LastIndex(raw, "@"); i >= 0 {
		addr.User = raw[:i]
		raw = raw[i+1:]
	}
	host, port, found := strings.Cut(raw, ":")
	if found {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 {
			return Address{}, fmt.Errorf("target %s (%s): %w: %q", t.Name, t.address(), ErrInvalidPort, port)
		}
		addr.Port = n
	}
	if host == "" {
		return Address{}, fmt.Errorf("target %s (%s): %w: empty host", t.Name, t.address(), ErrInvalidAddress)
	}
	addr.Host = host
	return addr, nil
}
