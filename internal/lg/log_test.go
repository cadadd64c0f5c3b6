package lg

import (
	"context"
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlatten(t *testing.T) {
	assert.Equal(t, "", flatten())

	out := flatten(String("user", "alice"), Int("attempts", 3))
	assert.Contains(t, out, `"user"`)
	assert.Contains(t, out, `"alice"`)
	assert.Contains(t, out, "3")
}

func TestFromContext(t *testing.T) {
	assert.IsType(t, defaultLogger{}, FromContext(context.Background()))

	ctx := Attach(context.Background(), Discard)
	assert.Equal(t, Discard, FromContext(ctx))
}

func TestDefaultLoggerWithKeepsFields(t *testing.T) {
	l := defaultLogger{}.With(String("target", "web1")).With(Int("step", 2))
	d, ok := l.(defaultLogger)
	assert.True(t, ok)
	assert.Len(t, d.fields, 2)
}

func TestRegisterFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg := RegisterFlags(fs, "octahe")
	assert.NoError(t, fs.Parse([]string{"-debug", "-log-format", "json"}))
	assert.True(t, cfg.Debug)
	assert.Equal(t, "json", cfg.Format)
	assert.Equal(t, "octahe", cfg.ServiceName)
}
