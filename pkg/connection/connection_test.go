package connection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEscape(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{name: "plain", in: "echo hi", expected: "'echo hi'"},
		{name: "empty", in: "", expected: "''"},
		{name: "single quote", in: "it's", expected: `"$(echo 'aXQncw==' | base64 -d)"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, escape(tt.in))
		})
	}
}

func TestWrap(t *testing.T) {
	got := wrap("", map[string]string{"B": "2", "A": "1"}, "echo $A")
	assert.Equal(t, "export A='1'; export B='2'; /bin/sh -c 'echo $A'", got)

	assert.Equal(t, "/bin/bash -lc 'make'", wrap("/bin/bash -lc", nil, "make"))
}

func TestCopyPlan(t *testing.T) {
	tests := []struct {
		name        string
		destination string
		sources     []string
		expected    []copyItem
		expectedErr bool
	}{
		{
			name:        "single file to file",
			destination: "/opt/app.conf",
			sources:     []string{"conf/app.conf"},
			expected:    []copyItem{{src: "/plans/conf/app.conf", dst: "/opt/app.conf"}},
		},
		{
			name:        "single file into dir",
			destination: "/opt/",
			sources:     []string{"/abs/app.tar"},
			expected:    []copyItem{{src: "/abs/app.tar", dst: "/opt/app.tar"}},
		},
		{
			name:        "many files",
			destination: "/opt",
			sources:     []string{"a", "b"},
			expected:    []copyItem{{src: "/plans/a", dst: "/opt/a"}, {src: "/plans/b", dst: "/opt/b"}},
		},
		{name: "no sources", destination: "/opt", expectedErr: true},
		{name: "no destination", sources: []string{"a"}, expectedErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := copyPlan("/plans", tt.destination, tt.sources)
			if tt.expectedErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, items)
		})
	}
}

func TestLocalRun(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	l := NewLocal(map[string]string{"GREETING": "hi"})
	require.NoError(t, l.Run(ctx, "echo $GREETING > "+out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hi\n", string(data))

	err = l.Run(ctx, "echo broken >&2; exit 3")
	var output *Output
	require.True(t, errors.As(err, &output))
	assert.Equal(t, 3, output.ExitCode)
	assert.Contains(t, output.Error(), "broken")
}

func TestLocalAttachShell(t *testing.T) {
	l := NewLocal(nil)
	l.AttachShell("/bin/sh -ec")
	assert.Equal(t, "/bin/sh -ec", l.currentShell())
	assert.NoError(t, l.Run(context.Background(), "true"))

	l.AttachShell("")
	assert.Equal(t, DefaultShell, l.currentShell())
}

func TestLocalCopy(t *testing.T) {
	base := t.TempDir()
	dest := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(base, "a.txt"), []byte("A"), 0640))
	require.NoError(t, os.WriteFile(filepath.Join(base, "b.txt"), []byte("B"), 0600))

	l := NewLocal(nil)
	require.NoError(t, l.Copy(context.Background(), base, filepath.Join(dest, "sub"), []string{"a.txt", "b.txt"}))

	a, err := os.ReadFile(filepath.Join(dest, "sub", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "A", string(a))
	info, err := os.Stat(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	assert.Error(t, l.Copy(context.Background(), base, dest+"/", []string{"missing.txt"}))
	assert.Error(t, l.Copy(context.Background(), base, dest+"/", []string{"."}))
}

func TestSSHConfig(t *testing.T) {
	s := NewSSH(SSHOptions{Password: "secret"}, nil)
	s.User, s.Host = "deploy", "10.0.0.5"
	assert.Equal(t, "10.0.0.5:22", s.Addr())

	cfg, err := s.clientConfig()
	require.NoError(t, err)
	assert.Equal(t, "deploy", cfg.User)
	assert.Len(t, cfg.Auth, 1)
	assert.Equal(t, 10*time.Second, cfg.Timeout)

	s = NewSSH(SSHOptions{KeyPath: filepath.Join(t.TempDir(), "missing")}, nil)
	_, err = s.clientConfig()
	assert.Error(t, err)

	s = NewSSH(SSHOptions{HostKey: "not a key"}, nil)
	_, err = s.clientConfig()
	assert.Error(t, err)
}

func TestSSHRunUnreachable(t *testing.T) {
	resConf := DefaultResilienceConfig("test")
	resConf.InitialInterval = time.Millisecond
	resConf.MaxInterval = 5 * time.Millisecond
	resConf.MaxElapsedTime = 50 * time.Millisecond

	s := NewSSH(SSHOptions{Timeout: 100 * time.Millisecond, Resilience: &resConf}, nil)
	s.Host, s.Port = "127.0.0.1", 1

	err := s.Run(context.Background(), "echo hi")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "127.0.0.1:1")
	assert.NoError(t, s.Close())
}
