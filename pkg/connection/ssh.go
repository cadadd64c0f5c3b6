package connection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strconv"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

const DefaultSSHPort = 22

// SSHOptions carries credentials shared by every remote target.
type SSHOptions struct {
	KeyPath  string
	Password string
	// HostKey pins the server key, in authorized_keys format. Empty accepts any key.
	HostKey    string
	Timeout    time.Duration
	Resilience *ResilienceConfig
}

// SSH is a remote connection. User, Host and Port are filled in while the
// owning target record is built; nothing is dialed until the first Run or Copy.
type SSH struct {
	User string
	Host string
	Port int
	Env  map[string]string

	opts SSHOptions

	mu     sync.Mutex
	shell  string
	client *ResilientClient
}

var _ Connection = (*SSH)(nil)

func NewSSH(opts SSHOptions, env map[string]string) *SSH {
	return &SSH{Port: DefaultSSHPort, Env: env, opts: opts, shell: DefaultShell}
}

func (s *SSH) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

func (s *SSH) AttachShell(shell string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shell = shell
}

func (s *SSH) session(ctx context.Context) (*ssh.Session, string, error) {
	s.mu.Lock()
	if s.client == nil {
		config, err := s.clientConfig()
		if err != nil {
			s.mu.Unlock()
			return nil, "", err
		}
		resConf := DefaultResilienceConfig("ssh-" + s.Addr())
		if s.opts.Resilience != nil {
			resConf = *s.opts.Resilience
		}
		s.client = NewResilientClient(s.Addr(), config, resConf)
	}
	client, shell := s.client, s.shell
	s.mu.Unlock()

	sess, err := client.Session(ctx)
	if err != nil {
		return nil, "", err
	}
	return sess, shell, nil
}

func (s *SSH) clientConfig() (*ssh.ClientConfig, error) {
	var auth []ssh.AuthMethod
	if s.opts.KeyPath != "" {
		method, err := publicKeyAuth(s.opts.KeyPath)
		if err != nil {
			return nil, err
		}
		auth = append(auth, method)
	}
	if s.opts.Password != "" {
		auth = append(auth, ssh.Password(s.opts.Password))
	}

	hkcb := ssh.InsecureIgnoreHostKey()
	if s.opts.HostKey != "" {
		key, _, _, _, err := ssh.ParseAuthorizedKey([]byte(s.opts.HostKey))
		if err != nil {
			return nil, fmt.Errorf("host key for %s could not be parsed: %w", s.Addr(), err)
		}
		hkcb = ssh.FixedHostKey(key)
	}

	timeout := s.opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ssh.ClientConfig{
		User:            s.User,
		Auth:            auth,
		HostKeyCallback: hkcb,
		Timeout:         timeout,
		BannerCallback:  func(message string) error { return nil }, //ignore banner
	}, nil
}

func (s *SSH) Run(ctx context.Context, command string) error {
	sess, shell, err := s.session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdout = &out
	sess.Stderr = &out
	return runErr(command, sess.Run(wrap(shell, s.Env, command)), &out)
}

func (s *SSH) Copy(ctx context.Context, baseDir, destination string, sourceFiles []string) error {
	items, err := copyPlan(baseDir, destination, sourceFiles)
	if err != nil {
		return err
	}
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelCopies)
	for _, item := range items {
		g.Go(func() error {
			return s.copyFile(ctx, item)
		})
	}
	return g.Wait()
}

// copyFile streams one file over the session's stdin into cat on the target.
func (s *SSH) copyFile(ctx context.Context, item copyItem) error {
	f, err := os.Open(item.src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", item.src, err)
	}
	if info.IsDir() {
		return fmt.Errorf("copy %s: source is a directory", item.src)
	}

	sess, _, err := s.session(ctx)
	if err != nil {
		return err
	}
	defer sess.Close()

	var out bytes.Buffer
	sess.Stdin = f
	sess.Stdout = &out
	sess.Stderr = &out
	cmd := fmt.Sprintf("mkdir -p %s && cat > %s && chmod %o %s",
		escape(path.Dir(item.dst)), escape(item.dst), info.Mode().Perm(), escape(item.dst))
	return runErr("copy "+item.src, sess.Run(cmd), &out)
}

func runErr(command string, err error, out *bytes.Buffer) error {
	if err == nil {
		return nil
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return &Output{Command: command, ExitCode: exitErr.ExitStatus(), Text: out.String()}
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		return &Output{Command: command, ExitCode: -1, Text: out.String()}
	}
	return fmt.Errorf("running %q: %w", command, err)
}

func (s *SSH) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

func publicKeyAuth(privateKeyPath string) (ssh.AuthMethod, error) {
	key, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("unable to read private key: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("unable to parse private key: %w", err)
	}
	return ssh.PublicKeys(signer), nil
}
