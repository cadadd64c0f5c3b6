package connection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/crypto/ssh"
)

type ResilienceConfig struct {
	InitialInterval        time.Duration
	MaxInterval            time.Duration
	MaxElapsedTime         time.Duration
	CircuitBreakerSettings gobreaker.Settings
}

// DefaultResilienceConfig retries transport errors for up to a minute and
// trips the breaker after five consecutive failures.
func DefaultResilienceConfig(name string) ResilienceConfig {
	return ResilienceConfig{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  time.Minute,
		CircuitBreakerSettings: gobreaker.Settings{
			Name:        name,
			MaxRequests: 5,
			Interval:    1 * time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
		},
	}
}

func (r ResilienceConfig) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	b.MaxInterval = r.MaxInterval
	b.MaxElapsedTime = r.MaxElapsedTime
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.5
	return backoff.WithContext(b, ctx)
}

// ResilientClient dials lazily and hands out sessions through a circuit
// breaker, retrying transport failures with exponential backoff. A broken
// client is dropped and redialed on the next attempt.
type ResilientClient struct {
	addr    string
	config  *ssh.ClientConfig
	resConf ResilienceConfig
	breaker *gobreaker.CircuitBreaker

	mu     sync.Mutex
	client *ssh.Client
}

func NewResilientClient(addr string, config *ssh.ClientConfig, resConf ResilienceConfig) *ResilientClient {
	return &ResilientClient{
		addr:    addr,
		config:  config,
		resConf: resConf,
		breaker: gobreaker.NewCircuitBreaker(resConf.CircuitBreakerSettings),
	}
}

// Session returns a new session. The caller is responsible for closing it.
func (c *ResilientClient) Session(ctx context.Context) (*ssh.Session, error) {
	var sess *ssh.Session
	operation := func() error {
		res, err := c.breaker.Execute(func() (any, error) {
			client, err := c.dial()
			if err != nil {
				return nil, err
			}
			s, err := client.NewSession()
			if err != nil {
				c.reset(client)
				return nil, fmt.Errorf("new session: %w", err)
			}
			return s, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(err)
			}
			return err
		}
		sess = res.(*ssh.Session)
		return nil
	}

	if err := backoff.Retry(operation, c.resConf.backOff(ctx)); err != nil {
		return nil, fmt.Errorf("ssh %s: %w", c.addr, err)
	}
	return sess, nil
}

func (c *ResilientClient) dial() (*ssh.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	client, err := ssh.Dial("tcp", c.addr, c.config)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *ResilientClient) reset(client *ssh.Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == client {
		c.client.Close()
		c.client = nil
	}
}

func (c *ResilientClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}
