package cache

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ValkeyConfig holds connection parameters for a Valkey/Redis-compatible server.
type ValkeyConfig struct {
	Addr         string
	Username     string
	Password     string
	DB           int
	KeyPrefix    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	MaxRetries   int
	TLS          bool
}

func (cfg *ValkeyConfig) normalise() {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 2 * time.Second
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 500 * time.Millisecond
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 500 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 1
	}
}

// ValkeyProvider implements Provider over RESP, opening one connection per command.
type ValkeyProvider struct {
	cfg ValkeyConfig
}

// NewValkeyProvider creates a Provider and pings the server to fail fast on bad
// credentials or connectivity.
func NewValkeyProvider(cfg ValkeyConfig) (*ValkeyProvider, error) {
	if cfg.Addr == "" {
		return nil, errors.New("valkey addr is required")
	}
	cfg.normalise()
	provider := &ValkeyProvider{cfg: cfg}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	err := provider.withConn(ctx, func(rc *respConn) error {
		reply, err := rc.do("PING")
		if err != nil {
			return err
		}
		if reply.typ != replySimpleString || string(reply.data) != "PONG" {
			return fmt.Errorf("unexpected PING response: %s", reply.data)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("valkey ping: %w", err)
	}
	return provider, nil
}

func (p *ValkeyProvider) key(k string) string {
	return p.cfg.KeyPrefix + k
}

// Get fetches bytes by key, returning ErrCacheMiss when the key is absent.
func (p *ValkeyProvider) Get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := p.withConn(ctx, func(rc *respConn) error {
		reply, err := rc.do("GET", p.key(key))
		if err != nil {
			return err
		}
		switch reply.typ {
		case replyNil:
			return ErrCacheMiss
		case replyBulkString:
			payload = reply.data
			return nil
		default:
			return fmt.Errorf("unexpected valkey reply type %q for GET", reply.typ)
		}
	})
	return payload, err
}

// Set stores bytes with the provided TTL in milliseconds precision.
func (p *ValkeyProvider) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	args := []string{p.key(key), string(value)}
	if ttl > 0 {
		args = append(args, "PX", strconv.FormatInt(ttl.Milliseconds(), 10))
	}
	return p.withConn(ctx, func(rc *respConn) error {
		reply, err := rc.do("SET", args...)
		if err != nil {
			return err
		}
		if !reply.isOK() {
			return fmt.Errorf("unexpected SET response: %s", reply.data)
		}
		return nil
	})
}

// Delete removes a key.
func (p *ValkeyProvider) Delete(ctx context.Context, key string) error {
	return p.withConn(ctx, func(rc *respConn) error {
		_, err := rc.do("DEL", p.key(key))
		return err
	})
}

// Clear flushes the configured logical database.
func (p *ValkeyProvider) Clear(ctx context.Context) error {
	return p.withConn(ctx, func(rc *respConn) error {
		reply, err := rc.do("FLUSHDB")
		if err != nil {
			return err
		}
		if !reply.isOK() {
			return fmt.Errorf("unexpected FLUSHDB response: %s", reply.data)
		}
		return nil
	})
}

// Close is a no-op; connections are not pooled.
func (p *ValkeyProvider) Close() error { return nil }

func (p *ValkeyProvider) withConn(ctx context.Context, fn func(*respConn) error) error {
	var lastErr error
	for attempt := 0; attempt < p.cfg.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = p.attempt(ctx, fn)
		if lastErr == nil || !shouldRetry(lastErr) {
			return lastErr
		}
		if attempt < p.cfg.MaxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}
	}
	return lastErr
}

func (p *ValkeyProvider) attempt(ctx context.Context, fn func(*respConn) error) error {
	rc, err := p.dial(ctx)
	if err != nil {
		return err
	}
	defer rc.close()
	if err := p.bootstrap(rc); err != nil {
		return err
	}
	return fn(rc)
}

func (p *ValkeyProvider) dial(ctx context.Context) (*respConn, error) {
	dialer := net.Dialer{Timeout: deadlineOr(ctx, p.cfg.DialTimeout)}
	var (
		conn net.Conn
		err  error
	)
	if p.cfg.TLS {
		tlsCfg := &tls.Config{MinVersion: tls.VersionTLS12, ServerName: hostForTLS(p.cfg.Addr)}
		conn, err = tls.DialWithDialer(&dialer, "tcp", p.cfg.Addr, tlsCfg)
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", p.cfg.Addr)
	}
	if err != nil {
		return nil, err
	}
	return newRESPConn(conn, p.cfg.ReadTimeout, p.cfg.WriteTimeout), nil
}

func (p *ValkeyProvider) bootstrap(rc *respConn) error {
	if p.cfg.Password != "" {
		args := []string{p.cfg.Password}
		if p.cfg.Username != "" {
			args = []string{p.cfg.Username, p.cfg.Password}
		}
		reply, err := rc.do("AUTH", args...)
		if err != nil {
			return err
		}
		if !reply.isOK() {
			return fmt.Errorf("auth failed: %s", reply.data)
		}
	}
	if p.cfg.DB > 0 {
		reply, err := rc.do("SELECT", strconv.Itoa(p.cfg.DB))
		if err != nil {
			return err
		}
		if !reply.isOK() {
			return fmt.Errorf("select failed: %s", reply.data)
		}
	}
	return nil
}

func deadlineOr(ctx context.Context, d time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return time.Millisecond
		}
		if d == 0 || remaining < d {
			return remaining
		}
	}
	if d <= 0 {
		return time.Millisecond
	}
	return d
}

func backoff(attempt int) time.Duration {
	return time.Duration(1<<attempt) * 25 * time.Millisecond
}

func shouldRetry(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func hostForTLS(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}
