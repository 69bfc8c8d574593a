package statuscheck

import (
	"context"
	"errors"
	"time"

	"github.com/local/pdf2img/internal/storage"
)

// RedisPinger models the minimal Redis capability we need for status checks.
type RedisPinger interface {
	Ping(ctx context.Context) error
}

// Checker aggregates readiness checks for external dependencies.
type Checker struct {
	redis   RedisPinger
	store   storage.ObjectStore
	engine  string
	timeout time.Duration
}

// Options configures the Checker.
type Options struct {
	Redis   RedisPinger // optional
	Store   storage.ObjectStore
	Engine  string
	Timeout time.Duration
}

// Status represents the readiness of a subsystem.
type Status struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Summary bundles all subsystem statuses.
type Summary struct {
	Store  Status  `json:"store"`
	Redis  *Status `json:"redis,omitempty"`
	Engine Status  `json:"engine"`
}

// New creates a new Checker with the provided options.
func New(opts Options) *Checker {
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	return &Checker{redis: opts.Redis, store: opts.Store, engine: opts.Engine, timeout: opts.Timeout}
}

// Check returns the current status snapshot and whether every check passed.
func (c *Checker) Check(ctx context.Context) (Summary, bool) {
	s := Summary{
		Store:  c.checkStore(ctx),
		Engine: Status{OK: c.engine != "", Message: c.engine},
	}
	ok := s.Store.OK && s.Engine.OK
	if c.redis != nil {
		st := c.checkRedis(ctx)
		s.Redis = &st
		ok = ok && st.OK
	}
	return s, ok
}

func (c *Checker) checkRedis(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.redis.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func (c *Checker) checkStore(ctx context.Context) Status {
	if c.store == nil {
		return Status{OK: false, Message: "Store not configured"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		return Status{OK: false, Message: trimError(err)}
	}
	return Status{OK: true, Message: "Connected"}
}

func trimError(err error) string {
	if err == nil {
		return ""
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "timeout"
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	msg := err.Error()
	if len(msg) > 120 {
		return msg[:120]
	}
	return msg
}
