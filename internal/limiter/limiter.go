package limiter

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	defaultKey = "pdf2img:inflight"
	defaultTTL = 10 * time.Minute
)

// Admission caps concurrent conversions. The local slot is a buffered-channel
// semaphore; when Redis is configured a shared counter caps the whole fleet.
type Admission struct {
	rdb       *redis.Client
	key       string
	ttl       time.Duration
	maxGlobal int64
	sem       chan struct{}
}

type Options struct {
	RedisURL    string
	MaxInflight int // per process
	MaxGlobal   int // across replicas, defaults to MaxInflight when Redis is set
	Key         string
	TTL         time.Duration
}

func New(opts Options) (*Admission, error) {
	if opts.MaxInflight <= 0 {
		opts.MaxInflight = 4
	}
	if opts.MaxGlobal <= 0 {
		opts.MaxGlobal = opts.MaxInflight
	}
	if opts.Key == "" {
		opts.Key = defaultKey
	}
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	a := &Admission{
		key:       opts.Key,
		ttl:       opts.TTL,
		maxGlobal: int64(opts.MaxGlobal),
		sem:       make(chan struct{}, opts.MaxInflight),
	}
	if opts.RedisURL == "" {
		return a, nil
	}
	ro, err := redis.ParseURL(opts.RedisURL)
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(ro)
	if err := c.Ping(context.Background()).Err(); err != nil {
		_ = c.Close()
		return nil, err
	}
	a.rdb = c
	return a, nil
}

// Allow tries to reserve a slot without blocking. It returns a release
// function and true if admitted; otherwise a no-op release and false.
func (a *Admission) Allow(ctx context.Context) (func(), bool) {
	select {
	case a.sem <- struct{}{}:
	default:
		return func() {}, false
	}
	local := func() { <-a.sem }
	if a.rdb == nil {
		return local, true
	}

	n, err := a.rdb.Incr(ctx, a.key).Result()
	if err != nil {
		// Redis outage degrades to the local bound only.
		log.Warn().Err(err).Msg("admission counter unavailable; using local limit")
		return local, true
	}
	// refresh TTL so a crashed replica's slots eventually expire
	_ = a.rdb.Expire(ctx, a.key, a.ttl).Err()
	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.rdb.Decr(ctx, a.key).Err()
		local()
	}
	if n > a.maxGlobal {
		release()
		return func() {}, false
	}
	return release, true
}

// Shared reports whether a Redis counter is in use.
func (a *Admission) Shared() bool { return a.rdb != nil }

// Ping checks the shared counter's Redis connection.
func (a *Admission) Ping(ctx context.Context) error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Ping(ctx).Err()
}

func (a *Admission) CloseClient() error {
	if a.rdb == nil {
		return nil
	}
	return a.rdb.Close()
}
