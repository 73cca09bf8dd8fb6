package cache

import (
	"context"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/errors"
	"github.com/vmihailenco/msgpack/v5"
)

// Cache stores tool results keyed by request. Implementations are safe for
// concurrent use. The context on each operation controls cancellation and
// timeout for I/O-backed backends.
type Cache interface {
	// Get retrieves a value from the cache.
	Get(ctx context.Context, key string) (bool, any, error)

	// Set stores a value with a TTL. If ttl <= 0, the backend's configured
	// default TTL is used.
	Set(ctx context.Context, key string, val any, ttl time.Duration) error

	// Hits returns the number of times a key has been read since it was set.
	Hits(ctx context.Context, key string) (bool, int)

	// Expire removes a key from the cache.
	Expire(ctx context.Context, key string) (bool, error)

	// Close shuts down the cache.
	Close() error
}

type entry struct {
	object  any
	expires time.Time
	hits    int
}

// Key derives a stable cache key from an operation name and its arguments.
func Key(op string, args ...string) string {
	h := xxhash.New()
	h.WriteString(op)
	for _, arg := range args {
		h.WriteString("\x00")
		h.WriteString(arg)
	}
	return op + ":" + strconv.FormatUint(h.Sum64(), 16)
}

// Get retrieves a typed value from the cache. In-memory backends return the
// stored value directly; serialized backends (redis, sqlite) hand back bytes
// which are decoded with msgpack.
func Get[T any](ctx context.Context, c Cache, key string) (bool, T, error) {
	var zero T
	found, val, err := c.Get(ctx, key)
	if !found || err != nil {
		return false, zero, err
	}
	if typed, ok := val.(T); ok {
		return true, typed, nil
	}
	if data, ok := val.([]byte); ok {
		var result T
		if err := msgpack.Unmarshal(data, &result); err != nil {
			return false, zero, errors.Wrap(err, "cache: unmarshalling value")
		}
		return true, result, nil
	}
	return false, zero, errors.Newf("cache: cannot convert value of type %T to %T", val, zero)
}

// DefaultTTL is used by backends when Set is called with ttl <= 0 and no
// WithTTL option was given.
const DefaultTTL = 5 * time.Minute

// DefaultQueryTimeout bounds each operation on I/O-backed backends.
const DefaultQueryTimeout = 5 * time.Second

type config struct {
	defaultTTL   time.Duration
	queryTimeout time.Duration
	expiryCheck  time.Duration
	prefix       string
}

// Option configures a Cache backend.
type Option func(*config)

func applyOptions(opts []Option) config {
	cfg := config{
		defaultTTL:   DefaultTTL,
		queryTimeout: DefaultQueryTimeout,
		expiryCheck:  time.Minute,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithTTL sets the default TTL used when Set is called with ttl <= 0.
func WithTTL(d time.Duration) Option {
	return func(c *config) { c.defaultTTL = d }
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed backends.
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithExpiryCheck sets the interval for background cleanup of expired
// entries. Applies to the in-memory and sqlite backends.
func WithExpiryCheck(d time.Duration) Option {
	return func(c *config) { c.expiryCheck = d }
}

// WithPrefix namespaces keys. Applies to the redis backend.
func WithPrefix(p string) Option {
	return func(c *config) { c.prefix = p }
}

// Invoker produces a value on a cache miss. The bool return reports whether a
// value exists; return false to avoid caching a zero value.
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Exec is a read-through helper. On a hit it returns the cached value. On a
// miss it calls invoke and, when invoke reports found, stores the result
// under key with the given ttl. Set failures after a successful invoke are
// swallowed since the caller already has their value.
func Exec[T any](ctx context.Context, c Cache, key string, ttl time.Duration, invoke Invoker[T]) (bool, T, error) {
	var zero T
	found, val, err := Get[T](ctx, c, key)
	if err != nil {
		return false, zero, err
	}
	if found {
		return true, val, nil
	}

	result, ok, err := invoke(ctx)
	if err != nil {
		return false, zero, err
	}
	if !ok {
		return false, zero, nil
	}

	_ = c.Set(ctx, key, result, ttl)
	return true, result, nil
}
