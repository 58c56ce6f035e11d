// Copyright (C) 2023, Substrate Tools. All rights reserved.
// See the file LICENSE for licensing terms.

package crawler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/substrate-tools/forkoff/chainspec"
	"github.com/substrate-tools/forkoff/utils/formatting"
)

var (
	// ErrInconsistent reports a crawl that cannot produce a correct
	// snapshot: a duplicate or out-of-order key, or a key without a value
	// at the pinned block. The underlying node either moved state despite
	// pinning or is misbehaving; there is no retry.
	ErrInconsistent = errors.New("crawl inconsistency")

	// ErrCrawlFailed reports retry exhaustion or malformed on-chain data.
	// A partial snapshot is never returned.
	ErrCrawlFailed = errors.New("crawl failed")
)

const (
	defaultPageSize          = 512
	defaultValueBatch        = 64
	defaultConcurrency       = 16
	defaultMaxAttempts       = 8
	defaultRetryInitialDelay = 100 * time.Millisecond
	defaultRetryMaxDelay     = 8 * time.Second

	retryJitterFactor = 0.25
)

// Config tunes one crawl. The zero value is usable; zero fields take the
// defaults above.
type Config struct {
	// At pins the crawl to a specific block hash. When empty the chain's
	// current finalized head is pinned on the first call instead.
	At string

	// PageSize is the maximum number of keys requested per enumeration
	// call.
	PageSize uint32

	// ValueBatch is the number of keys per value query.
	ValueBatch int

	// Concurrency bounds in-flight value queries so a crawl does not
	// overwhelm the live node.
	Concurrency int64

	// MaxAttempts bounds how often a single RPC call is tried before the
	// crawl aborts with ErrCrawlFailed.
	MaxAttempts int

	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration
}

func (c Config) withDefaults() Config {
	if c.PageSize == 0 {
		c.PageSize = defaultPageSize
	}
	if c.ValueBatch <= 0 {
		c.ValueBatch = defaultValueBatch
	}
	if c.Concurrency <= 0 {
		c.Concurrency = defaultConcurrency
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.RetryInitialDelay <= 0 {
		c.RetryInitialDelay = defaultRetryInitialDelay
	}
	if c.RetryMaxDelay <= 0 {
		c.RetryMaxDelay = defaultRetryMaxDelay
	}
	return c
}

// Crawler extracts the complete storage key space of a live node at one
// pinned block.
type Crawler struct {
	client  StateClient
	config  Config
	log     *zap.Logger
	metrics *metrics

	rngLock sync.Mutex
	rng     *rand.Rand
}

// New returns a crawler talking to [client]. Metrics are registered on
// [reg].
func New(client StateClient, config Config, log *zap.Logger, reg prometheus.Registerer) (*Crawler, error) {
	m, err := newMetrics(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to register crawler metrics: %w", err)
	}
	return &Crawler{
		client:  client,
		config:  config.withDefaults(),
		log:     log,
		metrics: m,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// Crawl enumerates and fetches the entire key space. It returns a
// complete, deduplicated, gap-free snapshot together with the block hash
// it was taken at, or an error and no snapshot at all.
//
// Key pages are requested one at a time because page N+1 needs the last
// key of page N; value fetches for already enumerated pages proceed
// concurrently under a bounded window.
func (c *Crawler) Crawl(ctx context.Context) (*Snapshot, error) {
	at, err := c.pin(ctx)
	if err != nil {
		return nil, err
	}
	c.log.Info("crawling storage", zap.String("at", at))

	var (
		pairs      = chainspec.Storage{}
		pairsLock  sync.Mutex
		enumerated int
		start      = time.Now()
	)

	eg, egCtx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(c.config.Concurrency)

	lastKey := ""
	for {
		var keys []string
		err := c.retry(egCtx, "state_getKeysPaged", func(ctx context.Context) error {
			var err error
			keys, err = c.client.KeysPaged(ctx, c.config.PageSize, lastKey, at)
			return err
		})
		if err != nil {
			return nil, drainError(eg, err)
		}
		c.metrics.pages.Inc()

		if len(keys) == 0 {
			break
		}

		for _, key := range keys {
			if _, err := formatting.Decode(key); err != nil {
				return nil, drainError(eg, fmt.Errorf("%w: storage key: %s", ErrCrawlFailed, err))
			}
			// The protocol promises keys strictly greater than the
			// cursor in lexicographic order; anything else means the
			// snapshot would be corrupt.
			if key == lastKey {
				return nil, drainError(eg, fmt.Errorf("%w: key %s returned twice", ErrInconsistent, key))
			}
			if key < lastKey {
				return nil, drainError(eg, fmt.Errorf("%w: key %s out of order after %s", ErrInconsistent, key, lastKey))
			}
			lastKey = key
		}
		enumerated += len(keys)
		c.metrics.keys.Add(float64(len(keys)))

		for _, batch := range batches(keys, c.config.ValueBatch) {
			batch := batch
			if err := sem.Acquire(egCtx, 1); err != nil {
				break
			}
			eg.Go(func() error {
				defer sem.Release(1)
				return c.fetchValues(egCtx, batch, at, pairs, &pairsLock)
			})
		}

		if egCtx.Err() != nil {
			break
		}
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Completeness: every enumerated key must have exactly one value.
	if len(pairs) != enumerated {
		return nil, fmt.Errorf("%w: enumerated %d keys but fetched %d values",
			ErrInconsistent, enumerated, len(pairs))
	}

	c.log.Info("crawl complete",
		zap.String("at", at),
		zap.Int("keys", enumerated),
		zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)),
	)
	return &Snapshot{
		At:    at,
		Pairs: pairs,
	}, nil
}

// pin resolves the block hash every call of this crawl is scoped to. The
// hash is captured once and never re-resolved, so the crawl target cannot
// move underneath us.
func (c *Crawler) pin(ctx context.Context) (string, error) {
	if c.config.At != "" {
		if _, err := formatting.Decode(c.config.At); err != nil {
			return "", fmt.Errorf("%w: block hash: %s", ErrCrawlFailed, err)
		}
		return c.config.At, nil
	}

	var at string
	err := c.retry(ctx, "chain_getFinalizedHead", func(ctx context.Context) error {
		var err error
		at, err = c.client.FinalizedHead(ctx)
		return err
	})
	if err != nil {
		return "", err
	}
	if _, err := formatting.Decode(at); err != nil {
		return "", fmt.Errorf("%w: finalized head: %s", ErrCrawlFailed, err)
	}
	return at, nil
}

func (c *Crawler) fetchValues(
	ctx context.Context,
	keys []string,
	at string,
	pairs chainspec.Storage,
	lock *sync.Mutex,
) error {
	var values map[string]string
	err := c.retry(ctx, "state_queryStorageAt", func(ctx context.Context) error {
		var err error
		values, err = c.client.StorageAt(ctx, keys, at)
		return err
	})
	if err != nil {
		return err
	}

	lock.Lock()
	defer lock.Unlock()
	for _, key := range keys {
		value, ok := values[key]
		if !ok {
			return fmt.Errorf("%w: key %s has no value at pinned block %s", ErrInconsistent, key, at)
		}
		if _, err := formatting.Decode(value); err != nil {
			return fmt.Errorf("%w: value of key %s: %s", ErrCrawlFailed, key, err)
		}
		if _, ok := pairs[key]; ok {
			return fmt.Errorf("%w: value for key %s fetched twice", ErrInconsistent, key)
		}
		pairs[key] = value
	}
	c.metrics.values.Add(float64(len(keys)))
	return nil
}

// retry runs [fn] up to MaxAttempts times with exponential backoff and
// jitter between attempts. The attempt counter and next delay are
// explicit state so the bound holds under cancellation. Only transient
// failures retry; context errors abort immediately and exhaustion
// becomes ErrCrawlFailed.
func (c *Crawler) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	var (
		delay   = c.config.RetryInitialDelay
		lastErr error
	)
	for attempt := 1; attempt <= c.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			c.metrics.retries.Inc()
			wait := c.jitter(delay)
			c.log.Debug("retrying call",
				zap.String("op", op),
				zap.Int("attempt", attempt),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
			delay *= 2
			if delay > c.config.RetryMaxDelay {
				delay = c.config.RetryMaxDelay
			}
		}

		err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				c.log.Info("call succeeded after retries",
					zap.String("op", op),
					zap.Int("attempts", attempt),
				)
			}
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		lastErr = err
		c.log.Warn("call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Int("maxAttempts", c.config.MaxAttempts),
			zap.Error(err),
		)
	}
	return fmt.Errorf("%w: %s after %d attempts: %s", ErrCrawlFailed, op, c.config.MaxAttempts, lastErr)
}

func (c *Crawler) jitter(delay time.Duration) time.Duration {
	c.rngLock.Lock()
	r := c.rng.Float64()
	c.rngLock.Unlock()

	jitter := (r*2 - 1) * retryJitterFactor * float64(delay)
	jittered := time.Duration(float64(delay) + jitter)
	if jittered < c.config.RetryInitialDelay {
		jittered = c.config.RetryInitialDelay
	}
	if jittered > c.config.RetryMaxDelay {
		jittered = c.config.RetryMaxDelay
	}
	return jittered
}

// drainError waits out in-flight value fetches before an early return
// and picks the failure worth reporting. A terminal fetch error cancels
// the group context, which makes the enumeration loop fail with a bare
// context error; in that case the fetch error is the real cause.
func drainError(eg *errgroup.Group, err error) error {
	werr := eg.Wait()
	if werr == nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return werr
	}
	return err
}

func batches(keys []string, size int) [][]string {
	var out [][]string
	for len(keys) > size {
		out = append(out, keys[:size])
		keys = keys[size:]
	}
	if len(keys) > 0 {
		out = append(out, keys)
	}
	return out
}
