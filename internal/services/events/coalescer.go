package events

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// FlushFunc receives the latest payload recorded for a key
type FlushFunc func(ctx context.Context, key string, payload interface{})

// Coalescer keeps only the latest payload per key and hands it on at most once
// per interval. It sits between the store, which can recompute many times a
// second, and websocket clients that only need the newest view.
//
// Flushes happen:
//   - every interval for keys with a pending payload
//   - immediately through TriggerImmediately
//   - on shutdown of the periodic flush, for anything still pending
type Coalescer struct {
	mu       sync.Mutex
	interval time.Duration
	pending  map[string]interface{}
	onFlush  FlushFunc
	logger   arbor.ILogger
}

// NewCoalescer creates a coalescer. A non-positive interval defaults to 250ms.
func NewCoalescer(interval time.Duration, onFlush FlushFunc, logger arbor.ILogger) *Coalescer {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}

	return &Coalescer{
		interval: interval,
		pending:  make(map[string]interface{}),
		onFlush:  onFlush,
		logger:   logger,
	}
}

// Interval returns the flush interval
func (c *Coalescer) Interval() time.Duration {
	return c.interval
}

// Record stores payload as the latest value for key, replacing any pending one
func (c *Coalescer) Record(key string, payload interface{}) {
	if key == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending[key] = payload
}

// TriggerImmediately drops any pending payload for key and flushes payload now
func (c *Coalescer) TriggerImmediately(ctx context.Context, key string, payload interface{}) {
	if key == "" {
		return
	}

	c.mu.Lock()
	delete(c.pending, key)
	c.mu.Unlock()

	c.safeOnFlush(ctx, key, payload)
}

// FlushAll hands on every pending payload, in key order
func (c *Coalescer) FlushAll(ctx context.Context) {
	c.mu.Lock()
	keys := make([]string, 0, len(c.pending))
	for key := range c.pending {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	payloads := make([]interface{}, len(keys))
	for i, key := range keys {
		payloads[i] = c.pending[key]
		delete(c.pending, key)
	}
	c.mu.Unlock()

	if len(keys) > 0 {
		c.logger.Debug().
			Strs("keys", keys).
			Msg("Coalescer flushing pending payloads")
	}

	for i, key := range keys {
		c.safeOnFlush(ctx, key, payloads[i])
	}
}

// StartPeriodicFlush flushes every interval until ctx is cancelled, then
// flushes once more
func (c *Coalescer) StartPeriodicFlush(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				c.FlushAll(context.Background())
				return
			case <-ticker.C:
				c.FlushAll(ctx)
			}
		}
	}()
}

func (c *Coalescer) safeOnFlush(ctx context.Context, key string, payload interface{}) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().
				Str("panic", fmt.Sprintf("%v", r)).
				Str("key", key).
				Msg("PANIC in Coalescer.onFlush - recovered")
		}
	}()
	c.onFlush(ctx, key, payload)
}
