// Copyright 2025-2026 Patrick J. Scruggs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package slogex

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSweepInterval is how often MemoryBackend expires records.
const DefaultSweepInterval = time.Minute

// MemoryBackend is an in-process Backend with a timestamp expiry index.
// Records older than the configured TTL are removed by a periodic sweep,
// mirroring how a document store's TTL monitor behaves.
type MemoryBackend struct {
	clock    clock.Clock
	interval time.Duration

	mu      sync.Mutex
	records []LogRecord
	ttl     time.Duration
	ticker  *clock.Ticker
	done    chan struct{}
	stopped sync.Once
}

// MemoryOption configures a MemoryBackend.
type MemoryOption func(*MemoryBackend)

// WithMemoryClock sets the clock used for expiry.
func WithMemoryClock(clk clock.Clock) MemoryOption {
	return func(b *MemoryBackend) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// WithSweepInterval sets how often expired records are removed.
func WithSweepInterval(d time.Duration) MemoryOption {
	return func(b *MemoryBackend) {
		if d > 0 {
			b.interval = d
		}
	}
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend(opts ...MemoryOption) *MemoryBackend {
	b := &MemoryBackend{
		clock:    clock.New(),
		interval: DefaultSweepInterval,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// EnsureExpiryIndex sets the TTL and starts the sweeper. Calling it again
// only updates the TTL.
func (b *MemoryBackend) EnsureExpiryIndex(_ context.Context, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ttl = ttl
	if b.ticker != nil {
		return nil
	}
	b.ticker = b.clock.Ticker(b.interval)
	go b.sweepLoop(b.ticker)
	return nil
}

func (b *MemoryBackend) sweepLoop(t *clock.Ticker) {
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			b.Sweep()
		}
	}
}

// Sweep removes expired records now and returns how many were removed.
func (b *MemoryBackend) Sweep() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ttl <= 0 {
		return 0
	}
	cutoff := b.clock.Now().Add(-b.ttl)
	before := len(b.records)
	b.records = slices.DeleteFunc(b.records, func(r LogRecord) bool {
		return r.Timestamp.Before(cutoff)
	})
	return before - len(b.records)
}

// Insert stores a copy of rec.
func (b *MemoryBackend) Insert(_ context.Context, rec LogRecord) error {
	rec = rec.clone()
	b.mu.Lock()
	defer b.mu.Unlock()
	i, _ := slices.BinarySearchFunc(b.records, rec.Timestamp, func(r LogRecord, t time.Time) int {
		if r.Timestamp.After(t) {
			return 1
		}
		return -1
	})
	b.records = slices.Insert(b.records, i, rec)
	return nil
}

// Find returns the records matching sel in ascending timestamp order.
func (b *MemoryBackend) Find(ctx context.Context, sel Selector) ([]LogRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []LogRecord
	for _, r := range b.records {
		if !sel.Matches(r) {
			continue
		}
		out = append(out, r.clone())
		if sel.Limit > 0 && len(out) == sel.Limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of stored records.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.records)
}

// Close stops the sweeper.
func (b *MemoryBackend) Close() error {
	b.stopped.Do(func() {
		close(b.done)
		b.mu.Lock()
		if b.ticker != nil {
			b.ticker.Stop()
		}
		b.mu.Unlock()
	})
	return nil
}
