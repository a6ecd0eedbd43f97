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
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultWindowHours is the initial sliding window of a transient store.
	DefaultWindowHours = 0.5

	// cleanupFraction is the share of the window between cleanup passes.
	cleanupFraction = 0.1
)

// TransientStore keeps records in memory for a sliding time window. A
// periodic pass, run every tenth of the window, evicts records older than
// now minus the window. It is safe for concurrent use.
type TransientStore struct {
	clock clock.Clock

	mu          sync.Mutex
	records     []LogRecord // ascending by Timestamp
	windowHours float64
	timer       *clock.Timer
	gen         uint64
	closed      bool
}

// NewTransientStore returns a store with the given window that reads time
// from clk. A nil clk uses the wall clock. The cleanup timer is armed
// immediately.
func NewTransientStore(windowHours float64, clk clock.Clock) (*TransientStore, error) {
	if err := validateWindow(windowHours); err != nil {
		return nil, err
	}
	if clk == nil {
		clk = clock.New()
	}
	s := &TransientStore{clock: clk, windowHours: windowHours}
	s.mu.Lock()
	s.armLocked()
	s.mu.Unlock()
	return s, nil
}

func validateWindow(hours float64) error {
	if hours <= 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidWindow, hours)
	}
	return nil
}

func hoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}

// Insert stores a copy of rec.
func (s *TransientStore) Insert(rec LogRecord) {
	rec = rec.clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	i, _ := slices.BinarySearchFunc(s.records, rec.Timestamp, func(r LogRecord, t time.Time) int {
		if r.Timestamp.After(t) {
			return 1
		}
		return -1
	})
	s.records = slices.Insert(s.records, i, rec)
}

// Records returns every record inside the window in ascending timestamp
// order.
func (s *TransientStore) Records() []LogRecord {
	return s.collect(time.Time{}, func(LogRecord) bool { return true })
}

// Since returns the records inside the window with a timestamp at or after
// minTime, ascending.
func (s *TransientStore) Since(minTime time.Time) []LogRecord {
	return s.collect(minTime, func(LogRecord) bool { return true })
}

// WithTag returns the records inside the window that carry tag.
func (s *TransientStore) WithTag(tag string) []LogRecord {
	return s.collect(time.Time{}, func(r LogRecord) bool {
		return r.HasTag(tag)
	})
}

// WithAnyTag returns the records inside the window that carry at least one of
// tags.
func (s *TransientStore) WithAnyTag(tags ...string) []LogRecord {
	return s.collect(time.Time{}, func(r LogRecord) bool {
		return slices.ContainsFunc(tags, r.HasTag)
	})
}

// WithAllTags returns the records inside the window that carry every one of
// tags. With no tags it returns every record inside the window.
func (s *TransientStore) WithAllTags(tags ...string) []LogRecord {
	if len(tags) == 0 {
		return s.Records()
	}
	return s.collect(time.Time{}, func(r LogRecord) bool {
		for _, t := range tags {
			if !r.HasTag(t) {
				return false
			}
		}
		return true
	})
}

// Serialized returns the records inside the window as a JSON array.
func (s *TransientStore) Serialized() (string, error) {
	records := s.Records()
	if records == nil {
		records = []LogRecord{}
	}
	b, err := json.Marshal(records)
	if err != nil {
		return "", fmt.Errorf("slogex: serialize records: %w", err)
	}
	return string(b), nil
}

// WindowHours returns the current sliding window.
func (s *TransientStore) WindowHours() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.windowHours
}

// SetWindowHours cancels the pending cleanup, evicts records outside the new
// window immediately, then re-arms cleanup at a tenth of the new window.
func (s *TransientStore) SetWindowHours(hours float64) error {
	if err := validateWindow(hours); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
	s.windowHours = hours
	s.evictLocked()
	if !s.closed {
		s.armLocked()
	}
	return nil
}

// Cleanup runs one eviction pass now and returns the number of records
// removed.
func (s *TransientStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictLocked()
}

// Close stops the cleanup timer. Stored records remain readable.
func (s *TransientStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.stopLocked()
	return nil
}

func (s *TransientStore) windowStartLocked() time.Time {
	return s.clock.Now().Add(-hoursToDuration(s.windowHours))
}

// collect returns the matching records at or after both minTime and the
// window start. Records the timer has not evicted yet are never returned.
func (s *TransientStore) collect(minTime time.Time, keep func(LogRecord) bool) []LogRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	if start := s.windowStartLocked(); minTime.Before(start) {
		minTime = start
	}
	var out []LogRecord
	for _, r := range s.records {
		if r.Timestamp.Before(minTime) || !keep(r) {
			continue
		}
		out = append(out, r.clone())
	}
	return out
}

// evictLocked drops the records older than the window start.
func (s *TransientStore) evictLocked() int {
	cutoff := s.windowStartLocked()
	n := 0
	for n < len(s.records) && s.records[n].Timestamp.Before(cutoff) {
		n++
	}
	if n > 0 {
		s.records = slices.Delete(s.records, 0, n)
	}
	return n
}

func (s *TransientStore) armLocked() {
	s.gen++
	gen := s.gen
	period := hoursToDuration(s.windowHours * cleanupFraction)
	s.timer = s.clock.AfterFunc(period, func() { s.tick(gen) })
}

func (s *TransientStore) stopLocked() {
	s.gen++
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// tick is the timer callback. Stale generations belong to a timer that was
// replaced after it had already fired.
func (s *TransientStore) tick(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.gen {
		return
	}
	s.evictLocked()
	s.armLocked()
}
