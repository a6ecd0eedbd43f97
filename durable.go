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
	"fmt"
	"log/slog"
	"math"
	"slices"
	"time"
)

// DefaultHoursToLive is the durable expiry used when DurableConfig leaves
// HoursToLive unset.
const DefaultHoursToLive = 24

// Backend is the persistent document store behind the durable side. It owns
// expiry: EnsureExpiryIndex is called once with the time-to-live and the
// backend removes records older than that on its own.
type Backend interface {
	EnsureExpiryIndex(ctx context.Context, ttl time.Duration) error
	Insert(ctx context.Context, rec LogRecord) error
	// Find returns matching records sorted ascending by timestamp.
	Find(ctx context.Context, sel Selector) ([]LogRecord, error)
}

// Selector filters records. Zero fields match everything.
type Selector struct {
	Since   time.Time
	Until   time.Time
	Levels  []Level
	AnyTags []string
	AllTags []string
	// Limit caps the number of records returned by Backend.Find. Zero means
	// no limit. It has no effect on Matches.
	Limit int
}

// Matches reports whether rec satisfies every condition of s.
func (s Selector) Matches(rec LogRecord) bool {
	if !s.Since.IsZero() && rec.Timestamp.Before(s.Since) {
		return false
	}
	if !s.Until.IsZero() && rec.Timestamp.After(s.Until) {
		return false
	}
	if len(s.Levels) > 0 && !slices.Contains(s.Levels, rec.Level) {
		return false
	}
	if len(s.AnyTags) > 0 && !slices.ContainsFunc(s.AnyTags, rec.HasTag) {
		return false
	}
	for _, t := range s.AllTags {
		if !rec.HasTag(t) {
			return false
		}
	}
	return true
}

// DurableConfig provisions the durable side of the record store.
type DurableConfig struct {
	Backend Backend
	// HoursToLive defaults to DefaultHoursToLive when zero.
	HoursToLive float64
	// Predicate, when set, must return true for a record to be persisted.
	Predicate func(LogRecord) bool
	// Publications expose live read-only views of the stored records.
	// Entries with an empty name are skipped.
	Publications []Publication
}

// durableStore is the provisioned durable side.
type durableStore struct {
	backend   Backend
	ttl       time.Duration
	predicate func(LogRecord) bool
	hub       *publicationHub
}

// StoreServerMessages provisions the durable side. It may succeed at most once
// per engine; later calls return ErrDurableConfigured and leave the first
// configuration in place.
func (e *Engine) StoreServerMessages(ctx context.Context, cfg DurableConfig) error {
	e.durableMu.Lock()
	defer e.durableMu.Unlock()
	if e.durable != nil {
		return ErrDurableConfigured
	}

	if cfg.Backend == nil {
		return ErrInvalidBackend
	}
	hours := cfg.HoursToLive
	if hours == 0 {
		hours = DefaultHoursToLive
	}
	if hours < 0 || math.IsNaN(hours) || math.IsInf(hours, 0) {
		return fmt.Errorf("%w: hours to live must be positive, got %v", ErrConfig, cfg.HoursToLive)
	}

	hub, err := newPublicationHub(cfg.Backend, cfg.Publications, e.internalLogger)
	if err != nil {
		return err
	}

	ttl := hoursToDuration(hours)
	if err := cfg.Backend.EnsureExpiryIndex(ctx, ttl); err != nil {
		return fmt.Errorf("slogex: ensure expiry index: %w", err)
	}

	e.durable = &durableStore{
		backend:   cfg.Backend,
		ttl:       ttl,
		predicate: cfg.Predicate,
		hub:       hub,
	}
	e.internalLogger.Debug("durable store configured",
		slog.Duration("ttl", ttl),
		slog.Int("publications", hub.len()),
	)
	return nil
}

// durableSide returns the provisioned durable store, or nil.
func (e *Engine) durableSide() *durableStore {
	e.durableMu.RLock()
	defer e.durableMu.RUnlock()
	return e.durable
}

// insert persists rec when the gating predicate allows it and fans it out to
// live subscribers.
func (d *durableStore) insert(ctx context.Context, rec LogRecord) error {
	if d.predicate != nil && !d.predicate(rec) {
		return nil
	}
	if err := d.backend.Insert(ctx, rec); err != nil {
		return fmt.Errorf("slogex: durable insert: %w", err)
	}
	d.hub.broadcast(rec)
	return nil
}
