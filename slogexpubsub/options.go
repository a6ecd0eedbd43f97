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

package slogexpubsub

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/benbjohnson/clock"
	"go.opentelemetry.io/otel/propagation"

	"github.com/pjscruggs/slogex"
)

const (
	defaultQueueSize = 1024

	envQueueSize    = "SLOGEX_PUBSUB_QUEUE_SIZE"
	envWorkers      = "SLOGEX_PUBSUB_WORKERS"
	envDropMode     = "SLOGEX_PUBSUB_DROP_MODE"
	envFlushTimeout = "SLOGEX_PUBSUB_FLUSH_TIMEOUT"
)

// DropMode controls how the forwarder behaves when its queue is full.
type DropMode int

const (
	// DropModeBlock blocks the logging call until the queue has room.
	DropModeBlock DropMode = iota
	// DropModeDropNewest discards the incoming call.
	DropModeDropNewest
	// DropModeDropOldest discards the oldest queued call.
	DropModeDropOldest
)

// Option configures a Forwarder.
type Option func(*config)

type config struct {
	levels         []slogex.Level
	anyTags        []string
	maxVerbosity   *int
	queueSize      int
	workers        int
	dropMode       DropMode
	flushTimeout   time.Duration
	onDrop         func(Envelope)
	logger         *slog.Logger
	clock          clock.Clock
	propagators    propagation.TextMapPropagator
	propagateTrace bool
	env            bool
}

func defaultConfig() *config {
	return &config{
		queueSize:      defaultQueueSize,
		workers:        1,
		dropMode:       DropModeBlock,
		logger:         slog.Default(),
		clock:          clock.New(),
		propagateTrace: true,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	if cfg.env {
		applyEnv(cfg)
	}
	if cfg.queueSize < 0 {
		cfg.queueSize = defaultQueueSize
	}
	if cfg.workers < 1 {
		cfg.workers = 1
	}
	return cfg
}

// WithLevels forwards only calls at one of levels. All levels are forwarded
// by default.
func WithLevels(levels ...slogex.Level) Option {
	return func(cfg *config) {
		cfg.levels = append(cfg.levels, levels...)
	}
}

// WithAnyTag forwards only calls carrying at least one of tags.
func WithAnyTag(tags ...string) Option {
	return func(cfg *config) {
		cfg.anyTags = append(cfg.anyTags, tags...)
	}
}

// WithMaxVerbosity forwards only calls whose verbosity is at most v.
func WithMaxVerbosity(v int) Option {
	return func(cfg *config) {
		cfg.maxVerbosity = &v
	}
}

// WithQueueSize sets the queue capacity. Zero yields an unbuffered queue.
func WithQueueSize(size int) Option {
	return func(cfg *config) {
		cfg.queueSize = size
	}
}

// WithWorkerCount sets the number of publishing goroutines.
func WithWorkerCount(count int) Option {
	return func(cfg *config) {
		cfg.workers = count
	}
}

// WithDropMode sets the queue overflow strategy.
func WithDropMode(mode DropMode) Option {
	return func(cfg *config) {
		cfg.dropMode = mode
	}
}

// WithFlushTimeout limits how long Close waits for queued calls to publish.
func WithFlushTimeout(d time.Duration) Option {
	return func(cfg *config) {
		cfg.flushTimeout = d
	}
}

// WithOnDrop registers a callback invoked for every discarded envelope.
func WithOnDrop(fn func(Envelope)) Option {
	return func(cfg *config) {
		cfg.onDrop = fn
	}
}

// WithLogger sets where publish failures are reported.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *config) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// WithClock sets the clock used to timestamp envelopes.
func WithClock(clk clock.Clock) Option {
	return func(cfg *config) {
		if clk != nil {
			cfg.clock = clk
		}
	}
}

// WithPropagators sets the propagator used to inject trace context into
// message attributes. The global propagator is used by default.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
	}
}

// WithTracePropagation toggles trace context injection. Enabled by default.
func WithTracePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateTrace = enabled
	}
}

// WithEnv overlays SLOGEX_PUBSUB_QUEUE_SIZE, SLOGEX_PUBSUB_WORKERS,
// SLOGEX_PUBSUB_DROP_MODE and SLOGEX_PUBSUB_FLUSH_TIMEOUT after every other
// option has been applied.
func WithEnv() Option {
	return func(cfg *config) {
		cfg.env = true
	}
}

func applyEnv(cfg *config) {
	if raw := strings.TrimSpace(os.Getenv(envQueueSize)); raw != "" {
		if size, err := strconv.Atoi(raw); err == nil {
			cfg.queueSize = size
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envWorkers)); raw != "" {
		if workers, err := strconv.Atoi(raw); err == nil {
			cfg.workers = workers
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envDropMode)); raw != "" {
		if mode, ok := parseDropMode(raw); ok {
			cfg.dropMode = mode
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envFlushTimeout)); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			cfg.flushTimeout = d
		}
	}
}

func parseDropMode(raw string) (DropMode, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "block":
		return DropModeBlock, true
	case "drop_newest", "drop-newest":
		return DropModeDropNewest, true
	case "drop_oldest", "drop-oldest":
		return DropModeDropOldest, true
	default:
		return DropModeBlock, false
	}
}
