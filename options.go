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
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/benbjohnson/clock"
)

const (
	envVerbosity       = "SLOGEX_VERBOSITY"
	envMode            = "SLOGEX_MODE"
	envSide            = "SLOGEX_SIDE"
	envDisplayCallSite = "SLOGEX_DISPLAY_CALLSITES"
	envExcludeCallSite = "SLOGEX_EXCLUDE_CALLSITES_WITH"
	envWindowHours     = "SLOGEX_WINDOW_HOURS"
	envTransientStore  = "SLOGEX_TRANSIENT_STORE"
)

// Option configures an Engine during initialization via New. Options are
// applied after environment variables, so an explicit option always wins.
type Option func(*options)

// options holds the configurable settings of an Engine. Pointer fields tell an
// explicitly set zero value apart from an unset option.
type options struct {
	verbosity        *int
	mode             *Mode
	side             *Side
	displayPredicate func() bool
	displayFilter    func(CallOptions) bool
	displayCallSites *bool
	excludeCallSites []string
	displayHandlers  []slog.Handler
	displayWriter    io.Writer
	transientStore   *bool
	windowHours      *float64
	clock            clock.Clock
	internalLogger   *slog.Logger
	handlers         []LogHandler
}

// WithVerbosity sets the initial global verbosity ceiling. Calls with a
// verbosity above it are recorded but not displayed. Overrides
// SLOGEX_VERBOSITY.
func WithVerbosity(v int) Option {
	return func(o *options) {
		o.verbosity = &v
	}
}

// WithMode sets the deployment mode instead of detecting it. Overrides
// SLOGEX_MODE.
func WithMode(m Mode) Option {
	return func(o *options) {
		o.mode = &m
	}
}

// WithSide declares whether the engine runs client-side or server-side.
// Overrides SLOGEX_SIDE. Defaults to SideServer.
func WithSide(s Side) Option {
	return func(o *options) {
		o.side = &s
	}
}

// WithDisplayPredicate replaces the environment predicate consulted before
// every live display. The default allows display only in development mode.
func WithDisplayPredicate(fn func() bool) Option {
	return func(o *options) {
		o.displayPredicate = fn
	}
}

// WithDisplayFilter installs a predicate over the normalized call options.
func WithDisplayFilter(fn func(CallOptions) bool) Option {
	return func(o *options) {
		o.displayFilter = fn
	}
}

// WithDisplayCallSites toggles appending the call site to displayed entries
// outside production. Overrides SLOGEX_DISPLAY_CALLSITES. Defaults to true.
func WithDisplayCallSites(enabled bool) Option {
	return func(o *options) {
		o.displayCallSites = &enabled
	}
}

// WithExcludeCallSitesWith sets substrings that suppress the call-site
// annotation when found in the call site, ignoring case. Overrides
// SLOGEX_EXCLUDE_CALLSITES_WITH.
func WithExcludeCallSitesWith(patterns ...string) Option {
	return func(o *options) {
		o.excludeCallSites = append([]string{}, patterns...)
	}
}

// WithDisplayHandler sends the live display to the given handlers. More than
// one handler fans out to all of them.
func WithDisplayHandler(handlers ...slog.Handler) Option {
	return func(o *options) {
		o.displayHandlers = append(o.displayHandlers, handlers...)
	}
}

// WithDisplayWriter keeps the automatic display handler choice but writes to
// w instead of stderr.
func WithDisplayWriter(w io.Writer) Option {
	return func(o *options) {
		o.displayWriter = w
	}
}

// WithTransientStore forces the in-memory sliding-window store on or off.
// It is on by default for client-side engines only.
func WithTransientStore(enabled bool) Option {
	return func(o *options) {
		o.transientStore = &enabled
	}
}

// WithWindowHours sets the initial sliding window of the transient store.
func WithWindowHours(hours float64) Option {
	return func(o *options) {
		o.windowHours = &hours
	}
}

// WithClock sets the clock used for timestamps and retention timers.
func WithClock(clk clock.Clock) Option {
	return func(o *options) {
		o.clock = clk
	}
}

// WithInternalLogger directs engine diagnostics (re-registration warnings,
// dropped updates) to logger. Defaults to slog.Default().
func WithInternalLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.internalLogger = logger
	}
}

// WithHandler registers pipeline handlers at construction time.
func WithHandler(handlers ...LogHandler) Option {
	return func(o *options) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// loadEnv overlays environment variables onto o. Invalid values are reported
// to logger and ignored.
func loadEnv(o *options, logger *slog.Logger) {
	if raw := strings.TrimSpace(os.Getenv(envVerbosity)); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			o.verbosity = &v
		} else {
			logger.Warn("invalid verbosity environment variable", slog.String("value", raw), slog.Any("error", err))
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envMode)); raw != "" {
		if m, err := ParseMode(raw); err == nil {
			o.mode = &m
		} else {
			logger.Warn("invalid mode environment variable", slog.String("value", raw), slog.Any("error", err))
		}
	}
	if raw := strings.TrimSpace(os.Getenv(envSide)); raw != "" {
		if s, err := ParseSide(raw); err == nil {
			o.side = &s
		} else {
			logger.Warn("invalid side environment variable", slog.String("value", raw), slog.Any("error", err))
		}
	}
	o.displayCallSites = parseBoolEnv(envDisplayCallSite, o.displayCallSites, logger)
	o.transientStore = parseBoolEnv(envTransientStore, o.transientStore, logger)
	if raw := strings.TrimSpace(os.Getenv(envExcludeCallSite)); raw != "" {
		o.excludeCallSites = strings.Split(raw, ",")
	}
	if raw := strings.TrimSpace(os.Getenv(envWindowHours)); raw != "" {
		if h, err := strconv.ParseFloat(raw, 64); err == nil && h > 0 {
			o.windowHours = &h
		} else {
			logger.Warn("invalid window hours environment variable", slog.String("value", raw))
		}
	}
}

func parseBoolEnv(name string, current *bool, logger *slog.Logger) *bool {
	raw := os.Getenv(name)
	if strings.TrimSpace(raw) == "" {
		return current
	}
	b, ok := parseBool(raw)
	if !ok {
		logger.Warn("invalid boolean environment variable", slog.String("name", name), slog.String("value", raw))
		return current
	}
	return &b
}

// parseBool accepts 1/t/true/yes/on and 0/f/false/no/off, ignoring case.
func parseBool(raw string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "t", "true", "yes", "on":
		return true, true
	case "0", "f", "false", "no", "off":
		return false, true
	default:
		return false, false
	}
}
