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
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
)

// newDisplayHandler picks the live display handler. Explicit handlers win;
// otherwise terminals get the console handler and everything else JSON.
func newDisplayHandler(o *options) slog.Handler {
	switch len(o.displayHandlers) {
	case 0:
	case 1:
		return o.displayHandlers[0]
	default:
		return slogmulti.Fanout(o.displayHandlers...)
	}

	w := o.displayWriter
	if w == nil {
		w = os.Stderr
	}
	if isTerminal(w) {
		return console.NewHandler(w, &console.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Verbosity returns the global verbosity ceiling.
func (e *Engine) Verbosity() int {
	return int(e.verbosity.Load())
}

// SetVerbosity changes the global verbosity ceiling. Lower values display
// fewer calls.
func (e *Engine) SetVerbosity(v int) {
	e.verbosity.Store(int64(v))
}

// SetDisplayPredicate replaces the environment predicate. A nil fn is
// rejected with ErrInvalidPredicate.
func (e *Engine) SetDisplayPredicate(fn func() bool) error {
	if fn == nil {
		return ErrInvalidPredicate
	}
	e.displayMu.Lock()
	e.displayPredicate = fn
	e.displayMu.Unlock()
	return nil
}

// SetDisplayFilter installs a predicate over the call options. A nil fn
// clears the filter.
func (e *Engine) SetDisplayFilter(fn func(CallOptions) bool) {
	e.displayMu.Lock()
	e.displayFilter = fn
	e.displayMu.Unlock()
}

// DisplayCallSites reports whether call sites are appended outside production.
func (e *Engine) DisplayCallSites() bool {
	e.displayMu.RLock()
	defer e.displayMu.RUnlock()
	return e.displayCallSites
}

// SetDisplayCallSites toggles the call-site annotation on displayed entries.
func (e *Engine) SetDisplayCallSites(enabled bool) {
	e.displayMu.Lock()
	e.displayCallSites = enabled
	e.displayMu.Unlock()
}

// ExcludeCallSitesWith returns the current suppression substrings, lower-cased.
func (e *Engine) ExcludeCallSitesWith() []string {
	e.displayMu.RLock()
	defer e.displayMu.RUnlock()
	return slices.Clone(e.excludeCallSites)
}

// SetExcludeCallSitesWith replaces the suppression substrings.
func (e *Engine) SetExcludeCallSitesWith(patterns ...string) {
	lowered := lowerAll(patterns)
	e.displayMu.Lock()
	e.excludeCallSites = lowered
	e.displayMu.Unlock()
}

// AddExcludeCallSitesWith adds suppression substrings to the current set.
func (e *Engine) AddExcludeCallSitesWith(patterns ...string) {
	lowered := lowerAll(patterns)
	e.displayMu.Lock()
	for _, p := range lowered {
		if !slices.Contains(e.excludeCallSites, p) {
			e.excludeCallSites = append(e.excludeCallSites, p)
		}
	}
	e.displayMu.Unlock()
}

// ShouldDisplay reports whether a call with opts is echoed to the live
// display: the environment predicate must pass, the filter (when set) must
// pass, and the verbosity must not exceed the global ceiling.
func (e *Engine) ShouldDisplay(opts CallOptions) bool {
	e.displayMu.RLock()
	predicate, filter := e.displayPredicate, e.displayFilter
	e.displayMu.RUnlock()

	if !predicate() {
		return false
	}
	if filter != nil && !filter(opts) {
		return false
	}
	return opts.Verbosity <= e.Verbosity()
}

// appendCallSite decides whether the live entry is annotated with callSite.
// Production never annotates the live display.
func (e *Engine) appendCallSite(callSite string) bool {
	if e.mode == ModeProduction || callSite == "" {
		return false
	}
	e.displayMu.RLock()
	defer e.displayMu.RUnlock()
	return e.displayCallSites && !matchesAny(callSite, e.excludeCallSites)
}

// display writes one entry to the live display.
func (e *Engine) display(ctx context.Context, opts CallOptions, callSite string, pcs []uintptr, ts time.Time) {
	level := opts.Level.SlogLevel()
	if !e.displayHandler.Enabled(ctx, level) {
		return
	}
	var pc uintptr
	if len(pcs) > 0 {
		pc = pcs[0]
	}
	r := slog.NewRecord(ts, level, displayMessage(opts.Args), pc)
	r.AddAttrs(slog.Int("verbosity", opts.Verbosity))
	if len(opts.Tags) > 0 {
		r.AddAttrs(slog.Any("tags", opts.Tags))
	}
	if e.appendCallSite(callSite) {
		r.AddAttrs(slog.String("at", callSite))
	}
	if err := e.displayHandler.Handle(ctx, r); err != nil {
		e.internalLogger.Debug("display handler failed", slog.Any("error", err))
	}
}

func displayMessage(args []any) string {
	parts := make([]string, len(args))
	for i, a := range args {
		parts[i] = displayValue(a)
	}
	return strings.Join(parts, " ")
}

// DisplayRecords replays stored records to the live display with their
// original level and timestamp, regardless of the display predicate.
func (e *Engine) DisplayRecords(ctx context.Context, records ...LogRecord) {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, rec := range records {
		level := rec.Level.SlogLevel()
		if !e.displayHandler.Enabled(ctx, level) {
			continue
		}
		msg := rec.Message
		if args, err := rec.Args(); err == nil {
			msg = displayMessage(args)
		}
		r := slog.NewRecord(rec.Timestamp, level, msg, 0)
		r.AddAttrs(slog.Int("verbosity", rec.Verbosity))
		if len(rec.Tags) > 0 {
			r.AddAttrs(slog.Any("tags", rec.Tags))
		}
		if rec.CallSite != "" {
			r.AddAttrs(slog.String("at", rec.CallSite))
		}
		if err := e.displayHandler.Handle(ctx, r); err != nil {
			e.internalLogger.Debug("display handler failed", slog.Any("error", err))
		}
	}
}
