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
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"github.com/puzpuzpuz/xsync/v3"
)

// Engine holds the whole logging state of one application side: display
// controls, record stores, the handler pipeline and the exception registry.
// Engines are independent of each other and safe for concurrent use.
type Engine struct {
	clock          clock.Clock
	mode           Mode
	side           Side
	displayHandler slog.Handler
	internalLogger *slog.Logger

	verbosity        atomic.Int64
	displayMu        sync.RWMutex
	displayPredicate func() bool
	displayFilter    func(CallOptions) bool
	displayCallSites bool
	excludeCallSites []string

	transient *TransientStore

	durableMu sync.RWMutex
	durable   *durableStore

	handlersMu sync.RWMutex
	handlers   []LogHandler

	exceptions *xsync.MapOf[string, MessageSource]

	closeOnce sync.Once
	closeErr  error
}

// New builds an Engine from environment variables and opts.
//
// Defaults: verbosity 5, call sites displayed, server side, deployment mode
// from DetectMode, live display only in development, a transient store only
// on the client side with a half-hour window.
func New(opts ...Option) (*Engine, error) {
	o := &options{}
	bootstrap := slog.Default()
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	if o.internalLogger != nil {
		bootstrap = o.internalLogger
	}

	env := &options{}
	loadEnv(env, bootstrap)
	o = mergeOptions(env, o)

	EnsurePropagation()

	e := &Engine{
		clock:            o.clock,
		mode:             ModeDevelopment,
		side:             SideServer,
		internalLogger:   bootstrap,
		displayCallSites: true,
		excludeCallSites: lowerAll(o.excludeCallSites),
		exceptions:       xsync.NewMapOf[string, MessageSource](),
	}
	if e.clock == nil {
		e.clock = clock.New()
	}
	if o.mode != nil {
		e.mode = *o.mode
	} else {
		e.mode = DetectMode()
	}
	if o.side != nil {
		e.side = *o.side
	}
	if o.displayCallSites != nil {
		e.displayCallSites = *o.displayCallSites
	}
	e.verbosity.Store(DefaultVerbosity)
	if o.verbosity != nil {
		e.verbosity.Store(int64(*o.verbosity))
	}

	e.displayPredicate = o.displayPredicate
	if e.displayPredicate == nil {
		e.displayPredicate = func() bool { return e.mode == ModeDevelopment }
	}
	e.displayFilter = o.displayFilter
	e.displayHandler = newDisplayHandler(o)

	for _, h := range o.handlers {
		if err := e.RegisterHandler(h); err != nil {
			return nil, err
		}
	}

	transient := e.side == SideClient
	if o.transientStore != nil {
		transient = *o.transientStore
	}
	if transient {
		window := DefaultWindowHours
		if o.windowHours != nil {
			window = *o.windowHours
		}
		store, err := NewTransientStore(window, e.clock)
		if err != nil {
			return nil, err
		}
		e.transient = store
	}

	return e, nil
}

// mergeOptions returns env with every field set in explicit overriding it.
func mergeOptions(env, explicit *options) *options {
	out := *env
	if explicit.verbosity != nil {
		out.verbosity = explicit.verbosity
	}
	if explicit.mode != nil {
		out.mode = explicit.mode
	}
	if explicit.side != nil {
		out.side = explicit.side
	}
	if explicit.displayCallSites != nil {
		out.displayCallSites = explicit.displayCallSites
	}
	if explicit.excludeCallSites != nil {
		out.excludeCallSites = explicit.excludeCallSites
	}
	if explicit.transientStore != nil {
		out.transientStore = explicit.transientStore
	}
	if explicit.windowHours != nil {
		out.windowHours = explicit.windowHours
	}
	out.displayPredicate = explicit.displayPredicate
	out.displayFilter = explicit.displayFilter
	out.displayHandlers = explicit.displayHandlers
	out.displayWriter = explicit.displayWriter
	out.clock = explicit.clock
	out.internalLogger = explicit.internalLogger
	out.handlers = explicit.handlers
	return &out
}

// Mode returns the deployment mode the engine runs in.
func (e *Engine) Mode() Mode { return e.mode }

// Side returns the side the engine runs on.
func (e *Engine) Side() Side { return e.side }

// Clock returns the clock used for timestamps.
func (e *Engine) Clock() clock.Clock { return e.clock }

// Transient returns the sliding-window store, or nil when the engine has none.
func (e *Engine) Transient() *TransientStore { return e.transient }

// Close stops retention timers and closes a durable backend that implements
// io.Closer. It is safe to call more than once.
func (e *Engine) Close() error {
	e.closeOnce.Do(func() {
		var errs []error
		if e.transient != nil {
			errs = append(errs, e.transient.Close())
		}
		if d := e.durableSide(); d != nil {
			if c, ok := d.backend.(io.Closer); ok {
				errs = append(errs, c.Close())
			}
		}
		e.closeErr = errors.Join(errs...)
	})
	return e.closeErr
}
