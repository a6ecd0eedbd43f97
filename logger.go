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
	"errors"
	"fmt"
	"slices"
	"time"
)

// callerSkip is the number of slogex frames between capturePCs and the
// application: Engine.log and the exported method that called it. Every
// exported logging method must call Engine.log directly.
const callerSkip = 2

// Log records a call at the plain "log" level. vo is an integer verbosity or
// a Params value; args are the message arguments.
//
// The returned error is a configuration error, a durable insert failure, or
// a pipeline handler failure. Display suppression is never an error.
func (e *Engine) Log(vo any, args ...any) error {
	return e.log(context.Background(), LevelLog, vo, args)
}

// Info records a call at the info level.
func (e *Engine) Info(vo any, args ...any) error {
	return e.log(context.Background(), LevelInfo, vo, args)
}

// Warn records a call at the warn level.
func (e *Engine) Warn(vo any, args ...any) error {
	return e.log(context.Background(), LevelWarn, vo, args)
}

// Error records a call at the error level.
func (e *Engine) Error(vo any, args ...any) error {
	return e.log(context.Background(), LevelError, vo, args)
}

// LogContext is Log with a context carrying the invocation and trace.
func (e *Engine) LogContext(ctx context.Context, vo any, args ...any) error {
	return e.log(ctx, LevelLog, vo, args)
}

// InfoContext is Info with a context.
func (e *Engine) InfoContext(ctx context.Context, vo any, args ...any) error {
	return e.log(ctx, LevelInfo, vo, args)
}

// WarnContext is Warn with a context.
func (e *Engine) WarnContext(ctx context.Context, vo any, args ...any) error {
	return e.log(ctx, LevelWarn, vo, args)
}

// ErrorContext is Error with a context.
func (e *Engine) ErrorContext(ctx context.Context, vo any, args ...any) error {
	return e.log(ctx, LevelError, vo, args)
}

// LogAt records a call at a level chosen at run time.
func (e *Engine) LogAt(ctx context.Context, level Level, vo any, args ...any) error {
	if !level.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	return e.log(ctx, level, vo, args)
}

// log must only be called directly by an exported logging method so that
// callerSkip holds.
func (e *Engine) log(ctx context.Context, level Level, vo any, args []any) error {
	p, err := toParams(vo)
	if err != nil {
		return err
	}
	return e.emit(ctx, normalize(p, level, args), capturePCs(callerSkip))
}

// emit runs one normalized call through display, storage and the handler
// pipeline. pcs starts at the application frame that made the call.
func (e *Engine) emit(ctx context.Context, opts CallOptions, pcs []uintptr) error {
	if ctx == nil {
		ctx = context.Background()
	}
	now := e.clock.Now()
	callSite := resolveCallSite(pcs)

	var stack string
	if opts.AppendStackTrace || opts.RecordStackTrace {
		stack = formatStack(pcs)
	}
	if opts.AppendStackTrace {
		opts.Args = append(slices.Clip(opts.Args), stack)
	}

	if e.ShouldDisplay(opts) {
		e.display(ctx, opts, callSite, pcs, now)
	}

	var errs []error
	if opts.Record {
		if err := e.record(ctx, opts, callSite, stack, now); err != nil {
			errs = append(errs, err)
		}
	}
	if err := e.runHandlers(ctx, opts); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// record builds the LogRecord for opts and inserts it into every active side.
func (e *Engine) record(ctx context.Context, opts CallOptions, callSite, stack string, now time.Time) error {
	rec := LogRecord{
		ID:        newRecordID(),
		Message:   Serialize(opts.Args),
		Timestamp: now,
		Verbosity: opts.Verbosity,
		Level:     opts.Level,
		Tags:      cleanTags(opts.Tags),
		TraceID:   TraceID(ctx),
	}
	if e.mode != ModeProduction {
		rec.CallSite = callSite
	}
	if opts.RecordStackTrace {
		rec.StackTrace = stack
	}

	if e.transient != nil {
		e.transient.Insert(rec)
	}
	if d := e.durableSide(); d != nil {
		if inv, ok := InvocationFromContext(ctx); ok {
			rec = rec.withOrigin(inv)
		}
		return d.insert(ctx, rec)
	}
	return nil
}

// BoundLogger logs at a fixed level with options bound at creation.
type BoundLogger struct {
	engine *Engine
	level  Level
	params Params
}

// WithParams returns a logger that always logs at level with vo as its
// options. vo is validated and deep-copied now, so later changes to the
// caller's value have no effect on the bound logger.
func (e *Engine) WithParams(level Level, vo any) (*BoundLogger, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLevel, level)
	}
	p, err := toParams(vo)
	if err != nil {
		return nil, err
	}
	return &BoundLogger{engine: e, level: level, params: p.clone()}, nil
}

// Print logs args with the bound level and options.
func (b *BoundLogger) Print(args ...any) error {
	return b.engine.log(context.Background(), b.level, b.params, args)
}

// PrintContext logs args with the bound level and options.
func (b *BoundLogger) PrintContext(ctx context.Context, args ...any) error {
	return b.engine.log(ctx, b.level, b.params, args)
}

// Level returns the bound level.
func (b *BoundLogger) Level() Level { return b.level }
