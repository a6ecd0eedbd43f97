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
	"log/slog"
	"runtime"
	"slices"
	"strings"
)

// ExceptionTag is the first tag of every record logged by ThrowException.
const ExceptionTag = "exception"

// MessageSource produces the message of a named exception from its data.
type MessageSource interface {
	ExceptionMessage(data any) string
}

// StaticMessage is a MessageSource that ignores the data.
type StaticMessage string

// ExceptionMessage returns m.
func (m StaticMessage) ExceptionMessage(any) string { return string(m) }

// MessageFunc adapts a function into a MessageSource.
type MessageFunc func(data any) string

// ExceptionMessage returns f(data).
func (f MessageFunc) ExceptionMessage(data any) string { return f(data) }

// Exception is the error produced for a registered exception name. Its stack
// starts at the application code that asked for it.
type Exception struct {
	Name    string
	Message string
	Data    any
	pcs     []uintptr
}

// Error returns the generated message.
func (x *Exception) Error() string { return x.Message }

// String returns "[name] message".
func (x *Exception) String() string { return "[" + x.Name + "] " + x.Message }

// StackTrace returns the program counters of the exception's stack, compatible
// with github.com/pkg/errors.
func (x *Exception) StackTrace() []uintptr { return slices.Clone(x.pcs) }

// Stack returns the formatted stack trace.
func (x *Exception) Stack() string { return formatStack(x.pcs) }

// Frame returns the first frame of the stack: the caller that raised it.
func (x *Exception) Frame() runtime.Frame { return firstFrame(x.pcs) }

// IsException reports whether err is, or wraps, an exception named name.
func IsException(err error, name string) bool {
	var x *Exception
	return errors.As(err, &x) && x.Name == name
}

// ExceptionOptions controls how ThrowException logs. The zero value logs at
// the error level with verbosity 0.
type ExceptionOptions struct {
	Level     Level
	Verbosity int
	// Tags are added after the "exception" and name tags.
	Tags []string
}

func (o ExceptionOptions) clone() ExceptionOptions {
	o.Tags = slices.Clone(o.Tags)
	return o
}

func (o ExceptionOptions) level() (Level, error) {
	if o.Level == "" {
		return LevelError, nil
	}
	if !o.Level.Valid() {
		return "", fmt.Errorf("%w: %q (allowed: log, info, warn, error)", ErrInvalidLevel, o.Level)
	}
	return o.Level, nil
}

// Thrower raises one prepared exception with the given data.
type Thrower func(ctx context.Context, data any) error

// RegisterException defines or redefines the message of name. Redefinition
// replaces the previous source and logs a warning.
func (e *Engine) RegisterException(name string, src MessageSource) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidException)
	}
	if src == nil {
		return fmt.Errorf("%w: %q has no message source", ErrInvalidException, name)
	}
	if f, ok := src.(MessageFunc); ok && f == nil {
		return fmt.Errorf("%w: %q has a nil message func", ErrInvalidException, name)
	}
	if _, loaded := e.exceptions.LoadAndStore(name, src); loaded {
		e.internalLogger.Warn("exception already registered, overwriting message",
			slog.String("exception", name),
		)
	}
	return nil
}

// GenerateExceptionMessage returns the message of name for data.
func (e *Engine) GenerateExceptionMessage(name string, data any) (string, error) {
	src, ok := e.exceptions.Load(name)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrExceptionNotRegistered, name)
	}
	return src.ExceptionMessage(data), nil
}

// ThrowException logs the named exception and returns it. The result is never
// nil: it is either a configuration or registration error, or an error for
// which IsException(err, name) holds. When the log call itself fails the two
// errors are joined.
func (e *Engine) ThrowException(ctx context.Context, name string, data any, opts ExceptionOptions) error {
	return e.throwException(ctx, name, data, opts, capturePCs(1))
}

// MakeException builds the named exception without logging it.
func (e *Engine) MakeException(name string, data any) (*Exception, error) {
	msg, err := e.GenerateExceptionMessage(name, data)
	if err != nil {
		return nil, err
	}
	return &Exception{Name: name, Message: msg, Data: data, pcs: capturePCs(1)}, nil
}

// PrepareExceptionThrower returns a Thrower for name. opts is copied now.
func (e *Engine) PrepareExceptionThrower(name string, opts ExceptionOptions) Thrower {
	opts = opts.clone()
	return func(ctx context.Context, data any) error {
		return e.throwException(ctx, name, data, opts, capturePCs(1))
	}
}

func (e *Engine) throwException(ctx context.Context, name string, data any, opts ExceptionOptions, pcs []uintptr) error {
	msg, err := e.GenerateExceptionMessage(name, data)
	if err != nil {
		return err
	}
	level, err := opts.level()
	if err != nil {
		return err
	}

	exc := &Exception{Name: name, Message: msg, Data: data, pcs: pcs}
	verbosity := opts.Verbosity
	p := Params{
		Verbosity: &verbosity,
		Tags:      append([]string{ExceptionTag, name}, opts.Tags...),
	}
	args := []any{
		exc.String(),
		map[string]any{
			"exception": name,
			"message":   msg,
			"stack":     exc.Stack(),
		},
	}
	if logErr := e.emit(ctx, normalize(p, level, args), pcs); logErr != nil {
		return errors.Join(exc, logErr)
	}
	return exc
}
