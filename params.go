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
	"fmt"
	"slices"
)

// DefaultVerbosity is applied when a call does not set a verbosity, and is
// also the initial global verbosity ceiling.
const DefaultVerbosity = 5

// Params is the partial per-call configuration supplied as the first argument
// of a level method. Nil pointer fields fall back to the defaults.
type Params struct {
	Verbosity        *int
	Tags             []string
	Record           *bool
	AppendStackTrace bool
	RecordStackTrace bool
}

// V returns Params with only the verbosity set.
func V(verbosity int) Params {
	return Params{Verbosity: &verbosity}
}

// Tags returns Params with only the tags set.
func Tags(tags ...string) Params {
	return Params{Tags: tags}
}

// WithTags returns a copy of p with tags appended.
func (p Params) WithTags(tags ...string) Params {
	p.Tags = append(slices.Clone(p.Tags), tags...)
	return p
}

// WithoutRecording returns a copy of p that displays and runs handlers but
// stores nothing.
func (p Params) WithoutRecording() Params {
	record := false
	p.Record = &record
	return p
}

// AppendStack returns a copy of p that appends the captured stack to the
// message arguments.
func (p Params) AppendStack() Params {
	p.AppendStackTrace = true
	return p
}

// RecordStack returns a copy of p that stores the captured stack on the
// record.
func (p Params) RecordStack() Params {
	p.RecordStackTrace = true
	return p
}

// clone returns a deep copy of p so later mutation of the caller's value
// cannot leak into a bound logger.
func (p Params) clone() Params {
	out := Params{
		Tags:             slices.Clone(p.Tags),
		AppendStackTrace: p.AppendStackTrace,
		RecordStackTrace: p.RecordStackTrace,
	}
	if p.Verbosity != nil {
		v := *p.Verbosity
		out.Verbosity = &v
	}
	if p.Record != nil {
		r := *p.Record
		out.Record = &r
	}
	return out
}

// CallOptions is the normalized configuration of a single log call. It is
// what display filters and pipeline handlers receive.
type CallOptions struct {
	Verbosity        int
	Tags             []string
	Record           bool
	AppendStackTrace bool
	RecordStackTrace bool
	Level            Level
	Args             []any
}

// toParams normalizes the loose first argument of a level method.
func toParams(vo any) (Params, error) {
	switch v := vo.(type) {
	case Params:
		return v, nil
	case *Params:
		if v == nil {
			return Params{}, fmt.Errorf("%w: nil *Params", ErrInvalidOptions)
		}
		return *v, nil
	case int:
		return V(v), nil
	case int8:
		return V(int(v)), nil
	case int16:
		return V(int(v)), nil
	case int32:
		return V(int(v)), nil
	case int64:
		return V(int(v)), nil
	case uint:
		return V(int(v)), nil
	case uint8:
		return V(int(v)), nil
	case uint16:
		return V(int(v)), nil
	case uint32:
		return V(int(v)), nil
	default:
		return Params{}, fmt.Errorf("%w: got %T", ErrInvalidOptions, vo)
	}
}

// normalize merges p over the documented defaults for a call at level with
// the given message arguments.
func normalize(p Params, level Level, args []any) CallOptions {
	opts := CallOptions{
		Verbosity:        DefaultVerbosity,
		Tags:             slices.Clone(p.Tags),
		Record:           true,
		AppendStackTrace: p.AppendStackTrace,
		RecordStackTrace: p.RecordStackTrace,
		Level:            level,
		Args:             args,
	}
	if opts.Tags == nil {
		opts.Tags = []string{}
	}
	if p.Verbosity != nil {
		opts.Verbosity = *p.Verbosity
	}
	if p.Record != nil {
		opts.Record = *p.Record
	}
	return opts
}
