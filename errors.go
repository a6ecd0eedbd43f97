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
	"fmt"
)

// ErrConfig is the parent of every configuration error returned by slogex.
// Configuration errors are raised synchronously by the call that caused them
// and are never retried. Use errors.Is(err, ErrConfig) to classify them.
var ErrConfig = errors.New("slogex: configuration error")

var (
	// ErrInvalidOptions indicates the first argument of a level method was
	// neither an integer verbosity nor a Params value.
	ErrInvalidOptions = fmt.Errorf("%w: options must be an integer verbosity or Params", ErrConfig)

	// ErrInvalidLevel indicates a level outside log, info, warn and error.
	ErrInvalidLevel = fmt.Errorf("%w: invalid log level", ErrConfig)

	// ErrInvalidHandler indicates a nil pipeline handler.
	ErrInvalidHandler = fmt.Errorf("%w: handler must be a non-nil function", ErrConfig)

	// ErrInvalidPredicate indicates a nil display predicate.
	ErrInvalidPredicate = fmt.Errorf("%w: predicate must be a non-nil function", ErrConfig)

	// ErrInvalidWindow indicates a non-positive sliding window.
	ErrInvalidWindow = fmt.Errorf("%w: window hours must be positive", ErrConfig)

	// ErrDurableConfigured is returned by a second StoreServerMessages call.
	ErrDurableConfigured = fmt.Errorf("%w: durable store already configured", ErrConfig)

	// ErrInvalidBackend indicates a nil durable backend.
	ErrInvalidBackend = fmt.Errorf("%w: durable backend is required", ErrConfig)

	// ErrInvalidPublication indicates a malformed publication descriptor.
	ErrInvalidPublication = fmt.Errorf("%w: invalid publication", ErrConfig)

	// ErrInvalidException indicates a bad exception registration.
	ErrInvalidException = fmt.Errorf("%w: invalid exception definition", ErrConfig)

	// ErrUnknownPublication is returned when subscribing to a name that was
	// never published.
	ErrUnknownPublication = fmt.Errorf("%w: unknown publication", ErrConfig)
)

// ErrExceptionNotRegistered is returned when generating a message for an
// exception name that has no definition.
var ErrExceptionNotRegistered = errors.New("slogex: exception not registered")
