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

package slogexgrpc

import (
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// Default metadata keys read by the server interceptors.
const (
	DefaultConnectionKey   = "x-request-id"
	DefaultForwardedForKey = "x-forwarded-for"
)

// Option configures the gRPC interceptors.
type Option func(*config)

type config struct {
	userKey         string
	connectionKey   string
	forwardedForKey string
	enableOTel      bool
	tracerProvider  trace.TracerProvider
	propagators     propagation.TextMapPropagator
	propagatorsSet  bool
	propagateTrace  bool
	filters         []otelgrpc.Filter
}

func defaultConfig() *config {
	return &config{
		connectionKey:   DefaultConnectionKey,
		forwardedForKey: DefaultForwardedForKey,
		enableOTel:      true,
		propagateTrace:  true,
	}
}

func applyOptions(opts []Option) *config {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}
	return cfg
}

// WithUserKey names the incoming metadata key holding the user id. Unset by
// default, so records carry no user.
func WithUserKey(key string) Option {
	return func(cfg *config) {
		cfg.userKey = strings.ToLower(key)
	}
}

// WithConnectionKey names the incoming metadata key holding the connection id.
func WithConnectionKey(key string) Option {
	return func(cfg *config) {
		cfg.connectionKey = strings.ToLower(key)
	}
}

// WithForwardedForKey names the incoming metadata key holding the original
// client address set by a proxy.
func WithForwardedForKey(key string) Option {
	return func(cfg *config) {
		cfg.forwardedForKey = strings.ToLower(key)
	}
}

// WithPropagators sets the propagator used for extracting (server) and
// injecting (client) trace context. When omitted, the global propagator is
// used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
		cfg.propagatorsSet = true
	}
}

// WithTracerProvider configures the tracer provider used by otelgrpc.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithTracePropagation toggles trace context extraction and injection.
// Enabled by default.
func WithTracePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateTrace = enabled
	}
}

// WithOTel enables or disables the otelgrpc stats handlers added by
// ServerOptions and DialOptions. Enabled by default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithFilter appends an otelgrpc filter applied before spans are created.
func WithFilter(filter otelgrpc.Filter) Option {
	return func(cfg *config) {
		if filter != nil {
			cfg.filters = append(cfg.filters, filter)
		}
	}
}
