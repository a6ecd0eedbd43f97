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

package slogexhttp

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// IdentityFunc returns the user on whose behalf r is served, or "".
type IdentityFunc func(r *http.Request) string

// Option configures the HTTP middleware and subscription handler.
type Option func(*config)

type config struct {
	identity          IdentityFunc
	connectionHeader  string
	enableOTel        bool
	tracerProvider    trace.TracerProvider
	propagators       propagation.TextMapPropagator
	propagatorsSet    bool
	propagateTrace    bool
	publicEndpoint    bool
	spanNameFormatter func(string, *http.Request) string
	filters           []otelhttp.Filter
	publicationParam  string
}

// DefaultConnectionHeader is read for the connection identifier when the
// request carries one.
const DefaultConnectionHeader = "X-Request-Id"

func defaultConfig() *config {
	return &config{
		connectionHeader: DefaultConnectionHeader,
		enableOTel:       true,
		propagateTrace:   true,
		publicationParam: "publication",
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

// WithIdentity sets how the user id of a request is resolved.
func WithIdentity(fn IdentityFunc) Option {
	return func(cfg *config) {
		cfg.identity = fn
	}
}

// WithConnectionHeader names the header carrying the connection identifier.
// Requests without it get a generated identifier.
func WithConnectionHeader(name string) Option {
	return func(cfg *config) {
		cfg.connectionHeader = http.CanonicalHeaderKey(name)
	}
}

// WithPropagators supplies the TextMapPropagator used to extract incoming
// trace context. When omitted, otel.GetTextMapPropagator() is used.
func WithPropagators(p propagation.TextMapPropagator) Option {
	return func(cfg *config) {
		cfg.propagators = p
		cfg.propagatorsSet = true
	}
}

// WithTracerProvider installs the tracer provider used by otelhttp.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cfg *config) {
		cfg.tracerProvider = tp
	}
}

// WithTracePropagation toggles extraction of incoming trace context. Enabled
// by default.
func WithTracePropagation(enabled bool) Option {
	return func(cfg *config) {
		cfg.propagateTrace = enabled
	}
}

// WithPublicEndpoint toggles the otelhttp public endpoint hint.
func WithPublicEndpoint(enabled bool) Option {
	return func(cfg *config) {
		cfg.publicEndpoint = enabled
	}
}

// WithOTel enables or disables otelhttp instrumentation. It is enabled by
// default.
func WithOTel(enabled bool) Option {
	return func(cfg *config) {
		cfg.enableOTel = enabled
	}
}

// WithSpanNameFormatter customizes otelhttp span naming.
func WithSpanNameFormatter(formatter func(string, *http.Request) string) Option {
	return func(cfg *config) {
		cfg.spanNameFormatter = formatter
	}
}

// WithFilter appends an otelhttp filter applied before span creation.
func WithFilter(filter otelhttp.Filter) Option {
	return func(cfg *config) {
		if filter != nil {
			cfg.filters = append(cfg.filters, filter)
		}
	}
}

// WithPublicationParam names the path value (or, failing that, query
// parameter) SubscriptionHandler reads the publication name from. The default
// is "publication".
func WithPublicationParam(name string) Option {
	return func(cfg *config) {
		if name != "" {
			cfg.publicationParam = name
		}
	}
}
