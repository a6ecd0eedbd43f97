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
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/slogex"
)

const instrumentationName = "github.com/pjscruggs/slogex/slogexhttp"

// Middleware returns an http.Handler middleware that attaches engine and the
// caller's invocation metadata to every request context.
func Middleware(engine *slogex.Engine, opts ...Option) func(http.Handler) http.Handler {
	cfg := applyOptions(opts)

	return func(next http.Handler) http.Handler {
		if next == nil {
			next = http.NotFoundHandler()
		}

		chain := wrapWithOTel(cfg, invocationHandler(engine, cfg, next))

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if newCtx := ensureSpanContext(ctx, r, cfg); newCtx != ctx {
				r = r.WithContext(newCtx)
			}
			chain.ServeHTTP(w, r)
		})
	}
}

// invocationHandler stores the engine and the request's invocation.
func invocationHandler(engine *slogex.Engine, cfg *config, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := slogex.ContextWithEngine(r.Context(), engine)
		ctx = slogex.ContextWithInvocation(ctx, invocationFromRequest(r, cfg))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// InvocationFromRequest describes the caller of r. The client address is the
// TCP peer; the forwarded-for value is the first entry of X-Forwarded-For.
func InvocationFromRequest(r *http.Request, opts ...Option) slogex.Invocation {
	return invocationFromRequest(r, applyOptions(opts))
}

func invocationFromRequest(r *http.Request, cfg *config) slogex.Invocation {
	inv := slogex.Invocation{
		ClientAddress: extractIP(r.RemoteAddr),
		ForwardedFor:  forwardedFor(r.Header),
		TraceID:       slogex.TraceID(r.Context()),
	}
	if cfg.identity != nil {
		inv.UserID = strings.TrimSpace(cfg.identity(r))
	}
	if cfg.connectionHeader != "" {
		inv.ConnectionID = strings.TrimSpace(r.Header.Get(cfg.connectionHeader))
	}
	if inv.ConnectionID == "" {
		inv.ConnectionID = uuid.NewString()
	}
	return inv
}

func wrapWithOTel(cfg *config, handler http.Handler) http.Handler {
	if !cfg.enableOTel {
		return handler
	}
	return otelhttp.NewHandler(handler, instrumentationName, otelOptions(cfg)...)
}

func otelOptions(cfg *config) []otelhttp.Option {
	var otelOpts []otelhttp.Option
	if cfg.tracerProvider != nil {
		otelOpts = append(otelOpts, otelhttp.WithTracerProvider(cfg.tracerProvider))
	}
	if cfg.propagateTrace {
		if cfg.propagatorsSet && cfg.propagators != nil {
			otelOpts = append(otelOpts, otelhttp.WithPropagators(cfg.propagators))
		}
	} else {
		otelOpts = append(otelOpts, otelhttp.WithPropagators(noopPropagator{}))
	}
	if cfg.publicEndpoint {
		otelOpts = append(otelOpts, otelhttp.WithPublicEndpointFn(func(*http.Request) bool {
			return true
		}))
	}
	if cfg.spanNameFormatter != nil {
		otelOpts = append(otelOpts, otelhttp.WithSpanNameFormatter(cfg.spanNameFormatter))
	}
	for _, filter := range cfg.filters {
		otelOpts = append(otelOpts, otelhttp.WithFilter(filter))
	}
	return otelOpts
}

type noopPropagator struct{}

func (noopPropagator) Inject(context.Context, propagation.TextMapCarrier) {}

func (noopPropagator) Extract(ctx context.Context, _ propagation.TextMapCarrier) context.Context {
	return ctx
}

func (noopPropagator) Fields() []string { return nil }

// ensureSpanContext extracts a remote span context from the request headers
// when the context does not already carry one.
func ensureSpanContext(ctx context.Context, r *http.Request, cfg *config) context.Context {
	if !cfg.propagateTrace || trace.SpanContextFromContext(ctx).IsValid() {
		return ctx
	}
	propagator := cfg.propagators
	if propagator == nil {
		if cfg.propagatorsSet {
			return ctx
		}
		propagator = otel.GetTextMapPropagator()
	}
	extracted := propagator.Extract(ctx, propagation.HeaderCarrier(r.Header))
	if !trace.SpanContextFromContext(extracted).IsValid() {
		return ctx
	}
	return extracted
}

// extractIP strips the port from a host:port string and returns the host.
func extractIP(addr string) string {
	if addr == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}

// forwardedFor returns the raw X-Forwarded-For chain, joining repeated
// header lines in order.
func forwardedFor(h http.Header) string {
	return strings.TrimSpace(strings.Join(h.Values("X-Forwarded-For"), ", "))
}
