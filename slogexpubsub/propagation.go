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

package slogexpubsub

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// injectAttributes writes the trace context of ctx into attrs, creating the
// map when necessary. Nothing is written when ctx carries no span.
func injectAttributes(ctx context.Context, attrs map[string]string, p propagation.TextMapPropagator) map[string]string {
	if !trace.SpanContextFromContext(ctx).IsValid() {
		return attrs
	}
	if p == nil {
		p = otel.GetTextMapPropagator()
	}
	p.Inject(ctx, lazyCarrier{attrs: &attrs})
	return attrs
}

// extractAttributes returns ctx extended with the remote span context found
// in attrs, or ctx unchanged.
func extractAttributes(ctx context.Context, attrs map[string]string, p propagation.TextMapPropagator) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if len(attrs) == 0 {
		return ctx
	}
	if p == nil {
		p = otel.GetTextMapPropagator()
	}
	extracted := p.Extract(ctx, lazyCarrier{attrs: &attrs})
	if !trace.SpanContextFromContext(extracted).IsValid() {
		return ctx
	}
	return extracted
}

// lazyCarrier lower-cases keys and allocates the attribute map on first Set.
type lazyCarrier struct {
	attrs *map[string]string
}

func (c lazyCarrier) Get(key string) string {
	if c.attrs == nil || *c.attrs == nil {
		return ""
	}
	return (*c.attrs)[strings.ToLower(key)]
}

func (c lazyCarrier) Set(key, value string) {
	if c.attrs == nil {
		return
	}
	if *c.attrs == nil {
		*c.attrs = make(map[string]string)
	}
	(*c.attrs)[strings.ToLower(key)] = value
}

func (c lazyCarrier) Keys() []string {
	if c.attrs == nil || len(*c.attrs) == 0 {
		return nil
	}
	keys := make([]string, 0, len(*c.attrs))
	for k := range *c.attrs {
		keys = append(keys, k)
	}
	return keys
}
