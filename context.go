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
	"net/netip"
	"strings"
)

type contextKey int

const (
	invocationContextKey contextKey = iota
	engineContextKey
)

// Invocation describes the caller of the request or method currently being
// served. Transport middleware stores it on the request context; durable
// records copy it when they are created inside that context.
type Invocation struct {
	UserID        string
	ConnectionID  string
	ClientAddress string
	ForwardedFor  string
	TraceID       string
}

// directAddress reports whether ClientAddress names a real peer rather than
// a loopback placeholder left behind by a local proxy.
func (inv Invocation) directAddress() bool {
	addr := strings.TrimSpace(inv.ClientAddress)
	if addr == "" {
		return false
	}
	if ip, err := netip.ParseAddr(addr); err == nil {
		return !ip.Unmap().IsLoopback()
	}
	return addr != "localhost"
}

// ContextWithInvocation returns a child context carrying inv.
func ContextWithInvocation(ctx context.Context, inv Invocation) context.Context {
	if ctx == nil {
		return ctx
	}
	return context.WithValue(ctx, invocationContextKey, inv)
}

// InvocationFromContext returns the invocation stored on ctx, if any.
func InvocationFromContext(ctx context.Context) (Invocation, bool) {
	if ctx == nil {
		return Invocation{}, false
	}
	inv, ok := ctx.Value(invocationContextKey).(Invocation)
	return inv, ok
}

// ContextWithEngine returns a child context that stores e so request handlers
// can retrieve it later in the call chain.
func ContextWithEngine(ctx context.Context, e *Engine) context.Context {
	if ctx == nil || e == nil {
		return ctx
	}
	return context.WithValue(ctx, engineContextKey, e)
}

// FromContext retrieves an engine stored via ContextWithEngine, or nil.
func FromContext(ctx context.Context) *Engine {
	if ctx == nil {
		return nil
	}
	e, _ := ctx.Value(engineContextKey).(*Engine)
	return e
}
