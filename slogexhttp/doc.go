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

// Package slogexhttp connects net/http servers to a slogex engine.
//
// [Middleware] stores the engine and an [slogex.Invocation] describing the
// caller on each request context, so durable records written while serving
// the request carry the user, connection and client address. It also extracts
// incoming trace context and, by default, wraps the handler with otelhttp.
//
//	mux := http.NewServeMux()
//	mux.Handle("GET /logs/{publication}", slogexhttp.SubscriptionHandler(engine))
//	handler := slogexhttp.Middleware(engine,
//	    slogexhttp.WithIdentity(func(r *http.Request) string {
//	        return r.Header.Get("X-User")
//	    }),
//	)(mux)
//
// [SubscriptionHandler] streams a publication as server-sent events: the
// initial records, a "ready" event, then live updates until the client goes
// away.
package slogexhttp
