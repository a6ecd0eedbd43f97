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

// Package slogex is an application logging and exception engine built on
// [log/slog]. It decides what to log, how to echo it to a live display, how
// long to keep it, and how to turn symbolic exception names into logged,
// returned errors whose stack starts at the caller.
//
// ⚠️ This module is untested, and not recommended for any production use. ⚠️
//
// The entry point is [New], which returns an [Engine]. Each level method
// takes a verbosity (or a [Params] value) followed by the message arguments:
//
//	engine, err := slogex.New(slogex.WithSide(slogex.SideClient))
//	if err != nil {
//	    log.Fatalf("create slogex engine: %v", err)
//	}
//	defer engine.Close()
//
//	engine.Info(3, "user signed in", user)
//	engine.Warn(slogex.V(1).WithTags("billing"), "card declined", charge)
//
// A call is echoed to the live display when the display predicate holds (by
// default, development mode only), the optional display filter passes, and
// its verbosity does not exceed [Engine.Verbosity]. Display never affects
// recording or the handler pipeline.
//
// # Records
//
// Recorded calls become [LogRecord] values. Client-side engines keep them in
// a [TransientStore] for a sliding window. Server-side engines persist them
// through a [Backend] configured once with [Engine.StoreServerMessages], and
// expose live views with [Engine.Subscribe]. [MemoryBackend] is an in-process
// backend; package slogexsql stores records in a SQL database.
//
// # Exceptions
//
// Register a message source per exception name, then raise it:
//
//	engine.RegisterException("not-a-number", slogex.MessageFunc(func(d any) string {
//	    return fmt.Sprintf("%v is not a number", d)
//	}))
//	return engine.ThrowException(ctx, "not-a-number", input, slogex.ExceptionOptions{})
//
// # Subpackages
//
//   - [github.com/pjscruggs/slogex/slogexhttp] attaches caller metadata to
//     requests and streams publications as server-sent events.
//   - [github.com/pjscruggs/slogex/slogexgrpc] attaches caller metadata to
//     gRPC calls.
//   - [github.com/pjscruggs/slogex/slogexpubsub] forwards selected log calls
//     to Pub/Sub as a pipeline handler.
//   - [github.com/pjscruggs/slogex/slogexsql] is a database/sql Backend.
//
// # Configuration
//
// Use functional options such as [WithVerbosity], [WithMode], [WithSide],
// [WithDisplayCallSites] and [WithExcludeCallSitesWith]. Environment
// variables (SLOGEX_VERBOSITY, SLOGEX_MODE, SLOGEX_SIDE,
// SLOGEX_DISPLAY_CALLSITES, SLOGEX_EXCLUDE_CALLSITES_WITH,
// SLOGEX_WINDOW_HOURS, SLOGEX_TRANSIENT_STORE) are read first; options
// override them.
package slogex
