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

// Package slogexgrpc connects gRPC servers and clients to a slogex engine.
//
// The server interceptors store the engine and an [slogex.Invocation] on the
// RPC context: the user and connection come from incoming metadata, the
// client address from the transport peer and the forwarded-for value from
// the "x-forwarded-for" metadata key. Durable records written while serving
// the RPC carry that metadata.
//
//	server := grpc.NewServer(slogexgrpc.ServerOptions(engine,
//	    slogexgrpc.WithUserKey("x-user"),
//	)...)
//
// The client interceptors inject the active trace context into outgoing
// metadata so records on both sides share a trace id.
package slogexgrpc
