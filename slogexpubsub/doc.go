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

// Package slogexpubsub forwards selected slogex log calls to Google Cloud
// Pub/Sub.
//
// A [Forwarder] is a slogex pipeline handler. Calls that pass its level, tag
// and verbosity filters are encoded as an [Envelope], stamped with the
// caller's trace context in the message attributes, and published from a
// bounded queue by background workers, so a slow topic never blocks the
// logging call unless DropModeBlock is chosen.
//
//	pub := client.Publisher("app-logs")
//	fwd := slogexpubsub.New(slogexpubsub.TopicPublisher(pub),
//	    slogexpubsub.WithLevels(slogex.LevelWarn, slogex.LevelError),
//	    slogexpubsub.WithEnv(),
//	)
//	defer fwd.Close()
//	engine.RegisterHandler(fwd.Handle)
//
// Consumers call [Decode] to recover the envelope and a context carrying the
// publisher's trace.
package slogexpubsub
