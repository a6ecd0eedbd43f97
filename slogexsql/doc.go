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

// Package slogexsql is a slogex durable Backend over database/sql.
//
// Records live in a single table indexed by timestamp. EnsureExpiryIndex
// creates the table and index when missing and starts a sweeper that deletes
// rows older than the time-to-live, the way a document store's TTL monitor
// would. Queries use "?" placeholders, which SQLite and MySQL drivers accept.
//
//	db, err := sql.Open("sqlite3", "file:logs.db")
//	backend, err := slogexsql.New(db)
//	err = engine.StoreServerMessages(ctx, slogex.DurableConfig{Backend: backend})
package slogexsql
