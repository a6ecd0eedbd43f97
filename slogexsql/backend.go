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

package slogexsql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/pjscruggs/slogex"
)

const (
	// DefaultTable is the table records are stored in.
	DefaultTable = "log_records"
	// DefaultSweepInterval is how often expired rows are deleted.
	DefaultSweepInterval = time.Minute
)

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ErrInvalidTable reports a table name that is not a plain identifier.
var ErrInvalidTable = errors.New("slogexsql: invalid table name")

// Option configures a Backend.
type Option func(*Backend)

// WithTable sets the table name.
func WithTable(name string) Option {
	return func(b *Backend) {
		b.table = name
	}
}

// WithClock sets the clock used by the sweeper.
func WithClock(clk clock.Clock) Option {
	return func(b *Backend) {
		if clk != nil {
			b.clock = clk
		}
	}
}

// WithSweepInterval sets how often expired rows are deleted.
func WithSweepInterval(d time.Duration) Option {
	return func(b *Backend) {
		if d > 0 {
			b.interval = d
		}
	}
}

// WithLogger sets where sweep failures are reported.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// Backend stores log records in a SQL table.
type Backend struct {
	db       *sql.DB
	table    string
	clock    clock.Clock
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	ttl     time.Duration
	ticker  *clock.Ticker
	done    chan struct{}
	stopped sync.Once
}

var _ slogex.Backend = (*Backend)(nil)

// New returns a Backend over db. The caller keeps ownership of db.
func New(db *sql.DB, opts ...Option) (*Backend, error) {
	if db == nil {
		return nil, errors.New("slogexsql: nil database")
	}
	b := &Backend{
		db:       db,
		table:    DefaultTable,
		clock:    clock.New(),
		interval: DefaultSweepInterval,
		logger:   slog.Default(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	if !validTable.MatchString(b.table) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTable, b.table)
	}
	return b, nil
}

// EnsureExpiryIndex creates the table and its timestamp index, records ttl
// and starts the sweeper. Calling it again only updates the TTL.
func (b *Backend) EnsureExpiryIndex(ctx context.Context, ttl time.Duration) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ` + b.table + ` (
			id TEXT PRIMARY KEY,
			msg TEXT NOT NULL,
			ts INTEGER NOT NULL,
			v INTEGER NOT NULL,
			ll TEXT NOT NULL,
			tags TEXT NOT NULL,
			call_site TEXT NOT NULL,
			stack TEXT NOT NULL,
			user_id TEXT NOT NULL,
			connection_id TEXT NOT NULL,
			client_address TEXT NOT NULL,
			forwarded_for TEXT NOT NULL,
			trace_id TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ` + b.table + `_ts_idx ON ` + b.table + ` (ts)`,
	}
	for _, stmt := range stmts {
		if _, err := b.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("slogexsql: ensure expiry index: %w", err)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.ttl = ttl
	if b.ticker != nil {
		return nil
	}
	b.ticker = b.clock.Ticker(b.interval)
	go b.sweepLoop(b.ticker)
	return nil
}

func (b *Backend) sweepLoop(t *clock.Ticker) {
	for {
		select {
		case <-b.done:
			return
		case <-t.C:
			if _, err := b.Sweep(context.Background()); err != nil {
				b.logger.Warn("slogexsql: sweep failed", slog.Any("error", err))
			}
		}
	}
}

// Sweep deletes expired rows now and returns how many were removed.
func (b *Backend) Sweep(ctx context.Context) (int64, error) {
	b.mu.Lock()
	ttl := b.ttl
	b.mu.Unlock()
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := b.clock.Now().Add(-ttl).UnixNano()
	res, err := b.db.ExecContext(ctx, `DELETE FROM `+b.table+` WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("slogexsql: sweep: %w", err)
	}
	return res.RowsAffected()
}

// Insert writes rec as one row.
func (b *Backend) Insert(ctx context.Context, rec slogex.LogRecord) error {
	tags, err := json.Marshal(nonNil(rec.Tags))
	if err != nil {
		return fmt.Errorf("slogexsql: encode tags: %w", err)
	}
	_, err = b.db.ExecContext(ctx, `INSERT INTO `+b.table+`
		(id, msg, ts, v, ll, tags, call_site, stack, user_id, connection_id, client_address, forwarded_for, trace_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Message, rec.Timestamp.UnixNano(), rec.Verbosity, string(rec.Level), string(tags),
		rec.CallSite, rec.StackTrace, rec.UserID, rec.ConnectionID, rec.ClientAddress, rec.ForwardedFor, rec.TraceID,
	)
	if err != nil {
		return fmt.Errorf("slogexsql: insert: %w", err)
	}
	return nil
}

// Find returns the rows matching sel in ascending timestamp order. Time and
// level conditions run in SQL; tag conditions run on the decoded rows.
func (b *Backend) Find(ctx context.Context, sel slogex.Selector) ([]slogex.LogRecord, error) {
	var (
		where []string
		args  []any
	)
	if !sel.Since.IsZero() {
		where = append(where, "ts >= ?")
		args = append(args, sel.Since.UnixNano())
	}
	if !sel.Until.IsZero() {
		where = append(where, "ts <= ?")
		args = append(args, sel.Until.UnixNano())
	}
	if len(sel.Levels) > 0 {
		marks := make([]string, len(sel.Levels))
		for i, l := range sel.Levels {
			marks[i] = "?"
			args = append(args, string(l))
		}
		where = append(where, "ll IN ("+strings.Join(marks, ", ")+")")
	}

	query := `SELECT id, msg, ts, v, ll, tags, call_site, stack, user_id, connection_id, client_address, forwarded_for, trace_id FROM ` + b.table
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY ts ASC, id ASC"
	tagFiltered := len(sel.AnyTags) > 0 || len(sel.AllTags) > 0
	if sel.Limit > 0 && !tagFiltered {
		query += fmt.Sprintf(" LIMIT %d", sel.Limit)
	}

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("slogexsql: find: %w", err)
	}
	defer rows.Close()

	var out []slogex.LogRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		if tagFiltered && !sel.Matches(rec) {
			continue
		}
		out = append(out, rec)
		if sel.Limit > 0 && len(out) == sel.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("slogexsql: find: %w", err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (slogex.LogRecord, error) {
	var (
		rec   slogex.LogRecord
		ts    int64
		level string
		tags  string
	)
	err := rows.Scan(&rec.ID, &rec.Message, &ts, &rec.Verbosity, &level, &tags,
		&rec.CallSite, &rec.StackTrace, &rec.UserID, &rec.ConnectionID,
		&rec.ClientAddress, &rec.ForwardedFor, &rec.TraceID)
	if err != nil {
		return rec, fmt.Errorf("slogexsql: scan: %w", err)
	}
	rec.Timestamp = time.Unix(0, ts).UTC()
	rec.Level = slogex.Level(level)
	if err := json.Unmarshal([]byte(tags), &rec.Tags); err != nil {
		return rec, fmt.Errorf("slogexsql: decode tags: %w", err)
	}
	if len(rec.Tags) == 0 {
		rec.Tags = nil
	}
	return rec, nil
}

func nonNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

// Close stops the sweeper. It does not close the database.
func (b *Backend) Close() error {
	b.stopped.Do(func() {
		close(b.done)
		b.mu.Lock()
		if b.ticker != nil {
			b.ticker.Stop()
		}
		b.mu.Unlock()
	})
	return nil
}
