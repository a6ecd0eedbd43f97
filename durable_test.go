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

package slogex_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"

	"github.com/pjscruggs/slogex"
)

// failingBackend rejects every insert.
type failingBackend struct {
	slogex.Backend
	err error
}

func (b failingBackend) Insert(context.Context, slogex.LogRecord) error { return b.err }

// indexFailBackend fails to create its expiry index.
type indexFailBackend struct {
	slogex.Backend
}

func (indexFailBackend) EnsureExpiryIndex(context.Context, time.Duration) error {
	return errors.New("index unavailable")
}

// newDurableEngine provisions a server engine over a memory backend.
func newDurableEngine(t *testing.T, cfg slogex.DurableConfig, opts ...slogex.Option) (*testEngine, *slogex.MemoryBackend) {
	t.Helper()
	e := newTestEngine(t, append([]slogex.Option{slogex.WithSide(slogex.SideServer)}, opts...)...)
	backend := slogex.NewMemoryBackend(slogex.WithMemoryClock(e.clock))
	if cfg.Backend == nil {
		cfg.Backend = backend
	}
	if err := e.StoreServerMessages(context.Background(), cfg); err != nil {
		t.Fatalf("StoreServerMessages() returned %v", err)
	}
	return e, backend
}

// findAll returns every record in b.
func findAll(t *testing.T, b slogex.Backend) []slogex.LogRecord {
	t.Helper()
	records, err := b.Find(context.Background(), slogex.Selector{})
	if err != nil {
		t.Fatalf("Find() returned %v", err)
	}
	return records
}

// TestServerEngineHasNoTransientStore keeps server records out of the window.
func TestServerEngineHasNoTransientStore(t *testing.T) {
	t.Parallel()

	e, backend := newDurableEngine(t, slogex.DurableConfig{})
	if e.Transient() != nil {
		t.Fatal("server engine created a transient store")
	}
	_ = e.Info(0, "server side")
	if n := backend.Len(); n != 1 {
		t.Fatalf("backend holds %d records, want 1", n)
	}
}

// TestDurableRecordOrigin stores the client address or the forwarded-for value.
func TestDurableRecordOrigin(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		inv    *slogex.Invocation
		wantCA string
		wantXF string
	}{
		{"direct peer", &slogex.Invocation{ClientAddress: "203.0.113.7", ForwardedFor: "198.51.100.1"}, "203.0.113.7", ""},
		{"loopback proxy", &slogex.Invocation{ClientAddress: "127.0.0.1", ForwardedFor: "198.51.100.1"}, "", "198.51.100.1"},
		{"ipv6 loopback", &slogex.Invocation{ClientAddress: "::1", ForwardedFor: "198.51.100.2"}, "", "198.51.100.2"},
		{"localhost name", &slogex.Invocation{ClientAddress: "localhost", ForwardedFor: "198.51.100.3"}, "", "198.51.100.3"},
		{"no invocation", nil, "", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			e, backend := newDurableEngine(t, slogex.DurableConfig{})
			ctx := context.Background()
			if tc.inv != nil {
				inv := *tc.inv
				inv.UserID = "u1"
				inv.ConnectionID = "c1"
				ctx = slogex.ContextWithInvocation(ctx, inv)
			}
			if err := e.InfoContext(ctx, 0, "origin"); err != nil {
				t.Fatalf("InfoContext() returned %v", err)
			}

			rec := findAll(t, backend)[0]
			if rec.ClientAddress != tc.wantCA || rec.ForwardedFor != tc.wantXF {
				t.Fatalf("origin = {ca:%q xf:%q}, want {ca:%q xf:%q}", rec.ClientAddress, rec.ForwardedFor, tc.wantCA, tc.wantXF)
			}
			if tc.inv != nil && (rec.UserID != "u1" || rec.ConnectionID != "c1") {
				t.Fatalf("identity = {uId:%q cId:%q}, want {u1 c1}", rec.UserID, rec.ConnectionID)
			}
		})
	}
}

// TestDurablePredicateGatesInserts persists only records the predicate accepts.
func TestDurablePredicateGatesInserts(t *testing.T) {
	t.Parallel()

	e, backend := newDurableEngine(t, slogex.DurableConfig{
		Predicate: func(r slogex.LogRecord) bool { return r.Level == slogex.LevelError },
	})
	_ = e.Info(0, "skipped")
	_ = e.Error(0, "kept")

	records := findAll(t, backend)
	if len(records) != 1 || records[0].Message != `["kept"]` {
		t.Fatalf("stored = %v, want only the error record", records)
	}
}

// TestStoreServerMessagesOnlyOnce keeps the first configuration.
func TestStoreServerMessagesOnlyOnce(t *testing.T) {
	t.Parallel()

	e, first := newDurableEngine(t, slogex.DurableConfig{})
	second := slogex.NewMemoryBackend()
	t.Cleanup(func() { _ = second.Close() })

	err := e.StoreServerMessages(context.Background(), slogex.DurableConfig{Backend: second})
	if !errors.Is(err, slogex.ErrDurableConfigured) {
		t.Fatalf("second StoreServerMessages() = %v, want ErrDurableConfigured", err)
	}
	_ = e.Warn(0, "goes to first")
	if first.Len() != 1 || second.Len() != 0 {
		t.Fatalf("first/second hold %d/%d records, want 1/0", first.Len(), second.Len())
	}
}

// TestStoreServerMessagesReportsSetupBeforeValidation classifies a repeated
// call as double setup even when its configuration is also invalid.
func TestStoreServerMessagesReportsSetupBeforeValidation(t *testing.T) {
	t.Parallel()

	e, _ := newDurableEngine(t, slogex.DurableConfig{})

	err := e.StoreServerMessages(context.Background(), slogex.DurableConfig{})
	if !errors.Is(err, slogex.ErrDurableConfigured) {
		t.Fatalf("StoreServerMessages(empty) after setup = %v, want ErrDurableConfigured", err)
	}
	if errors.Is(err, slogex.ErrInvalidBackend) {
		t.Fatalf("StoreServerMessages(empty) after setup = %v, want no backend validation error", err)
	}
}

// TestStoreServerMessagesValidates rejects bad configurations without provisioning.
func TestStoreServerMessagesValidates(t *testing.T) {
	t.Parallel()

	backend := slogex.NewMemoryBackend()
	t.Cleanup(func() { _ = backend.Close() })

	cases := []struct {
		name string
		cfg  slogex.DurableConfig
		want error
	}{
		{"nil backend", slogex.DurableConfig{}, slogex.ErrInvalidBackend},
		{"negative ttl", slogex.DurableConfig{Backend: backend, HoursToLive: -1}, slogex.ErrConfig},
		{"nan ttl", slogex.DurableConfig{Backend: backend, HoursToLive: math.NaN()}, slogex.ErrConfig},
		{"duplicate publication", slogex.DurableConfig{Backend: backend, Publications: []slogex.Publication{
			{Name: "a"}, {Name: " a "},
		}}, slogex.ErrInvalidPublication},
		{"negative buffer", slogex.DurableConfig{Backend: backend, Publications: []slogex.Publication{
			{Name: "a", BufferSize: -1},
		}}, slogex.ErrInvalidPublication},
	}
	for _, tc := range cases {
		e := newTestEngine(t)
		if err := e.StoreServerMessages(context.Background(), tc.cfg); !errors.Is(err, tc.want) {
			t.Errorf("%s: StoreServerMessages() = %v, want %v", tc.name, err, tc.want)
		}
		if err := e.StoreServerMessages(context.Background(), slogex.DurableConfig{Backend: backend}); err != nil {
			t.Errorf("%s: provisioning after a rejected config returned %v", tc.name, err)
		}
	}

	e := newTestEngine(t)
	if err := e.StoreServerMessages(context.Background(), slogex.DurableConfig{Backend: indexFailBackend{}}); err == nil {
		t.Fatal("StoreServerMessages() ignored an expiry index failure")
	}
}

// TestDurableInsertFailureStillRunsHandlers joins the insert error and keeps going.
func TestDurableInsertFailureStillRunsHandlers(t *testing.T) {
	t.Parallel()

	errInsert := errors.New("disk full")
	var handled bool
	e, _ := newDurableEngine(t,
		slogex.DurableConfig{Backend: failingBackend{Backend: slogex.NewMemoryBackend(), err: errInsert}},
		slogex.WithHandler(func(context.Context, slogex.CallOptions) error {
			handled = true
			return nil
		}),
	)

	if err := e.Error(0, "lost"); !errors.Is(err, errInsert) {
		t.Fatalf("Error() = %v, want wrapped insert error", err)
	}
	if !handled {
		t.Fatal("handler did not run after a durable insert failure")
	}
}

// TestMemoryBackendSweepsExpiredRecords expires records by timestamp.
func TestMemoryBackendSweepsExpiredRecords(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	backend := slogex.NewMemoryBackend(slogex.WithMemoryClock(mock), slogex.WithSweepInterval(time.Hour))
	t.Cleanup(func() { _ = backend.Close() })
	ctx := context.Background()

	if err := backend.EnsureExpiryIndex(ctx, 2*time.Hour); err != nil {
		t.Fatalf("EnsureExpiryIndex() returned %v", err)
	}
	_ = backend.Insert(ctx, slogex.LogRecord{ID: "old", Timestamp: mock.Now()})
	mock.Add(90 * time.Minute)
	_ = backend.Insert(ctx, slogex.LogRecord{ID: "new", Timestamp: mock.Now()})
	mock.Add(45 * time.Minute)

	backend.Sweep()
	if got := ids(findAll(t, backend)); !cmp.Equal(got, []string{"new"}) {
		t.Fatalf("records after sweep = %v, want [new]", got)
	}
}

// TestMemoryBackendFind applies selectors, ordering and limits.
func TestMemoryBackendFind(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	backend := slogex.NewMemoryBackend(slogex.WithMemoryClock(mock))
	ctx := context.Background()
	base := mock.Now()
	_ = backend.Insert(ctx, slogex.LogRecord{ID: "3", Timestamp: base.Add(3 * time.Second), Level: slogex.LevelError, Tags: []string{"db"}})
	_ = backend.Insert(ctx, slogex.LogRecord{ID: "1", Timestamp: base.Add(1 * time.Second), Level: slogex.LevelInfo, Tags: []string{"db", "slow"}})
	_ = backend.Insert(ctx, slogex.LogRecord{ID: "2", Timestamp: base.Add(2 * time.Second), Level: slogex.LevelError})

	cases := []struct {
		name string
		sel  slogex.Selector
		want []string
	}{
		{"all", slogex.Selector{}, []string{"1", "2", "3"}},
		{"levels", slogex.Selector{Levels: []slogex.Level{slogex.LevelError}}, []string{"2", "3"}},
		{"any tags", slogex.Selector{AnyTags: []string{"slow", "missing"}}, []string{"1"}},
		{"all tags", slogex.Selector{AllTags: []string{"db"}}, []string{"1", "3"}},
		{"since", slogex.Selector{Since: base.Add(2 * time.Second)}, []string{"2", "3"}},
		{"until", slogex.Selector{Until: base.Add(2 * time.Second)}, []string{"1", "2"}},
		{"limit", slogex.Selector{Limit: 2}, []string{"1", "2"}},
	}
	for _, tc := range cases {
		got, err := backend.Find(ctx, tc.sel)
		if err != nil {
			t.Fatalf("%s: Find() returned %v", tc.name, err)
		}
		if diff := cmp.Diff(tc.want, ids(got)); diff != "" {
			t.Errorf("%s: Find() mismatch (-want +got):\n%s", tc.name, diff)
		}
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if _, err := backend.Find(cancelled, slogex.Selector{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("Find(cancelled) = %v, want context.Canceled", err)
	}
}
