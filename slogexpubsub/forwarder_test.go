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
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/benbjohnson/clock"
	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/pjscruggs/slogex"
)

// fakePublisher records published messages and can block or fail on demand.
type fakePublisher struct {
	mu      sync.Mutex
	msgs    []*pubsub.Message
	err     error
	release chan struct{}
}

// Publish stores msg after waiting for release when it is set.
func (p *fakePublisher) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	if p.release != nil {
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.msgs = append(p.msgs, msg)
	return "id", nil
}

// Messages returns a snapshot of published messages.
func (p *fakePublisher) Messages() []*pubsub.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*pubsub.Message(nil), p.msgs...)
}

// testSpanContext returns a sampled span context with fixed identifiers.
func testSpanContext(t *testing.T) trace.SpanContext {
	t.Helper()
	traceID, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	if err != nil {
		t.Fatalf("TraceIDFromHex() returned %v", err)
	}
	spanID, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	if err != nil {
		t.Fatalf("SpanIDFromHex() returned %v", err)
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	})
}

// TestForwarderPublishesEnvelope encodes a call and round-trips it through Decode.
func TestForwarderPublishesEnvelope(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	mock := clock.NewMock()
	fwd := New(pub, WithClock(mock), WithPropagators(propagation.TraceContext{}))

	sc := testSpanContext(t)
	ctx := trace.ContextWithSpanContext(context.Background(), sc)
	err := fwd.Handle(ctx, slogex.CallOptions{
		Level:     slogex.LevelWarn,
		Verbosity: 2,
		Tags:      []string{"billing", "card"},
		Args:      []any{"declined", 42},
	})
	if err != nil {
		t.Fatalf("Handle() returned %v", err)
	}
	if err := fwd.Close(); err != nil {
		t.Fatalf("Close() returned %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	msg := msgs[0]
	if got := msg.Attributes[AttrLevel]; got != "warn" {
		t.Fatalf("level attribute = %q, want warn", got)
	}
	if got := msg.Attributes[AttrTags]; got != "billing,card" {
		t.Fatalf("tags attribute = %q, want billing,card", got)
	}
	if msg.Attributes["traceparent"] == "" {
		t.Fatalf("attributes = %v, want traceparent", msg.Attributes)
	}

	decodedCtx, env, err := Decode(context.Background(), msg, WithPropagators(propagation.TraceContext{}))
	if err != nil {
		t.Fatalf("Decode() returned %v", err)
	}
	want := Envelope{
		Level:     slogex.LevelWarn,
		Verbosity: 2,
		Tags:      []string{"billing", "card"},
		Message:   `["declined",42]`,
		Timestamp: mock.Now().UTC(),
		TraceID:   sc.TraceID().String(),
	}
	if diff := cmp.Diff(want, env); diff != "" {
		t.Fatalf("Decode() envelope mismatch (-want +got):\n%s", diff)
	}
	args, err := env.Args()
	if err != nil {
		t.Fatalf("Args() returned %v", err)
	}
	if diff := cmp.Diff([]any{"declined", float64(42)}, args); diff != "" {
		t.Fatalf("Args() mismatch (-want +got):\n%s", diff)
	}
	if got := trace.SpanContextFromContext(decodedCtx).TraceID(); got != sc.TraceID() {
		t.Fatalf("decoded trace = %s, want %s", got, sc.TraceID())
	}
	if fwd.Published() != 1 || fwd.Dropped() != 0 || fwd.Failed() != 0 {
		t.Fatalf("counters = %d/%d/%d, want 1/0/0", fwd.Published(), fwd.Dropped(), fwd.Failed())
	}
}

// TestForwarderFilters forwards only calls that pass every configured filter.
func TestForwarderFilters(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	fwd := New(pub,
		WithLevels(slogex.LevelWarn, slogex.LevelError),
		WithAnyTag("billing"),
		WithMaxVerbosity(3),
	)

	calls := []slogex.CallOptions{
		{Level: slogex.LevelInfo, Tags: []string{"billing"}},
		{Level: slogex.LevelWarn, Tags: []string{"other"}},
		{Level: slogex.LevelError, Verbosity: 4, Tags: []string{"billing"}},
		{Level: slogex.LevelError, Verbosity: 3, Tags: []string{"billing"}, Args: []any{"kept"}},
	}
	for _, opts := range calls {
		if err := fwd.Handle(context.Background(), opts); err != nil {
			t.Fatalf("Handle() returned %v", err)
		}
	}
	if err := fwd.Close(); err != nil {
		t.Fatalf("Close() returned %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if _, ok := msgs[0].Attributes["traceparent"]; ok {
		t.Fatalf("attributes = %v, want no trace without a span", msgs[0].Attributes)
	}
	_, env, err := Decode(context.Background(), msgs[0])
	if err != nil || env.Message != `["kept"]` {
		t.Fatalf("Decode() = %+v, %v; want kept message", env, err)
	}
}

// TestForwarderDropNewest discards calls that arrive while the queue is full.
func TestForwarderDropNewest(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{release: make(chan struct{})}
	var mu sync.Mutex
	var dropped []string
	fwd := New(pub,
		WithQueueSize(1),
		WithDropMode(DropModeDropNewest),
		WithOnDrop(func(env Envelope) {
			mu.Lock()
			dropped = append(dropped, env.Message)
			mu.Unlock()
		}),
	)

	// The first call is taken by the worker, which blocks in Publish; the
	// second fills the queue.
	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo, Args: []any{1}})
	deadline := time.Now().Add(2 * time.Second)
	for len(fwd.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker did not take the first call")
		}
		time.Sleep(time.Millisecond)
	}
	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo, Args: []any{2}})
	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo, Args: []any{3}})

	close(pub.release)
	if err := fwd.Close(); err != nil {
		t.Fatalf("Close() returned %v", err)
	}

	if fwd.Published() != 2 || fwd.Dropped() != 1 {
		t.Fatalf("published/dropped = %d/%d, want 2/1", fwd.Published(), fwd.Dropped())
	}
	mu.Lock()
	defer mu.Unlock()
	if diff := cmp.Diff([]string{"[3]"}, dropped); diff != "" {
		t.Fatalf("dropped mismatch (-want +got):\n%s", diff)
	}
}

// TestForwarderDropOldest evicts the queued call to admit the newest.
func TestForwarderDropOldest(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{release: make(chan struct{})}
	fwd := New(pub, WithQueueSize(1), WithDropMode(DropModeDropOldest))

	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo, Args: []any{1}})
	deadline := time.Now().Add(2 * time.Second)
	for len(fwd.queue) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("worker did not take the first call")
		}
		time.Sleep(time.Millisecond)
	}
	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo, Args: []any{2}})
	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo, Args: []any{3}})

	close(pub.release)
	if err := fwd.Close(); err != nil {
		t.Fatalf("Close() returned %v", err)
	}

	var got []string
	for _, msg := range pub.Messages() {
		_, env, err := Decode(context.Background(), msg)
		if err != nil {
			t.Fatalf("Decode() returned %v", err)
		}
		got = append(got, env.Message)
	}
	if diff := cmp.Diff([]string{"[1]", "[3]"}, got); diff != "" {
		t.Fatalf("published mismatch (-want +got):\n%s", diff)
	}
}

// TestForwarderCountsFailures logs publish errors and counts them.
func TestForwarderCountsFailures(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	pub := &fakePublisher{err: errors.New("unavailable")}
	fwd := New(pub, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelError})
	if err := fwd.Close(); err != nil {
		t.Fatalf("Close() returned %v", err)
	}
	if fwd.Failed() != 1 || fwd.Published() != 0 {
		t.Fatalf("failed/published = %d/%d, want 1/0", fwd.Failed(), fwd.Published())
	}
	if !bytes.Contains(buf.Bytes(), []byte("publish failed")) {
		t.Fatalf("logger output = %q, want publish failure", buf.String())
	}
}

// TestForwarderFlushTimeout returns ErrFlushTimeout when publishing stalls.
func TestForwarderFlushTimeout(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{release: make(chan struct{})}
	t.Cleanup(func() { close(pub.release) })
	fwd := New(pub, WithFlushTimeout(10*time.Millisecond))

	_ = fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo})
	if err := fwd.Close(); !errors.Is(err, ErrFlushTimeout) {
		t.Fatalf("Close() = %v, want ErrFlushTimeout", err)
	}
	if err := fwd.Close(); !errors.Is(err, ErrFlushTimeout) {
		t.Fatalf("second Close() = %v, want the same result", err)
	}
}

// TestForwarderDropsAfterClose counts calls made after Close as dropped.
func TestForwarderDropsAfterClose(t *testing.T) {
	t.Parallel()

	pub := &fakePublisher{}
	fwd := New(pub)
	if err := fwd.Close(); err != nil {
		t.Fatalf("Close() returned %v", err)
	}
	if err := fwd.Handle(context.Background(), slogex.CallOptions{Level: slogex.LevelInfo}); err != nil {
		t.Fatalf("Handle() after Close returned %v", err)
	}
	if fwd.Dropped() != 1 {
		t.Fatalf("Dropped() = %d, want 1", fwd.Dropped())
	}
}

// TestForwarderAsPipelineHandler forwards engine calls registered as a handler.
func TestForwarderAsPipelineHandler(t *testing.T) {
	t.Parallel()

	engine, err := slogex.New(
		slogex.WithMode(slogex.ModeProduction),
		slogex.WithSide(slogex.SideClient),
		slogex.WithDisplayHandler(slog.DiscardHandler),
		slogex.WithInternalLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		t.Fatalf("New() returned %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	pub := &fakePublisher{}
	fwd := New(pub, WithLevels(slogex.LevelError))
	if err := engine.RegisterHandler(fwd.Handle); err != nil {
		t.Fatalf("RegisterHandler() returned %v", err)
	}

	_ = engine.Info(0, "ignored")
	_ = engine.Error(slogex.Tags("db"), "connection lost")
	if err := fwd.Close(); err != nil {
		t.Fatalf("Close() returned %v", err)
	}

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	_, env, err := Decode(context.Background(), msgs[0])
	if err != nil {
		t.Fatalf("Decode() returned %v", err)
	}
	if env.Level != slogex.LevelError || env.Message != `["connection lost"]` {
		t.Fatalf("envelope = %+v, want the error call", env)
	}
	if diff := cmp.Diff([]string{"db"}, env.Tags); diff != "" {
		t.Fatalf("tags mismatch (-want +got):\n%s", diff)
	}
}

// TestWithEnvOverlaysQueueSettings reads the SLOGEX_PUBSUB_* variables last.
func TestWithEnvOverlaysQueueSettings(t *testing.T) {
	t.Setenv(envQueueSize, "7")
	t.Setenv(envWorkers, "3")
	t.Setenv(envDropMode, "drop_oldest")
	t.Setenv(envFlushTimeout, "250ms")

	cfg := applyOptions([]Option{WithEnv(), WithQueueSize(2), WithWorkerCount(1)})
	if cfg.queueSize != 7 || cfg.workers != 3 || cfg.dropMode != DropModeDropOldest || cfg.flushTimeout != 250*time.Millisecond {
		t.Fatalf("config = %+v, want env values", *cfg)
	}
}

// TestWithEnvIgnoresInvalidValues keeps option values when env values do not parse.
func TestWithEnvIgnoresInvalidValues(t *testing.T) {
	t.Setenv(envQueueSize, "many")
	t.Setenv(envDropMode, "sometimes")

	cfg := applyOptions([]Option{WithQueueSize(5), WithDropMode(DropModeDropNewest), WithEnv()})
	if cfg.queueSize != 5 || cfg.dropMode != DropModeDropNewest {
		t.Fatalf("config = %+v, want option values", *cfg)
	}
}

// TestDecodeRejectsBadInput reports nil and malformed messages.
func TestDecodeRejectsBadInput(t *testing.T) {
	t.Parallel()

	if _, _, err := Decode(context.Background(), nil); err == nil {
		t.Fatal("Decode(nil) returned nil error")
	}
	if _, _, err := Decode(context.Background(), &pubsub.Message{Data: []byte("{")}); err == nil {
		t.Fatal("Decode(malformed) returned nil error")
	}
}
