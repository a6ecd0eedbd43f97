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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"cloud.google.com/go/pubsub/v2"

	"github.com/pjscruggs/slogex"
)

// Attribute keys set on every published message.
const (
	AttrLevel = "slogex.level"
	AttrTags  = "slogex.tags"
)

// ErrFlushTimeout indicates Close returned before the queue was drained.
var ErrFlushTimeout = errors.New("slogexpubsub: flush timeout")

// Publisher publishes one message and waits for the server-assigned id.
type Publisher interface {
	Publish(ctx context.Context, msg *pubsub.Message) (string, error)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(ctx context.Context, msg *pubsub.Message) (string, error)

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, msg *pubsub.Message) (string, error) {
	return f(ctx, msg)
}

// TopicPublisher adapts a Pub/Sub client publisher.
func TopicPublisher(p *pubsub.Publisher) Publisher {
	return PublisherFunc(func(ctx context.Context, msg *pubsub.Message) (string, error) {
		return p.Publish(ctx, msg).Get(ctx)
	})
}

// Envelope is the JSON body of a forwarded log call.
type Envelope struct {
	Level     slogex.Level `json:"ll"`
	Verbosity int          `json:"v"`
	Tags      []string     `json:"tags,omitempty"`
	Message   string       `json:"msg"`
	Timestamp time.Time    `json:"ts"`
	TraceID   string       `json:"tr,omitempty"`
}

// Args decodes the envelope's message back into its argument list.
func (e Envelope) Args() ([]any, error) {
	return slogex.Deserialize(e.Message)
}

type queued struct {
	ctx context.Context
	env Envelope
	msg *pubsub.Message
}

// Forwarder publishes log calls to Pub/Sub. Register Handle as a slogex
// pipeline handler.
type Forwarder struct {
	pub   Publisher
	cfg   *config
	queue chan queued
	wg    sync.WaitGroup

	closed    atomic.Bool
	closeOnce sync.Once
	closeErr  error

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New starts a forwarder publishing through pub.
func New(pub Publisher, opts ...Option) *Forwarder {
	cfg := applyOptions(opts)
	f := &Forwarder{
		pub:   pub,
		cfg:   cfg,
		queue: make(chan queued, cfg.queueSize),
	}
	f.wg.Add(cfg.workers)
	for range cfg.workers {
		go f.work()
	}
	return f
}

// Handle is a slogex.LogHandler. It never returns an error for calls it
// filters out or drops; publish failures are reported asynchronously.
func (f *Forwarder) Handle(ctx context.Context, opts slogex.CallOptions) error {
	if !f.accepts(opts) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	env := Envelope{
		Level:     opts.Level,
		Verbosity: opts.Verbosity,
		Tags:      slices.Clone(opts.Tags),
		Message:   slogex.Serialize(opts.Args),
		Timestamp: f.cfg.clock.Now().UTC(),
		TraceID:   slogex.TraceID(ctx),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("slogexpubsub: encode envelope: %w", err)
	}
	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrLevel: string(env.Level),
		},
	}
	if len(env.Tags) > 0 {
		msg.Attributes[AttrTags] = strings.Join(env.Tags, ",")
	}
	if f.cfg.propagateTrace {
		msg.Attributes = injectAttributes(ctx, msg.Attributes, f.cfg.propagators)
	}

	item := queued{ctx: context.WithoutCancel(ctx), env: env, msg: msg}
	if f.closed.Load() {
		f.drop(item)
		return nil
	}
	f.enqueue(item)
	return nil
}

func (f *Forwarder) accepts(opts slogex.CallOptions) bool {
	if len(f.cfg.levels) > 0 && !slices.Contains(f.cfg.levels, opts.Level) {
		return false
	}
	if f.cfg.maxVerbosity != nil && opts.Verbosity > *f.cfg.maxVerbosity {
		return false
	}
	if len(f.cfg.anyTags) > 0 && !slices.ContainsFunc(f.cfg.anyTags, func(t string) bool {
		return slices.Contains(opts.Tags, t)
	}) {
		return false
	}
	return true
}

// enqueue routes an item into the queue respecting the drop mode and
// recovers from a queue closed concurrently.
func (f *Forwarder) enqueue(item queued) {
	defer func() {
		if recover() != nil {
			f.drop(item)
		}
	}()

	switch f.cfg.dropMode {
	case DropModeDropNewest:
		select {
		case f.queue <- item:
		default:
			f.drop(item)
		}
	case DropModeDropOldest:
		select {
		case f.queue <- item:
		default:
			select {
			case old := <-f.queue:
				f.drop(old)
			default:
			}
			select {
			case f.queue <- item:
			default:
				f.drop(item)
			}
		}
	default:
		f.queue <- item
	}
}

func (f *Forwarder) drop(item queued) {
	f.dropped.Add(1)
	if f.cfg.onDrop != nil {
		f.cfg.onDrop(item.env)
	}
}

func (f *Forwarder) work() {
	defer f.wg.Done()
	for item := range f.queue {
		f.publish(item)
	}
}

func (f *Forwarder) publish(item queued) {
	defer func() {
		if r := recover(); r != nil {
			f.failed.Add(1)
			f.cfg.logger.Error("slogexpubsub: recovered panic from publisher", slog.Any("panic", r))
		}
	}()
	if _, err := f.pub.Publish(item.ctx, item.msg); err != nil {
		f.failed.Add(1)
		f.cfg.logger.Warn("slogexpubsub: publish failed",
			slog.String("level", string(item.env.Level)),
			slog.Any("error", err),
		)
		return
	}
	f.published.Add(1)
}

// Published returns how many envelopes were published successfully.
func (f *Forwarder) Published() int64 { return f.published.Load() }

// Dropped returns how many envelopes were discarded by the drop mode or
// after Close.
func (f *Forwarder) Dropped() int64 { return f.dropped.Load() }

// Failed returns how many publish attempts returned an error.
func (f *Forwarder) Failed() int64 { return f.failed.Load() }

// Close stops accepting calls and waits for queued envelopes to publish,
// up to the flush timeout when one is set.
func (f *Forwarder) Close() error {
	f.closeOnce.Do(func() {
		if f.closed.CompareAndSwap(false, true) {
			close(f.queue)
		}

		done := make(chan struct{})
		go func() {
			f.wg.Wait()
			close(done)
		}()

		if f.cfg.flushTimeout > 0 {
			select {
			case <-done:
			case <-time.After(f.cfg.flushTimeout):
				f.closeErr = ErrFlushTimeout
			}
		} else {
			<-done
		}
	})
	return f.closeErr
}

// Decode parses a forwarded message and returns ctx extended with the trace
// context found in its attributes. Only WithPropagators is consulted from
// opts.
func Decode(ctx context.Context, msg *pubsub.Message, opts ...Option) (context.Context, Envelope, error) {
	if msg == nil {
		return ctx, Envelope{}, errors.New("slogexpubsub: nil message")
	}
	var env Envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		return ctx, Envelope{}, fmt.Errorf("slogexpubsub: decode envelope: %w", err)
	}
	return extractAttributes(ctx, msg.Attributes, applyOptions(opts).propagators), env, nil
}
