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
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
)

const (
	// DefaultPublicationName is the name used by DefaultPublication.
	DefaultPublicationName = "log"

	defaultUpdateBuffer = 64
)

// Publication describes a live, read-only view of durable records.
type Publication struct {
	Name     string
	Selector Selector
	// Authorize gates each subscriber. A nil Authorize allows everyone.
	Authorize func(ctx context.Context) bool
	// BufferSize is the number of pending updates held per subscriber before
	// new ones are dropped. Zero means 64.
	BufferSize int
}

// DefaultPublication returns the "log" publication over every record.
func DefaultPublication() Publication {
	return Publication{Name: DefaultPublicationName}
}

type publication struct {
	Publication
	mu   sync.RWMutex
	subs *xsync.MapOf[uint64, *Subscription]
}

type publicationHub struct {
	backend Backend
	pubs    *xsync.MapOf[string, *publication]
	nextID  atomic.Uint64
	logger  *slog.Logger
}

func newPublicationHub(backend Backend, pubs []Publication, logger *slog.Logger) (*publicationHub, error) {
	hub := &publicationHub{
		backend: backend,
		pubs:    xsync.NewMapOf[string, *publication](),
		logger:  logger,
	}
	for i, p := range pubs {
		name := strings.TrimSpace(p.Name)
		if name == "" {
			continue
		}
		if p.BufferSize < 0 {
			return nil, fmt.Errorf("%w: publication %d (%q) has negative buffer size", ErrInvalidPublication, i, name)
		}
		p.Name = name
		if _, loaded := hub.pubs.LoadOrStore(name, &publication{
			Publication: p,
			subs:        xsync.NewMapOf[uint64, *Subscription](),
		}); loaded {
			return nil, fmt.Errorf("%w: duplicate publication name %q", ErrInvalidPublication, name)
		}
	}
	return hub, nil
}

func (h *publicationHub) len() int {
	return h.pubs.Size()
}

// broadcast delivers rec to every subscriber whose selector matches.
func (h *publicationHub) broadcast(rec LogRecord) {
	h.pubs.Range(func(_ string, p *publication) bool {
		if !p.Selector.Matches(rec) {
			return true
		}
		p.mu.RLock()
		p.subs.Range(func(_ uint64, sub *Subscription) bool {
			if !sub.deliver(rec) {
				h.logger.Debug("subscriber update dropped", slog.String("publication", p.Name))
			}
			return true
		})
		p.mu.RUnlock()
		return true
	})
}

// Subscription is one consumer of a publication.
type Subscription struct {
	name    string
	denied  bool
	initial []LogRecord
	seen    map[string]struct{}
	ready   chan struct{}
	updates chan LogRecord
	dropped atomic.Int64

	mu        sync.Mutex
	closed    bool
	closeOnce sync.Once
	detach    func()
	stop      func() bool
}

// Subscribe opens the named publication. The subscription ends when ctx is
// done or Close is called. Subscribers rejected by the publication's Authorize
// receive a subscription that is already ready, reports Denied, and carries no
// data.
func (e *Engine) Subscribe(ctx context.Context, name string) (*Subscription, error) {
	d := e.durableSide()
	if d == nil {
		return nil, fmt.Errorf("%w: %q (durable store not configured)", ErrUnknownPublication, name)
	}
	p, ok := d.hub.pubs.Load(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPublication, name)
	}

	if p.Authorize != nil && !p.Authorize(ctx) {
		sub := &Subscription{
			name:    name,
			denied:  true,
			ready:   make(chan struct{}),
			updates: make(chan LogRecord),
			closed:  true,
		}
		close(sub.ready)
		close(sub.updates)
		return sub, nil
	}

	size := p.BufferSize
	if size == 0 {
		size = defaultUpdateBuffer
	}
	sub := &Subscription{
		name:    name,
		ready:   make(chan struct{}),
		updates: make(chan LogRecord, size),
	}

	// Holding the write lock keeps broadcasts out until the initial snapshot
	// and the registration are both in place.
	p.mu.Lock()
	initial, err := d.hub.backend.Find(ctx, p.Selector)
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("slogex: load publication %q: %w", name, err)
	}
	sub.initial = initial
	sub.seen = make(map[string]struct{}, len(initial))
	for _, r := range initial {
		sub.seen[r.ID] = struct{}{}
	}
	id := d.hub.nextID.Add(1)
	p.subs.Store(id, sub)
	p.mu.Unlock()

	sub.detach = func() { p.subs.Delete(id) }
	sub.stop = context.AfterFunc(ctx, sub.shutdown)
	close(sub.ready)
	return sub, nil
}

// deliver hands rec to the subscriber without blocking. It reports false when
// the update had to be dropped.
func (s *Subscription) deliver(rec LogRecord) bool {
	if _, ok := s.seen[rec.ID]; ok {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	select {
	case s.updates <- rec.clone():
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// Name returns the publication name.
func (s *Subscription) Name() string { return s.name }

// Denied reports whether the subscriber was rejected.
func (s *Subscription) Denied() bool { return s.denied }

// Ready is closed once Initial is available. For denied subscribers it is
// closed immediately.
func (s *Subscription) Ready() <-chan struct{} { return s.ready }

// Initial returns the records that matched when the subscription opened.
func (s *Subscription) Initial() []LogRecord {
	out := make([]LogRecord, len(s.initial))
	for i, r := range s.initial {
		out[i] = r.clone()
	}
	return out
}

// Updates streams matching records inserted after the subscription opened.
// The channel is closed when the subscription ends.
func (s *Subscription) Updates() <-chan LogRecord { return s.updates }

// Dropped returns how many updates were discarded because the consumer fell
// behind.
func (s *Subscription) Dropped() int64 { return s.dropped.Load() }

// Close ends the subscription. It is safe to call more than once.
func (s *Subscription) Close() error {
	if s.stop != nil {
		s.stop()
	}
	s.shutdown()
	return nil
}

func (s *Subscription) shutdown() {
	s.closeOnce.Do(func() {
		if s.detach != nil {
			s.detach()
		}
		s.mu.Lock()
		if !s.closed {
			s.closed = true
			close(s.updates)
		}
		s.mu.Unlock()
	})
}
