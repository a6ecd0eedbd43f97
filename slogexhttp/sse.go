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

package slogexhttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pjscruggs/slogex"
)

// SubscriptionHandler streams a publication of engine as server-sent events.
// Each record is sent as a "record" event with the JSON-encoded LogRecord as
// data. A "ready" event separates the initial records from live updates.
//
// Unknown publications answer 404 and denied subscribers 403. The handler
// resolves the engine from the request context (see Middleware) when engine
// is nil.
func SubscriptionHandler(engine *slogex.Engine, opts ...Option) http.Handler {
	cfg := applyOptions(opts)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e := engine
		if e == nil {
			e = slogex.FromContext(r.Context())
		}
		if e == nil {
			http.Error(w, "log engine unavailable", http.StatusServiceUnavailable)
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		name := publicationName(r, cfg.publicationParam)
		sub, err := e.Subscribe(r.Context(), name)
		if errors.Is(err, slogex.ErrUnknownPublication) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer sub.Close()
		if sub.Denied() {
			http.Error(w, "subscription denied", http.StatusForbidden)
			return
		}

		h := w.Header()
		h.Set("Content-Type", "text/event-stream")
		h.Set("Cache-Control", "no-cache")
		h.Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		<-sub.Ready()
		for _, rec := range sub.Initial() {
			if err := writeRecord(w, rec); err != nil {
				return
			}
		}
		if _, err := fmt.Fprintf(w, "event: ready\ndata: %d\n\n", len(sub.Initial())); err != nil {
			return
		}
		flusher.Flush()

		for rec := range sub.Updates() {
			if err := writeRecord(w, rec); err != nil {
				return
			}
			flusher.Flush()
		}
	})
}

func publicationName(r *http.Request, param string) string {
	if name := strings.TrimSpace(r.PathValue(param)); name != "" {
		return name
	}
	if name := strings.TrimSpace(r.URL.Query().Get(param)); name != "" {
		return name
	}
	return slogex.DefaultPublicationName
}

func writeRecord(w http.ResponseWriter, rec slogex.LogRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "id: %s\nevent: record\ndata: %s\n\n", rec.ID, data)
	return err
}
