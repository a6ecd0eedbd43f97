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
	"slices"
)

// LogHandler is an additional handler run on every log call, whether or not
// the call was displayed or recorded. Handlers run synchronously in
// registration order. A returned error stops the remaining handlers and is
// returned to the caller of the level method; panics are not recovered.
type LogHandler func(ctx context.Context, opts CallOptions) error

// RegisterHandler appends h to the pipeline.
func (e *Engine) RegisterHandler(h LogHandler) error {
	if h == nil {
		return ErrInvalidHandler
	}
	e.handlersMu.Lock()
	e.handlers = append(e.handlers, h)
	e.handlersMu.Unlock()
	return nil
}

func (e *Engine) runHandlers(ctx context.Context, opts CallOptions) error {
	e.handlersMu.RLock()
	handlers := slices.Clip(e.handlers)
	e.handlersMu.RUnlock()

	for i, h := range handlers {
		if err := h(ctx, opts); err != nil {
			return fmt.Errorf("slogex: handler %d: %w", i, err)
		}
	}
	return nil
}
