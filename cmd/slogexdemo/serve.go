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

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pjscruggs/slogex"
	"github.com/pjscruggs/slogex/slogexhttp"
)

func newServeCommand(extra []slogex.Option) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a server-side engine whose records stream at /logs/{publication}",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, args, extra)
		},
	}
	addEngineFlags(cmd)
	cmd.Flags().String("addr", ":8080", "listen address")
	cmd.Flags().Float64("ttl-hours", slogex.DefaultHoursToLive, "hours durable records are kept")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string, extra []slogex.Option) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts, cleanup, err := engineOptions(cfg, slogex.SideServer, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer cleanup()

	engine, err := slogex.New(append(opts, extra...)...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}
	defer engine.Close()

	backend := slogex.NewMemoryBackend(slogex.WithMemoryClock(engine.Clock()))
	defer backend.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := engine.StoreServerMessages(ctx, slogex.DurableConfig{
		Backend:      backend,
		HoursToLive:  cfg.TTLHours,
		Publications: demoPublications(),
	}); err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           newServeMux(engine),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	reportLogError(cmd, engine.Info(0, "listening", cfg.Addr))

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// demoPublications exposes every record and a view of errors only.
func demoPublications() []slogex.Publication {
	return []slogex.Publication{
		slogex.DefaultPublication(),
		{
			Name:     "errors",
			Selector: slogex.Selector{Levels: []slogex.Level{slogex.LevelError}},
		},
	}
}

// newServeMux routes log submissions and publication streams through the
// request middleware.
func newServeMux(engine *slogex.Engine) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /logs/{publication}", slogexhttp.SubscriptionHandler(engine))
	mux.HandleFunc("POST /log", handleLog)
	return slogexhttp.Middleware(engine, slogexhttp.WithIdentity(func(r *http.Request) string {
		return r.Header.Get("X-User")
	}))(mux)
}

// handleLog records the "msg" query value at the "level" query value.
func handleLog(w http.ResponseWriter, r *http.Request) {
	engine := slogex.FromContext(r.Context())
	if engine == nil {
		http.Error(w, "engine unavailable", http.StatusServiceUnavailable)
		return
	}
	level := slogex.LevelInfo
	if raw := r.URL.Query().Get("level"); raw != "" {
		parsed, err := slogex.ParseLevel(raw)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		level = parsed
	}
	if err := engine.LogAt(r.Context(), level, 0, r.URL.Query().Get("msg")); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}
