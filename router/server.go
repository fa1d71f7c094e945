// Copyright 2025 CascadeFlow
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

package router

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"cascadeflow/platform/audit"
	"cascadeflow/platform/shared/logger"
)

// Run wires the Pipeline to an HTTP surface and blocks until the process
// receives a termination signal, at which point it shuts down gracefully.
func Run() error {
	log := logger.New("router")
	cfg := LoadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := BuildRegistry(cfg, nil)
	if err != nil {
		log.Error("", "failed to initialize registry backend", map[string]interface{}{"error": err.Error()})
		return err
	}
	defer store.Close()

	adapters := BuildAdapters(ctx, cfg, nil)
	defer func() {
		for _, a := range adapters {
			_ = a.Close()
		}
	}()

	healthCache := BuildHealthCache(cfg)

	archiver, err := audit.New(ctx, cfg.AuditArchiveBucket, nil)
	if err != nil {
		log.Error("", "failed to initialize audit archiver, archival disabled", map[string]interface{}{"error": err.Error()})
	}

	pipeline := NewPipeline(store, adapters, archiver, nil)
	server := NewServer(pipeline, store, adapters, healthCache, log)

	mr := mux.NewRouter()
	mr.HandleFunc("/health", server.HandleHealth).Methods("GET")
	mr.HandleFunc("/run", server.HandleRun).Methods("POST")
	mr.HandleFunc("/route", server.HandleRoute).Methods("POST")
	mr.HandleFunc("/execute", server.HandleExecute).Methods("POST")
	mr.HandleFunc("/api/v1/providers/status", server.HandleProviderStatus).Methods("GET")

	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	handler := recoverMiddleware(log, corsHandler.Handler(mr))

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 150 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("", "cascadeflow router listening", map[string]interface{}{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("", "shutdown signal received", nil)
	case err := <-errCh:
		log.Error("", "http server failed", map[string]interface{}{"error": err.Error()})
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
