// Copyright 2025 Tom Barlow
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

// Command workflowd runs the workflow conductor: the HTTP surface (spec
// §6) and the Execution Loop (spec §4.10) behind one process.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/bvbrc/workflow-conductor/internal/config"
	"github.com/bvbrc/workflow-conductor/internal/executor"
	"github.com/bvbrc/workflow-conductor/internal/gateway"
	"github.com/bvbrc/workflow-conductor/internal/grouphandler"
	"github.com/bvbrc/workflow-conductor/internal/httpapi"
	"github.com/bvbrc/workflow-conductor/internal/log"
	"github.com/bvbrc/workflow-conductor/internal/manager"
	"github.com/bvbrc/workflow-conductor/internal/store"
	"github.com/bvbrc/workflow-conductor/internal/validators"
	"github.com/bvbrc/workflow-conductor/internal/workspace"
)

// Version information, injected via ldflags at build time.
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to YAML config file")
		host        = flag.String("host", "", "Override the API bind host")
		port        = flag.Int("port", 0, "Override the API bind port")
		logLevel    = flag.String("log-level", "", "Override the log level (debug, info, warn, error)")
		showVersion = flag.Bool("version", false, "Show version information")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("workflowd %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	if *host != "" {
		cfg.API.Host = *host
	}
	if *port != 0 {
		cfg.API.Port = *port
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	logger := log.New(&log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		AddSource: cfg.Log.AddSource,
	})
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := store.Connect(ctx, cfg.MongoDB)
	if err != nil {
		logger.Error("failed to connect to MongoDB", slog.Any("error", err))
		os.Exit(1)
	}
	defer st.Close(context.Background())

	gw := gateway.New(cfg.Scheduler, logger)
	prober := workspace.NewHTTPProber(cfg.Scheduler.BaseURL, logger)
	gh := grouphandler.New(nil, st)

	mgr := manager.New(st, validators.Default, prober, cfg.Workspace, cfg.Log.Dir, cfg.Executor.MaxParallelStepsPerWorkflow, nil, logger)

	loop := executor.New(st, gw, gh, &log.Config{
		Level:     cfg.Log.Level,
		Format:    log.Format(cfg.Log.Format),
		AddSource: cfg.Log.AddSource,
	}, time.Duration(cfg.Executor.PollIntervalSeconds)*time.Second, cfg.Executor.AutoResume, logger)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Version:   version,
		Commit:    commit,
		BuildDate: buildDate,
	}, mgr, st, promhttp.Handler(), logger)

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting HTTP surface", slog.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	if err := loop.Start(ctx); err != nil {
		logger.Error("failed to start execution loop", slog.Any("error", err))
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
	case err := <-errCh:
		logger.Error("HTTP surface failed", slog.Any("error", err))
	}

	cancel()
	loop.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("error during HTTP shutdown", slog.Any("error", err))
	}
}
