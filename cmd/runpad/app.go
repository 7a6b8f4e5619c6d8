package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/codefionn/runpad/internal/config"
	"github.com/codefionn/runpad/internal/lockfile"
	"github.com/codefionn/runpad/internal/logger"
	"github.com/codefionn/runpad/internal/metrics"
	"github.com/codefionn/runpad/internal/workspace"
)

// app holds the workspace shared by subcommands.
type app struct {
	cfg     *config.Config
	ws      *workspace.Workspace
	drafts  *workspace.Drafts
	lock    *lockfile.Lock
	metrics *http.Server
}

func openApp(c *config.Config) *app {
	a := &app{cfg: c}

	var remote workspace.Remote
	if c.WorkspaceURL != "" {
		remote = workspace.NewRemoteClient(workspace.RemoteConfig{
			BaseURL:    c.WorkspaceURL,
			Timeout:    c.RemoteTimeout(),
			MaxRetries: c.RemoteRetries,
		})
	}

	store := workspace.NewStore()
	if c.DraftsPath != "" {
		a.openDrafts(c.DraftsPath, store)
	}
	a.ws = workspace.New(store, remote)

	if c.MetricsAddr != "" {
		a.startMetrics(c.MetricsAddr)
	}
	return a
}

// openDrafts attaches the drafts database to store. Only one process may own
// the database; later processes run without drafts.
func (a *app) openDrafts(path string, store *workspace.Store) {
	lock := lockfile.ForFile(path)
	if err := lock.Acquire(); err != nil {
		logger.Warn("Drafts disabled: %v", err)
		return
	}
	d, err := workspace.OpenDrafts(path)
	if err == nil {
		if err = d.Attach(store); err != nil {
			d.Close()
		}
	}
	if err != nil {
		logger.Warn("Drafts disabled: %v", err)
		lock.Release()
		return
	}
	a.drafts = d
	a.lock = lock
}

func (a *app) startMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metrics = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          logger.StdLogger(logger.Global().WithPrefix("metrics"), slog.LevelWarn),
	}
	go func() {
		logger.Info("Metrics listening on %s", addr)
		if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("Metrics server stopped: %v", err)
		}
	}()
}

func (a *app) close() {
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		a.metrics.Shutdown(ctx)
		cancel()
	}
	if a.drafts != nil {
		if err := a.drafts.Close(); err != nil {
			logger.Warn("Closing drafts: %v", err)
		}
	}
	if a.lock != nil {
		a.lock.Release()
	}
}
