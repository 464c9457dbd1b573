// CLAUDE:SUMMARY Entry point for the eCabinet preview service — YAML/env config, SQLite or Postgres store, FS or GCS blobs, chi API, MCP over HTTP.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/hazyhaar/ecabinet/api"
	"github.com/hazyhaar/ecabinet/backend"
	"github.com/hazyhaar/ecabinet/bincache"
	"github.com/hazyhaar/ecabinet/blobstore"
	"github.com/hazyhaar/ecabinet/dbopen"
	"github.com/hazyhaar/ecabinet/docpipe"
	"github.com/hazyhaar/ecabinet/document"
	"github.com/hazyhaar/ecabinet/fetch"
	"github.com/hazyhaar/ecabinet/feed"
	"github.com/hazyhaar/ecabinet/kit"
	"github.com/hazyhaar/ecabinet/meeting"
	"github.com/hazyhaar/ecabinet/observability"
	"github.com/hazyhaar/ecabinet/pgstore"
	"github.com/hazyhaar/ecabinet/preview"
	"github.com/hazyhaar/ecabinet/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"
)

func main() {
	logger := newLogger(env("LOG_LEVEL", "info"))
	slog.SetDefault(logger)

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("ecabinet", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func run(ctx context.Context, cfg *Config, logger *slog.Logger) error {
	demo := document.NewDemoSet(document.DefaultDemoIDs...)
	if len(cfg.DemoIDs) > 0 {
		demo = document.NewDemoSet(cfg.DemoIDs...)
	}

	// Business events and request logs.
	eventsDB, err := dbopen.Open(cfg.EventsDB, dbopen.WithMkdirAll())
	if err != nil {
		return fmt.Errorf("open events db: %w", err)
	}
	defer eventsDB.Close()
	if err := observability.Init(eventsDB); err != nil {
		return fmt.Errorf("init events db: %w", err)
	}
	events := observability.NewEventLogger(eventsDB)

	// Local binary cache.
	cacheDB, err := dbopen.Open(cfg.CacheDB, dbopen.WithMkdirAll(), dbopen.ForCache())
	if err != nil {
		return fmt.Errorf("open cache db: %w", err)
	}
	defer cacheDB.Close()
	cacheCfg := cfg.Cache
	cacheCfg.Logger = logger
	cache, err := bincache.New(cacheDB, cacheCfg)
	if err != nil {
		return fmt.Errorf("cache: %w", err)
	}

	// Documents and meetings.
	st, changes, closeStore, err := openStore(ctx, cfg, demo, logger)
	if err != nil {
		return err
	}
	defer closeStore()
	if cfg.Seed {
		seeded, err := store.Seed(ctx, st)
		if err != nil {
			return err
		}
		if seeded {
			slog.Info("seeded sample documents and meetings")
		}
	}

	// Uploaded binaries.
	blobs, files, closeBlobs, err := openBlobs(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBlobs()

	docCfg := cfg.Docpipe
	docCfg.Logger = logger
	orch := preview.New(preview.Config{
		Cache:    cache,
		Fetcher:  fetch.New(cfg.Fetch),
		Pipeline: docpipe.New(docCfg),
		Demo:     demo,
		Events:   events,
		Logger:   logger,
	})
	defer func() {
		orch.Close()
		orch.Wait()
	}()

	meetings := meeting.New(meeting.Config{
		Store:   st,
		Blobs:   blobs,
		Uploads: orch.Uploads(),
		Cache:   cache,
		Events:  events,
		Logger:  logger,
	})

	var mcpSrv *mcp.Server
	if cfg.MCPEnabled {
		mcpSrv = mcp.NewServer(&mcp.Implementation{
			Name:    "ecabinet",
			Version: "1.0.0",
		}, nil)
		orch.RegisterMCP(mcpSrv, st)
	}

	srvAPI := api.New(api.Config{
		Store:          st,
		Preview:        orch,
		Meetings:       meetings,
		Activity:       events,
		Files:          files,
		MCP:            mcpSrv,
		RequestLog:     observability.RequestLogger(eventsDB, kit.GetTraceID),
		MaxUploadBytes: cfg.MaxUploadBytes(),
		UploadLimit:    cfg.UploadLimit,
		PreviewLimit:   cfg.PreviewLimit,
		Logger:         logger,
	})
	srvAPI.Limiter().StartGC(ctx.Done(), time.Minute)

	go evictDeleted(ctx, st, orch.Uploads(), cache, logger)
	go maintain(ctx, cfg, eventsDB, cache, changes, logger)
	if cfg.SessionIdle > 0 {
		go reapSessions(ctx, orch, cfg.SessionIdle, logger)
	}

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           srvAPI.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", cfg.Listen, "mcp", cfg.MCPEnabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errc:
		return fmt.Errorf("server: %w", err)
	}
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

// openStore picks Postgres when a database URL is configured, SQLite
// otherwise. The returned feed is nil for Postgres.
func openStore(ctx context.Context, cfg *Config, demo document.DemoSet, logger *slog.Logger) (backend.Store, *feed.Feed, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := pgstore.Connect(ctx, cfg.DatabaseURL, pgstore.Config{Demo: demo, Logger: logger})
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("store: postgres")
		return pg, nil, pg.Close, nil
	}
	db, err := dbopen.Open(cfg.DBPath, dbopen.WithMkdirAll())
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open store db: %w", err)
	}
	st, err := store.New(db, store.Config{Demo: demo, FeedInterval: cfg.FeedInterval, Logger: logger})
	if err != nil {
		db.Close()
		return nil, nil, nil, err
	}
	slog.Info("store: sqlite", "path", cfg.DBPath)
	return st, st.Feed(), func() { db.Close() }, nil
}

// openBlobs picks GCS when a bucket is configured, the local filesystem
// otherwise. files is the handler to mount under /files, nil for GCS.
func openBlobs(ctx context.Context, cfg *Config) (backend.Blobs, http.Handler, func(), error) {
	if cfg.GCSBucket != "" {
		g, err := blobstore.NewGCS(ctx, cfg.GCSBucket)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("blobs: gcs", "bucket", cfg.GCSBucket)
		return g, nil, closer(g), nil
	}
	fs, err := blobstore.NewFS(cfg.FilesDir, strings.TrimSuffix(cfg.PublicBaseURL, "/")+"/files")
	if err != nil {
		return nil, nil, nil, err
	}
	slog.Info("blobs: filesystem", "dir", cfg.FilesDir)
	return fs, fs.Handler(), func() {}, nil
}

func closer(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			slog.Warn("close", "error", err)
		}
	}
}

// evictDeleted drops uploaded and cached binaries of deleted documents.
func evictDeleted(ctx context.Context, st backend.Store, uploads *preview.Uploads, cache *bincache.Cache, logger *slog.Logger) {
	ch, err := st.Subscribe(ctx)
	if err != nil {
		logger.Warn("evict: subscribe", "error", err)
		return
	}
	for e := range ch {
		if e.Table != "documents" || e.Op != backend.OpDelete {
			continue
		}
		uploads.Delete(e.ID)
		if err := cache.Delete(ctx, e.ID); err != nil {
			logger.Warn("evict: cache delete", "id", e.ID, "error", err)
		}
	}
}

// reapSessions closes abandoned preview sessions every minute until ctx is done.
func reapSessions(ctx context.Context, orch *preview.Orchestrator, maxIdle time.Duration, logger *slog.Logger) {
	tick := time.NewTicker(time.Minute)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		if n := orch.Reap(maxIdle); n > 0 {
			logger.Info("preview: idle sessions closed", "sessions", n, "open", orch.SessionCount())
		}
	}
}

// maintain runs the daily retention pass until ctx is done.
func maintain(ctx context.Context, cfg *Config, eventsDB *sql.DB, cache *bincache.Cache, changes *feed.Feed, logger *slog.Logger) {
	tick := time.NewTicker(24 * time.Hour)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
		}
		if err := observability.Cleanup(ctx, eventsDB, cfg.Retention); err != nil {
			logger.Warn("retention: events", "error", err)
		}
		if n, err := cache.Prune(ctx); err != nil {
			logger.Warn("retention: cache", "error", err)
		} else if n > 0 {
			logger.Info("retention: cache pruned", "entries", n)
		}
		if changes != nil && cfg.FeedKeepDays > 0 {
			before := time.Now().AddDate(0, 0, -cfg.FeedKeepDays)
			if n, err := changes.Prune(ctx, before); err != nil {
				logger.Warn("retention: change log", "error", err)
			} else if n > 0 {
				logger.Info("retention: change log pruned", "rows", n)
			}
		}
	}
}
