// Package app owns the server lifecycle: open resources, start the HTTP
// server and background jobs, shut everything down in order on cancel.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"ticketchat/internal/maintenance"
	"ticketchat/pkg/api"
	"ticketchat/pkg/auth"
	"ticketchat/pkg/banner"
	"ticketchat/pkg/chat"
	"ticketchat/pkg/config"
	"ticketchat/pkg/logger"
	"ticketchat/pkg/realtime"
	"ticketchat/pkg/security"
	"ticketchat/pkg/store"
)

// App holds the assembled server components.
type App struct {
	cfg     *config.Config
	source  string
	version string

	st     *store.Store
	cipher *security.Cipher
	svc    *chat.Service
	hub    *realtime.Hub
	srv    *http.Server
}

// New builds every component but starts nothing. A missing or malformed
// encryption key is fatal here, before any listener opens.
func New(cfg *config.Config, source, version string) (*App, error) {
	key, err := security.ParseKey(cfg.Security.Encryption.Key)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}
	cipher, err := security.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encryption key: %w", err)
	}

	st, err := store.Open(cfg.Server.DBPath)
	if err != nil {
		cipher.Close()
		return nil, fmt.Errorf("open pebble at %s: %w", cfg.Server.DBPath, err)
	}

	var notifier chat.Notifier
	if cfg.Notify.URL != "" {
		notifier = chat.NewHTTPNotifier(cfg.Notify.URL, cfg.Notify.Bearer)
	}
	svc := chat.NewService(st, cipher, notifier)
	hub := realtime.NewHub(svc)

	mw := auth.NewMiddleware(
		cfg.Security.APIKeys.Backend,
		cfg.Security.APIKeys.AllowUnauth,
		cfg.Security.RateLimit.RPS,
		cfg.Security.RateLimit.Burst,
	)

	a := &App{
		cfg:     cfg,
		source:  source,
		version: version,
		st:      st,
		cipher:  cipher,
		svc:     svc,
		hub:     hub,
	}
	a.srv = &http.Server{Addr: cfg.Addr(), Handler: api.NewRouter(svc, hub, mw, st)}
	return a, nil
}

// Run starts the HTTP server and the maintenance scheduler, then blocks
// until ctx is cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	banner.Print(a.cfg, a.source, a.version)

	stopMaint, err := maintenance.Start(ctx, a.st, a.cfg.Maintenance.Compaction)
	if err != nil {
		a.close()
		return err
	}
	defer stopMaint()

	a.st.RefreshDiskUsage()

	errCh := make(chan error, 1)
	go func() { errCh <- a.srv.ListenAndServe() }()
	logger.Log.Info("server_started", zap.String("addr", a.cfg.Addr()))

	select {
	case <-ctx.Done():
		logger.Log.Info("server_stopping")
		shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := a.srv.Shutdown(shutCtx); err != nil {
			logger.Log.Warn("server_shutdown_error", zap.Error(err))
		}
		a.close()
		return nil
	case err := <-errCh:
		a.close()
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (a *App) close() {
	if err := a.st.Close(); err != nil {
		logger.Log.Warn("store_close_error", zap.Error(err))
	}
	a.cipher.Close()
}
