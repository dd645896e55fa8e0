package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tbourn/go-dose-timer/internal/assets"
	httpapi "github.com/tbourn/go-dose-timer/internal/http"
	"github.com/tbourn/go-dose-timer/internal/observability"
	"github.com/tbourn/go-dose-timer/internal/services"
)

// version is stamped at build time with -ldflags "-X main.version=...".
var version = "dev"

const (
	shutdownTimeout = 10 * time.Second
	purgeEvery      = time.Hour
)

func newServeCmd(a *app) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server and web app",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			if addr == "" {
				addr = ":" + a.cfg.Port
			}
			return a.serve(ctx, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :$PORT)")
	return cmd
}

// serve runs the server until ctx is done, then drains connections, flushes
// traces and closes the database.
func (a *app) serve(ctx context.Context, addr string) error {
	cfg := a.cfg
	gin.SetMode(cfg.GinMode)

	shutdownOTel, err := observability.SetupOTel(ctx, cfg, version)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("otel shutdown")
		}
	}()

	svc, err := a.service(ctx)
	if err != nil {
		return err
	}

	shell, err := assets.New(cfg.AssetCacheVersion, cfg.APIBasePath, nil)
	if err != nil {
		return err
	}
	if err := shell.Precache(); err != nil {
		return err
	}
	if dropped := shell.Activate(); len(dropped) > 0 {
		log.Info().Strs("caches", dropped).Msg("dropped stale asset caches")
	}

	go purgeLoop(ctx, svc)

	r := gin.New()
	httpapi.RegisterRoutes(r, svc, shell, cfg)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", addr).
			Str("db", cfg.DBPath).
			Str("timezone", cfg.Dose.Timezone).
			Str("asset_cache", shell.Name()).
			Msg("dosetimer listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// purgeLoop drops expired idempotency keys at start and then hourly.
func purgeLoop(ctx context.Context, svc *services.DoseService) {
	t := time.NewTicker(purgeEvery)
	defer t.Stop()
	for {
		if n, err := svc.PurgeIdempotency(ctx); err != nil {
			log.Warn().Err(err).Msg("purge idempotency keys")
		} else if n > 0 {
			log.Debug().Int64("purged", n).Msg("expired idempotency keys removed")
		}
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}
