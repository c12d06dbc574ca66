package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pocketplay/scorerace-backend/internal/config"
	"github.com/pocketplay/scorerace-backend/internal/httpapi"
	"github.com/pocketplay/scorerace-backend/internal/hub"
	"github.com/pocketplay/scorerace-backend/internal/notify"
	"github.com/pocketplay/scorerace-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := buildLogger(cfg.Debug)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := hub.Options{
		Countdown:    cfg.Countdown(),
		DefaultGrace: cfg.Grace(),
		Linger:       cfg.Linger(),
		Log:          logger,
		Notifier:     notify.Nop{},
	}
	if cfg.HostNotifyURL != "" {
		opts.Notifier = notify.NewHTTPNotifier(cfg.HostNotifyURL, logger)
	}
	if cfg.DatabaseURL != "" {
		results, err := store.Open(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("open result store", zap.Error(err))
		}
		opts.Results = results
	}

	h := hub.NewHub(ctx, opts)

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(h, logger),
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		h.Inbox() <- hub.ShutdownHub{}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
