package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"loadboard/auth"
	"loadboard/config"
	"loadboard/db"
	"loadboard/document"
	"loadboard/httpapi"
	"loadboard/load"
	"loadboard/notify"
	"loadboard/realtime"
	"loadboard/recommend"
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("bootstrap config: %v", err)
	}

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	authRepo := auth.NewRepository(pool)
	authSvc := auth.NewService(authRepo, cfg.JWTSecret)

	loadRepo := load.NewRepository(pool)

	hub := realtime.NewHub()
	broadcaster := realtime.NewBroadcaster(hub)

	docSvc := document.NewService(loadRepo, authSvc, document.TextRenderer{}, cfg.UploadDir)

	var emailer document.Emailer
	if cfg.SMTP.Host != "" {
		mailer := notify.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		emailer = notify.NewDispatcher(mailer, cfg.SMTP.From, logger)
	} else {
		logger.Warn("SMTP not configured, acceptance emails disabled")
	}
	orchestrator := document.NewAcceptanceOrchestrator(docSvc, authSvc, emailer, logger)

	loadSvc := load.NewService(loadRepo, broadcaster, orchestrator, logger)
	recommendSvc := recommend.NewService(loadRepo)

	wsHandler := realtime.NewHandler(hub, authSvc, loadSvc, logger)
	handlers := httpapi.NewHandlers(authSvc, loadSvc, docSvc, recommendSvc, wsHandler, cfg.UploadDir, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           handlers.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("serve: %v", err)
		}
	}()

	<-stopCtx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown incomplete", "error", err)
	}
}
