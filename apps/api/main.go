package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mahaj/counseling-smoke/pkg/auth"
	"github.com/mahaj/counseling-smoke/pkg/config"
	"github.com/mahaj/counseling-smoke/pkg/logging"
	"github.com/mahaj/counseling-smoke/pkg/stub"
)

func main() {
	cfg, err := config.Load(context.Background())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	defer logger.Sync()

	server := stub.NewServer(stub.NewStore(), auth.NewIssuer(cfg.Stub.JWTSecret, cfg.Stub.TokenTTL), logger)
	srv := &http.Server{
		Addr:              cfg.Stub.Addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("stub API listening", zap.String("addr", srv.Addr), zap.String("prefix", stub.APIPrefix))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("serving", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", zap.Error(err))
	}
}
