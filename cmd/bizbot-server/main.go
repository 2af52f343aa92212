package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bizbot-backend/internal/assistant"
	"bizbot-backend/internal/config"
	"bizbot-backend/internal/db"
	"bizbot-backend/internal/logger"
	"bizbot-backend/internal/server"
	"bizbot-backend/internal/store"
	"bizbot-backend/internal/whatsapp"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	defer func() { _ = log.Sync() }()
	for _, w := range cfg.Warnings {
		log.Warn(w)
	}

	if err := run(cfg, log); err != nil {
		log.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.DatabaseURL == "" {
		return errors.New("DB_URL is required")
	}
	database, err := db.New(ctx, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer database.Close()
	if cfg.RunMigrations {
		if err := database.RunMigrations(ctx, cfg.MigrationsDir); err != nil {
			return err
		}
	}
	records := store.NewDatabaseStore(database, cfg.QueryTimeout)

	var dedupe store.Deduper = store.NewMemoryStore(cfg.DedupeTTL, 10000)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		rd := store.NewRedisDeduper(rdb, cfg.DedupeTTL)
		if err := rd.Ping(ctx); err != nil {
			log.Warn("redis unreachable; using in-memory dedupe", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			dedupe = rd
			log.Info("webhook dedupe backed by redis", zap.String("addr", cfg.RedisAddr))
		}
	}

	prompts, err := assistant.LoadPrompts(cfg.PromptsFile)
	if err != nil {
		return err
	}
	bot, err := assistant.New(assistant.Deps{
		Oracle:  assistant.NewOpenAIOracle(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.Model, cfg.Temperature, cfg.OracleTimeout),
		Prompts: prompts,
		Store:   records,
		Schema:  database,
		Users:   records,
		Logger:  log.Named("assistant"),
	})
	if err != nil {
		return err
	}

	wa := whatsapp.NewClient(whatsapp.Config{
		BaseURL:       cfg.WhatsAppBaseURL,
		APIVersion:    cfg.WhatsAppAPIVersion,
		PhoneNumberID: cfg.WhatsAppPhoneNumberID,
		AccessToken:   cfg.WhatsAppAccessToken,
	}, log.Named("whatsapp"))

	s, err := server.NewServer(cfg, server.Deps{
		Pipeline: bot,
		Sender:   wa,
		Dedupe:   dedupe,
		Database: database,
		Logger:   log.Named("server"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info("bizbot server listening", zap.String("addr", srv.Addr), zap.String("model", cfg.Model))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.PipelineTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("http shutdown", zap.Error(err))
	}
	if err := s.Wait(shutdownCtx); err != nil {
		log.Warn("in-flight messages abandoned", zap.Error(err))
	}
	return nil
}
