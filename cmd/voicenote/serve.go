package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yegors/voicenote/internal/api"
	"github.com/yegors/voicenote/internal/relay"
	"github.com/yegors/voicenote/internal/storage/sqlite"
	"github.com/yegors/voicenote/internal/whisper"
	"github.com/yegors/voicenote/pkg/logger"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the transcription relay",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func runServe() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg, os.Stdout)
	if err != nil {
		return err
	}
	defer log.Sync()

	log.Info("Starting voicenote relay", logger.String("version", version))

	var audit relay.AuditStore
	if cfg.Storage.Enabled {
		db, err := sqlite.Open(cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		defer db.Close()

		store, err := sqlite.NewTranscriptionStorage(db, log)
		if err != nil {
			return err
		}
		audit = store
		log.Info("Transcription history enabled", logger.String("path", cfg.Storage.SQLitePath))
	}

	transcriber := whisper.NewClient(whisper.Config{
		APIKey:         cfg.Relay.OpenAIAPIKey,
		BaseURL:        cfg.Relay.BaseURL,
		Model:          cfg.Relay.Model,
		Language:       cfg.Relay.Language,
		TimeoutSeconds: cfg.Relay.TimeoutSeconds,
	}, log)
	if !transcriber.Configured() {
		log.Warn("OPENAI_API_KEY is not set; transcription requests will fail")
	}

	service := relay.NewService(relay.Config{DecodeChunkSize: cfg.Relay.DecodeChunkSize}, transcriber, audit, log)

	var handler http.Handler = api.NewRouter(service, cfg, log).Routes()
	if cfg.Server.H2C {
		handler = api.H2CHandler(handler)
	}

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Relay listening", logger.String("addr", server.Addr), logger.Bool("h2c", cfg.Server.H2C))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		log.Info("Shutting down", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error("Graceful shutdown failed", logger.Error(err))
		return err
	}

	log.Info("Relay stopped")
	return nil
}
