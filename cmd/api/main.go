package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gestaozabele/laudoia/internal/analysis"
	"github.com/gestaozabele/laudoia/internal/config"
	"github.com/gestaozabele/laudoia/internal/gemini"
	internalhttp "github.com/gestaozabele/laudoia/internal/http"
	"github.com/gestaozabele/laudoia/internal/storage"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("api encerrada com erro")
	}
}

func run() error {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	settings, err := analysis.LoadSettings(cfg.PromptFile, cfg.GeminiModel)
	if err != nil {
		return fmt.Errorf("settings: %w", err)
	}

	ctx := context.Background()

	provider, err := gemini.New(ctx, gemini.Config{APIKey: cfg.GeminiAPIKey, Settings: settings})
	if err != nil {
		return fmt.Errorf("gemini: %w", err)
	}
	defer provider.Close()

	store, err := storage.NewTempStore(cfg.TempDir)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	relay, err := analysis.NewRelay(provider, store, analysis.Options{
		UpstreamTimeout: cfg.UpstreamTimeout,
		Logger:          log.With().Str("component", "analysis").Logger(),
	})
	if err != nil {
		return fmt.Errorf("relay: %w", err)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           internalhttp.NewRouter(cfg, relay),
		ReadHeaderTimeout: 10 * time.Second,
	}

	log.Info().
		Str("model", settings.Model).
		Str("temp_dir", store.Dir()).
		Strs("origins", cfg.AllowOrigins).
		Dur("upstream_timeout", cfg.UpstreamTimeout).
		Msg("relay configurado")

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msgf("API ouvindo em :%d", cfg.Port)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("encerrando...")
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
