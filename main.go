package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/artifact"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/config"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/logging"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/metrics"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/persist"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/policy"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/repository"
	"github.com/huythanhnguyen/mm-chatbot-v-oct/internal/service"
	handler "github.com/huythanhnguyen/mm-chatbot-v-oct/internal/transport/http"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	log.Info().
		Int("http_port", cfg.HTTPPort).
		Str("database", cfg.DatabaseURL).
		Str("artifact_dir", cfg.ArtifactDir).
		Msg("starting runtime")

	// Initialize index
	index, err := repository.NewSQLiteIndex(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize index")
	}
	defer index.Close()

	// Initialize policy engine
	ctx := context.Background()
	policyEngine, err := policy.NewEngineFromFile(ctx, cfg.PolicyFile)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize policy engine")
	}

	m := metrics.New()
	writer := artifact.NewFileWriter(cfg.ArtifactDir)

	pipeline := persist.NewPipeline(writer, index, policyEngine,
		log.With().Str("component", "persist").Logger(),
		persist.WithIdleInterval(cfg.Persist.IdleInterval),
		persist.WithMetrics(m),
	)
	pipeline.Start(ctx)

	rt := service.New(cfg, pipeline, writer, index, m, log)
	server := handler.NewServer(rt, m)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.HTTPPort)
		if err := server.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()
	log.Info().Int("http_port", cfg.HTTPPort).Msg("server started")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down runtime")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Persist.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("failed to shutdown server gracefully")
	}
	pipeline.Stop()

	logStats(log, rt.Stats(shutdownCtx))
	log.Info().Msg("runtime stopped")
}

func logStats(log zerolog.Logger, s service.Stats) {
	log.Info().
		Float64("latency_ewma_seconds", s.Latency.EWMA).
		Int64("latency_samples", s.Latency.SampleCount).
		Int("undrained_jobs", s.Pending).
		Int("sessions", s.Sessions).
		Msg("final stats")
}
