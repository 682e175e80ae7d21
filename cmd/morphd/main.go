// SPDX-License-Identifier: MIT

// Command morphd serves the image-morph and classifier-attention pipeline.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xaimorph/morphd/internal/api"
	"github.com/xaimorph/morphd/internal/assemble"
	"github.com/xaimorph/morphd/internal/config"
	"github.com/xaimorph/morphd/internal/gradcam"
	"github.com/xaimorph/morphd/internal/landmarks"
	"github.com/xaimorph/morphd/internal/library"
	morphlog "github.com/xaimorph/morphd/internal/log"
	"github.com/xaimorph/morphd/internal/pipeline"
	"github.com/xaimorph/morphd/internal/session"
	"github.com/xaimorph/morphd/internal/telemetry"
)

var (
	version   = "v0.3.0"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("%s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	cfg := config.FromEnv()

	morphlog.Configure(morphlog.Config{
		Level:   cfg.LogLevel,
		Service: "morphd",
		Version: version,
	})
	logger := morphlog.WithComponent("daemon")

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.OTELEnabled,
		ServiceName:    "morphd",
		ServiceVersion: version,
		Environment:    config.ParseString("MORPHD_ENV", "development"),
		ExporterType:   cfg.OTELExporter,
		Endpoint:       cfg.OTELEndpoint,
		SamplingRate:   cfg.OTELSamplingRate,
	})
	if err != nil {
		logger.Warn().Err(err).Msg("telemetry init failed, continuing without tracing")
	}

	registry := session.NewRegistry(cfg.SessionTTL)
	go registry.RunJanitor(ctx)

	var detector landmarks.Detector = landmarks.NopDetector{}
	if cfg.DetectorURL != "" {
		detector = landmarks.NewHTTPDetector(cfg.DetectorURL)
	}
	var classifier gradcam.Classifier = gradcam.StubClassifier{}
	if cfg.ClassifierURL != "" {
		classifier = gradcam.NewHTTPClassifier(cfg.ClassifierURL)
	}

	assembler := &assemble.Assembler{
		Encoder:   assemble.NewEncoder(cfg.FFmpegPath, cfg.FPS),
		OutputDir: cfg.OutputDir,
	}
	sequencer := pipeline.NewSequencer(ctx, registry, detector, classifier, assembler,
		telemetry.Tracer("pipeline"), pipeline.Config{
			FrameCount:   cfg.FrameCount,
			BaseSize:     cfg.BaseSize,
			MinLandmarks: cfg.MinLandmarks,
			MaxJobs:      cfg.MaxJobs,
		})

	lib := library.New(cfg.ImagesDir, "/images")
	if err := lib.Scan(); err != nil {
		logger.Warn().Err(err).Msg("initial corpus scan failed, library starts empty")
	}
	go func() {
		if err := lib.Watch(ctx); err != nil {
			logger.Warn().Err(err).Msg("corpus watcher stopped")
		}
	}()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.NewServer(cfg, sequencer, registry, lib).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		// no WriteTimeout: progress streams stay open for the whole job
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().
			Str("listen", cfg.ListenAddr).
			Str("images_dir", cfg.ImagesDir).
			Str("output_dir", cfg.OutputDir).
			Msg("morphd listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		logger.Fatal().Err(err).Msg("server error")
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown error")
	}
	if provider != nil {
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("telemetry shutdown error")
		}
	}
}
