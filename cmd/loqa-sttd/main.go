package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/loqalabs/loqa-stt/internal/asr"
	"github.com/loqalabs/loqa-stt/internal/config"
	"github.com/loqalabs/loqa-stt/internal/runtime"
)

var version = "0.1.0-dev"

func main() {
	var (
		configPath  string
		host        string
		port        int
		model       string
		language    string
		minChunk    float64
		trimming    string
		vadEnabled  bool
		showVersion bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&host, "host", "", "Streaming listener host")
	flag.IntVar(&port, "port", 0, "Streaming listener port")
	flag.StringVar(&model, "model", "", "Recognizer model name or path")
	flag.StringVar(&language, "language", "", "Transcription language (ISO code or auto)")
	flag.Float64Var(&minChunk, "min-chunk-size", 0, "Minimum buffered seconds before a recognizer pass")
	flag.StringVar(&trimming, "buffer-trimming", "", "Buffer trimming policy (segment or sentence)")
	flag.BoolVar(&vadEnabled, "vad", true, "Enable the voice activity gate")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println(version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.New(slog.NewJSONHandler(os.Stderr, nil)).
			Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// flags beat config file and environment, but only when given
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "host":
			cfg.Server.Host = host
		case "port":
			cfg.Server.Port = port
		case "model":
			cfg.ASR.Model = model
		case "language":
			cfg.ASR.Language = language
		case "min-chunk-size":
			cfg.Engine.MinChunkSec = minChunk
		case "buffer-trimming":
			cfg.Engine.BufferTrimming = trimming
		case "vad":
			cfg.VAD.Enabled = vadEnabled
		}
	})

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Telemetry.LogLevel),
	}))

	rec, err := asr.New(cfg.ASR, logger)
	if err != nil {
		logger.Error("failed to load recognizer", slog.String("error", err.Error()))
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	asr.Warmup(ctx, rec, cfg.ASR, logger)

	rt := runtime.New(cfg, rec, logger)
	if err := rt.Start(ctx); err != nil {
		logger.Error("runtime exited with error", slog.String("error", err.Error()))
		time.Sleep(1 * time.Second)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}

func logLevel(name string) slog.Level {
	switch name {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
