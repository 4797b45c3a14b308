// Command recallbot runs the Recall competition trading bot. It loads and
// validates configuration, sets up logging and signal handling, and starts
// the application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/recallbot/internal/app"
	"github.com/alanyoungcy/recallbot/internal/config"
	"github.com/alanyoungcy/recallbot/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	mode := flag.String("mode", "", "override mode: run, status, report, rebalance, signals")
	dryRun := flag.Bool("dry-run", false, "log trades instead of submitting them")
	encryptKey := flag.Bool("encrypt-key", false, "encrypt RECALLBOT_API_KEY with RECALLBOT_API_KEY_PASSWORD and exit")
	out := flag.String("out", "api_key.enc.json", "output file for -encrypt-key")
	flag.Parse()

	if *encryptKey {
		if err := writeEncryptedKey(*out); err != nil {
			fmt.Fprintf(os.Stderr, "encrypt-key: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("encrypted API key written to %s\n", *out)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *dryRun {
		cfg.DryRun = true
	}

	logger = newLogger(cfg.Log)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("recallbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	logger.Info("recallbot stopped")
}

// newLogger builds the JSON logger, mirrored to a rotating file when
// log.file is set.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var w io.Writer = os.Stdout
	if cfg.File != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   cfg.Compress,
		})
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

func writeEncryptedKey(path string) error {
	key := os.Getenv("RECALLBOT_API_KEY")
	password := os.Getenv("RECALLBOT_API_KEY_PASSWORD")
	if key == "" || password == "" {
		return errors.New("RECALLBOT_API_KEY and RECALLBOT_API_KEY_PASSWORD must be set")
	}
	sealed, err := crypto.EncryptAPIKey(key, password)
	if err != nil {
		return err
	}
	return os.WriteFile(path, sealed, 0o600)
}
