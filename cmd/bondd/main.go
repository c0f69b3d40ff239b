// Command bondd is the backend entry point for the validator bond desk. It
// loads configuration, validates it, wires dependencies, sets up signal
// handling, and starts the application in the configured mode.
//
// Usage:
//
//	bondd [-config config.toml]                      serve in the configured mode
//	bondd issue -bond ID -amount ETH [-dry-run]      issue one bond and exit
//	bondd encrypt-key -out operator.key.json         seal wallet.private_key
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
	"syscall"

	"github.com/alanyoungcy/bondd/internal/app"
	"github.com/alanyoungcy/bondd/internal/config"
	"github.com/alanyoungcy/bondd/internal/crypto"
)

func main() {
	cmd := "serve"
	args := os.Args[1:]
	if len(args) > 0 && (args[0] == "serve" || args[0] == "issue" || args[0] == "encrypt-key") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "serve":
		err = serve(args)
	case "issue":
		err = issue(args)
	case "encrypt-key":
		err = encryptKey(args)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// newLogger builds the JSON logger at the configured level.
func newLogger(w io.Writer, level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

// loadConfig loads and validates the configuration at path.
func loadConfig(path string, logOut io.Writer) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("load config %s: %w", path, err)
	}
	logger := newLogger(logOut, cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	logger.Debug("configuration loaded", slog.Any("config", config.RedactedConfig(cfg)))
	return cfg, logger, nil
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	fs.Parse(args)

	cfg, logger, err := loadConfig(*configPath, os.Stdout)
	if err != nil {
		return err
	}
	logger.Info("bond desk starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)

	application := app.New(cfg, logger)
	defer application.Close()

	// Setup signal handling for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := application.Run(ctx); err != nil {
		logger.Error("application exited with error", slog.String("error", err.Error()))
		return err
	}
	logger.Info("bond desk stopped")
	return nil
}

func issue(args []string) error {
	fs := flag.NewFlagSet("issue", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	bondID := fs.String("bond", "", "bond id to issue")
	amount := fs.String("amount", "", "amount of ETH to issue")
	dryRun := fs.Bool("dry-run", false, "validate without submitting")
	fs.Parse(args)
	if *bondID == "" || *amount == "" {
		fs.Usage()
		return errors.New("issue: -bond and -amount are required")
	}

	// Logs go to stderr so stdout carries only the result.
	cfg, logger, err := loadConfig(*configPath, os.Stderr)
	if err != nil {
		return err
	}

	application := app.New(cfg, logger)
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return application.Issue(ctx, app.IssueArgs{BondID: *bondID, Amount: *amount, DryRun: *dryRun}, os.Stdout)
}

func encryptKey(args []string) error {
	fs := flag.NewFlagSet("encrypt-key", flag.ExitOnError)
	configPath := fs.String("config", "config.toml", "path to configuration file")
	out := fs.String("out", "operator.key.json", "where to write the encrypted key")
	fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", *configPath, err)
	}
	if cfg.Wallet.PrivateKey == "" || cfg.Wallet.KeyPassword == "" {
		return errors.New("encrypt-key: set BONDD_WALLET_PRIVATE_KEY and BONDD_WALLET_KEY_PASSWORD")
	}
	data, err := crypto.EncryptKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeyPassword)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return fmt.Errorf("encrypt-key: %w", err)
	}
	fmt.Fprintf(os.Stdout, "wrote %s\n", *out)
	return nil
}
