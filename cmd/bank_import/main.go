// Command bank_import turns bank CSV exports into beancount transactions.
//
// Usage:
//
//	bank_import [--config importers.yaml] identify FILE...
//	bank_import [--config importers.yaml] extract FILE...
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/SscSPs/bank_importers/internal/adapters/beancount"
	"github.com/SscSPs/bank_importers/internal/adapters/csvsource"
	"github.com/SscSPs/bank_importers/internal/apperrors"
	"github.com/SscSPs/bank_importers/internal/core/services"
	"github.com/SscSPs/bank_importers/internal/middleware"
	"github.com/SscSPs/bank_importers/internal/platform/config"
	"github.com/spf13/pflag"
)

const usage = `usage:
  bank_import [--config FILE] identify FILE...
  bank_import [--config FILE] extract FILE...`

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Logs go to stderr so the ledger written to stdout stays clean
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = middleware.WithLogger(ctx, logger)

	if err := run(ctx, cfg, os.Args[1:]); err != nil {
		logger.Error("Command failed", slog.String("error", err.Error()))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, args []string) error {
	fs := pflag.NewFlagSet("bank_import", pflag.ContinueOnError)
	configPath := fs.String("config", cfg.ImportersConfig, "importers configuration file")
	fs.SetInterspersed(true)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("missing command or files")
	}

	svc, err := newImportService(*configPath)
	if err != nil {
		return err
	}

	command, files := fs.Arg(0), fs.Args()[1:]
	switch command {
	case "identify":
		return identify(svc, files)
	case "extract":
		n, err := svc.Extract(ctx, files, os.Stdout)
		if err != nil {
			return err
		}
		middleware.GetLoggerFromCtx(ctx).InfoContext(ctx, "Import finished", slog.Int("transactions", n))
		return nil
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}
}

func identify(svc *services.ImportService, files []string) error {
	for _, f := range files {
		imp, err := svc.Identify(f)
		if errors.Is(err, apperrors.ErrNotFound) {
			fmt.Printf("%s: no importer\n", f)
			continue
		}
		if err != nil {
			return err
		}
		fmt.Printf("%s: %s (%s)\n", f, imp.Name(), imp.Account())
	}
	return nil
}

func newImportService(path string) (*services.ImportService, error) {
	file, err := config.LoadImportersFile(path)
	if err != nil {
		return nil, err
	}
	if len(file.Importers) == 0 {
		return nil, fmt.Errorf("%s defines no importers: %w", path, apperrors.ErrValidation)
	}

	importers, err := services.NewImportersFromConfig(file, csvsource.ForSource)
	if err != nil {
		return nil, err
	}
	return services.NewImportService(importers, beancount.NewWriter()), nil
}
