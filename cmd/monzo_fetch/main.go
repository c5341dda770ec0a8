// Command monzo_fetch downloads Monzo transactions as CSV.
//
// Usage:
//
//	monzo_fetch transaction <id>
//	monzo_fetch download [--start YYYY-MM-DD] [--end YYYY-MM-DD] [--save] [--output DIR]
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/SscSPs/bank_importers/internal/adapters/csvexport"
	"github.com/SscSPs/bank_importers/internal/adapters/monzo"
	"github.com/SscSPs/bank_importers/internal/apperrors"
	"github.com/SscSPs/bank_importers/internal/core/services"
	"github.com/SscSPs/bank_importers/internal/middleware"
	"github.com/SscSPs/bank_importers/internal/platform/config"
	"github.com/SscSPs/bank_importers/internal/utils/pagination"
	"github.com/spf13/pflag"
)

const usage = `usage:
  monzo_fetch transaction <id>
  monzo_fetch download [--start YYYY-MM-DD] [--end YYYY-MM-DD] [--save] [--output DIR]`

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Logs go to stderr so CSV written to stdout stays clean
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = middleware.WithLogger(ctx, logger)

	if err := run(ctx, cfg, logger, os.Args[1:]); err != nil {
		if apperrors.IsFatal(err) {
			logger.Error("Fatal authorisation error", slog.String("error", err.Error()))
		} else {
			logger.Error("Command failed", slog.String("error", err.Error()))
		}
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, usage)
		return errors.New("missing command")
	}

	switch args[0] {
	case "transaction":
		return runTransaction(ctx, cfg, logger, args[1:])
	case "download":
		return runDownload(ctx, cfg, logger, args[1:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runTransaction(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("transaction", pflag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("transaction takes exactly one transaction id")
	}

	svc, err := newFetchService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	raw, err := svc.LookupTransaction(ctx, fs.Arg(0))
	if err != nil {
		return err
	}

	var pretty any
	if err := json.Unmarshal(raw, &pretty); err != nil {
		return fmt.Errorf("failed to decode transaction: %w", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(pretty)
}

func runDownload(ctx context.Context, cfg *config.Config, logger *slog.Logger, args []string) error {
	fs := pflag.NewFlagSet("download", pflag.ContinueOnError)
	start := fs.String("start", "", "first day to download (YYYY-MM-DD or RFC 3339 timestamp), defaults to 10 days ago")
	end := fs.String("end", "", "download transactions before this day (YYYY-MM-DD or RFC 3339 timestamp)")
	save := fs.Bool("save", false, "write one CSV file per account instead of printing to stdout")
	output := fs.String("output", cfg.OutputDirectory, "directory the CSV files are saved in")
	if err := fs.Parse(args); err != nil {
		return err
	}

	req := services.DownloadRequest{
		Save:      *save,
		OutputDir: *output,
		Stdout:    os.Stdout,
	}
	if *start != "" {
		t, err := parseBound(*start)
		if err != nil {
			return fmt.Errorf("invalid --start: %w", err)
		}
		req.Start = t
	}
	if *end != "" {
		t, err := parseBound(*end)
		if err != nil {
			return fmt.Errorf("invalid --end: %w", err)
		}
		req.End = &t
	}

	importers, err := config.LoadImportersFile(cfg.ImportersConfig)
	if err != nil {
		return err
	}
	req.Accounts = importers.Accounts

	svc, err := newFetchService(ctx, cfg, logger)
	if err != nil {
		return err
	}
	results, err := svc.Download(ctx, req)
	if err != nil {
		return err
	}
	for _, r := range results {
		logger.InfoContext(ctx, "Account downloaded",
			slog.String("account_id", r.AccountID),
			slog.String("label", r.Label),
			slog.Int("rows", r.Rows),
			slog.String("file", r.Path),
		)
	}
	return nil
}

// parseBound accepts a day or an exact timestamp such as a previous cursor.
func parseBound(v string) (time.Time, error) {
	if t, err := time.Parse(time.DateOnly, v); err == nil {
		return t, nil
	}
	return pagination.DecodeSince(v)
}

// newFetchService authorises against the banking API and wires the fetcher.
// The authorisation prompt is written to stderr.
func newFetchService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services.FetchService, error) {
	if err := cfg.RequireOAuthClient(); err != nil {
		return nil, err
	}

	auth := monzo.NewAuthenticator(cfg, monzo.NewTokenFile(cfg.MonzoTokenFile))
	token, err := auth.Ensure(ctx, os.Stdin, os.Stderr)
	if err != nil {
		return nil, err
	}

	client, err := monzo.NewClient(cfg, token, auth, monzo.WithLogger(logger))
	if err != nil {
		return nil, err
	}
	return services.NewFetchService(client, csvexport.NewWriter(), cfg.MonzoPageLimit), nil
}
