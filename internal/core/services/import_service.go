package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/SscSPs/bank_importers/internal/apperrors"
	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/SscSPs/bank_importers/internal/core/ports"
	"github.com/SscSPs/bank_importers/internal/middleware"
	"github.com/SscSPs/bank_importers/internal/platform/config"
	"github.com/SscSPs/bank_importers/internal/utils/accounting"
)

// Metadata keys set on every imported transaction.
const (
	FilenameMetaKey = "filename"
	LinenoMetaKey   = "lineno"
)

// Importer turns the rows of one bank export into categorised transactions
// posted to a single ledger account.
type Importer struct {
	name        string
	currency    string
	opts        Options
	source      ports.RecordSource
	categorizer *Categorizer
}

// NewImporter creates an importer. currency is used for rows that carry none.
func NewImporter(name, currency string, opts Options, source ports.RecordSource, categorizer *Categorizer) *Importer {
	return &Importer{
		name:        name,
		currency:    currency,
		opts:        opts,
		source:      source,
		categorizer: categorizer,
	}
}

// Name returns the importer's name.
func (i *Importer) Name() string { return i.name }

// Account returns the ledger account the importer posts to.
func (i *Importer) Account() string { return i.opts.Account }

// Identify reports whether the file at path is handled by this importer.
func (i *Importer) Identify(path string) bool {
	return i.source.Identify(path)
}

// Extract reads the file at path and returns one transaction per kept row.
// Any malformed row fails the whole file.
func (i *Importer) Extract(ctx context.Context, path string) ([]*domain.Transaction, error) {
	records, err := i.source.Read(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("importer %s: %w", i.name, err)
	}

	txns := make([]*domain.Transaction, 0, len(records))
	for _, r := range records {
		txn, err := i.finalize(i.transaction(r), r)
		if err != nil {
			return nil, fmt.Errorf("importer %s: %s:%d: %w", i.name, r.File, r.Line, err)
		}
		if txn == nil {
			continue
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

// transaction builds the single-posting transaction for a row.
func (i *Importer) transaction(r domain.Record) *domain.Transaction {
	txn := domain.NewTransaction(r.Date, r.Payee, r.Narration)
	txn.Meta[FilenameMetaKey] = r.File
	txn.Meta[LinenoMetaKey] = strconv.Itoa(r.Line)
	txn.AddLinks(r.Link)

	currency := r.Currency
	if currency == "" {
		currency = i.currency
	}
	txn.Postings = []domain.Posting{{
		Account: i.opts.Account,
		Units:   &domain.Amount{Number: r.Amount, Currency: currency},
	}}
	return txn
}

// finalize drops rows the rules discard and categorises the rest.
func (i *Importer) finalize(txn *domain.Transaction, r domain.Record) (*domain.Transaction, error) {
	if i.categorizer.Skip(txn) {
		return nil, nil
	}
	txn, err := i.categorizer.Categorize(txn, r.Field(domain.FieldCategory), i.opts)
	if err != nil {
		return nil, err
	}
	if err := accounting.ValidateBalanced(txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// ImportService identifies bank exports and renders their transactions.
type ImportService struct {
	importers []*Importer
	writer    ports.LedgerWriter
}

// NewImportService creates an ImportService. Importers are tried in order.
func NewImportService(importers []*Importer, writer ports.LedgerWriter) *ImportService {
	return &ImportService{importers: importers, writer: writer}
}

// Identify returns the first importer that claims the file at path.
func (s *ImportService) Identify(path string) (*Importer, error) {
	for _, imp := range s.importers {
		if imp.Identify(path) {
			return imp, nil
		}
	}
	return nil, fmt.Errorf("no importer for %s: %w", path, apperrors.ErrNotFound)
}

// Extract imports every identified file in paths and writes the resulting
// transactions to w. Unidentified files are skipped with a warning.
// It returns the number of transactions written.
func (s *ImportService) Extract(ctx context.Context, paths []string, w io.Writer) (int, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	var all []*domain.Transaction
	for _, path := range paths {
		imp, err := s.Identify(path)
		if err != nil {
			logger.WarnContext(ctx, "Skipping unidentified file", slog.String("file", path))
			continue
		}

		txns, err := imp.Extract(ctx, path)
		if err != nil {
			return 0, err
		}
		sort.SliceStable(txns, func(a, b int) bool {
			return txns[a].Date.Before(txns[b].Date)
		})
		logger.InfoContext(ctx, "Extracted transactions",
			slog.String("file", filepath.Base(path)),
			slog.String("importer", imp.Name()),
			slog.String("account", imp.Account()),
			slog.Int("count", len(txns)),
		)
		all = append(all, txns...)
	}

	if err := s.writer.WriteTransactions(w, all); err != nil {
		return 0, fmt.Errorf("failed to write transactions: %w", err)
	}
	return len(all), nil
}

// RulesFor returns the built-in rule set for a bank source.
func RulesFor(source string) (Rules, error) {
	switch source {
	case "monzo":
		return MonzoRules(), nil
	case "nationwide":
		return NationwideRules(), nil
	default:
		return Rules{}, fmt.Errorf("unknown source %q: %w", source, apperrors.ErrValidation)
	}
}

// NewImportersFromConfig builds the importers described by the importers file,
// asking sourceFor for the record source of each bank. The shared payee table
// only feeds rule sets that match payees exactly; prefix-matching sources take
// account overrides from by_payee.
func NewImportersFromConfig(f *config.ImportersFile, sourceFor func(source string) (ports.RecordSource, error)) ([]*Importer, error) {
	importers := make([]*Importer, 0, len(f.Importers))
	for _, ic := range f.Importers {
		rules, err := RulesFor(ic.Source)
		if err != nil {
			return nil, err
		}
		source, err := sourceFor(ic.Source)
		if err != nil {
			return nil, err
		}
		opts := Options{
			Account:              ic.Account,
			IgnoreBankCategories: ic.Params.IgnoreBankCategories,
			ByPayee:              ic.Params.ByPayee,
		}
		var payees map[string]string
		if rules.PayeeMatch == MatchExact {
			payees = f.Payees
		}
		name := fmt.Sprintf("%s:%s", ic.Source, ic.Account)
		importers = append(importers, NewImporter(name, ic.Currency, opts, source, NewCategorizer(rules, payees)))
	}
	return importers, nil
}
