package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/SscSPs/bank_importers/internal/core/ports"
	"github.com/SscSPs/bank_importers/internal/middleware"
	"github.com/SscSPs/bank_importers/internal/utils"
	"github.com/SscSPs/bank_importers/internal/utils/accounting"
	"github.com/SscSPs/bank_importers/internal/utils/pagination"
)

// DefaultLookback is how far back a download starts when no start date is given.
const DefaultLookback = 10 * 24 * time.Hour

const roundUpNarration = "Round up"

// FetchService downloads transactions from the banking API and projects them
// onto the CSV export schema.
type FetchService struct {
	api       ports.BankAPI
	export    ports.ExportWriter
	pageLimit int
	now       func() time.Time
}

// NewFetchService creates a FetchService requesting pageLimit transactions per page.
func NewFetchService(api ports.BankAPI, export ports.ExportWriter, pageLimit int) *FetchService {
	return &FetchService{
		api:       api,
		export:    export,
		pageLimit: pageLimit,
		now:       time.Now,
	}
}

// ListOpenAccounts returns the accounts that are not closed.
func (s *FetchService) ListOpenAccounts(ctx context.Context) ([]domain.BankAccount, error) {
	accounts, err := s.api.ListAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list accounts: %w", err)
	}
	open := make([]domain.BankAccount, 0, len(accounts))
	for _, a := range accounts {
		if !a.Closed {
			open = append(open, a)
		}
	}
	return open, nil
}

// PotIndex returns the open pots of every account, keyed by pot id.
func (s *FetchService) PotIndex(ctx context.Context, accounts []domain.BankAccount) (map[string]domain.Pot, error) {
	index := make(map[string]domain.Pot)
	for _, a := range accounts {
		pots, err := s.api.ListPots(ctx, a.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list pots of %s: %w", a.ID, err)
		}
		for _, p := range pots {
			if !p.IsClosed() {
				index[p.ID] = p
			}
		}
	}
	return index, nil
}

// FetchAll pages through an account's transactions from since, optionally
// bounded by before. Each page starts one second after the last transaction of
// the previous one and the first empty page ends the download.
func (s *FetchService) FetchAll(ctx context.Context, accountID string, since time.Time, before *time.Time) ([]domain.RawTransaction, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	var all []domain.RawTransaction
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "Fetching transactions",
			slog.String("account_id", accountID),
			slog.String("since", pagination.EncodeSince(since)),
		)
		page, err := s.api.ListTransactions(ctx, ports.TransactionPageQuery{
			AccountID: accountID,
			Since:     since,
			Before:    before,
			Limit:     s.pageLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to fetch transactions of %s: %w", accountID, err)
		}
		if len(page) == 0 {
			break
		}
		logger.DebugContext(ctx, "Fetched transaction page", slog.Int("count", len(page)))
		all = append(all, page...)

		next := pagination.NextSince(page[len(page)-1].Created)
		if !next.After(since) {
			next = pagination.NextSince(since)
		}
		since = next
	}
	return all, nil
}

// Project maps transactions onto export rows. Declined transactions are dropped
// and pot ids are replaced by pot names.
func (s *FetchService) Project(ctx context.Context, txns []domain.RawTransaction, pots map[string]domain.Pot) []domain.ExportRow {
	logger := middleware.GetLoggerFromCtx(ctx)

	rows := make([]domain.ExportRow, 0, len(txns))
	for _, t := range txns {
		if t.Declined() {
			continue
		}
		name := payeeOf(t, pots)
		if name == domain.UnknownPayee {
			logger.WarnContext(ctx, "Could not resolve payee",
				slog.String("transaction_id", t.ID),
				slog.String("description", t.Description),
			)
		}
		rows = append(rows, domain.ExportRow{
			TransactionID: t.ID,
			Date:          t.Created.Format(domain.ExportDateFormat),
			Name:          name,
			Description:   narrationOf(t),
			Currency:      t.Currency,
			Amount:        utils.FormatMajorUnits(accounting.MinorToMajor(t.Amount)),
			Category:      humanizeCategory(t.Category),
		})
	}
	return rows
}

// payeeOf prefers the pot name, then the merchant, then the counterparty.
func payeeOf(t domain.RawTransaction, pots map[string]domain.Pot) string {
	if potID, ok := t.PotID(); ok {
		if pot, ok := pots[potID]; ok {
			return pot.Name
		}
		return potID
	}
	if t.Merchant != nil && t.Merchant.Name != "" {
		return t.Merchant.Name
	}
	if t.Counterparty != nil && t.Counterparty.Name != "" {
		return t.Counterparty.Name
	}
	return domain.UnknownPayee
}

// narrationOf prefers the user's notes over the bank description.
func narrationOf(t domain.RawTransaction) string {
	if t.Notes != "" {
		return t.Notes
	}
	if _, ok := t.PotID(); ok {
		return roundUpNarration
	}
	return t.Description
}

// humanizeCategory turns "eating_out" into "Eating out".
func humanizeCategory(category string) string {
	s := strings.ToLower(strings.ReplaceAll(category, "_", " "))
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// DownloadRequest selects what Download fetches and where it goes.
type DownloadRequest struct {
	// Start defaults to DefaultLookback before now.
	Start time.Time
	End   *time.Time // Nullable
	// Accounts maps account ids to output labels. Empty selects every open
	// account, labelled by id.
	Accounts map[string]string
	// Save writes one file per account into OutputDir instead of Stdout.
	Save      bool
	OutputDir string
	Stdout    io.Writer
}

// DownloadResult describes the rows produced for one account.
type DownloadResult struct {
	AccountID string
	Label     string
	Rows      int
	Path      string // Empty unless saved
}

// Download fetches and exports the selected accounts.
func (s *FetchService) Download(ctx context.Context, req DownloadRequest) ([]DownloadResult, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	if req.Start.IsZero() {
		req.Start = s.now().Add(-DefaultLookback)
	}
	if req.End != nil && !req.End.After(req.Start) {
		return nil, fmt.Errorf("end %s is not after start %s", req.End.Format(time.DateOnly), req.Start.Format(time.DateOnly))
	}

	accounts, err := s.ListOpenAccounts(ctx)
	if err != nil {
		return nil, err
	}
	pots, err := s.PotIndex(ctx, accounts)
	if err != nil {
		return nil, err
	}

	var (
		results []DownloadResult
		stdout  []domain.ExportRow
	)
	for _, a := range accounts {
		label, selected := labelFor(a.ID, req.Accounts)
		if !selected {
			continue
		}

		txns, err := s.FetchAll(ctx, a.ID, req.Start, req.End)
		if err != nil {
			return nil, err
		}
		rows := s.Project(ctx, txns, pots)
		result := DownloadResult{AccountID: a.ID, Label: label, Rows: len(rows)}

		if !req.Save {
			stdout = append(stdout, rows...)
			results = append(results, result)
			continue
		}
		if len(rows) == 0 {
			logger.InfoContext(ctx, "No transactions to save", slog.String("account_id", a.ID))
			results = append(results, result)
			continue
		}

		path, err := s.save(req.OutputDir, label, rows)
		if err != nil {
			return nil, err
		}
		result.Path = path
		logger.InfoContext(ctx, "Transactions written",
			slog.String("account_id", a.ID),
			slog.String("file", path),
			slog.Int("count", len(rows)),
		)
		results = append(results, result)
	}

	if !req.Save {
		out := req.Stdout
		if out == nil {
			out = os.Stdout
		}
		if err := s.export.WriteRows(out, stdout); err != nil {
			return nil, fmt.Errorf("failed to write transactions: %w", err)
		}
	}
	return results, nil
}

func labelFor(accountID string, labels map[string]string) (string, bool) {
	if len(labels) == 0 {
		return accountID, true
	}
	label, ok := labels[accountID]
	if ok && label == "" {
		label = accountID
	}
	return label, ok
}

// ExportFileName names the export of rows for label after its first and last dates.
func ExportFileName(label string, rows []domain.ExportRow) string {
	first := strings.ReplaceAll(rows[0].Date, "/", "-")
	last := strings.ReplaceAll(rows[len(rows)-1].Date, "/", "-")
	return fmt.Sprintf("%s_%s_%s.csv", label, first, last)
}

// save writes rows to a new file in dir. An existing file is never overwritten.
func (s *FetchService) save(dir, label string, rows []domain.ExportRow) (path string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	path = filepath.Join(dir, ExportFileName(label, rows))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	if err := s.export.WriteRows(f, rows); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

// LookupTransaction returns one transaction as the API sent it.
func (s *FetchService) LookupTransaction(ctx context.Context, transactionID string) (json.RawMessage, error) {
	raw, err := s.api.GetTransaction(ctx, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction %s: %w", transactionID, err)
	}
	return raw, nil
}
