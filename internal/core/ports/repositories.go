package ports

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/SscSPs/bank_importers/internal/core/domain"
)

// Note: Context is included on every call that may block on I/O.

// RecordSource reads one bank's export format.
type RecordSource interface {
	// Identify reports whether the file at path belongs to this source.
	Identify(path string) bool
	// Read parses every data row of the file at path.
	Read(ctx context.Context, path string) ([]domain.Record, error)
}

// TransactionPageQuery selects one page of an account's transaction history.
type TransactionPageQuery struct {
	AccountID string
	Since     time.Time
	Before    *time.Time // Nullable
	Limit     int
}

// BankAPI is the subset of the remote banking API the fetcher consumes.
type BankAPI interface {
	ListAccounts(ctx context.Context) ([]domain.BankAccount, error)
	ListPots(ctx context.Context, accountID string) ([]domain.Pot, error)
	ListTransactions(ctx context.Context, q TransactionPageQuery) ([]domain.RawTransaction, error)
	GetTransaction(ctx context.Context, transactionID string) (json.RawMessage, error)
}

// TokenStore persists the OAuth access and refresh tokens.
type TokenStore interface {
	// Load returns empty strings for tokens that were never saved.
	Load() (access string, refresh string, err error)
	Save(access, refresh string) error
}

// LedgerWriter renders categorised transactions.
type LedgerWriter interface {
	WriteTransactions(w io.Writer, txns []*domain.Transaction) error
}

// ExportWriter renders projected banking API transactions as CSV.
type ExportWriter interface {
	WriteRows(w io.Writer, rows []domain.ExportRow) error
}
