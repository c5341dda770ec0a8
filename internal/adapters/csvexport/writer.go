// Package csvexport writes projected banking API transactions as CSV.
package csvexport

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/SscSPs/bank_importers/internal/core/ports"
)

// Writer writes export rows under the fixed header.
type Writer struct{}

// Ensure Writer implements ports.ExportWriter
var _ ports.ExportWriter = (*Writer)(nil)

// NewWriter creates a Writer.
func NewWriter() *Writer {
	return &Writer{}
}

// WriteRows writes the header followed by one record per row.
func (Writer) WriteRows(w io.Writer, rows []domain.ExportRow) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(domain.ExportHeader); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, r := range rows {
		if err := cw.Write(r.Values()); err != nil {
			return fmt.Errorf("failed to write row %s: %w", r.TransactionID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
