package csvsource

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/SscSPs/bank_importers/internal/apperrors"
	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/SscSPs/bank_importers/internal/core/ports"
	"github.com/shopspring/decimal"
	"golang.org/x/text/transform"
)

// Source reads bank CSV exports described by a Layout.
type Source struct {
	layout Layout
}

// Ensure Source implements ports.RecordSource
var _ ports.RecordSource = (*Source)(nil)

// New creates a Source for layout.
func New(layout Layout) *Source {
	return &Source{layout: layout}
}

// ForSource returns the record source for a named bank.
func ForSource(name string) (ports.RecordSource, error) {
	switch name {
	case "monzo":
		return New(MonzoLayout()), nil
	case "nationwide":
		return New(NationwideLayout()), nil
	default:
		return nil, fmt.Errorf("no CSV layout for source %q: %w", name, apperrors.ErrValidation)
	}
}

// Identify reports whether the file at path has the source's layout.
// Unreadable files are never identified.
func (s *Source) Identify(path string) bool {
	if s.layout.Signature == nil {
		return s.layout.Identify(path, "")
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var r io.Reader = f
	if s.layout.Encoding != nil {
		r = transform.NewReader(r, s.layout.Encoding.NewDecoder())
	}
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false
	}
	return s.layout.Identify(path, strings.TrimRight(line, "\r\n"))
}

// Read parses every data row of the file at path.
func (s *Source) Read(ctx context.Context, path string) ([]domain.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	return s.Parse(ctx, f, path)
}

// Parse reads records from r. name is recorded as the file of each record.
func (s *Source) Parse(ctx context.Context, r io.Reader, name string) ([]domain.Record, error) {
	if s.layout.Encoding != nil {
		r = transform.NewReader(r, s.layout.Encoding.NewDecoder())
	}
	br := bufio.NewReader(r)
	for i := 0; i < s.layout.HeaderLines; i++ {
		if _, err := br.ReadString('\n'); err != nil {
			if errors.Is(err, io.EOF) {
				return nil, nil
			}
			return nil, fmt.Errorf("%s: failed to skip header: %w", name, err)
		}
	}

	cr := csv.NewReader(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var names map[string]int
	if s.layout.HasNames {
		header, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read column names: %w", name, err)
		}
		names = make(map[string]int, len(header))
		for i, h := range header {
			names[strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))] = i
		}
	}

	var records []domain.Record
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		line, _ := cr.FieldPos(0)
		line += s.layout.HeaderLines
		if isBlank(row) {
			continue
		}

		rec, err := s.record(row, names)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", name, line, err)
		}
		rec.File = name
		rec.Line = line
		records = append(records, rec)
	}
	return records, nil
}

func (s *Source) record(row []string, names map[string]int) (domain.Record, error) {
	rec := domain.Record{Fields: make(map[string]string, len(s.layout.Columns))}
	for field, col := range s.layout.Columns {
		if field == domain.FieldAmount && s.layout.splitAmount() {
			continue
		}
		v, err := s.value(row, names, col, field)
		if err != nil {
			return domain.Record{}, err
		}
		rec.Fields[field] = v
	}

	date, err := time.Parse(s.layout.DateFormat, rec.Fields[domain.FieldDate])
	if err != nil {
		return domain.Record{}, fmt.Errorf("invalid date %q: %w", rec.Fields[domain.FieldDate], err)
	}
	rec.Date = date

	amount, err := s.amount(row, names, rec.Fields)
	if err != nil {
		return domain.Record{}, err
	}
	rec.Amount = amount

	rec.Payee = rec.Fields[domain.FieldPayee]
	rec.Narration = rec.Fields[domain.FieldNarration]
	rec.Currency = rec.Fields[domain.FieldCurrency]
	rec.Link = rec.Fields[domain.FieldLink]
	return rec, nil
}

func (s *Source) amount(row []string, names map[string]int, fields map[string]string) (decimal.Decimal, error) {
	if !s.layout.splitAmount() {
		return parseDecimal(fields[domain.FieldAmount])
	}

	credit, err := s.value(row, names, *s.layout.Credit, domain.FieldAmount)
	if err != nil {
		return decimal.Zero, err
	}
	debit, err := s.value(row, names, *s.layout.Debit, domain.FieldAmount)
	if err != nil {
		return decimal.Zero, err
	}

	switch {
	case credit != "" && debit != "":
		return decimal.Zero, fmt.Errorf("both credit %q and debit %q are set", credit, debit)
	case credit != "":
		return parseDecimal(credit)
	case debit != "":
		d, err := parseDecimal(debit)
		return d.Neg(), err
	default:
		return decimal.Zero, errors.New("neither credit nor debit is set")
	}
}

// value returns the trimmed, substituted content of col.
func (s *Source) value(row []string, names map[string]int, col Column, field string) (string, error) {
	idx := col.Index
	if col.Name != "" {
		i, ok := names[col.Name]
		if !ok {
			return "", fmt.Errorf("missing column %q", col.Name)
		}
		idx = i
	}
	if idx < 0 || idx >= len(row) {
		return "", fmt.Errorf("row has no column %s", col)
	}

	v := strings.TrimSpace(row[idx])
	if re, ok := s.layout.Subs[field]; ok {
		v = re.ReplaceAllString(v, "")
	}
	return v, nil
}

func parseDecimal(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", v, err)
	}
	return d, nil
}

func isBlank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
