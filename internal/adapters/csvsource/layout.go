package csvsource

import (
	"encoding/csv"
	"regexp"
	"strconv"
	"strings"

	"github.com/SscSPs/bank_importers/internal/core/domain"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Column locates a CSV column either by header name or by zero-based index.
// Name takes precedence when set.
type Column struct {
	Name  string
	Index int
}

// Named refers to the column with the given header name.
func Named(name string) Column { return Column{Name: name, Index: -1} }

// Index refers to the column at position i.
func Index(i int) Column { return Column{Index: i} }

func (c Column) String() string {
	if c.Name != "" {
		return c.Name
	}
	return "#" + strconv.Itoa(c.Index)
}

// Layout describes the shape of one bank's CSV export.
type Layout struct {
	Name string

	// Columns maps logical field names (domain.Field*) to CSV columns.
	// FieldAmount is ignored when Credit and Debit are set.
	Columns map[string]Column

	// Credit and Debit, when both set, replace the signed amount column:
	// exactly one of them must hold a value on each row and debits are negated.
	Credit *Column
	Debit  *Column

	// DateFormat is a time.Parse layout.
	DateFormat string

	// Subs holds patterns stripped from a field's raw value before parsing.
	// FieldAmount applies to the amount, credit and debit columns.
	Subs map[string]*regexp.Regexp

	// Encoding of the file; nil means UTF-8.
	Encoding encoding.Encoding

	// HeaderLines are skipped before anything else is read.
	HeaderLines int
	// HasNames marks the first row after the header lines as column names.
	HasNames bool

	// IdentifySuffix is the file name suffix the layout claims. Empty claims any name.
	IdentifySuffix string
	// Signature reports whether the first line of a file, decoded and without
	// its line ending, belongs to this layout. Nil accepts any content.
	Signature func(firstLine string) bool
}

// Identify reports whether a file named path whose first line is firstLine
// has this layout.
func (l Layout) Identify(path, firstLine string) bool {
	if l.IdentifySuffix != "" && !strings.HasSuffix(path, l.IdentifySuffix) {
		return false
	}
	return l.Signature == nil || l.Signature(strings.TrimPrefix(firstLine, "\ufeff"))
}

func (l Layout) splitAmount() bool {
	return l.Credit != nil && l.Debit != nil
}

// MonzoLayout is the CSV export of the Monzo app and of the monzo_fetch tool.
func MonzoLayout() Layout {
	return Layout{
		Name: "monzo",
		Columns: map[string]Column{
			domain.FieldDate:      Named("Date"),
			domain.FieldNarration: Named("Description"),
			domain.FieldPayee:     Named("Name"),
			domain.FieldAmount:    Named("Amount"),
			domain.FieldCurrency:  Named("Currency"),
			domain.FieldCategory:  Named("Category"),
			domain.FieldLink:      Named("Transaction ID"),
		},
		DateFormat:     "2/1/2006",
		HasNames:       true,
		IdentifySuffix: "csv",
		Signature:      hasColumns("Transaction ID", "Category"),
	}
}

// NationwideLayout is the statement download of Nationwide current accounts.
func NationwideLayout() Layout {
	nonNumeric := regexp.MustCompile(`[^\d.]`)
	credit, debit := Index(4), Index(3)
	return Layout{
		Name: "nationwide",
		Columns: map[string]Column{
			domain.FieldDate:      Index(0),
			domain.FieldTxType:    Index(1),
			domain.FieldNarration: Index(2),
			domain.FieldPayee:     Index(2),
			domain.FieldBalance:   Index(5),
		},
		Credit:     &credit,
		Debit:      &debit,
		DateFormat: "2 Jan 2006",
		Subs: map[string]*regexp.Regexp{
			domain.FieldAmount:  nonNumeric,
			domain.FieldBalance: nonNumeric,
		},
		Encoding:    charmap.ISO8859_1,
		HeaderLines: 4,
		HasNames:    true,
		Signature: func(firstLine string) bool {
			return strings.HasPrefix(strings.TrimLeft(firstLine, `"`), "Account Name:")
		},
	}
}

// hasColumns matches a names row holding every one of names.
func hasColumns(names ...string) func(string) bool {
	return func(firstLine string) bool {
		row, err := csv.NewReader(strings.NewReader(firstLine)).Read()
		if err != nil {
			return false
		}
		present := make(map[string]bool, len(row))
		for _, h := range row {
			present[strings.TrimSpace(h)] = true
		}
		for _, n := range names {
			if !present[n] {
				return false
			}
		}
		return true
	}
}
