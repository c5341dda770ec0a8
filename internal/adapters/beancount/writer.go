// Package beancount renders ledger transactions in beancount's text syntax.
package beancount

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/SscSPs/bank_importers/internal/core/ports"
	"github.com/shopspring/decimal"
)

// hiddenMeta are bookkeeping keys that are not printed.
var hiddenMeta = map[string]struct{}{
	"filename": {},
	"lineno":   {},
}

// Writer prints transactions as beancount directives.
type Writer struct {
	indent string
}

// Ensure Writer implements ports.LedgerWriter
var _ ports.LedgerWriter = (*Writer)(nil)

// NewWriter creates a Writer using the conventional two-space indent.
func NewWriter() *Writer {
	return &Writer{indent: "  "}
}

// WriteTransactions prints txns to w separated by blank lines.
func (wr *Writer) WriteTransactions(w io.Writer, txns []*domain.Transaction) error {
	bw := bufio.NewWriter(w)
	for i, txn := range txns {
		if i > 0 {
			bw.WriteString("\n")
		}
		wr.writeTransaction(bw, txn)
	}
	return bw.Flush()
}

func (wr *Writer) writeTransaction(w *bufio.Writer, txn *domain.Transaction) {
	flag := txn.Flag
	if flag == "" {
		flag = domain.DefaultFlag
	}

	var b strings.Builder
	b.WriteString(txn.Date.Format("2006-01-02"))
	b.WriteString(" ")
	b.WriteString(flag)
	if txn.Payee != "" {
		b.WriteString(" ")
		b.WriteString(quote(txn.Payee))
	}
	b.WriteString(" ")
	b.WriteString(quote(txn.Narration))
	for _, tag := range txn.SortedTags() {
		b.WriteString(" #")
		b.WriteString(tag)
	}
	for _, link := range txn.SortedLinks() {
		b.WriteString(" ^")
		b.WriteString(link)
	}
	w.WriteString(b.String())
	w.WriteString("\n")

	wr.writeMeta(w, txn.Meta, wr.indent)
	for _, p := range txn.Postings {
		w.WriteString(wr.indent)
		w.WriteString(posting(p))
		w.WriteString("\n")
		wr.writeMeta(w, p.Meta, wr.indent+wr.indent)
	}
}

func (wr *Writer) writeMeta(w *bufio.Writer, meta domain.Meta, indent string) {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		if _, hidden := hiddenMeta[k]; hidden {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "%s%s: %s\n", indent, k, quote(meta[k]))
	}
}

func posting(p domain.Posting) string {
	var b strings.Builder
	if p.Flag != "" {
		b.WriteString(p.Flag)
		b.WriteString(" ")
	}
	b.WriteString(p.Account)
	if p.Units != nil {
		b.WriteString("  ")
		b.WriteString(amount(*p.Units))
	}
	if p.Cost != nil {
		b.WriteString(" {")
		b.WriteString(amount(*p.Cost))
		b.WriteString("}")
	}
	if p.Price != nil {
		b.WriteString(" @ ")
		b.WriteString(amount(*p.Price))
	}
	return b.String()
}

func amount(a domain.Amount) string {
	return number(a.Number) + " " + a.Currency
}

// number keeps the scale the amount was parsed with, so 4.50 stays 4.50.
func number(d decimal.Decimal) string {
	if exp := d.Exponent(); exp < 0 {
		return d.StringFixed(-exp)
	}
	return d.String()
}

var quoteReplacer = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func quote(s string) string {
	return `"` + quoteReplacer.Replace(s) + `"`
}
