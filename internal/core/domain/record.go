package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Logical field names a CSV layout can map columns to.
const (
	FieldDate      = "date"
	FieldNarration = "narration"
	FieldPayee     = "payee"
	FieldAmount    = "amount"
	FieldCurrency  = "currency"
	FieldCategory  = "category"
	FieldLink      = "link"
	FieldTxType    = "tx_type"
	FieldBalance   = "balance"
)

// Record is one bank export row normalised into transaction-like fields.
// Fields keeps every mapped column as read, keyed by logical field name.
type Record struct {
	File      string
	Line      int
	Date      time.Time
	Payee     string
	Narration string
	Amount    decimal.Decimal
	Currency  string // Empty when the export has no currency column
	Link      string
	Fields    map[string]string
}

// Field returns a mapped column value, or "" when the layout does not map it.
func (r Record) Field(name string) string {
	return r.Fields[name]
}
