package domain

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultFlag marks a completed ledger transaction.
const DefaultFlag = "*"

// Amount is a number of units of a single currency or commodity.
type Amount struct {
	Number   decimal.Decimal `json:"number"`
	Currency string          `json:"currency"`
}

// Neg returns the amount with its sign flipped.
func (a Amount) Neg() Amount {
	return Amount{Number: a.Number.Neg(), Currency: a.Currency}
}

// Meta is free-form key/value metadata attached to transactions and postings.
type Meta map[string]string

// Posting represents one leg of a Transaction, affecting one account.
type Posting struct {
	Account string  `json:"account"`
	Units   *Amount `json:"units"`           // Nil when the amount is left to be inferred
	Cost    *Amount `json:"cost,omitempty"`  // Nullable
	Price   *Amount `json:"price,omitempty"` // Nullable
	Flag    string  `json:"flag,omitempty"`
	Meta    Meta    `json:"meta,omitempty"`
}

// Transaction is a dated double-entry record composed of postings.
// Tags and Links are sets; their insertion order carries no meaning.
type Transaction struct {
	Date      time.Time           `json:"date"`
	Flag      string              `json:"flag"`
	Payee     string              `json:"payee"`
	Narration string              `json:"narration"`
	Tags      map[string]struct{} `json:"tags"`
	Links     map[string]struct{} `json:"links"`
	Meta      Meta                `json:"meta"`
	Postings  []Posting           `json:"postings"`
}

// NewTransaction creates a transaction with initialised sets and metadata.
func NewTransaction(date time.Time, payee, narration string) *Transaction {
	return &Transaction{
		Date:      date,
		Flag:      DefaultFlag,
		Payee:     payee,
		Narration: narration,
		Tags:      map[string]struct{}{},
		Links:     map[string]struct{}{},
		Meta:      Meta{},
	}
}

// AddTags adds every non-empty tag to the transaction's tag set.
func (t *Transaction) AddTags(tags ...string) {
	if t.Tags == nil {
		t.Tags = map[string]struct{}{}
	}
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		t.Tags[tag] = struct{}{}
	}
}

// HasTag reports whether tag is in the transaction's tag set.
func (t *Transaction) HasTag(tag string) bool {
	_, ok := t.Tags[tag]
	return ok
}

// AddLinks adds every non-empty link to the transaction's link set.
func (t *Transaction) AddLinks(links ...string) {
	if t.Links == nil {
		t.Links = map[string]struct{}{}
	}
	for _, link := range links {
		if link == "" {
			continue
		}
		t.Links[link] = struct{}{}
	}
}

// SortedTags returns the tag set in lexical order.
func (t *Transaction) SortedTags() []string {
	return sortedKeys(t.Tags)
}

// SortedLinks returns the link set in lexical order.
func (t *Transaction) SortedLinks() []string {
	return sortedKeys(t.Links)
}

// FirstUnits returns the units of the first posting, or nil if there is none.
func (t *Transaction) FirstUnits() *Amount {
	if len(t.Postings) == 0 {
		return nil
	}
	return t.Postings[0].Units
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
