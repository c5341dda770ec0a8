package domain

import (
	"encoding/json"
	"time"
)

// BankAccount is an account as listed by the banking API.
type BankAccount struct {
	ID          string    `json:"id"`
	Description string    `json:"description"`
	Type        string    `json:"type"`
	Currency    string    `json:"currency"`
	Closed      bool      `json:"closed"`
	Created     time.Time `json:"created"`
}

// Pot is a savings sub-account of a BankAccount. Only its name is of interest,
// to turn pot ids found in transaction metadata into readable payees.
type Pot struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Balance  int64  `json:"balance"`
	Currency string `json:"currency"`
	Closed   bool   `json:"closed"`
	Deleted  bool   `json:"deleted"`
}

// IsClosed reports whether the pot is closed or deleted.
func (p Pot) IsClosed() bool {
	return p.Closed || p.Deleted
}

// Merchant is the optional merchant object expanded on a transaction.
type Merchant struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

// Counterparty is the other side of a bank transfer.
type Counterparty struct {
	Name          string `json:"name"`
	AccountNumber string `json:"account_number,omitempty"`
	SortCode      string `json:"sort_code,omitempty"`
	UserID        string `json:"user_id,omitempty"`
}

// RawTransaction is a transaction exactly as returned by the banking API.
// Amount is signed and expressed in minor units (e.g. pence).
type RawTransaction struct {
	ID            string            `json:"id"`
	Created       time.Time         `json:"created"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Description   string            `json:"description"`
	Notes         string            `json:"notes"`
	Category      string            `json:"category"`
	Merchant      *Merchant         `json:"-"`
	Counterparty  *Counterparty     `json:"counterparty"`
	Metadata      map[string]string `json:"metadata"`
	DeclineReason string            `json:"decline_reason,omitempty"`

	// Raw keeps the undecoded record for lookups that print it verbatim.
	Raw json.RawMessage `json:"-"`
}

// rawTransactionAlias avoids recursion in UnmarshalJSON.
type rawTransactionAlias RawTransaction

// UnmarshalJSON decodes a transaction whose merchant field is either an expanded
// object or a bare merchant id string, depending on the request's expand[] parameter.
func (t *RawTransaction) UnmarshalJSON(data []byte) error {
	var aux struct {
		rawTransactionAlias
		Merchant json.RawMessage `json:"merchant"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = RawTransaction(aux.rawTransactionAlias)
	t.Raw = append(json.RawMessage(nil), data...)

	if len(aux.Merchant) > 0 && aux.Merchant[0] == '{' {
		var m Merchant
		if err := json.Unmarshal(aux.Merchant, &m); err != nil {
			return err
		}
		t.Merchant = &m
	}
	return nil
}

// PotID returns the pot id recorded in the metadata, if any.
func (t RawTransaction) PotID() (string, bool) {
	id, ok := t.Metadata[PotIDMetaKey]
	if !ok || id == "" {
		return "", false
	}
	return id, true
}

// Declined reports whether the transaction is a declined authorisation.
func (t RawTransaction) Declined() bool {
	return t.DeclineReason != ""
}
