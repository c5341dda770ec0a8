package accounting

import (
	"errors"
	"fmt"
	"sort"

	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/shopspring/decimal"
)

// minorUnitExponent is the decimal exponent of the banking API's minor units (pence, cents).
const minorUnitExponent = -2

// MinorToMajor converts a signed amount in minor units into major units.
// Example: -450 returns -4.50
func MinorToMajor(minor int64) decimal.Decimal {
	return decimal.New(minor, minorUnitExponent)
}

// OffsettingPosting builds the posting that balances the first posting of txn.
// Cost, price, flag and metadata stay empty.
func OffsettingPosting(txn *domain.Transaction, account string) (domain.Posting, error) {
	units := txn.FirstUnits()
	if units == nil {
		return domain.Posting{}, fmt.Errorf("transaction on %s has no units on its first posting", txn.Date.Format("2006-01-02"))
	}
	neg := units.Neg()
	return domain.Posting{Account: account, Units: &neg}, nil
}

// SumPostings adds up the posting units per currency. Postings without units are skipped.
func SumPostings(postings []domain.Posting) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal)
	for _, p := range postings {
		if p.Units == nil {
			continue
		}
		sums[p.Units.Currency] = sums[p.Units.Currency].Add(p.Units.Number)
	}
	return sums
}

// ErrUnbalanced is returned when a transaction's postings do not sum to zero.
var ErrUnbalanced = errors.New("transaction is unbalanced")

// ValidateBalanced checks that the postings of txn sum to zero in every currency.
func ValidateBalanced(txn *domain.Transaction) error {
	if len(txn.Postings) < 2 {
		return fmt.Errorf("%w: %d posting(s)", ErrUnbalanced, len(txn.Postings))
	}
	sums := SumPostings(txn.Postings)
	currencies := make([]string, 0, len(sums))
	for c := range sums {
		currencies = append(currencies, c)
	}
	sort.Strings(currencies)
	for _, c := range currencies {
		if !sums[c].IsZero() {
			return fmt.Errorf("%w: postings sum to %s %s", ErrUnbalanced, sums[c].String(), c)
		}
	}
	return nil
}
