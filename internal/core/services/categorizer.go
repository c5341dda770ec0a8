package services

import (
	"fmt"
	"strings"

	"github.com/SscSPs/bank_importers/internal/core/domain"
	"github.com/SscSPs/bank_importers/internal/utils/accounting"
)

// PayeeMatch selects how payee table keys are compared with a transaction payee.
type PayeeMatch int

const (
	// MatchExact requires the payee to equal the table key.
	MatchExact PayeeMatch = iota
	// MatchPrefix requires the payee to start with the table key; the longest key wins.
	MatchPrefix
)

const (
	standingOrderNarration = "Standing order"
	directDebitPrefix      = "Direct debit"
	hashtagPrefix          = "#"
)

// Rules describe how one bank source is categorised. They are plain data; a
// Categorizer copies them so later changes to the maps have no effect.
type Rules struct {
	// Payees maps payee names to accounts, compared according to PayeeMatch.
	Payees     map[string]string
	PayeeMatch PayeeMatch

	// Categories maps the bank-supplied category to an expense account.
	// Only consulted for outflows.
	Categories map[string]string

	// SignBranch splits resolution between outflows (amount <= 0) and inflows.
	// Without it the payee table applies regardless of sign.
	SignBranch bool

	// SavingsPayees route inflows to SavingsAccount.
	SavingsPayees  []string
	SavingsAccount string
	// SavingsGatedByIgnoreCategories disables the savings route when the account
	// ignores bank categories.
	SavingsGatedByIgnoreCategories bool

	// HashtagTags turns "#word" tokens in the narration into tags.
	HashtagTags bool

	// InterestPrefix marks narrations of accrued interest. Such transactions are
	// posted against InterestIncomeRoot followed by the account path minus its root.
	InterestPrefix     string
	InterestIncomeRoot string

	// DropZeroAmount discards rows that move no money.
	DropZeroAmount bool
}

// Options are the per-account settings of an importer.
type Options struct {
	// Account is the ledger account the bank-side posting goes to.
	Account string
	// IgnoreBankCategories skips the bank category table.
	IgnoreBankCategories bool
	// ByPayee overrides the payee table for this account only.
	ByPayee map[string]string
}

// Categorizer appends the offsetting posting to imported transactions.
type Categorizer struct {
	rules         Rules
	payees        map[string]string
	categories    map[string]string
	savingsPayees map[string]struct{}
}

// NewCategorizer creates a categorizer for rules. extraPayees are merged into
// the rules' payee table, with the rules' own entries taking precedence.
func NewCategorizer(rules Rules, extraPayees map[string]string) *Categorizer {
	c := &Categorizer{
		rules:         rules,
		payees:        make(map[string]string, len(rules.Payees)+len(extraPayees)),
		categories:    make(map[string]string, len(rules.Categories)),
		savingsPayees: make(map[string]struct{}, len(rules.SavingsPayees)),
	}
	for k, v := range extraPayees {
		c.payees[k] = v
	}
	for k, v := range rules.Payees {
		c.payees[k] = v
	}
	for k, v := range rules.Categories {
		c.categories[k] = v
	}
	for _, p := range rules.SavingsPayees {
		c.savingsPayees[p] = struct{}{}
	}
	c.rules.Payees = nil
	c.rules.Categories = nil
	c.rules.SavingsPayees = nil
	return c
}

// Skip reports whether txn should be dropped before categorisation.
func (c *Categorizer) Skip(txn *domain.Transaction) bool {
	if !c.rules.DropZeroAmount {
		return false
	}
	units := txn.FirstUnits()
	return units != nil && units.Number.IsZero()
}

// Categorize tags txn, appends the posting that balances its first posting and
// records the original narration in its metadata. category is the bank-supplied
// category of the row, empty when the source has none.
// Every path ends on some account; unmatched transactions go to domain.UncategorizedAccount.
func (c *Categorizer) Categorize(txn *domain.Transaction, category string, opts Options) (*domain.Transaction, error) {
	if txn.FirstUnits() == nil {
		return nil, fmt.Errorf("categorize %q: transaction has no bank-side posting", txn.Narration)
	}
	narration := txn.Narration

	txn.AddTags(c.tags(narration)...)

	posting, err := accounting.OffsettingPosting(txn, c.resolveAccount(txn, category, opts))
	if err != nil {
		return nil, fmt.Errorf("categorize %q: %w", narration, err)
	}
	txn.Postings = append(txn.Postings, posting)

	if txn.Meta == nil {
		txn.Meta = domain.Meta{}
	}
	txn.Meta[domain.SourceDescMetaKey] = narration
	return txn, nil
}

func (c *Categorizer) tags(narration string) []string {
	var tags []string
	if narration == standingOrderNarration || strings.HasPrefix(narration, directDebitPrefix) {
		tags = append(tags, domain.RecurringTag)
	}
	if c.rules.HashtagTags {
		for _, tok := range strings.Split(narration, " ") {
			if strings.HasPrefix(tok, hashtagPrefix) {
				tags = append(tags, strings.TrimPrefix(tok, hashtagPrefix))
			}
		}
	}
	return tags
}

func (c *Categorizer) resolveAccount(txn *domain.Transaction, category string, opts Options) string {
	if c.rules.InterestPrefix != "" && strings.HasPrefix(txn.Narration, c.rules.InterestPrefix) {
		return c.interestAccount(opts.Account)
	}

	if !c.rules.SignBranch {
		if account, ok := c.lookupPayee(txn.Payee, opts.ByPayee); ok {
			return account
		}
		return domain.UncategorizedAccount
	}

	if txn.FirstUnits().Number.Sign() <= 0 {
		if account, ok := c.lookupPayee(txn.Payee, opts.ByPayee); ok {
			return account
		}
		if !opts.IgnoreBankCategories {
			if account, ok := c.categories[category]; ok {
				return account
			}
		}
		return domain.UncategorizedAccount
	}

	if c.rules.SavingsGatedByIgnoreCategories && opts.IgnoreBankCategories {
		return domain.UncategorizedAccount
	}
	if _, ok := c.savingsPayees[txn.Payee]; ok && c.rules.SavingsAccount != "" {
		return c.rules.SavingsAccount
	}
	return domain.UncategorizedAccount
}

// lookupPayee consults the account overrides before the shared payee table.
func (c *Categorizer) lookupPayee(payee string, overrides map[string]string) (string, bool) {
	if account, ok := c.match(payee, overrides); ok {
		return account, true
	}
	return c.match(payee, c.payees)
}

func (c *Categorizer) match(payee string, table map[string]string) (string, bool) {
	if c.rules.PayeeMatch == MatchExact {
		account, ok := table[payee]
		return account, ok && account != ""
	}

	best, account := -1, ""
	for key, acct := range table {
		if acct == "" || !strings.HasPrefix(payee, key) {
			continue
		}
		if len(key) > best {
			best, account = len(key), acct
		}
	}
	return account, best >= 0
}

// interestAccount swaps the root of account for the interest income root,
// e.g. Assets:Nationwide:Personal becomes Income:Uncategorized:Nationwide:Personal.
func (c *Categorizer) interestAccount(account string) string {
	parts := strings.Split(account, ":")
	root := c.rules.InterestIncomeRoot
	if root == "" {
		root = "Income"
	}
	if len(parts) < 2 {
		return root
	}
	return root + ":" + strings.Join(parts[1:], ":")
}

// MonzoCategories maps the categories found in Monzo exports to expense accounts.
func MonzoCategories() map[string]string {
	return map[string]string{
		"Eating out":    "Expenses:EatingOut",
		"Groceries":     "Expenses:Groceries",
		"Shopping":      "Expenses:Shopping",
		"Accommodation": "Expenses:Accommodation",
		"Bills":         "Expenses:Bills",
		"Hobbies":       "Expenses:Hobbies",
		"Wellness":      "Expenses:Wellness",
		"Transport":     "Expenses:Transport",
		"Travel":        "Expenses:Travel",
		"Entertainment": "Expenses:Entertainment",
		"Donations":     "Expenses:Donations",
	}
}

// MonzoRules returns the rule set for Monzo CSV exports.
func MonzoRules() Rules {
	return Rules{
		PayeeMatch:                     MatchExact,
		Categories:                     MonzoCategories(),
		SignBranch:                     true,
		SavingsPayees:                  []string{"Savings Pot", "Savings Monzo Pot"},
		SavingsAccount:                 "Assets:Monzo:Personal:Savings",
		SavingsGatedByIgnoreCategories: true,
		HashtagTags:                    true,
		DropZeroAmount:                 true,
	}
}

// NationwideRules returns the rule set for Nationwide statement exports.
func NationwideRules() Rules {
	return Rules{
		Payees: map[string]string{
			"ATM Withdrawal": "Assets:Physical:Cash",
			"O2":             "Expenses:Bills:Phone",
		},
		PayeeMatch:         MatchPrefix,
		InterestPrefix:     "Interest added",
		InterestIncomeRoot: "Income:Uncategorized",
	}
}
