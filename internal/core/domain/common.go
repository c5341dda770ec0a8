package domain

const (
	// UncategorizedAccount receives every posting no rule could place.
	// Entries posted here need manual review.
	UncategorizedAccount = "Expenses:FIXME"

	// RecurringTag marks standing orders and direct debits.
	RecurringTag = "recurring"

	// SourceDescMetaKey holds the bank narration as it was before categorisation.
	SourceDescMetaKey = "source_desc"

	// UnknownPayee is used when no payee can be derived from an API transaction.
	UnknownPayee = "UNKNOWN"

	// PotIDMetaKey is the API metadata key that references a pot.
	PotIDMetaKey = "pot_id"
)
