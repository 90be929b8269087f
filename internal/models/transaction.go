package models

import "time"

// Transaction represents a single ledger movement, usually imported from a
// bank statement. Negative amounts are expenses, positive amounts income.
type Transaction struct {
	// ID is the unique identifier for the transaction (UUID format).
	ID string `json:"id"`

	// Date is the value date of the movement.
	Date time.Time `json:"date"`

	// Description is the raw statement text (e.g., "MERCADONA OVIEDO").
	// Cross-device duplicate detection compares normalized descriptions.
	Description string `json:"description"`

	// Amount is the signed amount in the account currency.
	Amount float64 `json:"amount"`

	// CategoryID is an optional foreign key to a Category. After any merge it
	// must reference a live category or be empty.
	CategoryID string `json:"categoryId,omitempty"`

	// CategoryConfidence is the categorizer's confidence for CategoryID,
	// in [0, 1]. Cleared together with CategoryID.
	CategoryConfidence float64 `json:"categoryConfidence,omitempty"`

	// ImportSource identifies the statement file or flow this transaction
	// came from, empty for manual entries.
	ImportSource string `json:"importSource,omitempty"`

	// CreatedAt is when the transaction was created on its origin device.
	CreatedAt time.Time `json:"createdAt"`

	// LastModified is the sync conflict tie-breaker.
	LastModified time.Time `json:"_lastModified"`

	// Deleted is the soft-delete tombstone flag.
	Deleted bool `json:"_deleted,omitempty"`
}
