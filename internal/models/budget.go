package models

import "time"

// Budget represents a monthly spending limit for one category.
// Budgets are low-cardinality user configuration; they merge by plain
// last-write-wins with no content-based deduplication.
type Budget struct {
	// ID is the unique identifier for the budget (UUID format).
	ID string `json:"id"`

	// CategoryID is the category this budget applies to. After any merge it
	// must reference a live category or be empty.
	CategoryID string `json:"categoryId,omitempty"`

	// Month is the budget month in "2006-01" form.
	Month string `json:"month"`

	// Limit is the spending limit for the month.
	Limit float64 `json:"limit"`

	// CreatedAt is when the budget was created on its origin device.
	CreatedAt time.Time `json:"createdAt"`

	// LastModified is the sync conflict tie-breaker.
	LastModified time.Time `json:"_lastModified"`

	// Deleted is the soft-delete tombstone flag.
	Deleted bool `json:"_deleted,omitempty"`
}
