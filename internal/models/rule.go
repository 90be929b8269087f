package models

import "time"

// Rule represents an auto-categorization rule applied to imported
// transactions. Like budgets, rules merge by plain last-write-wins.
type Rule struct {
	// ID is the unique identifier for the rule (UUID format).
	ID string `json:"id"`

	// Pattern is the description substring this rule matches against.
	Pattern string `json:"pattern"`

	// CategoryID is the category assigned on a match. After any merge it
	// must reference a live category or be empty.
	CategoryID string `json:"categoryId,omitempty"`

	// DisplayName optionally rewrites the transaction description on a match
	// (e.g., "MERCADONA OVIEDO" -> "Groceries").
	DisplayName string `json:"displayName,omitempty"`

	// CreatedAt is when the rule was created on its origin device.
	CreatedAt time.Time `json:"createdAt"`

	// LastModified is the sync conflict tie-breaker.
	LastModified time.Time `json:"_lastModified"`

	// Deleted is the soft-delete tombstone flag.
	Deleted bool `json:"_deleted,omitempty"`
}
