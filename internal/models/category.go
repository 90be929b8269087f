package models

import "time"

// Category represents a spending category.
type Category struct {
	// ID is the unique identifier for the category (UUID format).
	ID string `json:"id"`

	// Name is the display name (e.g., "Food", "Transport").
	// At most one live category per name may exist on a device after a merge;
	// duplicates are collapsed by the merge engine.
	Name string `json:"name"`

	// Color is the display color as a hex string (e.g., "#e76f51").
	Color string `json:"color,omitempty"`

	// Icon is the display icon identifier.
	Icon string `json:"icon,omitempty"`

	// IsSystem marks built-in categories that the UI does not allow deleting.
	IsSystem bool `json:"isSystem,omitempty"`

	// CreatedAt is when the category was created on its origin device.
	// Category deduplication keeps the oldest duplicate as canonical.
	CreatedAt time.Time `json:"createdAt"`

	// LastModified is the sync conflict tie-breaker.
	LastModified time.Time `json:"_lastModified"`

	// Deleted is the soft-delete tombstone flag.
	Deleted bool `json:"_deleted,omitempty"`
}
