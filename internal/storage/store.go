// Package storage provides abstractions for persistent data storage.
package storage

import (
	"context"
	"time"

	"github.com/centimo/centimo/internal/models"
)

// Store defines the interface the sync engine requires from the local store.
// This abstraction allows swapping storage backends (SQLite, PostgreSQL, etc.)
// without changing the merge engine or the connection manager.
//
// Reads exclude soft-deleted rows unless stated otherwise; ChangedSince and
// AllData include them so tombstones propagate to peers.
type Store interface {
	// ChangedSince returns every record (tombstones included) whose
	// LastModified is strictly after since.
	ChangedSince(ctx context.Context, since time.Time) (*models.ChangeSet, error)

	// AllData returns every record in the store, tombstones included.
	AllData(ctx context.Context) (*models.ChangeSet, error)

	// SyncState returns the device's sync bookkeeping, creating it with a
	// fresh device ID on first call.
	SyncState(ctx context.Context) (*models.SyncState, error)

	// UpdateSyncState applies a partial update to the sync bookkeeping.
	UpdateSyncState(ctx context.Context, patch models.SyncStatePatch) error

	// GetCategory returns the category with the given ID, deleted or not,
	// or nil if no such row exists.
	GetCategory(ctx context.Context, id string) (*models.Category, error)

	// FindCategoryByName returns the live (non-deleted) category with the
	// given name, or nil if there is none.
	FindCategoryByName(ctx context.Context, name string) (*models.Category, error)

	// ListCategories returns all live categories.
	ListCategories(ctx context.Context) ([]models.Category, error)

	// PutCategory inserts or overwrites a category. The write is dropped if
	// the stored row already carries a newer LastModified, so a merge can
	// never regress the timestamp.
	PutCategory(ctx context.Context, c *models.Category) error

	// GetTransaction returns the transaction with the given ID, deleted or
	// not, or nil if no such row exists.
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)

	// ListLiveTransactions returns all live transactions. The merge engine
	// builds its content-dedup index from this.
	ListLiveTransactions(ctx context.Context) ([]models.Transaction, error)

	// PutTransaction inserts or overwrites a transaction, with the same
	// LastModified guard as PutCategory.
	PutTransaction(ctx context.Context, t *models.Transaction) error

	// GetBudget returns the budget with the given ID, or nil when absent.
	GetBudget(ctx context.Context, id string) (*models.Budget, error)

	// ListBudgets returns all live budgets.
	ListBudgets(ctx context.Context) ([]models.Budget, error)

	// PutBudget inserts or overwrites a budget, with the same LastModified
	// guard as PutCategory.
	PutBudget(ctx context.Context, b *models.Budget) error

	// GetRule returns the rule with the given ID, or nil when absent.
	GetRule(ctx context.Context, id string) (*models.Rule, error)

	// ListRules returns all live rules.
	ListRules(ctx context.Context) ([]models.Rule, error)

	// PutRule inserts or overwrites a rule, with the same LastModified guard
	// as PutCategory.
	PutRule(ctx context.Context, r *models.Rule) error

	// Close releases any resources held by the store.
	Close() error
}
