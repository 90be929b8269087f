package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/centimo/centimo/internal/models"
)

// ChangedSince returns every record whose LastModified is strictly after
// since, tombstones included. A zero since returns the full history.
func (s *SQLiteStore) ChangedSince(ctx context.Context, since time.Time) (*models.ChangeSet, error) {
	return s.collectChanges(ctx, " WHERE last_modified > ?", toMillis(since))
}

// AllData returns every record in the store, tombstones included.
func (s *SQLiteStore) AllData(ctx context.Context) (*models.ChangeSet, error) {
	return s.collectChanges(ctx, "")
}

func (s *SQLiteStore) collectChanges(ctx context.Context, where string, args ...any) (*models.ChangeSet, error) {
	cs := &models.ChangeSet{}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories"+where+" ORDER BY last_modified, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to collect category changes: %w", err)
	}
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan category change: %w", err)
		}
		cs.Categories = append(cs.Categories, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate category changes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions"+where+" ORDER BY last_modified, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to collect transaction changes: %w", err)
	}
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan transaction change: %w", err)
		}
		cs.Transactions = append(cs.Transactions, *t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transaction changes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT "+budgetColumns+" FROM budgets"+where+" ORDER BY last_modified, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to collect budget changes: %w", err)
	}
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan budget change: %w", err)
		}
		cs.Budgets = append(cs.Budgets, *b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budget changes: %w", err)
	}

	rows, err = s.db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM rules"+where+" ORDER BY last_modified, id", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to collect rule changes: %w", err)
	}
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan rule change: %w", err)
		}
		cs.Rules = append(cs.Rules, *r)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rule changes: %w", err)
	}

	return cs, nil
}
