package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/centimo/centimo/internal/models"
)

const budgetColumns = "id, category_id, month, spending_limit, created_at, last_modified, deleted"

func scanBudget(row interface{ Scan(...any) error }) (*models.Budget, error) {
	b := &models.Budget{}
	var createdAt, lastModified int64
	err := row.Scan(&b.ID, &b.CategoryID, &b.Month, &b.Limit, &createdAt, &lastModified, &b.Deleted)
	if err != nil {
		return nil, err
	}
	b.CreatedAt = fromMillis(createdAt)
	b.LastModified = fromMillis(lastModified)
	return b, nil
}

// GetBudget returns the budget with the given ID, tombstones included,
// or nil if no such row exists.
func (s *SQLiteStore) GetBudget(ctx context.Context, id string) (*models.Budget, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+budgetColumns+" FROM budgets WHERE id = ?", id)
	b, err := scanBudget(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get budget: %w", err)
	}
	return b, nil
}

// ListBudgets returns all live budgets.
func (s *SQLiteStore) ListBudgets(ctx context.Context) ([]models.Budget, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+budgetColumns+" FROM budgets WHERE deleted = 0 ORDER BY month, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list budgets: %w", err)
	}
	defer rows.Close()

	var budgets []models.Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		budgets = append(budgets, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate budgets: %w", err)
	}
	return budgets, nil
}

// PutBudget inserts or overwrites a budget, with the same LastModified guard
// as PutCategory.
func (s *SQLiteStore) PutBudget(ctx context.Context, b *models.Budget) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO budgets (id, category_id, month, spending_limit, created_at, last_modified, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			category_id = excluded.category_id,
			month = excluded.month,
			spending_limit = excluded.spending_limit,
			last_modified = excluded.last_modified,
			deleted = excluded.deleted
		WHERE excluded.last_modified >= budgets.last_modified`,
		b.ID, b.CategoryID, b.Month, b.Limit,
		toMillis(b.CreatedAt), toMillis(b.LastModified), b.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to put budget: %w", err)
	}
	return nil
}
