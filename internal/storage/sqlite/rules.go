package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/centimo/centimo/internal/models"
)

const ruleColumns = "id, pattern, category_id, display_name, created_at, last_modified, deleted"

func scanRule(row interface{ Scan(...any) error }) (*models.Rule, error) {
	r := &models.Rule{}
	var createdAt, lastModified int64
	err := row.Scan(&r.ID, &r.Pattern, &r.CategoryID, &r.DisplayName, &createdAt, &lastModified, &r.Deleted)
	if err != nil {
		return nil, err
	}
	r.CreatedAt = fromMillis(createdAt)
	r.LastModified = fromMillis(lastModified)
	return r, nil
}

// GetRule returns the rule with the given ID, tombstones included, or nil if
// no such row exists.
func (s *SQLiteStore) GetRule(ctx context.Context, id string) (*models.Rule, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+ruleColumns+" FROM rules WHERE id = ?", id)
	r, err := scanRule(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get rule: %w", err)
	}
	return r, nil
}

// ListRules returns all live rules.
func (s *SQLiteStore) ListRules(ctx context.Context) ([]models.Rule, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+ruleColumns+" FROM rules WHERE deleted = 0 ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	defer rows.Close()

	var rules []models.Rule
	for rows.Next() {
		r, err := scanRule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rule: %w", err)
		}
		rules = append(rules, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rules: %w", err)
	}
	return rules, nil
}

// PutRule inserts or overwrites a rule, with the same LastModified guard as
// PutCategory.
func (s *SQLiteStore) PutRule(ctx context.Context, r *models.Rule) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO rules (id, pattern, category_id, display_name, created_at, last_modified, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			pattern = excluded.pattern,
			category_id = excluded.category_id,
			display_name = excluded.display_name,
			last_modified = excluded.last_modified,
			deleted = excluded.deleted
		WHERE excluded.last_modified >= rules.last_modified`,
		r.ID, r.Pattern, r.CategoryID, r.DisplayName,
		toMillis(r.CreatedAt), toMillis(r.LastModified), r.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to put rule: %w", err)
	}
	return nil
}
