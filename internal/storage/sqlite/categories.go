package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/centimo/centimo/internal/models"
)

const categoryColumns = "id, name, color, icon, is_system, created_at, last_modified, deleted"

func scanCategory(row interface{ Scan(...any) error }) (*models.Category, error) {
	c := &models.Category{}
	var createdAt, lastModified int64
	err := row.Scan(&c.ID, &c.Name, &c.Color, &c.Icon, &c.IsSystem, &createdAt, &lastModified, &c.Deleted)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(createdAt)
	c.LastModified = fromMillis(lastModified)
	return c, nil
}

// GetCategory returns the category with the given ID, tombstones included,
// or nil if no such row exists.
func (s *SQLiteStore) GetCategory(ctx context.Context, id string) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE id = ?", id)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get category: %w", err)
	}
	return c, nil
}

// FindCategoryByName returns the live category with the given name, or nil.
// If duplicates exist (possible until the dedup pass runs), the oldest wins.
func (s *SQLiteStore) FindCategoryByName(ctx context.Context, name string) (*models.Category, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE name = ? AND deleted = 0 ORDER BY created_at, id LIMIT 1",
		name)
	c, err := scanCategory(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category by name: %w", err)
	}
	return c, nil
}

// ListCategories returns all live categories.
func (s *SQLiteStore) ListCategories(ctx context.Context) ([]models.Category, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+categoryColumns+" FROM categories WHERE deleted = 0 ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []models.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}
	return categories, nil
}

// PutCategory inserts or overwrites a category. The overwrite only applies if
// the incoming LastModified is not older than the stored one, so a merge can
// never move a row's timestamp backwards.
func (s *SQLiteStore) PutCategory(ctx context.Context, c *models.Category) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO categories (id, name, color, icon, is_system, created_at, last_modified, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			color = excluded.color,
			icon = excluded.icon,
			is_system = excluded.is_system,
			last_modified = excluded.last_modified,
			deleted = excluded.deleted
		WHERE excluded.last_modified >= categories.last_modified`,
		c.ID, c.Name, c.Color, c.Icon, c.IsSystem,
		toMillis(c.CreatedAt), toMillis(c.LastModified), c.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to put category: %w", err)
	}
	return nil
}
