package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/centimo/centimo/internal/models"
)

const transactionColumns = "id, date, description, amount, category_id, category_confidence, import_source, created_at, last_modified, deleted"

func scanTransaction(row interface{ Scan(...any) error }) (*models.Transaction, error) {
	t := &models.Transaction{}
	var date, createdAt, lastModified int64
	err := row.Scan(&t.ID, &date, &t.Description, &t.Amount, &t.CategoryID,
		&t.CategoryConfidence, &t.ImportSource, &createdAt, &lastModified, &t.Deleted)
	if err != nil {
		return nil, err
	}
	t.Date = fromMillis(date)
	t.CreatedAt = fromMillis(createdAt)
	t.LastModified = fromMillis(lastModified)
	return t, nil
}

// GetTransaction returns the transaction with the given ID, tombstones
// included, or nil if no such row exists.
func (s *SQLiteStore) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = ?", id)
	t, err := scanTransaction(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return t, nil
}

// ListLiveTransactions returns all live transactions ordered by date.
func (s *SQLiteStore) ListLiveTransactions(ctx context.Context) ([]models.Transaction, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE deleted = 0 ORDER BY date, id")
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	var transactions []models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// PutTransaction inserts or overwrites a transaction, with the same
// LastModified guard as PutCategory.
func (s *SQLiteStore) PutTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (id, date, description, amount, category_id, category_confidence, import_source, created_at, last_modified, deleted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			date = excluded.date,
			description = excluded.description,
			amount = excluded.amount,
			category_id = excluded.category_id,
			category_confidence = excluded.category_confidence,
			import_source = excluded.import_source,
			last_modified = excluded.last_modified,
			deleted = excluded.deleted
		WHERE excluded.last_modified >= transactions.last_modified`,
		t.ID, toMillis(t.Date), t.Description, t.Amount, t.CategoryID,
		t.CategoryConfidence, t.ImportSource,
		toMillis(t.CreatedAt), toMillis(t.LastModified), t.Deleted,
	)
	if err != nil {
		return fmt.Errorf("failed to put transaction: %w", err)
	}
	return nil
}
