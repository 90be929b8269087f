package sqlite

import "database/sql"

// schema contains the SQL statements to set up the database.
// These run on startup to ensure tables exist.
// Soft deletes: rows are never physically removed; the deleted flag turns a
// row into a tombstone that still propagates through sync.
const schema = `
CREATE TABLE IF NOT EXISTS categories (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    color TEXT NOT NULL DEFAULT '',
    icon TEXT NOT NULL DEFAULT '',
    is_system INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    last_modified INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS transactions (
    id TEXT PRIMARY KEY,
    date INTEGER NOT NULL,
    description TEXT NOT NULL,
    amount REAL NOT NULL,
    category_id TEXT NOT NULL DEFAULT '',
    category_confidence REAL NOT NULL DEFAULT 0,
    import_source TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    last_modified INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS budgets (
    id TEXT PRIMARY KEY,
    category_id TEXT NOT NULL DEFAULT '',
    month TEXT NOT NULL,
    spending_limit REAL NOT NULL,
    created_at INTEGER NOT NULL,
    last_modified INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS rules (
    id TEXT PRIMARY KEY,
    pattern TEXT NOT NULL,
    category_id TEXT NOT NULL DEFAULT '',
    display_name TEXT NOT NULL DEFAULT '',
    created_at INTEGER NOT NULL,
    last_modified INTEGER NOT NULL,
    deleted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sync_state (
    device_id TEXT NOT NULL,
    last_sync INTEGER NOT NULL DEFAULT 0,
    room_code TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_categories_name ON categories(name) WHERE deleted = 0;
CREATE INDEX IF NOT EXISTS idx_categories_last_modified ON categories(last_modified);
CREATE INDEX IF NOT EXISTS idx_transactions_last_modified ON transactions(last_modified);
CREATE INDEX IF NOT EXISTS idx_transactions_date_amount ON transactions(date, amount) WHERE deleted = 0;
CREATE INDEX IF NOT EXISTS idx_budgets_last_modified ON budgets(last_modified);
CREATE INDEX IF NOT EXISTS idx_rules_last_modified ON rules(last_modified);
`

// runMigrations executes the schema setup.
func runMigrations(db *sql.DB) error {
	_, err := db.Exec(schema)
	return err
}
