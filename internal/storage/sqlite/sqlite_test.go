package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/centimo/centimo/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tempDir, err := os.MkdirTemp("", "centimo-test-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tempDir) })

	store, err := New(filepath.Join(tempDir, "test.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	t.Run("SyncState generates device ID on first call", func(t *testing.T) {
		st, err := store.SyncState(ctx)
		if err != nil {
			t.Fatalf("SyncState failed: %v", err)
		}
		if st.DeviceID == "" {
			t.Error("Expected device ID to be generated")
		}
		if !st.LastSyncTimestamp.IsZero() {
			t.Errorf("Expected zero watermark, got %v", st.LastSyncTimestamp)
		}

		again, err := store.SyncState(ctx)
		if err != nil {
			t.Fatalf("SyncState failed: %v", err)
		}
		if again.DeviceID != st.DeviceID {
			t.Errorf("Device ID changed between calls: %s vs %s", again.DeviceID, st.DeviceID)
		}
	})

	t.Run("UpdateSyncState patches only set fields", func(t *testing.T) {
		ts := base
		if err := store.UpdateSyncState(ctx, models.SyncStatePatch{LastSyncTimestamp: &ts}); err != nil {
			t.Fatalf("UpdateSyncState failed: %v", err)
		}
		code := "ABC234"
		if err := store.UpdateSyncState(ctx, models.SyncStatePatch{RoomCode: &code}); err != nil {
			t.Fatalf("UpdateSyncState failed: %v", err)
		}

		st, err := store.SyncState(ctx)
		if err != nil {
			t.Fatalf("SyncState failed: %v", err)
		}
		if !st.LastSyncTimestamp.Equal(ts) {
			t.Errorf("Watermark mismatch: got %v, want %v", st.LastSyncTimestamp, ts)
		}
		if st.RoomCode != code {
			t.Errorf("Room code mismatch: got %s, want %s", st.RoomCode, code)
		}
	})

	t.Run("PutCategory round trip", func(t *testing.T) {
		c := &models.Category{
			ID:           "cat-1",
			Name:         "Food",
			Color:        "#e76f51",
			Icon:         "cart",
			CreatedAt:    base,
			LastModified: base,
		}
		if err := store.PutCategory(ctx, c); err != nil {
			t.Fatalf("PutCategory failed: %v", err)
		}

		got, err := store.GetCategory(ctx, "cat-1")
		if err != nil {
			t.Fatalf("GetCategory failed: %v", err)
		}
		if got == nil {
			t.Fatal("Expected category, got nil")
		}
		if got.Name != "Food" || got.Color != "#e76f51" || got.Icon != "cart" {
			t.Errorf("Category fields mismatch: %+v", got)
		}
		if !got.LastModified.Equal(base) {
			t.Errorf("LastModified mismatch: got %v, want %v", got.LastModified, base)
		}
	})

	t.Run("GetCategory returns nil for unknown ID", func(t *testing.T) {
		got, err := store.GetCategory(ctx, "missing")
		if err != nil {
			t.Fatalf("GetCategory failed: %v", err)
		}
		if got != nil {
			t.Errorf("Expected nil, got %+v", got)
		}
	})

	t.Run("PutCategory drops stale writes", func(t *testing.T) {
		stale := &models.Category{
			ID:           "cat-1",
			Name:         "Old Food",
			CreatedAt:    base,
			LastModified: base.Add(-time.Hour),
		}
		if err := store.PutCategory(ctx, stale); err != nil {
			t.Fatalf("PutCategory failed: %v", err)
		}
		got, err := store.GetCategory(ctx, "cat-1")
		if err != nil {
			t.Fatalf("GetCategory failed: %v", err)
		}
		if got.Name != "Food" {
			t.Errorf("Stale write overwrote newer row: got name %s", got.Name)
		}
	})

	t.Run("FindCategoryByName skips deleted and prefers oldest", func(t *testing.T) {
		older := &models.Category{
			ID:           "cat-2",
			Name:         "Transport",
			CreatedAt:    base.Add(-48 * time.Hour),
			LastModified: base,
		}
		newer := &models.Category{
			ID:           "cat-3",
			Name:         "Transport",
			CreatedAt:    base,
			LastModified: base,
		}
		deleted := &models.Category{
			ID:           "cat-4",
			Name:         "Gone",
			CreatedAt:    base,
			LastModified: base,
			Deleted:      true,
		}
		for _, c := range []*models.Category{older, newer, deleted} {
			if err := store.PutCategory(ctx, c); err != nil {
				t.Fatalf("PutCategory failed: %v", err)
			}
		}

		got, err := store.FindCategoryByName(ctx, "Transport")
		if err != nil {
			t.Fatalf("FindCategoryByName failed: %v", err)
		}
		if got == nil || got.ID != "cat-2" {
			t.Errorf("Expected oldest duplicate cat-2, got %+v", got)
		}

		gone, err := store.FindCategoryByName(ctx, "Gone")
		if err != nil {
			t.Fatalf("FindCategoryByName failed: %v", err)
		}
		if gone != nil {
			t.Errorf("Expected deleted category to be invisible, got %+v", gone)
		}
	})

	t.Run("Transaction round trip preserves fields", func(t *testing.T) {
		tx := &models.Transaction{
			ID:                 "tx-1",
			Date:               base,
			Description:        "MERCADONA OVIEDO",
			Amount:             -12.50,
			CategoryID:         "cat-1",
			CategoryConfidence: 0.92,
			ImportSource:       "bank.csv",
			CreatedAt:          base,
			LastModified:       base,
		}
		if err := store.PutTransaction(ctx, tx); err != nil {
			t.Fatalf("PutTransaction failed: %v", err)
		}

		got, err := store.GetTransaction(ctx, "tx-1")
		if err != nil {
			t.Fatalf("GetTransaction failed: %v", err)
		}
		if got == nil {
			t.Fatal("Expected transaction, got nil")
		}
		if got.Amount != -12.50 || got.Description != "MERCADONA OVIEDO" {
			t.Errorf("Transaction fields mismatch: %+v", got)
		}
		if got.CategoryConfidence != 0.92 {
			t.Errorf("Confidence mismatch: got %v", got.CategoryConfidence)
		}
		if !got.Date.Equal(base) {
			t.Errorf("Date mismatch: got %v, want %v", got.Date, base)
		}
	})

	t.Run("ListLiveTransactions excludes tombstones", func(t *testing.T) {
		dead := &models.Transaction{
			ID:           "tx-dead",
			Date:         base,
			Description:  "refunded",
			Amount:       -5,
			CreatedAt:    base,
			LastModified: base,
			Deleted:      true,
		}
		if err := store.PutTransaction(ctx, dead); err != nil {
			t.Fatalf("PutTransaction failed: %v", err)
		}

		live, err := store.ListLiveTransactions(ctx)
		if err != nil {
			t.Fatalf("ListLiveTransactions failed: %v", err)
		}
		for _, tx := range live {
			if tx.ID == "tx-dead" {
				t.Error("Tombstone leaked into live transaction list")
			}
		}
	})

	t.Run("Budget and rule round trips", func(t *testing.T) {
		b := &models.Budget{
			ID:           "bud-1",
			CategoryID:   "cat-1",
			Month:        "2024-03",
			Limit:        300,
			CreatedAt:    base,
			LastModified: base,
		}
		if err := store.PutBudget(ctx, b); err != nil {
			t.Fatalf("PutBudget failed: %v", err)
		}
		gotB, err := store.GetBudget(ctx, "bud-1")
		if err != nil {
			t.Fatalf("GetBudget failed: %v", err)
		}
		if gotB == nil || gotB.Month != "2024-03" || gotB.Limit != 300 {
			t.Errorf("Budget mismatch: %+v", gotB)
		}

		r := &models.Rule{
			ID:           "rule-1",
			Pattern:      "mercadona",
			CategoryID:   "cat-1",
			DisplayName:  "Groceries",
			CreatedAt:    base,
			LastModified: base,
		}
		if err := store.PutRule(ctx, r); err != nil {
			t.Fatalf("PutRule failed: %v", err)
		}
		gotR, err := store.GetRule(ctx, "rule-1")
		if err != nil {
			t.Fatalf("GetRule failed: %v", err)
		}
		if gotR == nil || gotR.Pattern != "mercadona" || gotR.DisplayName != "Groceries" {
			t.Errorf("Rule mismatch: %+v", gotR)
		}
	})
}

func TestChangedSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

	old := &models.Category{ID: "cat-old", Name: "Old", CreatedAt: base, LastModified: base}
	fresh := &models.Category{ID: "cat-new", Name: "New", CreatedAt: base, LastModified: base.Add(time.Hour)}
	tomb := &models.Transaction{
		ID: "tx-tomb", Date: base, Description: "gone", Amount: -1,
		CreatedAt: base, LastModified: base.Add(time.Hour), Deleted: true,
	}
	if err := store.PutCategory(ctx, old); err != nil {
		t.Fatalf("PutCategory failed: %v", err)
	}
	if err := store.PutCategory(ctx, fresh); err != nil {
		t.Fatalf("PutCategory failed: %v", err)
	}
	if err := store.PutTransaction(ctx, tomb); err != nil {
		t.Fatalf("PutTransaction failed: %v", err)
	}

	t.Run("strictly after the watermark", func(t *testing.T) {
		cs, err := store.ChangedSince(ctx, base)
		if err != nil {
			t.Fatalf("ChangedSince failed: %v", err)
		}
		if len(cs.Categories) != 1 || cs.Categories[0].ID != "cat-new" {
			t.Errorf("Expected only cat-new, got %+v", cs.Categories)
		}
		if len(cs.Transactions) != 1 || !cs.Transactions[0].Deleted {
			t.Errorf("Expected the tombstone to propagate, got %+v", cs.Transactions)
		}
	})

	t.Run("zero watermark returns everything", func(t *testing.T) {
		cs, err := store.ChangedSince(ctx, time.Time{})
		if err != nil {
			t.Fatalf("ChangedSince failed: %v", err)
		}
		if got := cs.Count(); got != 3 {
			t.Errorf("Expected 3 records, got %d", got)
		}
	})

	t.Run("AllData matches epoch query", func(t *testing.T) {
		all, err := store.AllData(ctx)
		if err != nil {
			t.Fatalf("AllData failed: %v", err)
		}
		if got := all.Count(); got != 3 {
			t.Errorf("Expected 3 records, got %d", got)
		}
	})
}
