// Package merge implements the replicated-state merge algorithm: last-write-wins
// per identifier, plus content-based duplicate suppression for transactions and
// name-based deduplication/remapping for categories.
//
// Entity identifiers are generated independently on each device, so two devices
// that created "the same" category or imported "the same" transaction hold
// different IDs for it. The category pass builds an ID remap table that the
// later passes route every foreign key through.
package merge

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/centimo/centimo/internal/models"
	"github.com/centimo/centimo/internal/observability"
	"github.com/centimo/centimo/internal/storage"
)

// Engine reconciles incoming change sets against the local store. It is the
// store's sole writer during a sync; the internal mutex serializes merge
// calls so the find-by-name-else-insert sequence in the category pass cannot
// interleave with another merge.
type Engine struct {
	store storage.Store
	mu    sync.Mutex
	now   func() time.Time
}

// Result summarises one merge call.
type Result struct {
	// Applied counts records inserted or overwritten.
	Applied int
	// Skipped counts records dropped by last-write-wins (local copy newer).
	Skipped int
	// Duplicates counts incoming transactions suppressed as content
	// duplicates of existing rows.
	Duplicates int
	// Remapped counts foreign keys rewritten through the category ID map.
	Remapped int
	// ClearedRefs counts foreign keys cleared because their target category
	// was missing or deleted.
	ClearedRefs int
}

// New creates a merge engine over the given store.
func New(store storage.Store) *Engine {
	return &Engine{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// MergeChanges applies an incoming change set. Processing order is
// significant: categories first so the transaction and budget/rule passes can
// remap foreign keys through the already-merged category set.
//
// Any error aborts the whole call; the caller must not advance its sync
// watermark, so the same range is requested again next session.
func (e *Engine) MergeChanges(ctx context.Context, cs *models.ChangeSet) (*Result, error) {
	if cs == nil {
		return &Result{}, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &Result{}
	idMap, err := e.mergeCategories(ctx, cs.Categories, res)
	if err != nil {
		observability.RecordMergeFailure()
		return nil, err
	}
	if err := e.mergeTransactions(ctx, cs.Transactions, idMap, res); err != nil {
		observability.RecordMergeFailure()
		return nil, err
	}
	if err := e.mergeBudgets(ctx, cs.Budgets, idMap, res); err != nil {
		observability.RecordMergeFailure()
		return nil, err
	}
	if err := e.mergeRules(ctx, cs.Rules, idMap, res); err != nil {
		observability.RecordMergeFailure()
		return nil, err
	}

	observability.RecordMerge(res.Applied, res.Duplicates)
	slog.Debug("Merge completed",
		"applied", res.Applied,
		"skipped", res.Skipped,
		"duplicates", res.Duplicates,
		"remapped", res.Remapped,
		"cleared_refs", res.ClearedRefs,
	)
	return res, nil
}

// mergeCategories merges incoming categories and returns the remap table
// (incoming ID -> retained local ID) for entries matched by name.
func (e *Engine) mergeCategories(ctx context.Context, incoming []models.Category, res *Result) (map[string]string, error) {
	idMap := make(map[string]string)
	for i := range incoming {
		c := incoming[i]
		local, err := e.store.GetCategory(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to merge category %s: %w", c.ID, err)
		}
		if local != nil {
			// Same ID on both devices: plain last-write-wins.
			if c.LastModified.After(local.LastModified) {
				if err := e.store.PutCategory(ctx, &c); err != nil {
					return nil, fmt.Errorf("failed to merge category %s: %w", c.ID, err)
				}
				res.Applied++
			} else {
				res.Skipped++
			}
			continue
		}

		if !c.Deleted {
			existing, err := e.store.FindCategoryByName(ctx, c.Name)
			if err != nil {
				return nil, fmt.Errorf("failed to merge category %s: %w", c.ID, err)
			}
			if existing != nil {
				// Same logical category created independently under a
				// different ID: keep the local row, adopt the newer fields,
				// and remap the incoming ID for the later passes.
				idMap[c.ID] = existing.ID
				if c.LastModified.After(existing.LastModified) {
					existing.Color = c.Color
					existing.Icon = c.Icon
					existing.IsSystem = existing.IsSystem || c.IsSystem
					existing.LastModified = c.LastModified
					if err := e.store.PutCategory(ctx, existing); err != nil {
						return nil, fmt.Errorf("failed to merge category %s: %w", c.ID, err)
					}
					res.Applied++
				} else {
					res.Skipped++
				}
				continue
			}
		}

		if err := e.store.PutCategory(ctx, &c); err != nil {
			return nil, fmt.Errorf("failed to merge category %s: %w", c.ID, err)
		}
		res.Applied++
	}
	return idMap, nil
}

// resolveCategoryRef routes a foreign key through the remap table and clears
// it when the target category is missing or deleted.
func (e *Engine) resolveCategoryRef(ctx context.Context, categoryID string, idMap map[string]string, res *Result) (string, error) {
	if categoryID == "" {
		return "", nil
	}
	if mapped, ok := idMap[categoryID]; ok {
		categoryID = mapped
		res.Remapped++
	}
	cat, err := e.store.GetCategory(ctx, categoryID)
	if err != nil {
		return "", err
	}
	if cat == nil || cat.Deleted {
		res.ClearedRefs++
		return "", nil
	}
	return categoryID, nil
}

func (e *Engine) mergeTransactions(ctx context.Context, incoming []models.Transaction, idMap map[string]string, res *Result) error {
	if len(incoming) == 0 {
		return nil
	}

	// Content-dedup index over the live local transactions. Inserted rows
	// join it so later records in the same batch are checked against them.
	existing, err := e.store.ListLiveTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to index local transactions: %w", err)
	}
	index := newDedupIndex(existing)

	for i := range incoming {
		t := incoming[i]

		ref, err := e.resolveCategoryRef(ctx, t.CategoryID, idMap, res)
		if err != nil {
			return fmt.Errorf("failed to merge transaction %s: %w", t.ID, err)
		}
		if ref == "" && t.CategoryID != "" {
			t.CategoryConfidence = 0
		}
		t.CategoryID = ref

		local, err := e.store.GetTransaction(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("failed to merge transaction %s: %w", t.ID, err)
		}
		if local != nil {
			if t.LastModified.After(local.LastModified) {
				if err := e.store.PutTransaction(ctx, &t); err != nil {
					return fmt.Errorf("failed to merge transaction %s: %w", t.ID, err)
				}
				index.replace(local, &t)
				res.Applied++
			} else {
				res.Skipped++
			}
			continue
		}

		if !t.Deleted {
			if dup := index.findDuplicate(&t); dup != nil {
				// Same real-world movement imported on both devices under
				// different IDs: keep one row. If only the incoming copy is
				// categorized, backfill the local one.
				res.Duplicates++
				if t.CategoryID != "" && dup.CategoryID == "" {
					dup.CategoryID = t.CategoryID
					dup.CategoryConfidence = t.CategoryConfidence
					dup.LastModified = e.now()
					if err := e.store.PutTransaction(ctx, dup); err != nil {
						return fmt.Errorf("failed to backfill transaction %s: %w", dup.ID, err)
					}
					res.Applied++
				}
				continue
			}
		}

		if err := e.store.PutTransaction(ctx, &t); err != nil {
			return fmt.Errorf("failed to merge transaction %s: %w", t.ID, err)
		}
		if !t.Deleted {
			index.add(&t)
		}
		res.Applied++
	}
	return nil
}

func (e *Engine) mergeBudgets(ctx context.Context, incoming []models.Budget, idMap map[string]string, res *Result) error {
	for i := range incoming {
		b := incoming[i]
		ref, err := e.resolveCategoryRef(ctx, b.CategoryID, idMap, res)
		if err != nil {
			return fmt.Errorf("failed to merge budget %s: %w", b.ID, err)
		}
		b.CategoryID = ref

		local, err := e.store.GetBudget(ctx, b.ID)
		if err != nil {
			return fmt.Errorf("failed to merge budget %s: %w", b.ID, err)
		}
		if local != nil && !b.LastModified.After(local.LastModified) {
			res.Skipped++
			continue
		}
		if err := e.store.PutBudget(ctx, &b); err != nil {
			return fmt.Errorf("failed to merge budget %s: %w", b.ID, err)
		}
		res.Applied++
	}
	return nil
}

func (e *Engine) mergeRules(ctx context.Context, incoming []models.Rule, idMap map[string]string, res *Result) error {
	for i := range incoming {
		r := incoming[i]
		ref, err := e.resolveCategoryRef(ctx, r.CategoryID, idMap, res)
		if err != nil {
			return fmt.Errorf("failed to merge rule %s: %w", r.ID, err)
		}
		r.CategoryID = ref

		local, err := e.store.GetRule(ctx, r.ID)
		if err != nil {
			return fmt.Errorf("failed to merge rule %s: %w", r.ID, err)
		}
		if local != nil && !r.LastModified.After(local.LastModified) {
			res.Skipped++
			continue
		}
		if err := e.store.PutRule(ctx, &r); err != nil {
			return fmt.Errorf("failed to merge rule %s: %w", r.ID, err)
		}
		res.Applied++
	}
	return nil
}
