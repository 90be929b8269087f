package merge

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/centimo/centimo/internal/models"
)

// dedupIndex groups live transactions by (date, amount) so candidate
// duplicates are found without comparing every pair. Description matching is
// done per candidate: normalized strings must be equal or one must contain
// the other ("MERCADONA OVIEDO" vs "Mercadona Oviedo  centro").
type dedupIndex struct {
	byKey map[string][]*models.Transaction
}

func newDedupIndex(existing []models.Transaction) *dedupIndex {
	idx := &dedupIndex{byKey: make(map[string][]*models.Transaction, len(existing))}
	for i := range existing {
		idx.add(&existing[i])
	}
	return idx
}

func dedupKey(t *models.Transaction) string {
	return t.Date.UTC().Format("2006-01-02") + "|" + strconv.FormatFloat(t.Amount, 'f', 2, 64)
}

// normalizeDescription lower-cases and collapses runs of whitespace.
func normalizeDescription(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func (idx *dedupIndex) add(t *models.Transaction) {
	key := dedupKey(t)
	idx.byKey[key] = append(idx.byKey[key], t)
}

// replace swaps an overwritten row for its new version in the index.
func (idx *dedupIndex) replace(old, updated *models.Transaction) {
	key := dedupKey(old)
	bucket := idx.byKey[key]
	for i, cand := range bucket {
		if cand.ID == old.ID {
			idx.byKey[key] = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}
	if !updated.Deleted {
		idx.add(updated)
	}
}

// findDuplicate returns the existing transaction that t duplicates, or nil.
func (idx *dedupIndex) findDuplicate(t *models.Transaction) *models.Transaction {
	incoming := normalizeDescription(t.Description)
	for _, cand := range idx.byKey[dedupKey(t)] {
		local := normalizeDescription(cand.Description)
		if local == incoming || strings.Contains(local, incoming) || strings.Contains(incoming, local) {
			return cand
		}
	}
	return nil
}

// DedupCategories collapses live categories that share a name: the oldest is
// kept as canonical, every transaction/budget/rule foreign key pointing at a
// duplicate is rewritten to the canonical ID, and the duplicate is
// soft-deleted. Safe to run any time, typically at startup; it does not need
// an active sync.
func (e *Engine) DedupCategories(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	categories, err := e.store.ListCategories(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list categories: %w", err)
	}

	// ListCategories orders by creation time, so the first of each name is
	// the canonical survivor.
	canonical := make(map[string]string, len(categories))
	remap := make(map[string]string)
	var losers []models.Category
	for _, c := range categories {
		keep, ok := canonical[c.Name]
		if !ok {
			canonical[c.Name] = c.ID
			continue
		}
		remap[c.ID] = keep
		losers = append(losers, c)
	}
	if len(remap) == 0 {
		return 0, nil
	}

	if err := e.rewriteCategoryRefs(ctx, remap); err != nil {
		return 0, err
	}

	now := e.now()
	for i := range losers {
		losers[i].Deleted = true
		losers[i].LastModified = now
		if err := e.store.PutCategory(ctx, &losers[i]); err != nil {
			return 0, fmt.Errorf("failed to soft-delete duplicate category %s: %w", losers[i].ID, err)
		}
	}

	slog.Info("Collapsed duplicate categories", "collapsed", len(losers))
	return len(losers), nil
}

// rewriteCategoryRefs repoints every live foreign key listed in remap.
func (e *Engine) rewriteCategoryRefs(ctx context.Context, remap map[string]string) error {
	now := e.now()

	transactions, err := e.store.ListLiveTransactions(ctx)
	if err != nil {
		return fmt.Errorf("failed to list transactions: %w", err)
	}
	for i := range transactions {
		t := transactions[i]
		keep, ok := remap[t.CategoryID]
		if !ok {
			continue
		}
		t.CategoryID = keep
		t.LastModified = now
		if err := e.store.PutTransaction(ctx, &t); err != nil {
			return fmt.Errorf("failed to rewrite transaction %s: %w", t.ID, err)
		}
	}

	budgets, err := e.store.ListBudgets(ctx)
	if err != nil {
		return fmt.Errorf("failed to list budgets: %w", err)
	}
	for i := range budgets {
		b := budgets[i]
		keep, ok := remap[b.CategoryID]
		if !ok {
			continue
		}
		b.CategoryID = keep
		b.LastModified = now
		if err := e.store.PutBudget(ctx, &b); err != nil {
			return fmt.Errorf("failed to rewrite budget %s: %w", b.ID, err)
		}
	}

	rules, err := e.store.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("failed to list rules: %w", err)
	}
	for i := range rules {
		r := rules[i]
		keep, ok := remap[r.CategoryID]
		if !ok {
			continue
		}
		r.CategoryID = keep
		r.LastModified = now
		if err := e.store.PutRule(ctx, &r); err != nil {
			return fmt.Errorf("failed to rewrite rule %s: %w", r.ID, err)
		}
	}
	return nil
}
