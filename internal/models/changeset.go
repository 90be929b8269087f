package models

// ChangeSet is the per-entity-kind bundle of changed records exchanged during
// a sync. It is the payload of a SYNC_DATA message and the unit the merge
// engine consumes. Deleted records are included so tombstones propagate.
type ChangeSet struct {
	Categories   []Category    `json:"categories,omitempty"`
	Transactions []Transaction `json:"transactions,omitempty"`
	Budgets      []Budget      `json:"budgets,omitempty"`
	Rules        []Rule        `json:"rules,omitempty"`
}

// Count returns the total number of records across all entity kinds.
func (cs *ChangeSet) Count() int {
	if cs == nil {
		return 0
	}
	return len(cs.Categories) + len(cs.Transactions) + len(cs.Budgets) + len(cs.Rules)
}

// Empty reports whether the change set carries no records at all.
func (cs *ChangeSet) Empty() bool {
	return cs.Count() == 0
}
