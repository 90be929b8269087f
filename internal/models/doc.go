// Package models defines the core domain models for Centimo.
//
// # Sync Envelope
//
// Every synchronized entity carries the same three envelope fields:
//   - ID: generated locally at creation time (UUID format). Two devices that
//     create "the same" real-world entity independently will hold different IDs;
//     the merge engine reconciles them by content, not by ID.
//   - LastModified: bumped on every local mutation. It is the sole conflict
//     tie-breaker (last write wins) and must never move backwards for a given ID.
//   - Deleted: soft-delete flag. Deletions are represented as updates so they
//     propagate to peers like any other change; deleted rows stay in the store
//     as tombstones and are excluded from all query surfaces.
//
// # Entity Kinds
//
//   - Category: user- or system-defined spending category
//   - Transaction: a single ledger movement, optionally categorized
//   - Budget: a monthly spending limit for one category
//   - Rule: an auto-categorization rule
//
// SyncState is local-only bookkeeping and is never itself synchronized.
//
// JSON tags follow the wire protocol field names (camelCase, with the
// underscore-prefixed envelope fields), so a ChangeSet marshals directly into
// the SYNC_DATA payload.
package models
