// Formworks - Field Service Forms, Audit and Compliance
// Copyright 2026 Formworks Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/formworks/formworks

package retention

import (
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/formworks/formworks/internal/logging"
)

// defaultHistoryTTL is how long per-run history entries are retained
// before BadgerDB expires them, when no retention is configured.
const defaultHistoryTTL = 365 * 24 * time.Hour

// BadgerHistory persists retention run results in BadgerDB, keyed so a
// policy's runs can be listed in reverse chronological order.
type BadgerHistory struct {
	db  *badger.DB
	ttl time.Duration
}

// OpenBadgerHistory opens (or creates) the history database at path.
// retentionDays bounds the lifetime of history entries; values below 1
// fall back to one year.
func OpenBadgerHistory(path string, retentionDays int) (*BadgerHistory, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB logs

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open retention history: %w", err)
	}
	return &BadgerHistory{db: db, ttl: historyTTL(retentionDays)}, nil
}

// NewBadgerHistory wraps an already open BadgerDB instance with the
// default entry lifetime.
func NewBadgerHistory(db *badger.DB) *BadgerHistory {
	return &BadgerHistory{db: db, ttl: defaultHistoryTTL}
}

func historyTTL(retentionDays int) time.Duration {
	if retentionDays < 1 {
		return defaultHistoryTTL
	}
	return time.Duration(retentionDays) * 24 * time.Hour
}

// historyKey builds a key that sorts runs of one policy newest-first
// when iterated in ascending order.
func historyKey(policyID string, executedAt time.Time) []byte {
	// Inverted timestamp: later runs sort first.
	inverted := int64(1<<62) - executedAt.UnixNano()
	return []byte(fmt.Sprintf("history:%s:%020d", policyID, inverted))
}

// Record stores one run result.
func (h *BadgerHistory) Record(result *ArchiveResult) error {
	if result == nil {
		return fmt.Errorf("result cannot be nil")
	}

	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal run result: %w", err)
	}

	return h.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(historyKey(result.PolicyID, result.ExecutedAt), data).WithTTL(h.ttl)
		return txn.SetEntry(entry)
	})
}

// List returns up to limit runs for a policy, newest first.
func (h *BadgerHistory) List(policyID string, limit int) ([]ArchiveResult, error) {
	if limit <= 0 {
		limit = 50
	}

	prefix := []byte("history:" + policyID + ":")
	var out []ArchiveResult

	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix) && len(out) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var result ArchiveResult
				if err := json.Unmarshal(val, &result); err != nil {
					logging.Warn().Err(err).Msg("Skipping undecodable history entry")
					return nil
				}
				out = append(out, result)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list run history: %w", err)
	}
	return out, nil
}

// Prune removes all history for a policy, used when the policy itself
// is deleted.
func (h *BadgerHistory) Prune(policyID string) error {
	prefix := []byte("history:" + policyID + ":")

	var keys [][]byte
	err := h.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("scan run history: %w", err)
	}

	for _, key := range keys {
		err := h.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(key)
		})
		if err != nil && !strings.Contains(err.Error(), "Key not found") {
			return fmt.Errorf("prune run history: %w", err)
		}
	}
	return nil
}

// RunGC triggers one round of BadgerDB value-log garbage collection.
// Safe to call periodically; a no-rewrite result is not an error.
func (h *BadgerHistory) RunGC() {
	if err := h.db.RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
		logging.Warn().Err(err).Msg("Retention history GC failed")
	}
}

// Close closes the underlying database.
func (h *BadgerHistory) Close() error {
	return h.db.Close()
}
