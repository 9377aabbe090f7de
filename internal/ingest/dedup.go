package ingest

import (
	"context"
	"fmt"

	"github.com/ritsuke/hyperion/internal/docstore"
)

// ExistenceChecker answers batched key-existence checks in one round
// trip.
type ExistenceChecker interface {
	ExistsMany(ctx context.Context, keys []string) ([]bool, error)
}

// Deduplicator filters candidate external IDs down to the ones not yet
// persisted. It is a latency optimization layered over idempotent
// upserts, not a lock: two concurrent runs that both see "missing" merge
// into one node downstream.
type Deduplicator struct {
	docs       ExistenceChecker
	dataSource string
}

func NewDeduplicator(docs ExistenceChecker, dataSource string) *Deduplicator {
	return &Deduplicator{docs: docs, dataSource: dataSource}
}

// MissingIDs returns the subset of native IDs with no stored document,
// preserving the input order.
func (d *Deduplicator) MissingIDs(ctx context.Context, objectType string, nativeIDs []string) ([]string, error) {
	if len(nativeIDs) == 0 {
		return nil, nil
	}

	keys := make([]string, len(nativeIDs))
	for i, id := range nativeIDs {
		keys[i] = docstore.Key(objectType, d.dataSource+":"+id)
	}

	exists, err := d.docs.ExistsMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("dedup %s batch: %w", objectType, err)
	}
	if len(exists) != len(nativeIDs) {
		return nil, fmt.Errorf("dedup %s batch: got %d existence results for %d keys", objectType, len(exists), len(nativeIDs))
	}

	missing := make([]string, 0, len(nativeIDs))
	for i, id := range nativeIDs {
		if !exists[i] {
			missing = append(missing, id)
		}
	}
	return missing, nil
}
