package ingest

import (
	"context"
	"testing"
)

func TestMissingIDsPreservesOrder(t *testing.T) {
	t.Parallel()

	docs := newFakeDocs()
	docs.docs["Story:hn:2"] = struct{}{}
	docs.docs["Story:hn:4"] = struct{}{}

	dedup := NewDeduplicator(docs, DataSourceHN)

	missing, err := dedup.MissingIDs(context.Background(), "Story", []string{"1", "2", "3", "4", "5"})
	if err != nil {
		t.Fatalf("MissingIDs: %v", err)
	}

	want := []string{"1", "3", "5"}
	if len(missing) != len(want) {
		t.Fatalf("got %d ids, want %d: %v", len(missing), len(want), missing)
	}
	for i, id := range missing {
		if id != want[i] {
			t.Fatalf("missing[%d] = %q, want %q", i, id, want[i])
		}
	}
}

func TestMissingIDsEmptyInput(t *testing.T) {
	t.Parallel()

	dedup := NewDeduplicator(newFakeDocs(), DataSourceHN)

	missing, err := dedup.MissingIDs(context.Background(), "Comment", nil)
	if err != nil {
		t.Fatalf("MissingIDs: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("got %v, want empty", missing)
	}
}
