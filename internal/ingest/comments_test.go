package ingest

import (
	"context"
	"fmt"
	"testing"

	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/hnclient"
)

func TestProcessNewCommentsSavesTree(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.users["alice"] = &hnclient.User{ID: "alice", Karma: 10}
	source.users["bob"] = &hnclient.User{ID: "bob", Karma: 5}
	source.trees["1"] = []hnclient.Comment{
		{
			ID:        100,
			Author:    "alice",
			ParentID:  1,
			CreatedAt: 1700000200,
			Text:      "<p>top level</p>",
			Children: []hnclient.Comment{
				{ID: 101, Author: "bob", ParentID: 100, CreatedAt: 1700000300, Text: "reply"},
			},
		},
	}

	graphStore := newFakeGraph()
	docs := newFakeDocs()
	svc := newTestService(source, graphStore, newFakeSeries(), docs)

	if err := svc.ProcessNewComments(context.Background(), "1"); err != nil {
		t.Fatalf("ProcessNewComments: %v", err)
	}

	if len(graphStore.comments) != 2 {
		t.Fatalf("got %d comment nodes, want 2", len(graphStore.comments))
	}
	if _, ok := docs.docs["Comment:hn:100"]; !ok {
		t.Fatal("comment document hn:100 missing")
	}
	if got := docs.publishedOn(docstore.ChannelComments); got != 2 {
		t.Fatalf("published %d comment messages, want 2", got)
	}

	// Re-running saves nothing new.
	if err := svc.ProcessNewComments(context.Background(), "1"); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if got := docs.publishedOn(docstore.ChannelComments); got != 2 {
		t.Fatalf("second run re-published, total %d messages", got)
	}
}

func TestProcessNewCommentsMissingTreeIsBenign(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.treeErr["1"] = fmt.Errorf("tree: %w", hnclient.ErrItemMissing)

	graphStore := newFakeGraph()
	svc := newTestService(source, graphStore, newFakeSeries(), newFakeDocs())

	if err := svc.ProcessNewComments(context.Background(), "1"); err != nil {
		t.Fatalf("missing tree should be benign, got %v", err)
	}
	if len(graphStore.comments) != 0 {
		t.Fatalf("got %d comment nodes, want 0", len(graphStore.comments))
	}
}

func TestProcessNewCommentsRequiresAuthor(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.trees["1"] = []hnclient.Comment{
		{ID: 100, ParentID: 1, CreatedAt: 1700000200, Text: "orphaned"},
	}

	svc := newTestService(source, newFakeGraph(), newFakeSeries(), newFakeDocs())

	if err := svc.ProcessNewComments(context.Background(), "1"); err == nil {
		t.Fatal("want error for comment without author")
	}
}

func TestProcessNewCommentsSkipsZeroIDs(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.users["alice"] = &hnclient.User{ID: "alice", Karma: 10}
	source.trees["1"] = []hnclient.Comment{
		{ID: 0, Author: "ghost"},
		{ID: 100, Author: "alice", ParentID: 1, CreatedAt: 1700000200, Text: "real"},
	}

	graphStore := newFakeGraph()
	svc := newTestService(source, graphStore, newFakeSeries(), newFakeDocs())

	if err := svc.ProcessNewComments(context.Background(), "1"); err != nil {
		t.Fatalf("ProcessNewComments: %v", err)
	}
	if len(graphStore.comments) != 1 {
		t.Fatalf("got %d comment nodes, want 1", len(graphStore.comments))
	}
}
