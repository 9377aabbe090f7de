package ingest

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/ritsuke/hyperion/internal/hnclient"
)

func newTestService(source *fakeSource, graphStore *fakeGraph, series *fakeSeries, docs *fakeDocs) *Service {
	return NewService(source, graphStore, series, docs, zerolog.Nop(), 4)
}

func TestProcessNewStoriesIsIdempotent(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.ids = []string{"1", "2"}
	source.stories["1"] = &hnclient.Story{By: "alice", ID: 1, Score: 3, Time: 1700000000, Title: "First", URL: "https://example.com/a"}
	source.stories["2"] = &hnclient.Story{By: "bob", ID: 2, Score: 5, Time: 1700000100, Title: "Second"}
	source.users["alice"] = &hnclient.User{ID: "alice", Karma: 10, Created: 1600000000}
	source.users["bob"] = &hnclient.User{ID: "bob", Karma: 20, Created: 1600000001}

	graphStore := newFakeGraph()
	series := newFakeSeries()
	docs := newFakeDocs()
	svc := newTestService(source, graphStore, series, docs)

	first, err := svc.ProcessNewStories(context.Background(), 0)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.NewStoriesSaved != 2 || first.NewUsersSaved != 2 {
		t.Fatalf("first run = %+v, want 2 stories and 2 users", first)
	}

	second, err := svc.ProcessNewStories(context.Background(), 0)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.NewStoriesSaved != 0 || second.NewUsersSaved != 0 {
		t.Fatalf("second run = %+v, want nothing new", second)
	}

	if len(graphStore.stories) != 2 {
		t.Fatalf("got %d story nodes, want 2", len(graphStore.stories))
	}
	if _, ok := graphStore.stories["hn:1"]; !ok {
		t.Fatal("story hn:1 was not upserted")
	}
	if got := graphStore.urls["example.com"]; got != "https://example.com/a" {
		t.Fatalf("url node address = %q", got)
	}
	// Self posts hang off the source domain.
	if _, ok := graphStore.urls[hnclient.SourceDomain]; !ok {
		t.Fatal("self post url node missing")
	}
}

func TestProcessNewStoriesHonorsLimit(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.ids = []string{"1", "2", "3"}
	source.stories["1"] = &hnclient.Story{By: "alice", ID: 1, Time: 1700000000, Title: "Only one"}
	source.users["alice"] = &hnclient.User{ID: "alice", Karma: 10}

	svc := newTestService(source, newFakeGraph(), newFakeSeries(), newFakeDocs())

	result, err := svc.ProcessNewStories(context.Background(), 1)
	if err != nil {
		t.Fatalf("ProcessNewStories: %v", err)
	}
	if result.NewStoriesSaved != 1 {
		t.Fatalf("saved %d stories, want 1", result.NewStoriesSaved)
	}
}

func TestProcessNewStoriesAppendsWeightedSample(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.ids = []string{"7"}
	source.stories["7"] = &hnclient.Story{By: "carol", ID: 7, Score: 10, Descendants: 5, Time: 1700000000, Title: "Weighted"}
	source.users["carol"] = &hnclient.User{ID: "carol", Karma: 1}

	series := newFakeSeries()
	svc := newTestService(source, newFakeGraph(), series, newFakeDocs())

	if _, err := svc.ProcessNewStories(context.Background(), 0); err != nil {
		t.Fatalf("ProcessNewStories: %v", err)
	}

	samples := series.samples["hn:7"]
	if len(samples) != 1 || samples[0] != 15 {
		t.Fatalf("samples = %v, want [15]", samples)
	}
	labels := series.ensured["hn:7"]
	if labels.Story != "hn:7" || labels.User != "carol" {
		t.Fatalf("labels = %+v", labels)
	}
}

func TestRefreshUserUpdatesChangedKarma(t *testing.T) {
	t.Parallel()

	source := newFakeSource()
	source.users["dave"] = &hnclient.User{ID: "dave", Karma: 50, Created: 1600000000}

	graphStore := newFakeGraph()
	docs := newFakeDocs()
	svc := newTestService(source, graphStore, newFakeSeries(), docs)

	isNew, err := svc.refreshUser(context.Background(), "dave")
	if err != nil {
		t.Fatalf("first refresh: %v", err)
	}
	if !isNew {
		t.Fatal("first refresh should report a new user")
	}

	source.mu.Lock()
	source.users["dave"].Karma = 75
	source.mu.Unlock()

	isNew, err = svc.refreshUser(context.Background(), "dave")
	if err != nil {
		t.Fatalf("second refresh: %v", err)
	}
	if isNew {
		t.Fatal("second refresh should not report a new user")
	}
	if got := graphStore.users["dave"].Score; got != 75 {
		t.Fatalf("stored score = %d, want 75", got)
	}
}
