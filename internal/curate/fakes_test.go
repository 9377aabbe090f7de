package curate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/enrich"
	"github.com/ritsuke/hyperion/internal/graph"
)

type fakeGraph struct {
	metas      map[string]graph.StoryMeta
	threads    map[string][]graph.ThreadStat
	provenance map[string][2]string
	authors    map[string]string
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		metas:      map[string]graph.StoryMeta{},
		threads:    map[string][]graph.ThreadStat{},
		provenance: map[string][2]string{},
		authors:    map[string]string{},
	}
}

func (f *fakeGraph) StoryMeta(ctx context.Context, storyID string) (graph.StoryMeta, error) {
	meta, ok := f.metas[storyID]
	if !ok {
		return graph.StoryMeta{}, fmt.Errorf("story meta %q: %w", storyID, graph.ErrNotFound)
	}
	return meta, nil
}

func (f *fakeGraph) TopCommentThreads(ctx context.Context, storyID string, limit int) ([]graph.ThreadStat, error) {
	threads := f.threads[storyID]
	if len(threads) > limit {
		threads = threads[:limit]
	}
	return append([]graph.ThreadStat(nil), threads...), nil
}

func (f *fakeGraph) StoryProvenance(ctx context.Context, storyID string) (string, string, error) {
	pair, ok := f.provenance[storyID]
	if !ok {
		return "", "", fmt.Errorf("story provenance %q: %w", storyID, graph.ErrNotFound)
	}
	return pair[0], pair[1], nil
}

func (f *fakeGraph) CommentAuthor(ctx context.Context, commentID string) (string, error) {
	author, ok := f.authors[commentID]
	if !ok {
		return "", fmt.Errorf("comment author %q: %w", commentID, graph.ErrNotFound)
	}
	return author, nil
}

type fakeSeries struct {
	daily map[string]float64
}

func (f *fakeSeries) DailyMaxByStory(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	out := make(map[string]float64, len(f.daily))
	for k, v := range f.daily {
		out[k] = v
	}
	return out, nil
}

type fakeDocs struct {
	mu     sync.Mutex
	json   map[string]any
	blobs  map[string]any
	leases map[string]struct{}
	hits   []docstore.StoryHit
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{
		json:   map[string]any{},
		blobs:  map[string]any{},
		leases: map[string]struct{}{},
	}
}

func (f *fakeDocs) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.json[key]; ok {
		return true, nil
	}
	_, ok := f.blobs[key]
	return ok, nil
}

func (f *fakeDocs) GetJSON(ctx context.Context, key string, dest any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.json[key]
	if !ok {
		return fmt.Errorf("document %q: %w", key, docstore.ErrNotFound)
	}
	if doc, ok := value.(docstore.StoryDoc); ok {
		if target, ok := dest.(*docstore.StoryDoc); ok {
			*target = doc
			return nil
		}
	}
	if doc, ok := value.(docstore.CommentDoc); ok {
		if target, ok := dest.(*docstore.CommentDoc); ok {
			*target = doc
			return nil
		}
	}
	return fmt.Errorf("document %q: unsupported destination", key)
}

func (f *fakeDocs) SetJSON(ctx context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.json[key] = value
	return nil
}

func (f *fakeDocs) SetBlob(ctx context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[key] = value
	return nil
}

func (f *fakeDocs) SearchStories(ctx context.Context, query string, limit int) ([]docstore.StoryHit, error) {
	hits := f.hits
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return append([]docstore.StoryHit(nil), hits...), nil
}

func (f *fakeDocs) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, held := f.leases[key]; held {
		return false, nil
	}
	f.leases[key] = struct{}{}
	return true, nil
}

func (f *fakeDocs) ReleaseLease(ctx context.Context, key string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.leases, key)
}

type fakeImages struct {
	photo *enrich.Photo
	err   error
	calls int
}

func (f *fakeImages) Search(ctx context.Context, query string) (*enrich.Photo, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.photo, nil
}
