package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ritsuke/hyperion/internal/activity"
	"github.com/ritsuke/hyperion/internal/graph"
	"github.com/ritsuke/hyperion/internal/hnclient"
)

type fakeSource struct {
	mu      sync.Mutex
	ids     []string
	stories map[string]*hnclient.Story
	users   map[string]*hnclient.User
	trees   map[string][]hnclient.Comment
	treeErr map[string]error

	storyFetches map[string]int
	treeFetches  map[string]int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		stories:      map[string]*hnclient.Story{},
		users:        map[string]*hnclient.User{},
		trees:        map[string][]hnclient.Comment{},
		treeErr:      map[string]error{},
		storyFetches: map[string]int{},
		treeFetches:  map[string]int{},
	}
}

func (f *fakeSource) NewStoryIDs(ctx context.Context) ([]string, error) {
	return append([]string(nil), f.ids...), nil
}

func (f *fakeSource) Story(ctx context.Context, id string) (*hnclient.Story, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.storyFetches[id]++
	story, ok := f.stories[id]
	if !ok {
		return nil, fmt.Errorf("story %q: %w", id, hnclient.ErrItemMissing)
	}
	copied := *story
	return &copied, nil
}

func (f *fakeSource) User(ctx context.Context, id string) (*hnclient.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", id, hnclient.ErrItemMissing)
	}
	copied := *user
	return &copied, nil
}

func (f *fakeSource) CommentTree(ctx context.Context, storyID string) ([]hnclient.Comment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.treeFetches[storyID]++
	if err, ok := f.treeErr[storyID]; ok {
		return nil, err
	}
	return append([]hnclient.Comment(nil), f.trees[storyID]...), nil
}

type fakeGraph struct {
	mu        sync.Mutex
	stories   map[string]graph.Story
	users     map[string]graph.User
	comments  map[string]graph.Comment
	sources   map[string]struct{}
	urls      map[string]string
	links     []string
	snapshots []graph.StorySnapshot
	updates   []graph.StoryUpdate
	nodeCount int64
}

func newFakeGraph() *fakeGraph {
	return &fakeGraph{
		stories:  map[string]graph.Story{},
		users:    map[string]graph.User{},
		comments: map[string]graph.Comment{},
		sources:  map[string]struct{}{},
		urls:     map[string]string{},
	}
}

func (f *fakeGraph) UpsertStory(ctx context.Context, story graph.Story) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stories[story.ID] = story
	return nil
}

func (f *fakeGraph) UpsertUser(ctx context.Context, user graph.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[user.Name] = user
	return nil
}

func (f *fakeGraph) UpsertComment(ctx context.Context, comment graph.Comment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.comments[comment.ID] = comment
	return nil
}

func (f *fakeGraph) UpsertSource(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sources[name] = struct{}{}
	return nil
}

func (f *fakeGraph) UpsertURL(ctx context.Context, domain, address string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls[domain] = address
	return nil
}

func (f *fakeGraph) link(kind, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.links = append(f.links, kind+":"+from+"->"+to)
	return nil
}

func (f *fakeGraph) LinkUserToStory(ctx context.Context, userName, storyID string) error {
	return f.link("user-story", userName, storyID)
}

func (f *fakeGraph) LinkUserToSource(ctx context.Context, userName, sourceName string) error {
	return f.link("user-source", userName, sourceName)
}

func (f *fakeGraph) LinkSourceToStory(ctx context.Context, sourceName, storyID string) error {
	return f.link("source-story", sourceName, storyID)
}

func (f *fakeGraph) LinkStoryToURL(ctx context.Context, storyID, domain string) error {
	return f.link("story-url", storyID, domain)
}

func (f *fakeGraph) LinkCommentToParent(ctx context.Context, parentID, commentID, userName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.comments[commentID]; !ok {
		return graph.ErrEndpointMissing
	}
	f.links = append(f.links, "comment-parent:"+commentID+"->"+parentID)
	return nil
}

func (f *fakeGraph) StoriesInWindow(ctx context.Context, olderThan, notOlderThan int64, minScore, minCommentTotal int) ([]graph.StorySnapshot, error) {
	return append([]graph.StorySnapshot(nil), f.snapshots...), nil
}

func (f *fakeGraph) ApplyStoryUpdates(ctx context.Context, updates []graph.StoryUpdate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, update := range updates {
		if !update.Empty() {
			f.updates = append(f.updates, update)
		}
	}
	return nil
}

func (f *fakeGraph) UserScore(ctx context.Context, userName string) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[userName]
	if !ok {
		return 0, false, nil
	}
	return user.Score, true, nil
}

func (f *fakeGraph) SetUserScore(ctx context.Context, userName string, score int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	user := f.users[userName]
	user.Name = userName
	user.Score = score
	f.users[userName] = user
	return nil
}

func (f *fakeGraph) NodeCount(ctx context.Context) (int64, error) {
	return f.nodeCount, nil
}

type fakeSeries struct {
	mu      sync.Mutex
	ensured map[string]activity.Labels
	samples map[string][]int
}

func newFakeSeries() *fakeSeries {
	return &fakeSeries{
		ensured: map[string]activity.Labels{},
		samples: map[string][]int{},
	}
}

func (f *fakeSeries) Ensure(ctx context.Context, storyID string, labels activity.Labels) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured[storyID] = labels
	return nil
}

func (f *fakeSeries) Append(ctx context.Context, storyID string, at time.Time, value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.samples[storyID] = append(f.samples[storyID], value)
	return nil
}

type publishedMessage struct {
	channel string
	payload any
}

type fakeDocs struct {
	mu        sync.Mutex
	docs      map[string]any
	published []publishedMessage
}

func newFakeDocs() *fakeDocs {
	return &fakeDocs{docs: map[string]any{}}
}

func (f *fakeDocs) ExistsMany(ctx context.Context, keys []string) ([]bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exists := make([]bool, len(keys))
	for i, key := range keys {
		_, exists[i] = f.docs[key]
	}
	return exists, nil
}

func (f *fakeDocs) SetJSON(ctx context.Context, key string, value any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs[key] = value
	return nil
}

func (f *fakeDocs) Publish(ctx context.Context, channel string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishedMessage{channel: channel, payload: payload})
	return nil
}

func (f *fakeDocs) publishedOn(channel string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, message := range f.published {
		if message.channel == channel {
			count++
		}
	}
	return count
}
