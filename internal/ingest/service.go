// Package ingest coordinates the ingestion and refresh pipelines: new
// stories, comment trees, user activity, and the story-activity refresh
// scan. Per-item work fans out under a bounded worker group; store writes
// are phased (nodes, then edges, then samples) per batch.
package ingest

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ritsuke/hyperion/internal/activity"
	"github.com/ritsuke/hyperion/internal/graph"
	"github.com/ritsuke/hyperion/internal/hnclient"
)

// DataSourceHN is the only supported external content source.
const DataSourceHN = "hn"

// Source is the external content source boundary.
type Source interface {
	NewStoryIDs(ctx context.Context) ([]string, error)
	Story(ctx context.Context, id string) (*hnclient.Story, error)
	User(ctx context.Context, id string) (*hnclient.User, error)
	CommentTree(ctx context.Context, storyID string) ([]hnclient.Comment, error)
}

// GraphStore is the content-graph boundary the pipelines write to.
type GraphStore interface {
	UpsertStory(ctx context.Context, story graph.Story) error
	UpsertUser(ctx context.Context, user graph.User) error
	UpsertComment(ctx context.Context, comment graph.Comment) error
	UpsertSource(ctx context.Context, name string) error
	UpsertURL(ctx context.Context, domain, address string) error
	LinkUserToStory(ctx context.Context, userName, storyID string) error
	LinkUserToSource(ctx context.Context, userName, sourceName string) error
	LinkSourceToStory(ctx context.Context, sourceName, storyID string) error
	LinkStoryToURL(ctx context.Context, storyID, domain string) error
	LinkCommentToParent(ctx context.Context, parentID, commentID, userName string) error
	StoriesInWindow(ctx context.Context, olderThan, notOlderThan int64, minScore, minCommentTotal int) ([]graph.StorySnapshot, error)
	ApplyStoryUpdates(ctx context.Context, updates []graph.StoryUpdate) error
	UserScore(ctx context.Context, userName string) (int, bool, error)
	SetUserScore(ctx context.Context, userName string, score int) error
	NodeCount(ctx context.Context) (int64, error)
}

// SeriesStore is the weighted-activity time-series boundary.
type SeriesStore interface {
	Ensure(ctx context.Context, storyID string, labels activity.Labels) error
	Append(ctx context.Context, storyID string, at time.Time, value int) error
}

// DocStore is the document/stream boundary.
type DocStore interface {
	ExistsMany(ctx context.Context, keys []string) ([]bool, error)
	SetJSON(ctx context.Context, key string, value any) error
	Publish(ctx context.Context, channel string, payload any) error
}

type Service struct {
	source      Source
	graph       GraphStore
	series      SeriesStore
	docs        DocStore
	dedup       *Deduplicator
	logger      zerolog.Logger
	dataSource  string
	concurrency int
}

func NewService(source Source, graphStore GraphStore, series SeriesStore, docs DocStore, logger zerolog.Logger, concurrency int) *Service {
	if concurrency < 1 {
		concurrency = 8
	}
	return &Service{
		source:      source,
		graph:       graphStore,
		series:      series,
		docs:        docs,
		dedup:       NewDeduplicator(docs, DataSourceHN),
		logger:      logger,
		dataSource:  DataSourceHN,
		concurrency: concurrency,
	}
}

// qualify turns a native ID into the globally unique item key.
func (s *Service) qualify(nativeID string) string {
	return s.dataSource + ":" + nativeID
}

// nativeID strips the data-source prefix from a qualified item key.
func (s *Service) nativeID(itemID string) string {
	return strings.TrimPrefix(itemID, s.dataSource+":")
}

func optionalString(value string) *string {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return &value
}
