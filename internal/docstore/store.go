// Package docstore holds the RedisJSON document side of the system:
// story/comment/user content documents, the full-text story index used
// for related-story lookups, collection cache blobs, pub/sub streams,
// and the date-scoped lease that serializes collection generation.
package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	storyIndex     = "Story:index"
	storyKeyPrefix = "Story:"

	// ChannelComments receives every newly saved comment.
	ChannelComments = "streams:comments"
	// ChannelFrontpage receives a node-count ping after refresh runs
	// that changed any story.
	ChannelFrontpage = "streams:frontpage"
)

// ErrNotFound reports a missing document.
var ErrNotFound = fmt.Errorf("docstore: document not found")

// StoryDoc is the content document for a story. Graph nodes carry the
// numeric fields; documents carry the text.
type StoryDoc struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

type CommentDoc struct {
	Content *string `json:"content"`
}

type UserDoc struct {
	About *string `json:"about"`
}

// StoryHit is one full-text search result.
type StoryHit struct {
	Key   string
	Title string
}

type Store struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func New(rdb *redis.Client, logger zerolog.Logger) *Store {
	return &Store{rdb: rdb, logger: logger}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Key builds a document key like "Story:hn:123".
func Key(objectType, itemID string) string {
	return objectType + ":" + itemID
}

// ExistsMany checks all keys in one round trip and reports existence per
// key, in input order.
func (s *Store) ExistsMany(ctx context.Context, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	pipe := s.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(keys))
	for i, key := range keys {
		cmds[i] = pipe.Exists(ctx, key)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("check key existence: %w", err)
	}

	exists := make([]bool, len(keys))
	for i, cmd := range cmds {
		exists[i] = cmd.Val() > 0
	}
	return exists, nil
}

// SetJSON writes a document at the JSON root path.
func (s *Store) SetJSON(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal document %q: %w", key, err)
	}
	if err := s.rdb.JSONSet(ctx, key, "$", string(payload)).Err(); err != nil {
		return fmt.Errorf("save document %q: %w", key, err)
	}
	return nil
}

// GetJSON reads a document from the JSON root path into dest.
func (s *Store) GetJSON(ctx context.Context, key string, dest any) error {
	raw, err := s.rdb.JSONGet(ctx, key, "$").Result()
	if err == redis.Nil || raw == "" {
		return fmt.Errorf("document %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("read document %q: %w", key, err)
	}

	// JSONPath results arrive wrapped in an array.
	var elements []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elements); err != nil {
		return fmt.Errorf("decode document %q: %w", key, err)
	}
	if len(elements) == 0 {
		return fmt.Errorf("document %q: %w", key, ErrNotFound)
	}
	if err := json.Unmarshal(elements[0], dest); err != nil {
		return fmt.Errorf("decode document %q: %w", key, err)
	}
	return nil
}

// SetBlob stores a denormalized read-model blob as a plain string value.
func (s *Store) SetBlob(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal blob %q: %w", key, err)
	}
	if err := s.rdb.Set(ctx, key, payload, 0).Err(); err != nil {
		return fmt.Errorf("save blob %q: %w", key, err)
	}
	return nil
}

// Exists checks a single key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("check key %q: %w", key, err)
	}
	return n > 0, nil
}

// EnsureStoryIndex creates the full-text index over story titles. Safe to
// call repeatedly.
func (s *Store) EnsureStoryIndex(ctx context.Context) error {
	err := s.rdb.FTCreate(
		ctx,
		storyIndex,
		&redis.FTCreateOptions{
			OnJSON: true,
			Prefix: []interface{}{storyKeyPrefix},
		},
		&redis.FieldSchema{
			FieldName: "$.title",
			As:        "title",
			FieldType: redis.SearchFieldTypeText,
		},
	).Err()
	if err != nil && !strings.Contains(err.Error(), "Index already exists") {
		return fmt.Errorf("create story index: %w", err)
	}
	return nil
}

// SearchStories runs a full-text query over story titles.
func (s *Store) SearchStories(ctx context.Context, query string, limit int) ([]StoryHit, error) {
	result, err := s.rdb.FTSearchWithArgs(ctx, storyIndex, query, &redis.FTSearchOptions{
		LimitOffset: 0,
		Limit:       limit,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("search stories %q: %w", query, err)
	}

	hits := make([]StoryHit, 0, len(result.Docs))
	for _, doc := range result.Docs {
		title := doc.Fields["title"]
		if title == "" {
			// OnJSON indexes may return the raw path instead of the alias.
			title = doc.Fields["$.title"]
		}
		hits = append(hits, StoryHit{Key: doc.ID, Title: title})
	}
	return hits, nil
}

// Publish emits a payload on a stream channel, fire and forget.
func (s *Store) Publish(ctx context.Context, channel string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal publish payload: %w", err)
	}
	if err := s.rdb.Publish(ctx, channel, body).Err(); err != nil {
		return fmt.Errorf("publish to %q: %w", channel, err)
	}
	return nil
}

// AcquireLease takes a short-lived exclusive lease. It returns false when
// another holder already owns the key.
func (s *Store) AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.rdb.SetNX(ctx, key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire lease %q: %w", key, err)
	}
	return ok, nil
}

// ReleaseLease drops a lease early. Expiry handles crashed holders.
func (s *Store) ReleaseLease(ctx context.Context, key string) {
	if err := s.rdb.Del(ctx, key).Err(); err != nil {
		s.logger.Warn().Err(err).Str("key", key).Msg("failed to release lease")
	}
}
