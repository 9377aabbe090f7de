// Package graph persists content items and their relationships as a
// Neo4j property graph. Node upserts are MERGE-based and keyed by the
// natural item ID, so re-ingesting an item updates the existing node.
// Edge upserts run after their endpoints exist; a missing endpoint is an
// explicit ErrEndpointMissing, never a silent no-op.
package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/rs/zerolog"
)

// ErrEndpointMissing reports an edge upsert whose endpoint nodes are not
// all present in the graph.
var ErrEndpointMissing = errors.New("graph: edge endpoint missing")

// ErrNotFound reports a lookup for a node that does not exist.
var ErrNotFound = errors.New("graph: node not found")

// Story is the node shape for a submitted story. Created is unix seconds.
type Story struct {
	ID           string
	CommentTotal int
	Created      int64
	Locked       bool
	Deleted      bool
	Score        int
}

// User is the node shape for a source user. Score mirrors upstream karma.
type User struct {
	Name    string
	Created int64
	Score   int
}

// Comment is the node shape for a single comment.
type Comment struct {
	ID      string
	Created int64
	Deleted bool
}

// StorySnapshot is a stored story joined with its link domain and author,
// as selected by the refresh scanner.
type StorySnapshot struct {
	ID           string
	Deleted      bool
	Locked       bool
	Score        int
	CommentTotal int
	Domain       string
	Author       string
}

// StoryMeta is the minimal story record the curator ranks on.
type StoryMeta struct {
	ID           string
	Score        int
	CommentTotal int
	Created      int64
}

// StoryUpdate carries only the fields that changed since the stored
// snapshot; nil fields are left untouched.
type StoryUpdate struct {
	ID           string
	Deleted      *bool
	Locked       *bool
	Score        *int
	CommentTotal *int
}

// Empty reports whether the update would touch no fields.
func (u StoryUpdate) Empty() bool {
	return u.Deleted == nil && u.Locked == nil && u.Score == nil && u.CommentTotal == nil
}

// ThreadStat describes a top-level comment and the size of the subtree it
// provoked.
type ThreadStat struct {
	CommentID string
	Created   int64
	Size      int64
}

type Store struct {
	driver neo4j.DriverWithContext
	logger zerolog.Logger
}

func NewStore(uri, user, password string, logger zerolog.Logger) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create graph driver: %w", err)
	}
	return &Store{driver: driver, logger: logger}, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func (s *Store) Ping(ctx context.Context) error {
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Store) write(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

func (s *Store) read(ctx context.Context, query string, params map[string]any) ([]*neo4j.Record, error) {
	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, err
	}
	return result.Collect(ctx)
}

// UpsertStory creates or updates the story node keyed by its natural ID.
func (s *Store) UpsertStory(ctx context.Context, story Story) error {
	const query = `
MERGE (s:Story { name: $name })
SET s.comment_total = $commentTotal,
    s.created = $created,
    s.locked = $locked,
    s.deleted = $deleted,
    s.score = $score
`
	_, err := s.write(ctx, query, map[string]any{
		"name":         story.ID,
		"commentTotal": story.CommentTotal,
		"created":      story.Created,
		"locked":       story.Locked,
		"deleted":      story.Deleted,
		"score":        story.Score,
	})
	if err != nil {
		return fmt.Errorf("upsert story %q: %w", story.ID, err)
	}
	return nil
}

func (s *Store) UpsertUser(ctx context.Context, user User) error {
	const query = `
MERGE (u:User { name: $name })
SET u.created = $created,
    u.score = $score
`
	_, err := s.write(ctx, query, map[string]any{
		"name":    user.Name,
		"created": user.Created,
		"score":   user.Score,
	})
	if err != nil {
		return fmt.Errorf("upsert user %q: %w", user.Name, err)
	}
	return nil
}

func (s *Store) UpsertComment(ctx context.Context, comment Comment) error {
	const query = `
MERGE (c:Comment { name: $name })
SET c.created = $created,
    c.deleted = $deleted
`
	_, err := s.write(ctx, query, map[string]any{
		"name":    comment.ID,
		"created": comment.Created,
		"deleted": comment.Deleted,
	})
	if err != nil {
		return fmt.Errorf("upsert comment %q: %w", comment.ID, err)
	}
	return nil
}

func (s *Store) UpsertSource(ctx context.Context, name string) error {
	_, err := s.write(ctx, `MERGE (:Source { name: $name })`, map[string]any{"name": name})
	if err != nil {
		return fmt.Errorf("upsert source %q: %w", name, err)
	}
	return nil
}

func (s *Store) UpsertURL(ctx context.Context, domain, address string) error {
	const query = `
MERGE (u:Url { name: $name })
SET u.address = $address
`
	_, err := s.write(ctx, query, map[string]any{"name": domain, "address": address})
	if err != nil {
		return fmt.Errorf("upsert url %q: %w", domain, err)
	}
	return nil
}

// LinkUserToStory writes the reciprocal CREATED / CREATED_BY pair.
func (s *Store) LinkUserToStory(ctx context.Context, userName, storyID string) error {
	const query = `
MATCH (u:User { name: $user })
MATCH (s:Story { name: $story })
MERGE (u)-[:CREATED]->(s)-[:CREATED_BY]->(u)
RETURN u.name
`
	return s.linkEdge(ctx, "user->story", query, map[string]any{"user": userName, "story": storyID})
}

// LinkUserToSource writes the reciprocal USER_OF / USED_BY pair.
func (s *Store) LinkUserToSource(ctx context.Context, userName, sourceName string) error {
	const query = `
MATCH (u:User { name: $user })
MATCH (src:Source { name: $source })
MERGE (u)-[:USER_OF]->(src)-[:USED_BY]->(u)
RETURN u.name
`
	return s.linkEdge(ctx, "user->source", query, map[string]any{"user": userName, "source": sourceName})
}

// LinkSourceToStory writes the reciprocal HOSTS / HOSTED_BY pair.
func (s *Store) LinkSourceToStory(ctx context.Context, sourceName, storyID string) error {
	const query = `
MATCH (src:Source { name: $source })
MATCH (s:Story { name: $story })
MERGE (src)-[:HOSTS]->(s)-[:HOSTED_BY]->(src)
RETURN src.name
`
	return s.linkEdge(ctx, "source->story", query, map[string]any{"source": sourceName, "story": storyID})
}

// LinkStoryToURL writes the reciprocal POINTS_TO / COMES_FROM pair.
func (s *Store) LinkStoryToURL(ctx context.Context, storyID, domain string) error {
	const query = `
MATCH (s:Story { name: $story })
MATCH (u:Url { name: $url })
MERGE (s)-[:POINTS_TO]->(u)-[:COMES_FROM]->(s)
RETURN s.name
`
	return s.linkEdge(ctx, "story->url", query, map[string]any{"story": storyID, "url": domain})
}

// LinkCommentToParent attaches a comment below its parent (story or
// comment) and to its author, writing the PROVOKED / REACTION_TO and
// CREATED / CREATED_BY pairs.
func (s *Store) LinkCommentToParent(ctx context.Context, parentID, commentID, userName string) error {
	const query = `
MATCH (parent { name: $parent })
MATCH (u:User { name: $user })
MATCH (c:Comment { name: $comment })
MERGE (parent)-[:PROVOKED]->(c)-[:REACTION_TO]->(parent)
MERGE (u)-[:CREATED]->(c)-[:CREATED_BY]->(u)
RETURN parent.name
`
	return s.linkEdge(ctx, "comment->parent", query, map[string]any{
		"parent":  parentID,
		"comment": commentID,
		"user":    userName,
	})
}

// linkEdge runs a MATCH..MERGE edge query. Zero returned rows means at
// least one endpoint did not match.
func (s *Store) linkEdge(ctx context.Context, kind, query string, params map[string]any) error {
	records, err := s.write(ctx, query, params)
	if err != nil {
		return fmt.Errorf("link %s: %w", kind, err)
	}
	if len(records) == 0 {
		return fmt.Errorf("link %s %v: %w", kind, params, ErrEndpointMissing)
	}
	return nil
}

// StoriesInWindow selects stories created inside (notOlderThan,
// olderThan) unix seconds whose stored score and comment totals meet the
// given minimums, joined with their link domain and author.
func (s *Store) StoriesInWindow(ctx context.Context, olderThan, notOlderThan int64, minScore, minCommentTotal int) ([]StorySnapshot, error) {
	const query = `
MATCH (url:Url)<-[:POINTS_TO]-(s:Story)<-[:CREATED]-(u:User)
WHERE s.created < $olderThan
  AND s.created > $notOlderThan
  AND s.score >= $minScore
  AND s.comment_total >= $minCommentTotal
RETURN s.name, s.deleted, s.locked, s.score, s.comment_total, url.name, u.name
`
	records, err := s.read(ctx, query, map[string]any{
		"olderThan":       olderThan,
		"notOlderThan":    notOlderThan,
		"minScore":        minScore,
		"minCommentTotal": minCommentTotal,
	})
	if err != nil {
		return nil, fmt.Errorf("select stories in window: %w", err)
	}

	snapshots := make([]StorySnapshot, 0, len(records))
	for _, record := range records {
		snapshot, err := decodeStorySnapshot(record)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, nil
}

// StoryMeta returns the ranking fields for one story.
func (s *Store) StoryMeta(ctx context.Context, storyID string) (StoryMeta, error) {
	const query = `
MATCH (s:Story { name: $name })
RETURN s.name, s.score, s.comment_total, s.created
`
	records, err := s.read(ctx, query, map[string]any{"name": storyID})
	if err != nil {
		return StoryMeta{}, fmt.Errorf("story meta %q: %w", storyID, err)
	}
	if len(records) == 0 {
		return StoryMeta{}, fmt.Errorf("story meta %q: %w", storyID, ErrNotFound)
	}
	return decodeStoryMeta(records[0])
}

// ApplyStoryUpdates writes all field-level diffs in a single transaction.
func (s *Store) ApplyStoryUpdates(ctx context.Context, updates []StoryUpdate) error {
	pending := make([]StoryUpdate, 0, len(updates))
	for _, update := range updates {
		if !update.Empty() {
			pending = append(pending, update)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	session := s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, update := range pending {
			set := map[string]any{}
			if update.Deleted != nil {
				set["deleted"] = *update.Deleted
			}
			if update.Locked != nil {
				set["locked"] = *update.Locked
			}
			if update.Score != nil {
				set["score"] = *update.Score
			}
			if update.CommentTotal != nil {
				set["comment_total"] = *update.CommentTotal
			}

			result, err := tx.Run(ctx, `MATCH (s:Story { name: $name }) SET s += $set`, map[string]any{
				"name": update.ID,
				"set":  set,
			})
			if err != nil {
				return nil, fmt.Errorf("update story %q: %w", update.ID, err)
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, fmt.Errorf("update story %q: %w", update.ID, err)
			}
		}
		return nil, nil
	})
	if err != nil {
		return fmt.Errorf("apply story updates: %w", err)
	}

	s.logger.Debug().Int("updates", len(pending)).Msg("applied story field updates")
	return nil
}

// UserScore returns the stored score for a user, reporting existence
// separately from the zero score.
func (s *Store) UserScore(ctx context.Context, userName string) (int, bool, error) {
	const query = `
MATCH (u:User { name: $name })
RETURN u.score
`
	records, err := s.read(ctx, query, map[string]any{"name": userName})
	if err != nil {
		return 0, false, fmt.Errorf("user score %q: %w", userName, err)
	}
	if len(records) == 0 {
		return 0, false, nil
	}
	score, err := recordInt(records[0], 0, "u.score")
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (s *Store) SetUserScore(ctx context.Context, userName string, score int) error {
	const query = `
MERGE (u:User { name: $name })
ON MATCH SET u.score = $score
`
	_, err := s.write(ctx, query, map[string]any{"name": userName, "score": score})
	if err != nil {
		return fmt.Errorf("set user score %q: %w", userName, err)
	}
	return nil
}

// TopCommentThreads ranks the comment subtrees rooted one hop below the
// story by subtree size, largest first.
func (s *Store) TopCommentThreads(ctx context.Context, storyID string, limit int) ([]ThreadStat, error) {
	const query = `
MATCH (:Story { name: $story })-[:PROVOKED]->(topComment)<-[:REACTION_TO*1..]-(childComment)
WITH topComment, collect(childComment) AS childComments
RETURN topComment.name, topComment.created, SIZE(childComments)
ORDER BY SIZE(childComments) DESC LIMIT $limit
`
	records, err := s.read(ctx, query, map[string]any{"story": storyID, "limit": limit})
	if err != nil {
		return nil, fmt.Errorf("top comment threads %q: %w", storyID, err)
	}

	threads := make([]ThreadStat, 0, len(records))
	for _, record := range records {
		commentID, err := recordString(record, 0, "topComment.name")
		if err != nil {
			return nil, err
		}
		created, err := recordInt64(record, 1, "topComment.created")
		if err != nil {
			return nil, err
		}
		size, err := recordInt64(record, 2, "SIZE(childComments)")
		if err != nil {
			return nil, err
		}
		threads = append(threads, ThreadStat{CommentID: commentID, Created: created, Size: size})
	}
	return threads, nil
}

// StoryProvenance returns the story's author and link address.
func (s *Store) StoryProvenance(ctx context.Context, storyID string) (author, address string, err error) {
	const query = `
MATCH (u:User)-[:CREATED]->(:Story { name: $story })
MATCH (:Story { name: $story })-[:POINTS_TO]->(url:Url)
RETURN u.name, url.address
`
	records, err := s.read(ctx, query, map[string]any{"story": storyID})
	if err != nil {
		return "", "", fmt.Errorf("story provenance %q: %w", storyID, err)
	}
	if len(records) == 0 {
		return "", "", fmt.Errorf("story provenance %q: %w", storyID, ErrNotFound)
	}

	author, err = recordString(records[0], 0, "u.name")
	if err != nil {
		return "", "", err
	}
	address, err = recordString(records[0], 1, "url.address")
	if err != nil {
		return "", "", err
	}
	return author, address, nil
}

// CommentAuthor returns the user who created the given comment.
func (s *Store) CommentAuthor(ctx context.Context, commentID string) (string, error) {
	const query = `
MATCH (u:User)-[:CREATED]->(:Comment { name: $comment })
RETURN u.name
`
	records, err := s.read(ctx, query, map[string]any{"comment": commentID})
	if err != nil {
		return "", fmt.Errorf("comment author %q: %w", commentID, err)
	}
	if len(records) == 0 {
		return "", fmt.Errorf("comment author %q: %w", commentID, ErrNotFound)
	}
	return recordString(records[0], 0, "u.name")
}

// NodeCount returns the total node count, published on the frontpage
// stream after refresh runs.
func (s *Store) NodeCount(ctx context.Context) (int64, error) {
	records, err := s.read(ctx, `MATCH (n) RETURN count(*)`, nil)
	if err != nil {
		return 0, fmt.Errorf("node count: %w", err)
	}
	if len(records) == 0 {
		return 0, nil
	}
	return recordInt64(records[0], 0, "count(*)")
}
