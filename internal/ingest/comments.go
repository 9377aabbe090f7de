package ingest

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/graph"
	"github.com/ritsuke/hyperion/internal/hnclient"
	"github.com/ritsuke/hyperion/internal/sanitize"
)

// commentLink captures an edge to create once every endpoint of the
// batch is persisted.
type commentLink struct {
	parentID  string
	commentID string
	author    string
}

// ProcessNewComments ingests the comments of one story that are not yet
// persisted. A story whose comment tree is gone upstream is skipped
// without error; a comment with no author fails the batch.
func (s *Service) ProcessNewComments(ctx context.Context, nativeStoryID string) error {
	tree, err := s.source.CommentTree(ctx, nativeStoryID)
	if err != nil {
		if errors.Is(err, hnclient.ErrItemMissing) {
			s.logger.Warn().
				Str("operation", "new-comments").
				Str("story", s.qualify(nativeStoryID)).
				Msg("comment tree missing upstream, skipping")
			return nil
		}
		return fmt.Errorf("fetch comment tree for story %q: %w", nativeStoryID, err)
	}

	flat := hnclient.Flatten(tree)
	candidates := make([]hnclient.Comment, 0, len(flat))
	ids := make([]string, 0, len(flat))
	for _, comment := range flat {
		if comment.ID == 0 {
			continue
		}
		candidates = append(candidates, comment)
		ids = append(ids, strconv.FormatInt(comment.ID, 10))
	}

	missing, err := s.dedup.MissingIDs(ctx, "Comment", ids)
	if err != nil {
		return err
	}
	missingSet := make(map[string]struct{}, len(missing))
	for _, id := range missing {
		missingSet[id] = struct{}{}
	}

	var (
		mu    sync.Mutex
		links []commentLink
	)

	// Node phase. Edges wait until the whole batch of comment nodes and
	// authors exists, so an out-of-order tree cannot race its parents.
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, comment := range candidates {
		comment := comment
		nativeID := strconv.FormatInt(comment.ID, 10)
		if _, ok := missingSet[nativeID]; !ok {
			continue
		}
		group.Go(func() error {
			link, err := s.ingestComment(groupCtx, nativeStoryID, comment)
			if err != nil {
				return err
			}
			mu.Lock()
			links = append(links, link)
			mu.Unlock()
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return fmt.Errorf("ingest comments for story %q: %w", nativeStoryID, err)
	}

	// Edge phase.
	for _, link := range links {
		if err := s.graph.LinkCommentToParent(ctx, link.parentID, link.commentID, link.author); err != nil {
			return fmt.Errorf("link comment %q to %q: %w", link.commentID, link.parentID, err)
		}
	}

	if len(links) > 0 {
		s.logger.Debug().
			Str("operation", "new-comments").
			Str("story", s.qualify(nativeStoryID)).
			Int("comments_saved", len(links)).
			Msg("saved new comments")
	}

	return nil
}

func (s *Service) ingestComment(ctx context.Context, nativeStoryID string, comment hnclient.Comment) (commentLink, error) {
	if comment.Author == "" {
		return commentLink{}, fmt.Errorf("comment %d on story %q has no author", comment.ID, nativeStoryID)
	}

	if _, err := s.refreshUser(ctx, comment.Author); err != nil {
		return commentLink{}, err
	}

	commentID := s.qualify(strconv.FormatInt(comment.ID, 10))
	content := sanitize.Excerpt(comment.Text)

	doc := docstore.CommentDoc{Content: optionalString(content)}
	if err := s.docs.SetJSON(ctx, docstore.Key("Comment", commentID), doc); err != nil {
		return commentLink{}, err
	}

	if err := s.docs.Publish(ctx, docstore.ChannelComments, map[string]any{
		"id":      commentID,
		"user":    comment.Author,
		"created": comment.CreatedAt,
		"content": content,
	}); err != nil {
		s.logger.Warn().Err(err).
			Str("operation", "new-comments").
			Str("comment", commentID).
			Msg("comment stream publish failed")
	}

	if err := s.graph.UpsertComment(ctx, graph.Comment{
		ID:      commentID,
		Created: comment.CreatedAt,
		Deleted: comment.Deleted,
	}); err != nil {
		return commentLink{}, err
	}

	parentID := s.qualify(nativeStoryID)
	if comment.ParentID != 0 && strconv.FormatInt(comment.ParentID, 10) != nativeStoryID {
		parentID = s.qualify(strconv.FormatInt(comment.ParentID, 10))
	}

	return commentLink{parentID: parentID, commentID: commentID, author: comment.Author}, nil
}
