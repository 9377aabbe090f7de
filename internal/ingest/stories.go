package ingest

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ritsuke/hyperion/internal/activity"
	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/globaltime"
	"github.com/ritsuke/hyperion/internal/graph"
	"github.com/ritsuke/hyperion/internal/hnclient"
)

type NewStoriesResult struct {
	NewStoriesSaved int
	NewUsersSaved   int
}

// ProcessNewStories ingests the newest stories from the source, skipping
// IDs that are already persisted. The limit trims the source's candidate
// list before the dedup check; zero means no trim.
func (s *Service) ProcessNewStories(ctx context.Context, limit int) (NewStoriesResult, error) {
	now := globaltime.UTC()

	ids, err := s.source.NewStoryIDs(ctx)
	if err != nil {
		return NewStoriesResult{}, fmt.Errorf("list new stories: %w", err)
	}
	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	toSave, err := s.dedup.MissingIDs(ctx, "Story", ids)
	if err != nil {
		return NewStoriesResult{}, err
	}

	s.logger.Info().
		Str("operation", "new-stories").
		Int("candidates", len(ids)).
		Int("to_save", len(toSave)).
		Msg("ingesting new stories")

	var newUsers atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, nativeStoryID := range toSave {
		nativeStoryID := nativeStoryID
		group.Go(func() error {
			return s.ingestStory(groupCtx, nativeStoryID, now, &newUsers)
		})
	}
	if err := group.Wait(); err != nil {
		return NewStoriesResult{}, fmt.Errorf("ingest new stories: %w", err)
	}

	result := NewStoriesResult{
		NewStoriesSaved: len(toSave),
		NewUsersSaved:   int(newUsers.Load()),
	}

	s.logger.Info().
		Str("operation", "new-stories").
		Int("new_stories_saved", result.NewStoriesSaved).
		Int("new_users_saved", result.NewUsersSaved).
		Msg("ingested new stories")

	return result, nil
}

func (s *Service) ingestStory(ctx context.Context, nativeStoryID string, now time.Time, newUsers *atomic.Int64) error {
	story, err := s.source.Story(ctx, nativeStoryID)
	if err != nil {
		return fmt.Errorf("fetch story %q: %w", nativeStoryID, err)
	}

	storyID := s.qualify(nativeStoryID)
	domain := story.Domain()
	hasAuthor := story.By != ""

	if hasAuthor {
		isNew, err := s.refreshUser(ctx, story.By)
		if err != nil {
			return err
		}
		if isNew {
			newUsers.Add(1)
		}
	}

	// Node phase.
	if err := s.graph.UpsertStory(ctx, graph.Story{
		ID:           storyID,
		CommentTotal: story.Descendants,
		Created:      story.Time,
		Locked:       story.Dead,
		Deleted:      story.Deleted,
		Score:        story.Score,
	}); err != nil {
		return err
	}
	if err := s.graph.UpsertSource(ctx, hnclient.SourceDomain); err != nil {
		return err
	}
	if err := s.graph.UpsertURL(ctx, domain, story.URL); err != nil {
		return err
	}

	// Edge phase, after every endpoint exists.
	if hasAuthor {
		if err := s.graph.LinkUserToStory(ctx, story.By, storyID); err != nil {
			return err
		}
		if err := s.graph.LinkUserToSource(ctx, story.By, hnclient.SourceDomain); err != nil {
			return err
		}
	}
	if err := s.graph.LinkSourceToStory(ctx, hnclient.SourceDomain, storyID); err != nil {
		return err
	}
	if err := s.graph.LinkStoryToURL(ctx, storyID, domain); err != nil {
		return err
	}

	// Sample phase. Series labels need the author, so stories that arrive
	// without one get their series on the first refresh instead.
	if hasAuthor {
		labels := activity.Labels{Story: storyID, User: story.By, Domain: domain}
		if err := s.series.Ensure(ctx, storyID, labels); err != nil {
			return err
		}
		value := activity.WeightedValue(story.Score, story.Descendants, 1, 0)
		if err := s.series.Append(ctx, storyID, now, value); err != nil {
			return err
		}
	}

	doc := docstore.StoryDoc{
		Title:   optionalString(story.Title),
		Content: optionalString(story.Text),
	}
	if err := s.docs.SetJSON(ctx, docstore.Key("Story", storyID), doc); err != nil {
		return err
	}

	s.logger.Debug().
		Str("operation", "new-stories").
		Str("story", storyID).
		Msg("saved new story")

	return nil
}
