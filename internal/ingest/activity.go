package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ritsuke/hyperion/internal/activity"
	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/globaltime"
	"github.com/ritsuke/hyperion/internal/graph"
)

// ActivityParams scopes a story-activity refresh run. Start and End are
// hours back from now; the scan covers stories created between now-Start
// and now-End. MinScore and MinCommentTotal filter the stored snapshots;
// CommentWeight and Falloff shape the weighted sample appended for each
// refreshed story.
type ActivityParams struct {
	Start           int
	End             int
	MinScore        int
	MinCommentTotal int
	CommentWeight   int
	Falloff         int
}

type ActivityResult struct {
	StoriesUpdatedWithLatestScore        int
	StoriesUpdatedWithLatestCommentTotal int
}

// ProcessStoryActivity rescans stored stories inside the configured age
// window, diffs them against the latest source payloads, appends fresh
// weighted samples, and re-ingests any new comments. Field diffs are
// applied in one transaction after the fan-out settles.
func (s *Service) ProcessStoryActivity(ctx context.Context, params ActivityParams) (ActivityResult, error) {
	now := globaltime.UTC()

	olderThan := now.Unix() - int64(params.Start)*3600
	notOlderThan := olderThan - int64(params.End-params.Start)*3600
	if params.End <= params.Start {
		// A degenerate window still scans the most recent five minutes
		// below the start bound.
		notOlderThan = olderThan - 300
	}

	snapshots, err := s.graph.StoriesInWindow(ctx, olderThan, notOlderThan, params.MinScore, params.MinCommentTotal)
	if err != nil {
		return ActivityResult{}, err
	}

	s.logger.Info().
		Str("operation", "story-activity").
		Int("stories", len(snapshots)).
		Int64("older_than", olderThan).
		Int64("not_older_than", notOlderThan).
		Msg("refreshing story activity")

	var (
		scoreUpdates   atomic.Int64
		commentUpdates atomic.Int64

		mu      sync.Mutex
		updates []graph.StoryUpdate
	)

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.concurrency)
	for _, snapshot := range snapshots {
		snapshot := snapshot
		group.Go(func() error {
			update, err := s.refreshStory(groupCtx, snapshot, params, &scoreUpdates, &commentUpdates)
			if err != nil {
				return err
			}
			if !update.Empty() {
				mu.Lock()
				updates = append(updates, update)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return ActivityResult{}, fmt.Errorf("refresh story activity: %w", err)
	}

	if err := s.graph.ApplyStoryUpdates(ctx, updates); err != nil {
		return ActivityResult{}, err
	}

	// The frontpage only cares about score and comment-total movement;
	// lock and delete flag flips stay quiet.
	if scoreUpdates.Load() > 0 || commentUpdates.Load() > 0 {
		count, err := s.graph.NodeCount(ctx)
		if err != nil {
			return ActivityResult{}, err
		}
		if err := s.docs.Publish(ctx, docstore.ChannelFrontpage, map[string]any{"nodes": count}); err != nil {
			s.logger.Warn().Err(err).
				Str("operation", "story-activity").
				Msg("frontpage stream publish failed")
		}
	}

	result := ActivityResult{
		StoriesUpdatedWithLatestScore:        int(scoreUpdates.Load()),
		StoriesUpdatedWithLatestCommentTotal: int(commentUpdates.Load()),
	}

	s.logger.Info().
		Str("operation", "story-activity").
		Int("stories_updated_with_latest_score", result.StoriesUpdatedWithLatestScore).
		Int("stories_updated_with_latest_comment_total", result.StoriesUpdatedWithLatestCommentTotal).
		Msg("refreshed story activity")

	return result, nil
}

// refreshStory diffs one stored snapshot against the latest source
// payload and appends the current weighted sample. The returned update
// carries only the fields that moved.
func (s *Service) refreshStory(ctx context.Context, snapshot graph.StorySnapshot, params ActivityParams, scoreUpdates, commentUpdates *atomic.Int64) (graph.StoryUpdate, error) {
	nativeStoryID := s.nativeID(snapshot.ID)

	latest, err := s.source.Story(ctx, nativeStoryID)
	if err != nil {
		return graph.StoryUpdate{}, fmt.Errorf("refresh story %q: %w", snapshot.ID, err)
	}

	update := graph.StoryUpdate{ID: snapshot.ID}
	if latest.Deleted != snapshot.Deleted {
		deleted := latest.Deleted
		update.Deleted = &deleted
	}
	if latest.Dead != snapshot.Locked {
		locked := latest.Dead
		update.Locked = &locked
	}
	if latest.Score != snapshot.Score {
		score := latest.Score
		update.Score = &score
		scoreUpdates.Add(1)
	}
	if latest.Descendants != snapshot.CommentTotal {
		commentTotal := latest.Descendants
		update.CommentTotal = &commentTotal
		commentUpdates.Add(1)
	}

	labels := activity.Labels{Story: snapshot.ID, User: snapshot.Author, Domain: snapshot.Domain}
	if err := s.series.Ensure(ctx, snapshot.ID, labels); err != nil {
		return graph.StoryUpdate{}, err
	}
	value := activity.WeightedValue(latest.Score, latest.Descendants, params.CommentWeight, params.Falloff)
	if err := s.series.Append(ctx, snapshot.ID, globaltime.UTC(), value); err != nil {
		return graph.StoryUpdate{}, err
	}

	if snapshot.Author != "" {
		if _, err := s.refreshUser(ctx, snapshot.Author); err != nil {
			return graph.StoryUpdate{}, err
		}
	}

	if latest.Dead || latest.Deleted {
		s.logger.Warn().
			Str("operation", "story-activity").
			Str("story", snapshot.ID).
			Bool("locked", latest.Dead).
			Bool("deleted", latest.Deleted).
			Msg("story locked or deleted, skipping comment ingestion")
		return update, nil
	}

	if err := s.ProcessNewComments(ctx, nativeStoryID); err != nil {
		return graph.StoryUpdate{}, err
	}

	return update, nil
}
