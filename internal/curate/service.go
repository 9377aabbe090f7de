// Package curate builds the immutable daily collection: it ranks a
// day's weighted activity, cross-references the graph, enriches the
// winners, and persists the entries plus denormalized cache blobs.
// Generation is idempotent by refusal; an existing collection for the
// date is never regenerated or merged.
package curate

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/enrich"
	"github.com/ritsuke/hyperion/internal/globaltime"
	"github.com/ritsuke/hyperion/internal/graph"
	"github.com/ritsuke/hyperion/internal/ingest"
	"github.com/ritsuke/hyperion/internal/sanitize"
)

const (
	// dataSource qualifies item keys coming back from series labels and
	// search hits.
	dataSource = ingest.DataSourceHN

	candidateLimit = 20
	entryLimit     = 9
	threadLimit    = 5
	relatedLimit   = 5

	leaseTTL = 2 * time.Minute
)

// ErrBadDateKey reports a date key that is not a valid "y:m:d" triple.
var ErrBadDateKey = errors.New("curate: bad date key")

// GraphStore is the read side of the content graph the curator ranks
// and cross-references against.
type GraphStore interface {
	StoryMeta(ctx context.Context, storyID string) (graph.StoryMeta, error)
	TopCommentThreads(ctx context.Context, storyID string, limit int) ([]graph.ThreadStat, error)
	StoryProvenance(ctx context.Context, storyID string) (author, address string, err error)
	CommentAuthor(ctx context.Context, commentID string) (string, error)
}

// SeriesStore supplies the day's activity, grouped and reduced.
type SeriesStore interface {
	DailyMaxByStory(ctx context.Context, from, to time.Time) (map[string]float64, error)
}

// DocStore is the document, search, cache, and lease boundary.
type DocStore interface {
	Exists(ctx context.Context, key string) (bool, error)
	GetJSON(ctx context.Context, key string, dest any) error
	SetJSON(ctx context.Context, key string, value any) error
	SetBlob(ctx context.Context, key string, value any) error
	SearchStories(ctx context.Context, query string, limit int) ([]docstore.StoryHit, error)
	AcquireLease(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, key string)
}

// ImageSearcher is the best-effort image enrichment boundary.
type ImageSearcher interface {
	Search(ctx context.Context, query string) (*enrich.Photo, error)
}

// Entry is the persisted collection entry document.
type Entry struct {
	Year           int      `json:"year"`
	Month          int      `json:"month"`
	Day            int      `json:"day"`
	Title          *string  `json:"title"`
	Slug           *string  `json:"slug"`
	TopComment     *string  `json:"top_comment"`
	CommentTotal   int      `json:"comment_total"`
	ImageUsername  *string  `json:"image_username"`
	ImageUserURL   *string  `json:"image_user_url"`
	ImageURL       *string  `json:"image_url"`
	ImageSourceURL *string  `json:"image_source_url"`
	ImageBlurHash  *string  `json:"image_blur_hash"`
	Position       int      `json:"position"`
	Origins        []string `json:"origins"`
}

// RecommendedStory is one related-content hit kept on the cache blob.
type RecommendedStory struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type cachedStory struct {
	ID        string  `json:"id"`
	Created   int64   `json:"created"`
	Content   *string `json:"content"`
	CreatedBy string  `json:"created_by"`
	Address   *string `json:"address"`
}

type cachedComment struct {
	ID        string  `json:"id"`
	Content   *string `json:"content"`
	Created   int64   `json:"created"`
	CreatedBy string  `json:"created_by"`
}

type entryCache struct {
	Story              cachedStory        `json:"story"`
	Comments           []cachedComment    `json:"comments"`
	RecommendedStories []RecommendedStory `json:"recommended_stories"`
}

// Result reports the outcome of one generation run. Exists and NotFound
// are mutually exclusive; both false means a collection was created.
type Result struct {
	Exists    bool
	NotFound  bool
	Benchmark time.Duration
}

type Service struct {
	graph     GraphStore
	series    SeriesStore
	docs      DocStore
	images    ImageSearcher
	startDate time.Time
	logger    zerolog.Logger
}

func NewService(graphStore GraphStore, series SeriesStore, docs DocStore, images ImageSearcher, startDate time.Time, logger zerolog.Logger) *Service {
	return &Service{
		graph:     graphStore,
		series:    series,
		docs:      docs,
		images:    images,
		startDate: startDate,
		logger:    logger,
	}
}

type candidate struct {
	meta  graph.StoryMeta
	value float64
}

// GenerateCollections builds the collection for one date key ("y:m:d").
// Dates before the configured start date or not yet fully elapsed come
// back NotFound; an already-generated date comes back Exists. A
// date-scoped lease serializes concurrent runs for the same key.
func (s *Service) GenerateCollections(ctx context.Context, dateKey string) (Result, error) {
	started := globaltime.UTC()
	elapsed := func() time.Duration { return globaltime.UTC().Sub(started) }

	year, month, day, err := parseDateKey(dateKey)
	if err != nil {
		return Result{}, err
	}

	// Alternate spellings like "2023:06:10" collapse onto one key, so the
	// lease and cache checks cover every way of writing the same date.
	canonicalKey := fmt.Sprintf("%d:%d:%d", year, month, day)

	dayStart := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	if dayStart.Before(s.startDate) || dayEnd.After(globaltime.UTC()) {
		return Result{NotFound: true, Benchmark: elapsed()}, nil
	}

	leaseKey := "lock:collections:" + canonicalKey
	acquired, err := s.docs.AcquireLease(ctx, leaseKey, leaseTTL)
	if err != nil {
		return Result{}, err
	}
	if !acquired {
		s.logger.Warn().
			Str("operation", "new-collections").
			Str("date_key", canonicalKey).
			Msg("generation already in progress for date")
		return Result{Exists: true, Benchmark: elapsed()}, nil
	}
	defer s.docs.ReleaseLease(ctx, leaseKey)

	dayCacheKey := "Collection:" + canonicalKey + ":_cache"
	exists, err := s.docs.Exists(ctx, dayCacheKey)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{Exists: true, Benchmark: elapsed()}, nil
	}

	ranked, err := s.rankDay(ctx, dayStart, dayEnd)
	if err != nil {
		return Result{}, err
	}
	if len(ranked) == 0 {
		return Result{NotFound: true, Benchmark: elapsed()}, nil
	}

	entries := make([]Entry, 0, len(ranked))
	for position, story := range ranked {
		entry, err := s.buildEntry(ctx, canonicalKey, year, month, day, position, story.meta)
		if err != nil {
			return Result{}, fmt.Errorf("build collection entry for %q: %w", story.meta.ID, err)
		}
		entries = append(entries, entry)
	}

	if err := s.docs.SetBlob(ctx, dayCacheKey, entries); err != nil {
		return Result{}, err
	}

	s.logger.Info().
		Str("operation", "new-collections").
		Str("date_key", canonicalKey).
		Int("entries", len(entries)).
		Dur("benchmark", elapsed()).
		Msg("generated collection")

	return Result{Benchmark: elapsed()}, nil
}

// rankDay reduces the day's activity to the ordered winners: top 20 by
// daily max value, filtered to stories created inside the window, then
// re-sorted by comment_total minus score so discussion-heavy stories
// outrank score-heavy ones.
func (s *Service) rankDay(ctx context.Context, dayStart, dayEnd time.Time) ([]candidate, error) {
	byStory, err := s.series.DailyMaxByStory(ctx, dayStart, dayEnd.Add(-time.Millisecond))
	if err != nil {
		return nil, err
	}
	if len(byStory) == 0 {
		return nil, nil
	}

	candidates := make([]candidate, 0, len(byStory))
	for storyID, value := range byStory {
		candidates = append(candidates, candidate{meta: graph.StoryMeta{ID: storyID}, value: value})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].value != candidates[j].value {
			return candidates[i].value > candidates[j].value
		}
		return candidates[i].meta.ID < candidates[j].meta.ID
	})
	if len(candidates) > candidateLimit {
		candidates = candidates[:candidateLimit]
	}

	ranked := make([]candidate, 0, len(candidates))
	for _, c := range candidates {
		meta, err := s.graph.StoryMeta(ctx, c.meta.ID)
		if errors.Is(err, graph.ErrNotFound) {
			s.logger.Warn().
				Str("operation", "new-collections").
				Str("story", c.meta.ID).
				Msg("activity series has no graph node, dropping candidate")
			continue
		}
		if err != nil {
			return nil, err
		}
		// Defends against store drift between the series and the graph.
		if meta.Created < dayStart.Unix() || meta.Created >= dayEnd.Unix() {
			continue
		}
		ranked = append(ranked, candidate{meta: meta, value: c.value})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		left := ranked[i].meta.CommentTotal - ranked[i].meta.Score
		right := ranked[j].meta.CommentTotal - ranked[j].meta.Score
		return left > right
	})
	if len(ranked) > entryLimit {
		ranked = ranked[:entryLimit]
	}
	return ranked, nil
}

func (s *Service) buildEntry(ctx context.Context, dateKey string, year, month, day, position int, meta graph.StoryMeta) (Entry, error) {
	shortSlug := ShortSlug()

	var doc docstore.StoryDoc
	if err := s.docs.GetJSON(ctx, docstore.Key("Story", meta.ID), &doc); err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return Entry{}, err
	}

	entry := Entry{
		Year:         year,
		Month:        month,
		Day:          day,
		Title:        doc.Title,
		CommentTotal: meta.CommentTotal,
		Position:     position,
		Origins:      []string{meta.ID},
	}
	if doc.Title != nil {
		slug := Slugify(*doc.Title) + "-" + shortSlug
		entry.Slug = &slug
	}

	threads, err := s.graph.TopCommentThreads(ctx, meta.ID, threadLimit)
	if err != nil {
		return Entry{}, err
	}

	comments := make([]cachedComment, 0, len(threads))
	for _, thread := range threads {
		var commentDoc docstore.CommentDoc
		if err := s.docs.GetJSON(ctx, docstore.Key("Comment", thread.CommentID), &commentDoc); err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return Entry{}, err
		}
		author, err := s.graph.CommentAuthor(ctx, thread.CommentID)
		if err != nil {
			return Entry{}, err
		}
		comments = append(comments, cachedComment{
			ID:        strings.TrimPrefix(thread.CommentID, dataSource+":"),
			Content:   sanitizeOptional(commentDoc.Content),
			Created:   thread.Created,
			CreatedBy: author,
		})
	}
	if len(comments) > 0 {
		entry.TopComment = comments[0].Content
	}

	// Image enrichment is best effort; a failure degrades this entry
	// only, never the run.
	if doc.Title != nil {
		photo, err := s.images.Search(ctx, sanitize.Plain(*doc.Title))
		if err != nil {
			s.logger.Warn().Err(err).
				Str("operation", "new-collections").
				Str("story", meta.ID).
				Msg("image search failed, entry stays unillustrated")
		} else if photo != nil {
			entry.ImageUsername = &photo.Username
			entry.ImageUserURL = &photo.UserURL
			entry.ImageURL = &photo.PhotoURL
			entry.ImageSourceURL = &photo.SourceURL
			entry.ImageBlurHash = &photo.BlurHash
		}
	}

	author, address, err := s.graph.StoryProvenance(ctx, meta.ID)
	if err != nil {
		return Entry{}, err
	}

	recommended := s.relatedStories(ctx, meta.ID, doc.Title)

	entryKey := "Collection:" + dateKey + ":" + shortSlug
	if err := s.docs.SetJSON(ctx, entryKey, entry); err != nil {
		return Entry{}, err
	}

	cache := entryCache{
		Story: cachedStory{
			ID:        strings.TrimPrefix(meta.ID, dataSource+":"),
			Created:   meta.Created,
			Content:   sanitizeOptional(doc.Content),
			CreatedBy: author,
			Address:   optionalAddress(address),
		},
		Comments:           comments,
		RecommendedStories: recommended,
	}
	if err := s.docs.SetBlob(ctx, entryKey+":_cache", cache); err != nil {
		return Entry{}, err
	}

	return entry, nil
}

// relatedStories runs the full-text lookup keyed by the entry's title
// keywords, dropping the origin story and repeated titles. Search
// failures degrade to an empty recommendation list.
func (s *Service) relatedStories(ctx context.Context, storyID string, title *string) []RecommendedStory {
	if title == nil {
		return nil
	}
	query := sanitize.Keywords(*title)
	if query == "" {
		return nil
	}

	hits, err := s.docs.SearchStories(ctx, query, relatedLimit)
	if err != nil {
		s.logger.Warn().Err(err).
			Str("operation", "new-collections").
			Str("story", storyID).
			Msg("related story search failed")
		return nil
	}

	seen := map[string]struct{}{*title: {}}
	recommended := make([]RecommendedStory, 0, len(hits))
	for _, hit := range hits {
		if hit.Title == "" {
			continue
		}
		if strings.TrimPrefix(hit.Key, "Story:") == storyID {
			continue
		}
		if _, dup := seen[hit.Title]; dup {
			continue
		}
		seen[hit.Title] = struct{}{}
		recommended = append(recommended, RecommendedStory{
			ID:    strings.TrimPrefix(hit.Key, "Story:"+dataSource+":"),
			Title: hit.Title,
		})
	}
	return recommended
}

func parseDateKey(dateKey string) (year, month, day int, err error) {
	parts := strings.Split(dateKey, ":")
	if len(parts) != 3 {
		return 0, 0, 0, fmt.Errorf("%w: %q wants y:m:d", ErrBadDateKey, dateKey)
	}

	numbers := make([]int, 3)
	for i, part := range parts {
		n, convErr := strconv.Atoi(part)
		if convErr != nil {
			return 0, 0, 0, fmt.Errorf("%w: %q", ErrBadDateKey, dateKey)
		}
		numbers[i] = n
	}
	year, month, day = numbers[0], numbers[1], numbers[2]
	if year < 1 || month < 1 || month > 12 || day < 1 || day > 31 {
		return 0, 0, 0, fmt.Errorf("%w: %q out of range", ErrBadDateKey, dateKey)
	}
	return year, month, day, nil
}

func sanitizeOptional(content *string) *string {
	if content == nil {
		return nil
	}
	clean := sanitize.Excerpt(*content)
	if strings.TrimSpace(clean) == "" {
		return nil
	}
	return &clean
}

func optionalAddress(address string) *string {
	if strings.TrimSpace(address) == "" || address == "undefined" {
		return nil
	}
	return &address
}
