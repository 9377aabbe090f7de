// Package activity stores per-story weighted activity as RedisTimeSeries
// data. Each story owns a raw series plus hourly and daily SUM rollups,
// created lazily on first sample. The raw series carries a MAX duplicate
// policy so repeated or out-of-order refresh ticks never double count.
package activity

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	seriesType = "weighted"

	hourMillis = int(time.Hour / time.Millisecond)
	dayMillis  = 24 * hourMillis
)

// WeightedValue computes one activity sample.
// commentWeight defaults to 1 (intended range 1-100x); falloff is a
// percentage (0-100) that linearly discounts the weight.
func WeightedValue(score, commentTotal, commentWeight, falloff int) int {
	weight := commentWeight
	if weight < 1 {
		weight = 1
	}
	if falloff < 0 {
		falloff = 0
	}
	if falloff > 100 {
		falloff = 100
	}

	value := float64(score+commentTotal) * float64(weight) * (float64(100-falloff) / 100)
	return int(math.Round(value))
}

// SeriesKey returns the raw series key for a story ID like "hn:123".
func SeriesKey(storyID string) string {
	return "Story:" + storyID + ":_activity:" + seriesType
}

// Labels tag every series so curation can MRANGE by story with rollup
// filters.
type Labels struct {
	Story  string // story item key like "hn:123"
	User   string
	Domain string
}

// Sample is one data point of a series.
type Sample struct {
	Timestamp int64 // unix milliseconds
	Value     float64
}

type Series struct {
	rdb    *redis.Client
	logger zerolog.Logger
}

func NewSeries(rdb *redis.Client, logger zerolog.Logger) *Series {
	return &Series{rdb: rdb, logger: logger}
}

// Ensure creates the raw series and its hourly/daily rollups if any are
// missing. Creation is existence-checked first, so concurrent ingestion
// runs converge on one set of series per story.
func (s *Series) Ensure(ctx context.Context, storyID string, labels Labels) error {
	rawKey := SeriesKey(storyID)
	dayKey := rawKey + ":day"
	hourKey := rawKey + ":hour"

	pipe := s.rdb.Pipeline()
	rawExists := pipe.Exists(ctx, rawKey)
	dayExists := pipe.Exists(ctx, dayKey)
	hourExists := pipe.Exists(ctx, hourKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("check series for story %q: %w", storyID, err)
	}

	baseLabels := map[string]string{
		"story":  labels.Story,
		"user":   labels.User,
		"domain": labels.Domain,
		"type":   seriesType,
	}

	if rawExists.Val() == 0 {
		if err := s.createSeries(ctx, rawKey, baseLabels, ""); err != nil {
			return err
		}
	}
	if dayExists.Val() == 0 {
		if err := s.createRollup(ctx, rawKey, dayKey, baseLabels, "day", dayMillis); err != nil {
			return err
		}
	}
	if hourExists.Val() == 0 {
		if err := s.createRollup(ctx, rawKey, hourKey, baseLabels, "hour", hourMillis); err != nil {
			return err
		}
	}
	return nil
}

func (s *Series) createSeries(ctx context.Context, key string, labels map[string]string, compacted string) error {
	seriesLabels := make(map[string]string, len(labels)+1)
	for k, v := range labels {
		seriesLabels[k] = v
	}
	if compacted != "" {
		seriesLabels["compacted"] = compacted
	}

	err := s.rdb.TSCreateWithArgs(ctx, key, &redis.TSOptions{
		DuplicatePolicy: "max",
		Labels:          seriesLabels,
	}).Err()
	if err != nil && !isSeriesExists(err) {
		return fmt.Errorf("create series %q: %w", key, err)
	}
	return nil
}

func (s *Series) createRollup(ctx context.Context, rawKey, destKey string, labels map[string]string, compacted string, bucketMillis int) error {
	if err := s.createSeries(ctx, destKey, labels, compacted); err != nil {
		return err
	}
	err := s.rdb.TSCreateRule(ctx, rawKey, destKey, redis.Sum, bucketMillis).Err()
	if err != nil && !isRuleExists(err) {
		return fmt.Errorf("create %s rollup rule for %q: %w", compacted, rawKey, err)
	}
	return nil
}

// Append adds one weighted sample to the raw series. The series-level MAX
// duplicate policy keeps the larger value when a timestamp repeats.
func (s *Series) Append(ctx context.Context, storyID string, at time.Time, value int) error {
	key := SeriesKey(storyID)
	if err := s.rdb.TSAdd(ctx, key, at.UnixMilli(), float64(value)).Err(); err != nil {
		return fmt.Errorf("append sample to %q: %w", key, err)
	}
	return nil
}

// DailyMaxByStory reads the daily rollup samples inside [from, to],
// grouped by the story label, each group reduced to its maximum value.
// Keys of the returned map are story item keys.
func (s *Series) DailyMaxByStory(ctx context.Context, from, to time.Time) (map[string]float64, error) {
	result, err := s.rdb.TSMRangeWithArgs(
		ctx,
		int(from.UnixMilli()),
		int(to.UnixMilli()),
		[]string{"type=" + seriesType, "compacted=day"},
		&redis.TSMRangeOptions{
			GroupByLabel: "story",
			Reducer:      "max",
		},
	).Result()
	if err != nil {
		return nil, fmt.Errorf("range daily activity: %w", err)
	}

	byStory := make(map[string]float64, len(result))
	for key, raw := range result {
		storyID := strings.TrimPrefix(key, "story=")
		samples := parseRangeSamples(raw)
		if len(samples) == 0 {
			continue
		}
		max := samples[0].Value
		for _, sample := range samples[1:] {
			if sample.Value > max {
				max = sample.Value
			}
		}
		byStory[storyID] = max
	}
	return byStory, nil
}

// parseRangeSamples extracts data points from an MRANGE reply entry. The
// reply nests labels and data points in one slice, so anything that is
// not a [timestamp, value] pair list is skipped.
func parseRangeSamples(raw []interface{}) []Sample {
	var samples []Sample
	for _, entry := range raw {
		if sample, ok := asSample(entry); ok {
			samples = append(samples, sample)
			continue
		}
		nested, ok := entry.([]interface{})
		if !ok {
			continue
		}
		for _, inner := range nested {
			if sample, ok := asSample(inner); ok {
				samples = append(samples, sample)
			}
		}
	}
	return samples
}

func asSample(entry interface{}) (Sample, bool) {
	pair, ok := entry.([]interface{})
	if !ok || len(pair) != 2 {
		return Sample{}, false
	}

	timestamp, ok := asInt64(pair[0])
	if !ok {
		return Sample{}, false
	}
	value, ok := asFloat64(pair[1])
	if !ok {
		return Sample{}, false
	}
	return Sample{Timestamp: timestamp, Value: value}, true
}

func asInt64(v interface{}) (int64, bool) {
	switch typed := v.(type) {
	case int64:
		return typed, true
	case float64:
		return int64(typed), true
	default:
		return 0, false
	}
}

func asFloat64(v interface{}) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int64:
		return float64(typed), true
	case string:
		var value float64
		if _, err := fmt.Sscanf(typed, "%g", &value); err != nil {
			return 0, false
		}
		return value, true
	default:
		return 0, false
	}
}

func isSeriesExists(err error) bool {
	return err != nil && strings.Contains(err.Error(), "key already exists")
}

func isRuleExists(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "compaction rule already exists") ||
		strings.Contains(msg, "the destination key already has a src rule")
}
