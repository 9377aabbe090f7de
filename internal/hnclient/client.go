// Package hnclient is the Hacker News source adapter. It reads new-story
// IDs and item/user payloads from the Firebase API and full comment trees
// from the Algolia API.
package hnclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultBaseURL    = "https://hacker-news.firebaseio.com/v0"
	defaultAlgoliaURL = "https://hn.algolia.com/api/v1"

	// SourceDomain stands in for the story URL when a submission is a
	// self post.
	SourceDomain = "news.ycombinator.com"
)

// ErrItemMissing reports that the upstream source has no payload for the
// requested item. Callers decide whether that is fatal; comment
// re-ingestion treats it as a benign skip.
var ErrItemMissing = fmt.Errorf("hn: source item missing")

// Story is the native item payload. Every field can be absent upstream,
// so zero values are meaningful defaults.
type Story struct {
	By          string `json:"by"`
	Dead        bool   `json:"dead"`
	Deleted     bool   `json:"deleted"`
	Descendants int    `json:"descendants"`
	ID          int64  `json:"id"`
	Score       int    `json:"score"`
	Text        string `json:"text"`
	Time        int64  `json:"time"`
	Title       string `json:"title"`
	URL         string `json:"url"`
}

// Domain returns the story's link domain without a www prefix, or the
// source domain for self posts.
func (s *Story) Domain() string {
	if strings.TrimSpace(s.URL) == "" {
		return SourceDomain
	}
	parsed, err := url.Parse(s.URL)
	if err != nil || parsed.Hostname() == "" {
		return SourceDomain
	}
	return strings.TrimPrefix(parsed.Hostname(), "www.")
}

type User struct {
	About   string `json:"about"`
	Created int64  `json:"created"`
	ID      string `json:"id"`
	Karma   int    `json:"karma"`
}

// Comment is one node of the Algolia comment tree.
type Comment struct {
	Author    string    `json:"author"`
	Children  []Comment `json:"children"`
	CreatedAt int64     `json:"created_at_i"`
	Deleted   bool      `json:"deleted"`
	ID        int64     `json:"id"`
	ParentID  int64     `json:"parent_id"`
	StoryID   int64     `json:"story_id"`
	Text      string    `json:"text"`
}

// Flatten walks a comment tree depth-first and returns every node in one
// slice, parents before their children.
func Flatten(comments []Comment) []Comment {
	flat := make([]Comment, 0, len(comments))
	for _, comment := range comments {
		children := comment.Children
		comment.Children = nil
		flat = append(flat, comment)
		if len(children) > 0 {
			flat = append(flat, Flatten(children)...)
		}
	}
	return flat
}

type Options struct {
	BaseURL    string
	AlgoliaURL string
	UserAgent  string
	Timeout    time.Duration
}

type Client struct {
	http       *http.Client
	baseURL    string
	algoliaURL string
	userAgent  string
	logger     zerolog.Logger
}

func New(opts Options, logger zerolog.Logger) *Client {
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	algoliaURL := strings.TrimRight(opts.AlgoliaURL, "/")
	if algoliaURL == "" {
		algoliaURL = defaultAlgoliaURL
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	return &Client{
		http:       &http.Client{Timeout: timeout},
		baseURL:    baseURL,
		algoliaURL: algoliaURL,
		userAgent:  strings.TrimSpace(opts.UserAgent),
		logger:     logger,
	}
}

// NewStoryIDs returns the newest native story IDs, newest first.
func (c *Client) NewStoryIDs(ctx context.Context) ([]string, error) {
	body, err := c.get(ctx, c.baseURL+"/newstories.json")
	if err != nil {
		return nil, err
	}

	var raw []int64
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("decode new story IDs: %w", err)
	}

	ids := make([]string, 0, len(raw))
	for _, id := range raw {
		ids = append(ids, strconv.FormatInt(id, 10))
	}
	return ids, nil
}

// Story fetches one native item payload. A null body means the item has
// not propagated or was removed upstream.
func (c *Client) Story(ctx context.Context, id string) (*Story, error) {
	body, err := c.get(ctx, c.baseURL+"/item/"+url.PathEscape(id)+".json")
	if err != nil {
		return nil, err
	}
	if isJSONNull(body) {
		return nil, fmt.Errorf("story %q: %w", id, ErrItemMissing)
	}

	if err := ValidateStoryPayload(body); err != nil {
		return nil, fmt.Errorf("story %q: %w", id, err)
	}

	var story Story
	if err := json.Unmarshal(body, &story); err != nil {
		return nil, fmt.Errorf("decode story %q: %w", id, err)
	}
	return &story, nil
}

func (c *Client) User(ctx context.Context, id string) (*User, error) {
	body, err := c.get(ctx, c.baseURL+"/user/"+url.PathEscape(id)+".json")
	if err != nil {
		return nil, err
	}
	if isJSONNull(body) {
		return nil, fmt.Errorf("user %q: %w", id, ErrItemMissing)
	}

	var user User
	if err := json.Unmarshal(body, &user); err != nil {
		return nil, fmt.Errorf("decode user %q: %w", id, err)
	}
	return &user, nil
}

// CommentTree fetches the full comment tree for a story from Algolia. A
// 404 maps to ErrItemMissing: the story has not propagated there yet, or
// is locked or deleted.
func (c *Client) CommentTree(ctx context.Context, storyID string) ([]Comment, error) {
	body, err := c.get(ctx, c.algoliaURL+"/items/"+url.PathEscape(storyID))
	if err != nil {
		return nil, err
	}
	if isJSONNull(body) {
		return nil, fmt.Errorf("comment tree for story %q: %w", storyID, ErrItemMissing)
	}

	var payload struct {
		Children []Comment `json:"children"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode comment tree for story %q: %w", storyID, err)
	}
	return payload.Children, nil
}

func (c *Client) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("source request %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("source request %s: %w", rawURL, ErrItemMissing)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("source request %s: unexpected status %d", rawURL, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response %s: %w", rawURL, err)
	}
	return body, nil
}

func isJSONNull(body []byte) bool {
	trimmed := strings.TrimSpace(string(body))
	return trimmed == "" || trimmed == "null"
}
