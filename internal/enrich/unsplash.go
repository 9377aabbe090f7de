// Package enrich wraps the best-effort enrichment boundary. Image search
// failures degrade a single collection entry, never the curation run.
package enrich

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const defaultBaseURL = "https://api.unsplash.com"

// Photo is the descriptor persisted on a collection entry for image
// attribution.
type Photo struct {
	Username  string
	UserURL   string
	PhotoURL  string
	SourceURL string
	BlurHash  string
}

type Unsplash struct {
	http      *http.Client
	baseURL   string
	accessKey string
	logger    zerolog.Logger
}

func NewUnsplash(accessKey string, timeout time.Duration, logger zerolog.Logger) *Unsplash {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Unsplash{
		http:      &http.Client{Timeout: timeout},
		baseURL:   defaultBaseURL,
		accessKey: strings.TrimSpace(accessKey),
		logger:    logger,
	}
}

// SetBaseURL overrides the API host, for tests.
func (u *Unsplash) SetBaseURL(baseURL string) {
	u.baseURL = strings.TrimRight(baseURL, "/")
}

type searchResponse struct {
	Results []struct {
		BlurHash string `json:"blur_hash"`
		URLs     struct {
			Raw string `json:"raw"`
		} `json:"urls"`
		Links struct {
			HTML string `json:"html"`
		} `json:"links"`
		User struct {
			Username string `json:"username"`
			Links    struct {
				HTML string `json:"html"`
			} `json:"links"`
		} `json:"user"`
	} `json:"results"`
}

// Search returns the best photo match for a query, or nil when there is
// none or no access key is configured.
func (u *Unsplash) Search(ctx context.Context, query string) (*Photo, error) {
	if u.accessKey == "" {
		return nil, nil
	}

	endpoint := fmt.Sprintf(
		"%s/search/photos?query=%s&per_page=1",
		u.baseURL,
		url.QueryEscape(`"`+query+`"`),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build image search request: %w", err)
	}
	req.Header.Set("Authorization", "Client-ID "+u.accessKey)

	resp, err := u.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("image search %q: %w", query, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image search %q: unexpected status %d", query, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read image search response: %w", err)
	}

	var payload searchResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode image search response: %w", err)
	}
	if len(payload.Results) == 0 {
		return nil, nil
	}

	best := payload.Results[0]
	return &Photo{
		Username:  best.User.Username,
		UserURL:   best.User.Links.HTML,
		PhotoURL:  best.URLs.Raw,
		SourceURL: best.Links.HTML,
		BlurHash:  best.BlurHash,
	}, nil
}
