package hnclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return New(Options{
		BaseURL:    server.URL,
		AlgoliaURL: server.URL,
		UserAgent:  "hyperion-test",
	}, zerolog.Nop())
}

func TestNewStoryIDs(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/newstories.json" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("User-Agent"); got != "hyperion-test" {
			t.Errorf("User-Agent = %q", got)
		}
		w.Write([]byte(`[31337, 31336, 31335]`))
	}))

	ids, err := client.NewStoryIDs(context.Background())
	if err != nil {
		t.Fatalf("NewStoryIDs: %v", err)
	}

	want := []string{"31337", "31336", "31335"}
	if len(ids) != len(want) {
		t.Fatalf("got %d ids, want %d", len(ids), len(want))
	}
	for i, id := range ids {
		if id != want[i] {
			t.Fatalf("ids[%d] = %q, want %q", i, id, want[i])
		}
	}
}

func TestStoryNullPayloadIsMissing(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`null`))
	}))

	_, err := client.Story(context.Background(), "31337")
	if !errors.Is(err, ErrItemMissing) {
		t.Fatalf("want ErrItemMissing, got %v", err)
	}
}

func TestStoryRejectsInvalidPayload(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Valid JSON but missing the required id field.
		w.Write([]byte(`{"title": "no id here", "time": 1700000000}`))
	}))

	if _, err := client.Story(context.Background(), "31337"); err == nil {
		t.Fatal("want schema validation error, got nil")
	}
}

func TestStoryDecodesPayload(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"by": "pg",
			"descendants": 12,
			"id": 31337,
			"score": 44,
			"time": 1700000000,
			"title": "A story",
			"url": "https://www.example.com/post"
		}`))
	}))

	story, err := client.Story(context.Background(), "31337")
	if err != nil {
		t.Fatalf("Story: %v", err)
	}
	if story.By != "pg" || story.Score != 44 || story.Descendants != 12 {
		t.Fatalf("unexpected story: %+v", story)
	}
	if got, want := story.Domain(), "example.com"; got != want {
		t.Fatalf("Domain = %q, want %q", got, want)
	}
}

func TestDomainFallsBackToSource(t *testing.T) {
	t.Parallel()

	story := &Story{Title: "Ask HN: something"}
	if got := story.Domain(); got != SourceDomain {
		t.Fatalf("Domain = %q, want %q", got, SourceDomain)
	}
}

func TestCommentTreeNotFound(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	_, err := client.CommentTree(context.Background(), "31337")
	if !errors.Is(err, ErrItemMissing) {
		t.Fatalf("want ErrItemMissing, got %v", err)
	}
}

func TestFlattenWalksDepthFirst(t *testing.T) {
	t.Parallel()

	tree := []Comment{
		{
			ID: 1,
			Children: []Comment{
				{ID: 2, Children: []Comment{{ID: 3}}},
				{ID: 4},
			},
		},
		{ID: 5},
	}

	flat := Flatten(tree)
	want := []int64{1, 2, 3, 4, 5}
	if len(flat) != len(want) {
		t.Fatalf("got %d comments, want %d", len(flat), len(want))
	}
	for i, comment := range flat {
		if comment.ID != want[i] {
			t.Fatalf("flat[%d].ID = %d, want %d", i, comment.ID, want[i])
		}
		if comment.Children != nil {
			t.Fatalf("flat[%d] still has children attached", i)
		}
	}
}
