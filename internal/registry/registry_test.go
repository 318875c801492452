package registry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStaticHasTopic(t *testing.T) {
	p := Static{Topics: []string{"Flashcards", "language"}}

	got, err := p.HasTopic(context.Background(), ListingTopic)
	if err != nil {
		t.Fatalf("HasTopic() error = %v", err)
	}
	if !got {
		t.Error("HasTopic(flashcards) = false, want true (case-insensitive)")
	}

	got, err = p.HasTopic(context.Background(), "cooking")
	if err != nil {
		t.Fatalf("HasTopic() error = %v", err)
	}
	if got {
		t.Error("HasTopic(cooking) = true, want false")
	}
}

func TestGitHubHasTopic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/repos/starford/cards/topics" {
			t.Errorf("path = %q, want /repos/starford/cards/topics", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"names":["flashcards","spanish"]}`))
	}))
	defer srv.Close()

	g := &GitHub{Owner: "starford", Repo: "cards", BaseURL: srv.URL}

	got, err := g.HasTopic(context.Background(), ListingTopic)
	if err != nil {
		t.Fatalf("HasTopic() error = %v", err)
	}
	if !got {
		t.Error("HasTopic(flashcards) = false, want true")
	}

	got, err = g.HasTopic(context.Background(), "german")
	if err != nil {
		t.Fatalf("HasTopic() error = %v", err)
	}
	if got {
		t.Error("HasTopic(german) = true, want false")
	}
}

func TestGitHubHasTopicErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "not found", http.StatusNotFound)
	}))
	defer srv.Close()

	g := &GitHub{Owner: "starford", Repo: "missing", BaseURL: srv.URL}
	if _, err := g.HasTopic(context.Background(), ListingTopic); err == nil {
		t.Error("HasTopic() error = nil, want non-nil for 404")
	}
}
