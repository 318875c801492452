// Package registry abstracts the external hosting platform's read-only
// topic query. The engine only ever asks whether the deck's repository
// carries a topic; listing and discovery stay outside its authority.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ListingTopic is the topic a hosted deck repository is expected to carry.
const ListingTopic = "flashcards"

// TopicProvider answers the single registry question the reporter asks.
type TopicProvider interface {
	HasTopic(ctx context.Context, topic string) (bool, error)
}

// Static is a config-backed provider with a fixed topic list.
type Static struct {
	Topics []string
}

// HasTopic implements TopicProvider.
func (s Static) HasTopic(_ context.Context, topic string) (bool, error) {
	for _, t := range s.Topics {
		if strings.EqualFold(t, topic) {
			return true, nil
		}
	}
	return false, nil
}

// GitHub queries a repository's topics through the GitHub REST API.
type GitHub struct {
	Owner string
	Repo  string
	// BaseURL overrides the API endpoint, for tests.
	BaseURL string
	// Client defaults to a client with a short timeout; the topic check
	// is advisory and must not stall a batch run.
	Client *http.Client
}

// HasTopic implements TopicProvider.
func (g *GitHub) HasTopic(ctx context.Context, topic string) (bool, error) {
	base := g.BaseURL
	if base == "" {
		base = "https://api.github.com"
	}
	client := g.Client
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	url := fmt.Sprintf("%s/repos/%s/%s/topics", base, g.Owner, g.Repo)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("registry: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return false, fmt.Errorf("registry: query topics: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("registry: query topics: unexpected status %s", resp.Status)
	}

	var body struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("registry: decode topics: %w", err)
	}
	return Static{Topics: body.Names}.HasTopic(ctx, topic)
}
