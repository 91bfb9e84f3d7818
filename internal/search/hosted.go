package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/stacklok/toolhive-docs-cache/internal/httpclient"
)

// HostedBackend queries a remote search service over HTTP
type HostedBackend struct {
	endpoint string
	client   httpclient.Client
}

// NewHostedBackend creates a backend posting queries to <baseURL>/search
func NewHostedBackend(baseURL string, client httpclient.Client) *HostedBackend {
	return &HostedBackend{
		endpoint: strings.TrimSuffix(baseURL, "/") + "/search",
		client:   client,
	}
}

// Search posts q and parses the "results" array of the response
func (b *HostedBackend) Search(ctx context.Context, q Query) ([]Result, error) {
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to encode query: %w", err)
	}

	data, err := b.client.Post(ctx, b.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("hosted search failed: %w", err)
	}

	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("hosted search returned invalid JSON")
	}
	hits := gjson.GetBytes(data, "results")
	if !hits.IsArray() {
		return nil, fmt.Errorf("hosted search response has no results array")
	}

	results := make([]Result, 0, len(hits.Array()))
	for _, hit := range hits.Array() {
		id := hit.Get("id").String()
		if id == "" {
			continue
		}
		results = append(results, Result{
			SourceID: id,
			Title:    hit.Get("title").String(),
			Path:     hit.Get("path").String(),
			Category: hit.Get("category").String(),
			Snippet:  hit.Get("snippet").String(),
			URL:      hit.Get("url").String(),
			Score:    hit.Get("score").Float(),
		})
	}
	return results, nil
}
