package sources

import (
	"fmt"

	"github.com/stacklok/toolhive-docs-cache/internal/config"
	"github.com/stacklok/toolhive-docs-cache/internal/httpclient"
)

// NewFetcher creates the content fetcher for the configured upstream type
func NewFetcher(cfg *config.UpstreamConfig, client httpclient.Client) (ContentFetcher, error) {
	switch cfg.Type {
	case config.UpstreamTypeHTTP:
		return NewHTTPFetcher(cfg.BaseURL, client)
	case config.UpstreamTypeFile:
		return NewFileFetcher(cfg.Root), nil
	default:
		return nil, fmt.Errorf("unsupported upstream type: %s", cfg.Type)
	}
}

// NewProbe creates the upstream probe, or returns nil when none is configured
func NewProbe(cfg *config.ProbeConfig, client httpclient.Client) (UpstreamProbe, error) {
	if cfg == nil {
		return nil, nil
	}
	switch cfg.Type {
	case config.ProbeTypeGit:
		return NewGitProbe(cfg.Repository, cfg.Ref), nil
	case config.ProbeTypeHTTP:
		return NewHTTPProbe(cfg.URL, client), nil
	default:
		return nil, fmt.Errorf("unsupported probe type: %s", cfg.Type)
	}
}
