package sources

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/stacklok/toolhive-docs-cache/internal/httpclient"
)

// maxSymbolicHops bounds symbolic ref resolution (HEAD -> refs/heads/main -> hash)
const maxSymbolicHops = 5

// remoteLister is the subset of *git.Remote used by GitProbe
type remoteLister interface {
	ListContext(ctx context.Context, o *git.ListOptions) ([]*plumbing.Reference, error)
}

// GitProbe fingerprints an upstream by the commit a ref currently points at.
// It only lists remote refs and never clones.
type GitProbe struct {
	repository string
	ref        string
	lister     remoteLister
}

var _ UpstreamProbe = (*GitProbe)(nil)

// NewGitProbe creates a probe for ref on repository. An empty ref means HEAD.
func NewGitProbe(repository, ref string) *GitProbe {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{repository},
	})
	return &GitProbe{
		repository: repository,
		ref:        ref,
		lister:     remote,
	}
}

// Fingerprint returns the hash the configured ref resolves to
func (p *GitProbe) Fingerprint(ctx context.Context) (string, error) {
	refs, err := p.lister.ListContext(ctx, &git.ListOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to list refs of %s: %w", p.repository, err)
	}

	byName := make(map[plumbing.ReferenceName]*plumbing.Reference, len(refs))
	for _, r := range refs {
		byName[r.Name()] = r
	}

	for _, name := range candidateRefNames(p.ref) {
		ref, ok := byName[name]
		if !ok {
			continue
		}
		hash, err := resolveRef(ref, byName)
		if err != nil {
			return "", err
		}
		slog.Debug("Resolved upstream ref", "repository", p.repository, "ref", name.String(), "hash", hash)
		return hash, nil
	}

	return "", fmt.Errorf("ref %q not found on %s", p.ref, p.repository)
}

// candidateRefNames expands a short ref the way git does: full name, branch, then tag
func candidateRefNames(ref string) []plumbing.ReferenceName {
	if ref == "" || ref == plumbing.HEAD.String() {
		return []plumbing.ReferenceName{plumbing.HEAD}
	}
	if strings.HasPrefix(ref, "refs/") {
		return []plumbing.ReferenceName{plumbing.ReferenceName(ref)}
	}
	return []plumbing.ReferenceName{
		plumbing.NewBranchReferenceName(ref),
		plumbing.NewTagReferenceName(ref),
	}
}

func resolveRef(ref *plumbing.Reference, byName map[plumbing.ReferenceName]*plumbing.Reference) (string, error) {
	for range maxSymbolicHops {
		if ref.Type() == plumbing.HashReference {
			return ref.Hash().String(), nil
		}
		next, ok := byName[ref.Target()]
		if !ok {
			return "", fmt.Errorf("symbolic ref %s points at missing %s", ref.Name(), ref.Target())
		}
		ref = next
	}
	return "", fmt.Errorf("too many symbolic ref hops resolving %s", ref.Name())
}

// HTTPProbe fingerprints an upstream by hashing a manifest document (sitemap, index, llms.txt)
type HTTPProbe struct {
	url    string
	client httpclient.Client
}

var _ UpstreamProbe = (*HTTPProbe)(nil)

// NewHTTPProbe creates a probe for the manifest at url
func NewHTTPProbe(url string, client httpclient.Client) *HTTPProbe {
	return &HTTPProbe{url: url, client: client}
}

// Fingerprint returns the SHA-256 of the manifest body
func (p *HTTPProbe) Fingerprint(ctx context.Context) (string, error) {
	resp, err := p.client.Get(ctx, p.url, "")
	if err != nil {
		return "", fmt.Errorf("failed to fetch manifest: %w", err)
	}
	return Fingerprint(resp.Body), nil
}
