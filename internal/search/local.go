package search

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"unicode"

	"github.com/stacklok/toolhive-docs-cache/internal/sources"
	"github.com/stacklok/toolhive-docs-cache/internal/storage"
)

const snippetRadius = 80

// LocalBackend scores cached source content in process
type LocalBackend struct {
	registry *sources.Registry
	content  storage.BlobStore
}

// NewLocalBackend creates a backend over the content cache
func NewLocalBackend(registry *sources.Registry, content storage.BlobStore) *LocalBackend {
	return &LocalBackend{registry: registry, content: content}
}

// Search counts query term occurrences in each cached source. Matches in
// the source id, title, or description weigh more than matches in the body.
func (b *LocalBackend) Search(ctx context.Context, q Query) ([]Result, error) {
	terms := tokenize(q.Text)
	if len(terms) == 0 {
		return nil, ErrEmptyQuery
	}

	var candidates []sources.SourceConfig
	if category := q.Filters["category"]; category != "" {
		candidates = b.registry.Filter([]sources.Category{sources.Category(category)})
	} else {
		candidates = b.registry.All()
	}

	results := []Result{}
	for _, src := range candidates {
		data, err := b.content.ReadBlob(ctx, storage.ContentKey(src.ID))
		if errors.Is(err, storage.ErrNotFound) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("Failed to read cached content", "source", src.ID, "error", err)
			continue
		}

		body := string(data)
		title := titleOf(src, body)
		score := scoreDocument(terms, body, src.ID+" "+title+" "+src.Description)
		if score == 0 {
			continue
		}
		results = append(results, Result{
			SourceID: src.ID,
			Title:    title,
			Path:     src.Path,
			Category: string(src.Category),
			Snippet:  snippet(body, terms),
			Score:    score,
		})
	}

	slices.SortStableFunc(results, func(a, b Result) int {
		return cmp.Compare(b.Score, a.Score)
	})

	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	slices.Sort(fields)
	return slices.Compact(fields)
}

func scoreDocument(terms []string, body, heading string) float64 {
	body = strings.ToLower(body)
	heading = strings.ToLower(heading)

	var score float64
	for _, term := range terms {
		score += float64(strings.Count(body, term))
		score += 3 * float64(strings.Count(heading, term))
	}
	return score
}

// titleOf returns the first markdown heading, or the source id
func titleOf(src sources.SourceConfig, body string) string {
	for line := range strings.Lines(body) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "#") {
			if title := strings.TrimSpace(strings.TrimLeft(line, "#")); title != "" {
				return title
			}
		}
	}
	return src.ID
}

// snippet returns the text around the earliest term match
func snippet(body string, terms []string) string {
	lower := strings.ToLower(body)
	at := -1
	for _, term := range terms {
		if i := strings.Index(lower, term); i >= 0 && (at < 0 || i < at) {
			at = i
		}
	}
	if at < 0 {
		return ""
	}

	start := max(0, at-snippetRadius)
	end := min(len(body), at+snippetRadius)
	// avoid cutting through a multi-byte rune
	for start > 0 && !isRuneStart(body[start]) {
		start--
	}
	for end < len(body) && !isRuneStart(body[end]) {
		end++
	}

	text := strings.Join(strings.Fields(body[start:end]), " ")
	if start > 0 {
		text = "..." + text
	}
	if end < len(body) {
		text += "..."
	}
	return text
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
