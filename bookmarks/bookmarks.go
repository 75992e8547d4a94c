// Package bookmarks turns scored articles into pending bookmarks, skipping
// any URL the store has already seen.
package bookmarks

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"net/url"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"socrates/metrics"
	"socrates/scoring"
	"socrates/storage"
)

const (
	titleWords   = 20
	excerptWords = 25

	// OtherCategory receives articles the LLM left uncategorised.
	OtherCategory = scoring.OtherCategory
)

// Store is the bookmark persistence the Creator needs.
type Store interface {
	BookmarkExists(ctx context.Context, search string) (bool, error)
	EnsureCategory(ctx context.Context, name string) (int64, error)
	InsertBookmark(ctx context.Context, b *storage.Bookmark) error
}

// Creator persists scored articles as pending bookmarks.
type Creator struct {
	store  Store
	policy *bluemonday.Policy
}

// NewCreator creates a Creator backed by store.
func NewCreator(store Store) *Creator {
	return &Creator{
		store:  store,
		policy: bluemonday.StrictPolicy(),
	}
}

// IsDuplicate reports whether rawURL is already stored in any visibility state.
func (c *Creator) IsDuplicate(ctx context.Context, rawURL string) (bool, error) {
	exists, err := c.store.BookmarkExists(ctx, rawURL)
	if err != nil {
		return false, fmt.Errorf("check duplicate %s: %w", rawURL, err)
	}
	return exists, nil
}

// EnsureCategory returns the ID of the named category, creating it when absent.
func (c *Creator) EnsureCategory(ctx context.Context, name string) (int64, error) {
	id, err := c.store.EnsureCategory(ctx, name)
	if err != nil {
		return 0, fmt.Errorf("ensure category %q: %w", name, err)
	}
	return id, nil
}

// Create stores every non-duplicate article as a pending bookmark and
// returns how many were created. Duplicates, both against the store and
// within scored, are skipped. Per-article failures are logged and skipped.
func (c *Creator) Create(ctx context.Context, scored []scoring.Scored) (int, error) {
	seen := make(map[string]bool, len(scored))
	created := 0

	for _, s := range scored {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		link := strings.TrimSpace(s.URL)
		if !validURL(link) {
			slog.Warn("skipping scored article with invalid url", "url", s.URL)
			continue
		}
		if seen[link] {
			metrics.RecordArticles("duplicate", 1)
			continue
		}
		seen[link] = true

		dup, err := c.IsDuplicate(ctx, link)
		if err != nil {
			slog.Warn("failed to check for duplicate bookmark", "url", link, "error", err)
			continue
		}
		if dup {
			slog.Debug("skipping duplicate bookmark", "url", link)
			metrics.RecordArticles("duplicate", 1)
			continue
		}

		category := strings.TrimSpace(s.Category)
		if category == "" {
			category = OtherCategory
		}
		categoryID, err := c.EnsureCategory(ctx, category)
		if err != nil {
			slog.Warn("failed to ensure category", "category", category, "url", link, "error", err)
			continue
		}

		b := &storage.Bookmark{
			URL:        link,
			Title:      c.plain(s.Title, titleWords),
			Excerpt:    c.plain(s.Excerpt, excerptWords),
			CategoryID: categoryID,
			Score:      s.Score,
			Confidence: s.Confidence,
			Visible:    storage.VisibilityPending,
		}
		if err := c.store.InsertBookmark(ctx, b); err != nil {
			slog.Warn("failed to insert bookmark", "url", link, "error", err)
			continue
		}
		created++
	}

	metrics.RecordArticles("bookmarked", created)
	return created, nil
}

// plain strips markup and truncates to n words.
func (c *Creator) plain(s string, n int) string {
	return scoring.TrimWords(html.UnescapeString(c.policy.Sanitize(s)), n)
}

func validURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
