package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mmcdole/gofeed"

	"socrates/config"
	"socrates/metrics"
)

// ListCandidates parses an RSS or Atom feed and returns up to limit items in
// feed order.
func (f *Fetcher) ListCandidates(ctx context.Context, feedURL string, limit int) ([]Candidate, error) {
	fp := gofeed.NewParser()
	fp.Client = f.httpClient
	fp.UserAgent = f.userAgent

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feedURL, err)
	}

	items := feed.Items
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}

	candidates := make([]Candidate, 0, len(items))
	for _, item := range items {
		if item == nil {
			continue
		}
		candidates = append(candidates, Candidate{
			Title: strings.TrimSpace(item.Title),
			Link:  strings.TrimSpace(item.Link),
			GUID:  strings.TrimSpace(item.GUID),
		})
	}
	return candidates, nil
}

// FetchAll lists every feed and extracts each candidate, returning links in
// feed order then item order. Feed and article failures are logged and
// skipped.
func (f *Fetcher) FetchAll(ctx context.Context, feeds []config.Feed, limit int) []Link {
	var candidates []Candidate
	for _, feed := range feeds {
		items, err := f.ListCandidates(ctx, feed.URL, limit)
		if err != nil {
			slog.Warn("failed to fetch feed", "feed", feed.Name, "url", feed.URL, "error", err)
			continue
		}
		candidates = append(candidates, items...)
	}
	metrics.RecordArticles("candidate", len(candidates))
	slog.Info("listed feed candidates", "feeds", len(feeds), "candidates", len(candidates))

	links := make([]Link, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			slog.Warn("article extraction interrupted", "error", err)
			break
		}
		link, err := f.ExtractContent(ctx, c)
		if err != nil {
			slog.Warn("failed to extract article", "url", c.Link, "guid", c.GUID, "error", err)
			metrics.RecordArticles("dropped", 1)
			continue
		}
		links = append(links, *link)
	}
	metrics.RecordArticles("extracted", len(links))

	return links
}
