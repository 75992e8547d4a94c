// Package ingest runs one curation pass: fetch feeds, rate the articles with
// the LLM, and store the ones above the threshold as pending bookmarks.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"socrates/config"
	"socrates/feeds"
	"socrates/llm"
	"socrates/metrics"
	"socrates/scoring"
)

// Fetcher lists and extracts articles from the configured feeds.
type Fetcher interface {
	FetchAll(ctx context.Context, feeds []config.Feed, limit int) []feeds.Link
}

// Gateway sends a conversation to the configured LLM.
type Gateway interface {
	Send(ctx context.Context, msgs []llm.Message, jsonMode bool) llm.Result
}

// Creator stores scored articles as bookmarks.
type Creator interface {
	Create(ctx context.Context, scored []scoring.Scored) (int, error)
}

// SettingsWriter records run metadata.
type SettingsWriter interface {
	SetSetting(ctx context.Context, key, value string) error
}

// Summary reports what one run did.
type Summary struct {
	Fetched  int
	Accepted int
	Created  int
}

// Runner orchestrates an ingestion run.
type Runner struct {
	fetcher  Fetcher
	gateway  Gateway
	creator  Creator
	settings SettingsWriter
	cfg      *config.Config
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithSettings records the last fetch time through w.
func WithSettings(w SettingsWriter) Option {
	return func(r *Runner) {
		r.settings = w
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		r.now = now
	}
}

// NewRunner creates an ingestion runner. cfg supplies feeds, prompt settings
// and the threshold.
func NewRunner(fetcher Fetcher, gateway Gateway, creator Creator, cfg *config.Config, opts ...Option) *Runner {
	r := &Runner{
		fetcher: fetcher,
		gateway: gateway,
		creator: creator,
		cfg:     cfg,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one ingestion pass. Feed, article and LLM failures reduce the
// output rather than failing the run; only a cancelled context or a failure to
// store bookmarks is returned as an error.
func (r *Runner) Run(ctx context.Context) (*Summary, error) {
	start := r.now()
	summary := &Summary{}

	if len(r.cfg.Feeds) == 0 {
		slog.Warn("no feeds configured, skipping ingest run")
		metrics.RecordIngestRun("skipped")
		return summary, nil
	}

	slog.Info("starting ingest run", "feeds", len(r.cfg.Feeds), "threshold", r.cfg.ThresholdScore)

	// Step 1: Fetch and extract articles
	links := r.fetcher.FetchAll(ctx, r.cfg.Feeds, r.cfg.MaxArticlesPerFeed)
	summary.Fetched = len(links)
	r.recordFetch(ctx, start)

	if err := ctx.Err(); err != nil {
		metrics.RecordIngestRun("cancelled")
		return summary, err
	}
	if len(links) == 0 {
		slog.Info("no articles extracted, skipping llm call")
		metrics.RecordIngestRun("empty")
		return summary, nil
	}

	// Step 2: Rate the batch
	prompt := scoring.BuildPrompt(links, r.cfg.FocusDescription, r.cfg.EmphasisAspect, r.cfg.Categories)
	result := r.gateway.Send(ctx, []llm.Message{llm.UserMessage(prompt)}, true)
	if result.IsError() {
		slog.Warn("llm rating failed", "error", result.Err)
	}

	// Step 3: Threshold and correlate
	accepted := scoring.Score(result, links, r.cfg.ThresholdScore)
	summary.Accepted = len(accepted)
	metrics.RecordArticles("accepted", len(accepted))

	// Step 4: Store
	created, err := r.creator.Create(ctx, accepted)
	summary.Created = created
	if err != nil {
		metrics.RecordIngestRun("failed")
		return summary, fmt.Errorf("create bookmarks: %w", err)
	}

	metrics.RecordIngestRun("ok")
	slog.Info("ingest run complete",
		"fetched", summary.Fetched,
		"accepted", summary.Accepted,
		"created", summary.Created,
		"duration", time.Since(start),
	)
	return summary, nil
}

func (r *Runner) recordFetch(ctx context.Context, at time.Time) {
	if r.settings == nil {
		return
	}
	if err := r.settings.SetSetting(ctx, config.SettingLastFeedFetch, at.Format(time.RFC3339)); err != nil {
		slog.Warn("failed to record last feed fetch", "error", err)
	}
}
