// Package digest assembles the weekly "News of the week" draft post from
// pending bookmarks and tells the admin it is ready for review.
package digest

import (
	"context"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"socrates/config"
	"socrates/metrics"
	"socrates/notify"
	"socrates/scoring"
	"socrates/storage"
)

const titlePrefix = "News of the week for the week of "

// Store provides the bookmark and post operations the Assembler needs.
type Store interface {
	ListCategories(ctx context.Context) ([]storage.Category, error)
	ListBookmarksByVisibility(ctx context.Context, v storage.Visibility, categoryIDs []int64) ([]storage.Bookmark, error)
	InsertPost(ctx context.Context, p *storage.Post) error
	SetBookmarkVisibility(ctx context.Context, ids []int64, v storage.Visibility) error
}

// Group is the pending bookmarks of one category.
type Group struct {
	CategoryID int64
	Category   string
	Bookmarks  []storage.Bookmark
}

// Result reports what one run did. PostID is zero when no post was created.
type Result struct {
	PostID    int64
	Title     string
	Bookmarks int
	Notified  bool
}

// Assembler runs gather, render, publish, flip visibility and notify.
type Assembler struct {
	store        Store
	notifier     notify.Notifier
	includeOther bool
	postCategory int64
	author       string
	editURL      string
	policy       *bluemonday.Policy
}

// NewAssembler creates an Assembler. cfg supplies the include-Other flag and
// the digest post settings.
func NewAssembler(store Store, notifier notify.Notifier, cfg *config.Config) *Assembler {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	postCategory := int64(cfg.Digest.PostCategory)
	if postCategory <= 0 {
		postCategory = 1
	}
	return &Assembler{
		store:        store,
		notifier:     notifier,
		includeOther: cfg.IncludeOtherCategory,
		postCategory: postCategory,
		author:       cfg.Digest.Author,
		editURL:      cfg.Digest.EditURLTemplate,
		policy:       bluemonday.UGCPolicy(),
	}
}

// Run assembles and publishes one digest. An empty gather creates nothing.
// A publish failure leaves every bookmark pending and sends no notification.
func (a *Assembler) Run(ctx context.Context, now time.Time) (*Result, error) {
	groups, err := a.Gather(ctx)
	if err != nil {
		metrics.RecordDigestRun("failed")
		return nil, fmt.Errorf("gather bookmarks: %w", err)
	}

	var ids []int64
	for _, g := range groups {
		for _, b := range g.Bookmarks {
			ids = append(ids, b.ID)
		}
	}
	if len(ids) == 0 {
		slog.Info("no pending bookmarks, skipping digest")
		metrics.RecordDigestRun("empty")
		return &Result{}, nil
	}

	weekDate := FormatWeekDate(WeekOf(now))
	post := &storage.Post{
		Title:      titlePrefix + weekDate,
		Content:    a.Render(groups),
		Excerpt:    "Links for the week: " + weekDate,
		Status:     storage.PostStatusDraft,
		CategoryID: a.postCategory,
		Author:     a.author,
		CreatedAt:  now,
	}
	if err := a.store.InsertPost(ctx, post); err != nil {
		metrics.RecordDigestRun("failed")
		return nil, fmt.Errorf("publish digest: %w", err)
	}
	result := &Result{PostID: post.ID, Title: post.Title, Bookmarks: len(ids)}
	slog.Info("digest created", "post_id", post.ID, "title", post.Title, "bookmarks", len(ids))

	flipErr := a.store.SetBookmarkVisibility(ctx, ids, storage.VisibilityPublished)
	if flipErr != nil {
		slog.Error("failed to mark bookmarks published", "post_id", post.ID, "error", flipErr)
	}

	msg := notify.Message{
		Subject: fmt.Sprintf("[Action Required] : Review newly created post for \"%s\"", post.Title),
		Body:    a.emailBody(post),
	}
	if err := a.notifier.Notify(ctx, msg); err != nil {
		slog.Warn("failed to notify admin", "post_id", post.ID, "error", err)
	} else {
		result.Notified = true
	}

	if flipErr != nil {
		metrics.RecordDigestRun("failed")
		return result, fmt.Errorf("mark bookmarks published: %w", flipErr)
	}
	metrics.RecordDigestRun("ok")
	return result, nil
}

// Gather returns pending bookmarks grouped by category in category ID order.
// "Other" is skipped unless included, and when included it is always last.
func (a *Assembler) Gather(ctx context.Context) ([]Group, error) {
	cats, err := a.store.ListCategories(ctx)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}

	var ids []int64
	for _, c := range cats {
		if c.Name == scoring.OtherCategory && !a.includeOther {
			continue
		}
		ids = append(ids, c.ID)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	bookmarks, err := a.store.ListBookmarksByVisibility(ctx, storage.VisibilityPending, ids)
	if err != nil {
		return nil, fmt.Errorf("list pending bookmarks: %w", err)
	}

	var groups []Group
	index := map[int64]int{}
	for _, b := range bookmarks {
		i, ok := index[b.CategoryID]
		if !ok {
			i = len(groups)
			index[b.CategoryID] = i
			groups = append(groups, Group{CategoryID: b.CategoryID, Category: b.Category})
		}
		groups[i].Bookmarks = append(groups[i].Bookmarks, b)
	}

	return moveOtherLast(groups), nil
}

func moveOtherLast(groups []Group) []Group {
	for i, g := range groups {
		if g.Category != scoring.OtherCategory {
			continue
		}
		out := make([]Group, 0, len(groups))
		out = append(out, groups[:i]...)
		out = append(out, groups[i+1:]...)
		return append(out, g)
	}
	return groups
}

// Render builds the post body: a heading and a link list per group.
func (a *Assembler) Render(groups []Group) string {
	var b strings.Builder
	for _, g := range groups {
		fmt.Fprintf(&b, "<h2>%s</h2>", html.EscapeString(g.Category))
		b.WriteString("<ul>")
		for _, bm := range g.Bookmarks {
			fmt.Fprintf(&b, "<li><a href='%s'>%s</a><br />%s</li>",
				html.EscapeString(bm.URL),
				html.EscapeString(bm.Title),
				html.EscapeString(bm.Excerpt),
			)
		}
		b.WriteString("</ul>")
	}
	return a.policy.Sanitize(b.String())
}

func (a *Assembler) emailBody(post *storage.Post) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Hi,\r\n\r\na new %s post has been created for news of the week. Please review it, you can do so at:\r\n\r\n", post.Status)
	b.WriteString(a.editLink(post.ID))
	b.WriteString("\r\n\r\nThanks,\r\n\r\nSocratesAI")
	return b.String()
}

func (a *Assembler) editLink(postID int64) string {
	if strings.Contains(a.editURL, "%d") {
		return fmt.Sprintf(a.editURL, postID)
	}
	if a.editURL != "" {
		return a.editURL + strconv.FormatInt(postID, 10)
	}
	return "post " + strconv.FormatInt(postID, 10)
}

// WeekOf returns the Sunday that starts the week the digest covers: the
// first Sunday on or after the same day one week before now.
func WeekOf(now time.Time) time.Time {
	d := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, -7)
	offset := (7 - int(d.Weekday())) % 7
	return d.AddDate(0, 0, offset)
}

// FormatWeekDate formats t as "2nd of March 2025".
func FormatWeekDate(t time.Time) string {
	return fmt.Sprintf("%d%s of %s %d", t.Day(), ordinalSuffix(t.Day()), t.Month(), t.Year())
}

func ordinalSuffix(day int) string {
	if day%100 >= 11 && day%100 <= 13 {
		return "th"
	}
	switch day % 10 {
	case 1:
		return "st"
	case 2:
		return "nd"
	case 3:
		return "rd"
	default:
		return "th"
	}
}
