package digest

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"socrates/config"
	"socrates/notify"
	"socrates/storage"
)

// Mocks

type mockNotifier struct {
	messages []notify.Message
	err      error
}

func (m *mockNotifier) Notify(ctx context.Context, msg notify.Message) error {
	m.messages = append(m.messages, msg)
	return m.err
}

type failingPostStore struct {
	*storage.DB
	insertErr error
	flipErr   error
	flipped   []int64
}

func (f *failingPostStore) InsertPost(ctx context.Context, p *storage.Post) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	return f.DB.InsertPost(ctx, p)
}

func (f *failingPostStore) SetBookmarkVisibility(ctx context.Context, ids []int64, v storage.Visibility) error {
	if f.flipErr != nil {
		return f.flipErr
	}
	f.flipped = append(f.flipped, ids...)
	return f.DB.SetBookmarkVisibility(ctx, ids, v)
}

func newTestDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.NewDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// seed creates "Other" before the named categories so its ID is lowest.
func seed(t *testing.T, db *storage.DB) {
	t.Helper()
	ctx := context.Background()
	for _, s := range []struct{ cat, url, title string }{
		{"Other", "https://a.test/other", "Misc story"},
		{"Copyright", "https://a.test/c1", "Fair use ruling"},
		{"Privacy", "https://a.test/p1", "Data broker fined"},
		{"Copyright", "https://a.test/c2", "Sampling & remix"},
	} {
		id, err := db.EnsureCategory(ctx, s.cat)
		if err != nil {
			t.Fatalf("EnsureCategory failed: %v", err)
		}
		if err := db.InsertBookmark(ctx, &storage.Bookmark{URL: s.url, Title: s.title, Excerpt: "About " + s.title, CategoryID: id}); err != nil {
			t.Fatalf("InsertBookmark failed: %v", err)
		}
	}
}

func testConfig(includeOther bool) *config.Config {
	cfg := &config.Config{IncludeOtherCategory: includeOther}
	cfg.Digest.PostCategory = 3
	cfg.Digest.Author = "admin"
	cfg.Digest.EditURLTemplate = "https://site.test/wp-admin/post.php?post=%d&action=edit"
	return cfg
}

var sundayMarch9 = time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC)

func TestRunCreatesDraftFlipsAndNotifies(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	ctx := context.Background()
	notifier := &mockNotifier{}

	result, err := NewAssembler(db, notifier, testConfig(false)).Run(ctx, sundayMarch9)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.PostID == 0 {
		t.Fatal("expected a post")
	}
	if result.Bookmarks != 3 {
		t.Errorf("Bookmarks = %d, want 3 (Other excluded)", result.Bookmarks)
	}

	post, err := db.GetPost(ctx, result.PostID)
	if err != nil {
		t.Fatalf("GetPost failed: %v", err)
	}
	if post.Title != "News of the week for the week of 2nd of March 2025" {
		t.Errorf("Title = %q", post.Title)
	}
	if post.Excerpt != "Links for the week: 2nd of March 2025" {
		t.Errorf("Excerpt = %q", post.Excerpt)
	}
	if post.Status != storage.PostStatusDraft || post.CategoryID != 3 || post.Author != "admin" {
		t.Errorf("post = %+v", post)
	}
	if strings.Contains(post.Content, "Misc story") {
		t.Error("Other bookmarks must be excluded")
	}
	if !strings.Contains(post.Content, "Sampling &amp; remix") {
		t.Errorf("content should escape titles: %s", post.Content)
	}
	if strings.Index(post.Content, "<h2>Copyright</h2>") > strings.Index(post.Content, "<h2>Privacy</h2>") {
		t.Error("categories should follow category ID order")
	}

	pending, _ := db.ListBookmarksByVisibility(ctx, storage.VisibilityPending, nil)
	if len(pending) != 1 || pending[0].Category != "Other" {
		t.Errorf("only the Other bookmark should remain pending, got %+v", pending)
	}

	if len(notifier.messages) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(notifier.messages))
	}
	msg := notifier.messages[0]
	if msg.Subject != `[Action Required] : Review newly created post for "News of the week for the week of 2nd of March 2025"` {
		t.Errorf("Subject = %q", msg.Subject)
	}
	if !strings.Contains(msg.Body, "a new draft post has been created") ||
		!strings.Contains(msg.Body, "post.php?post=") {
		t.Errorf("Body = %q", msg.Body)
	}
	if !result.Notified {
		t.Error("Notified should be true")
	}
}

func TestRunSecondTimeIsEmpty(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	notifier := &mockNotifier{}
	a := NewAssembler(db, notifier, testConfig(true))

	if _, err := a.Run(context.Background(), sundayMarch9); err != nil {
		t.Fatalf("first Run failed: %v", err)
	}
	result, err := a.Run(context.Background(), sundayMarch9)
	if err != nil {
		t.Fatalf("second Run failed: %v", err)
	}
	if result.PostID != 0 {
		t.Errorf("second run created post %d", result.PostID)
	}
	if len(notifier.messages) != 1 {
		t.Errorf("sent %d notifications, want 1", len(notifier.messages))
	}
}

func TestGatherPutsOtherLast(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)

	groups, err := NewAssembler(db, nil, testConfig(true)).Gather(context.Background())
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var names []string
	for _, g := range groups {
		names = append(names, g.Category)
	}
	want := []string{"Copyright", "Privacy", "Other"}
	if strings.Join(names, ",") != strings.Join(want, ",") {
		t.Errorf("groups = %v, want %v", names, want)
	}
	if len(groups[0].Bookmarks) != 2 {
		t.Errorf("Copyright has %d bookmarks, want 2", len(groups[0].Bookmarks))
	}

	a := NewAssembler(db, nil, testConfig(true))
	body := a.Render(groups)
	if strings.LastIndex(body, "<h2>") != strings.Index(body, "<h2>Other</h2>") {
		t.Error("Other must be the last heading")
	}
}

func TestGatherOnlyOtherExcluded(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	id, _ := db.EnsureCategory(ctx, "Other")
	db.InsertBookmark(ctx, &storage.Bookmark{URL: "https://a.test/o", Title: "o", CategoryID: id})

	groups, err := NewAssembler(db, nil, testConfig(false)).Gather(ctx)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	if len(groups) != 0 {
		t.Errorf("got %d groups, want 0", len(groups))
	}
}

func TestRunPublishFailureKeepsBookmarksPending(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	store := &failingPostStore{DB: db, insertErr: errors.New("disk full")}
	notifier := &mockNotifier{}

	_, err := NewAssembler(store, notifier, testConfig(true)).Run(context.Background(), sundayMarch9)
	if err == nil {
		t.Fatal("expected publish error")
	}
	if len(store.flipped) != 0 {
		t.Errorf("flipped %d bookmarks after failed publish", len(store.flipped))
	}
	if len(notifier.messages) != 0 {
		t.Error("no notification should be sent")
	}
	pending, _ := db.ListBookmarksByVisibility(context.Background(), storage.VisibilityPending, nil)
	if len(pending) != 4 {
		t.Errorf("pending = %d, want 4", len(pending))
	}
}

func TestRunFlipFailureStillNotifies(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)
	store := &failingPostStore{DB: db, flipErr: errors.New("locked")}
	notifier := &mockNotifier{}

	result, err := NewAssembler(store, notifier, testConfig(true)).Run(context.Background(), sundayMarch9)
	if err == nil {
		t.Fatal("expected flip error")
	}
	if result == nil || result.PostID == 0 {
		t.Fatal("post should still be reported")
	}
	if len(notifier.messages) != 1 {
		t.Errorf("sent %d notifications, want 1", len(notifier.messages))
	}
}

func TestRunNotifyFailureIsNotFatal(t *testing.T) {
	db := newTestDB(t)
	seed(t, db)

	result, err := NewAssembler(db, &mockNotifier{err: errors.New("smtp down")}, testConfig(true)).Run(context.Background(), sundayMarch9)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Notified {
		t.Error("Notified should be false")
	}
}

func TestWeekOf(t *testing.T) {
	tests := []struct {
		now  time.Time
		want string
	}{
		{time.Date(2025, 3, 9, 0, 0, 0, 0, time.UTC), "2nd of March 2025"},
		{time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC), "9th of March 2025"},
		{time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC), "9th of March 2025"},
		{time.Date(2025, 1, 5, 0, 0, 0, 0, time.UTC), "29th of December 2024"},
	}

	for _, tt := range tests {
		if got := FormatWeekDate(WeekOf(tt.now)); got != tt.want {
			t.Errorf("WeekOf(%s) = %q, want %q", tt.now.Format(time.DateOnly), got, tt.want)
		}
		if WeekOf(tt.now).Weekday() != time.Sunday {
			t.Errorf("WeekOf(%s) is not a Sunday", tt.now.Format(time.DateOnly))
		}
	}
}

func TestOrdinalSuffix(t *testing.T) {
	tests := map[int]string{1: "st", 2: "nd", 3: "rd", 4: "th", 11: "th", 12: "th", 13: "th", 21: "st", 22: "nd", 23: "rd", 31: "st"}
	for day, want := range tests {
		if got := ordinalSuffix(day); got != want {
			t.Errorf("ordinalSuffix(%d) = %q, want %q", day, got, want)
		}
	}
}

func TestEditLink(t *testing.T) {
	a := &Assembler{editURL: "https://site.test/edit/%d"}
	if got := a.editLink(7); got != "https://site.test/edit/7" {
		t.Errorf("editLink = %q", got)
	}
	a.editURL = "https://site.test/edit?id="
	if got := a.editLink(7); got != "https://site.test/edit?id=7" {
		t.Errorf("editLink = %q", got)
	}
	a.editURL = ""
	if got := a.editLink(7); got != "post 7" {
		t.Errorf("editLink = %q", got)
	}
}
