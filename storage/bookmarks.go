package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Visibility marks whether a bookmark has been consumed by a digest.
type Visibility string

const (
	// VisibilityPending bookmarks are waiting for the next digest.
	VisibilityPending Visibility = "N"
	// VisibilityPublished bookmarks were included in a digest and are
	// eligible for chat link suggestions.
	VisibilityPublished Visibility = "Y"
)

// Category is a bookmark taxonomy entry.
type Category struct {
	ID   int64
	Name string
}

// Bookmark is a scored, categorised link.
type Bookmark struct {
	ID         int64
	URL        string
	Title      string
	Excerpt    string
	CategoryID int64
	Category   string
	Score      int
	Confidence int
	Visible    Visibility
	CreatedAt  time.Time
}

// CategoryCount is the number of bookmarks in one category.
type CategoryCount struct {
	Category string
	Count    int
}

const bookmarkColumns = `b.id, b.url, b.title, b.excerpt, b.category_id, c.name, b.score, b.confidence, b.visible, b.created_at`

// EnsureCategory returns the ID of the named category, creating it if needed.
func (db *DB) EnsureCategory(ctx context.Context, name string) (int64, error) {
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO categories (name) VALUES (?) ON CONFLICT(name) DO NOTHING`, name)
	if err != nil {
		return 0, fmt.Errorf("insert category: %w", err)
	}

	var id int64
	if err := db.conn.QueryRowContext(ctx, `SELECT id FROM categories WHERE name = ?`, name).Scan(&id); err != nil {
		return 0, fmt.Errorf("select category: %w", err)
	}
	return id, nil
}

// GetCategoryByName returns the named category or ErrNotFound.
func (db *DB) GetCategoryByName(ctx context.Context, name string) (*Category, error) {
	c := &Category{}
	err := db.conn.QueryRowContext(ctx, `SELECT id, name FROM categories WHERE name = ?`, name).Scan(&c.ID, &c.Name)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCategories returns every category in ID order.
func (db *DB) ListCategories(ctx context.Context) ([]Category, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

// InsertBookmark stores a bookmark and sets its ID.
func (db *DB) InsertBookmark(ctx context.Context, b *Bookmark) error {
	if b.Visible == "" {
		b.Visible = VisibilityPending
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO bookmarks (url, title, excerpt, category_id, score, confidence, visible, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		b.URL,
		b.Title,
		b.Excerpt,
		b.CategoryID,
		b.Score,
		b.Confidence,
		string(b.Visible),
		b.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	b.ID = id
	return nil
}

// BookmarkExists reports whether any bookmark, in any visibility state, has a
// URL or title containing search.
func (db *DB) BookmarkExists(ctx context.Context, search string) (bool, error) {
	query := `SELECT 1 FROM bookmarks WHERE instr(url, ?) > 0 OR instr(title, ?) > 0 LIMIT 1`
	var dummy int
	err := db.conn.QueryRowContext(ctx, query, search, search).Scan(&dummy)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListBookmarksByVisibility returns bookmarks with the given visibility in the
// given categories (all categories when categoryIDs is empty), ordered by
// category ID then bookmark ID.
func (db *DB) ListBookmarksByVisibility(ctx context.Context, v Visibility, categoryIDs []int64) ([]Bookmark, error) {
	query := `SELECT ` + bookmarkColumns + `
	FROM bookmarks b JOIN categories c ON c.id = b.category_id
	WHERE b.visible = ?`
	args := []any{string(v)}

	if len(categoryIDs) > 0 {
		query += ` AND b.category_id IN (` + placeholders(len(categoryIDs)) + `)`
		for _, id := range categoryIDs {
			args = append(args, id)
		}
	}
	query += ` ORDER BY c.id ASC, b.id ASC`

	return db.queryBookmarks(ctx, query, args...)
}

// GetBookmarksByIDs returns the requested bookmarks regardless of visibility,
// in ID order. Unknown IDs are ignored.
func (db *DB) GetBookmarksByIDs(ctx context.Context, ids []int64) ([]Bookmark, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := `SELECT ` + bookmarkColumns + `
	FROM bookmarks b JOIN categories c ON c.id = b.category_id
	WHERE b.id IN (` + placeholders(len(ids)) + `)
	ORDER BY b.id ASC`
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	return db.queryBookmarks(ctx, query, args...)
}

// SearchPublishedBookmarks returns up to limit published bookmarks whose title
// or excerpt matches any of the LIKE patterns, in insertion order. Patterns
// use '\' as the escape character.
func (db *DB) SearchPublishedBookmarks(ctx context.Context, patterns []string, limit int) ([]Bookmark, error) {
	if len(patterns) == 0 {
		return nil, nil
	}

	conds := make([]string, 0, len(patterns))
	args := make([]any, 0, len(patterns)*2+2)
	for _, p := range patterns {
		conds = append(conds, `b.excerpt LIKE ? ESCAPE '\' OR b.title LIKE ? ESCAPE '\'`)
		args = append(args, p, p)
	}

	query := `SELECT ` + bookmarkColumns + `
	FROM bookmarks b JOIN categories c ON c.id = b.category_id
	WHERE (` + strings.Join(conds, " OR ") + `) AND b.visible = ?
	ORDER BY b.id ASC LIMIT ?`
	args = append(args, string(VisibilityPublished), limit)

	return db.queryBookmarks(ctx, query, args...)
}

// SetBookmarkVisibility updates the visibility of every listed bookmark in a
// single transaction.
func (db *DB) SetBookmarkVisibility(ctx context.Context, ids []int64, v Visibility) error {
	if len(ids) == 0 {
		return nil
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE bookmarks SET visible = ? WHERE id = ?`)
	if err != nil {
		return fmt.Errorf("prepare update: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, string(v), id); err != nil {
			return fmt.Errorf("update bookmark %d: %w", id, err)
		}
	}
	return tx.Commit()
}

// CountBookmarksByCategory returns per-category counts for bookmarks with
// the given visibility, in category ID order. Empty categories are included.
func (db *DB) CountBookmarksByCategory(ctx context.Context, v Visibility) ([]CategoryCount, error) {
	query := `
	SELECT c.name, COUNT(b.id)
	FROM categories c LEFT JOIN bookmarks b ON b.category_id = c.id AND b.visible = ?
	GROUP BY c.id
	ORDER BY c.id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query, string(v))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CategoryCount
	for rows.Next() {
		var cc CategoryCount
		if err := rows.Scan(&cc.Category, &cc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, cc)
	}
	return counts, rows.Err()
}

func (db *DB) queryBookmarks(ctx context.Context, query string, args ...any) ([]Bookmark, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var visible string
		if err := rows.Scan(
			&b.ID,
			&b.URL,
			&b.Title,
			&b.Excerpt,
			&b.CategoryID,
			&b.Category,
			&b.Score,
			&b.Confidence,
			&visible,
			&b.CreatedAt,
		); err != nil {
			return nil, err
		}
		b.Visible = Visibility(visible)
		out = append(out, b)
	}
	return out, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
