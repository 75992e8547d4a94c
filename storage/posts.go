package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostStatusDraft is the only status the digest creates posts with.
const PostStatusDraft = "draft"

// Post is a digest post awaiting editorial review.
type Post struct {
	ID         int64
	Title      string
	Content    string
	Excerpt    string
	Status     string
	CategoryID int64
	Author     string
	CreatedAt  time.Time
}

// InsertPost stores a post and sets its ID.
func (db *DB) InsertPost(ctx context.Context, p *Post) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}

	query := `
	INSERT INTO posts (title, content, excerpt, status, category_id, author, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	res, err := db.conn.ExecContext(ctx, query,
		p.Title,
		p.Content,
		p.Excerpt,
		p.Status,
		p.CategoryID,
		p.Author,
		p.CreatedAt,
	)
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	p.ID = id
	return nil
}

// GetPost retrieves a post by ID.
func (db *DB) GetPost(ctx context.Context, id int64) (*Post, error) {
	query := `
	SELECT id, title, content, excerpt, status, category_id, author, created_at
	FROM posts WHERE id = ?
	`

	p := &Post{}
	err := db.conn.QueryRowContext(ctx, query, id).Scan(
		&p.ID,
		&p.Title,
		&p.Content,
		&p.Excerpt,
		&p.Status,
		&p.CategoryID,
		&p.Author,
		&p.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
