package storage

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"socrates/llm"
)

// TimeLayout is the timestamp format used inside chat documents.
const TimeLayout = "2006-01-02 15:04:05"

// DeletedAt is the soft-delete marker of a chat. It encodes as JSON false
// when unset and as a timestamp string once the chat is deleted.
type DeletedAt struct {
	Time  time.Time
	Valid bool
}

// DeletedNow returns a marker set to t.
func DeletedNow(t time.Time) DeletedAt {
	return DeletedAt{Time: t, Valid: true}
}

// MarshalJSON implements json.Marshaler.
func (d DeletedAt) MarshalJSON() ([]byte, error) {
	if !d.Valid {
		return []byte("false"), nil
	}
	return json.Marshal(d.Time.Format(TimeLayout))
}

// UnmarshalJSON implements json.Unmarshaler. false and null both mean unset.
func (d *DeletedAt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("false")) || bytes.Equal(b, []byte("null")) {
		*d = DeletedAt{}
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("deleted: %w", err)
	}
	t, err := time.ParseInLocation(TimeLayout, s, time.Local)
	if err != nil {
		return fmt.Errorf("deleted: %w", err)
	}
	*d = DeletedAt{Time: t, Valid: true}
	return nil
}

// Chat is one persisted Socratic conversation. Messages alternate user and
// assistant after the two seed messages; LinksShown[i] holds the bookmark
// IDs suggested alongside the i-th generated assistant reply.
type Chat struct {
	Messages   []llm.Message
	Summary    string
	StartTime  time.Time
	LinksShown [][]int64
	Deleted    DeletedAt
}

type chatDocument struct {
	Messages      []llm.Message `json:"messages"`
	Summary       string        `json:"summary"`
	StartDateTime string        `json:"start_date_time"`
	LinksShown    [][]int64     `json:"links_shown"`
	Deleted       DeletedAt     `json:"deleted"`
}

// MarshalJSON implements json.Marshaler.
func (c Chat) MarshalJSON() ([]byte, error) {
	doc := chatDocument{
		Messages:      c.Messages,
		Summary:       c.Summary,
		StartDateTime: c.StartTime.Format(TimeLayout),
		LinksShown:    c.LinksShown,
		Deleted:       c.Deleted,
	}
	if doc.Messages == nil {
		doc.Messages = []llm.Message{}
	}
	if doc.LinksShown == nil {
		doc.LinksShown = [][]int64{}
	}
	return json.Marshal(doc)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Chat) UnmarshalJSON(b []byte) error {
	var doc chatDocument
	if err := json.Unmarshal(b, &doc); err != nil {
		return err
	}

	var start time.Time
	if doc.StartDateTime != "" {
		t, err := time.ParseInLocation(TimeLayout, doc.StartDateTime, time.Local)
		if err != nil {
			return fmt.Errorf("start_date_time: %w", err)
		}
		start = t
	}

	*c = Chat{
		Messages:   doc.Messages,
		Summary:    doc.Summary,
		StartTime:  start,
		LinksShown: doc.LinksShown,
		Deleted:    doc.Deleted,
	}
	return nil
}

// IsDeleted reports whether the chat was soft-deleted.
func (c *Chat) IsDeleted() bool {
	return c.Deleted.Valid
}

// Clone returns a deep copy of the chat.
func (c *Chat) Clone() *Chat {
	out := *c
	out.Messages = append([]llm.Message(nil), c.Messages...)
	out.LinksShown = make([][]int64, len(c.LinksShown))
	for i, ids := range c.LinksShown {
		out.LinksShown[i] = append([]int64(nil), ids...)
	}
	return &out
}

// UserChatCount is the number of chats stored for a user.
type UserChatCount struct {
	UserID string
	Chats  int
}

// GetChats returns every chat of a user keyed by chat ID. A user without
// chats gets an empty map.
func (db *DB) GetChats(ctx context.Context, userID string) (map[string]*Chat, error) {
	var data string
	err := db.conn.QueryRowContext(ctx, `SELECT data FROM chats WHERE user_id = ?`, userID).Scan(&data)
	if err == sql.ErrNoRows {
		return map[string]*Chat{}, nil
	}
	if err != nil {
		return nil, err
	}

	chats := map[string]*Chat{}
	if err := json.Unmarshal([]byte(data), &chats); err != nil {
		return nil, fmt.Errorf("unmarshal chats: %w", err)
	}
	return chats, nil
}

// SaveChats replaces the whole chat document of a user.
func (db *DB) SaveChats(ctx context.Context, userID string, chats map[string]*Chat) error {
	data, err := json.Marshal(chats)
	if err != nil {
		return fmt.Errorf("marshal chats: %w", err)
	}

	query := `
	INSERT INTO chats (user_id, data, updated_at) VALUES (?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		data = excluded.data,
		updated_at = excluded.updated_at
	`
	_, err = db.conn.ExecContext(ctx, query, userID, string(data), time.Now())
	return err
}

// CountChatsByUser returns how many chats each user has, deleted ones
// included, ordered by user ID.
func (db *DB) CountChatsByUser(ctx context.Context) ([]UserChatCount, error) {
	query := `
	SELECT user_id, (SELECT COUNT(*) FROM json_each(chats.data))
	FROM chats
	ORDER BY user_id ASC
	`
	rows, err := db.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []UserChatCount
	for rows.Next() {
		var uc UserChatCount
		if err := rows.Scan(&uc.UserID, &uc.Chats); err != nil {
			return nil, err
		}
		counts = append(counts, uc)
	}
	return counts, rows.Err()
}
