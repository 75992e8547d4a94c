// Package chat runs Socratic conversations: one user reply and one assistant
// reply per turn, persisted per user with the bookmarks suggested alongside.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"socrates/config"
	"socrates/llm"
	"socrates/metrics"
	"socrates/storage"
)

const summaryWords = 5

// Store persists chat documents and answers link queries.
type Store interface {
	GetChats(ctx context.Context, userID string) (map[string]*storage.Chat, error)
	SaveChats(ctx context.Context, userID string, chats map[string]*storage.Chat) error
	SearchPublishedBookmarks(ctx context.Context, patterns []string, limit int) ([]storage.Bookmark, error)
	GetBookmarksByIDs(ctx context.Context, ids []int64) ([]storage.Bookmark, error)
}

// Gateway sends a conversation to the configured LLM.
type Gateway interface {
	Send(ctx context.Context, msgs []llm.Message, jsonMode bool) llm.Result
}

// TurnRequest is one user reply.
type TurnRequest struct {
	UserID    string
	ChatID    string
	IsNewChat bool
	Text      string
}

// TurnResult is what the client shows for a completed turn. Reasoning is
// nil unless reasoning display is enabled and the model produced some.
type TurnResult struct {
	Message   string  `json:"message"`
	Links     []Link  `json:"links"`
	Reasoning *string `json:"reasoning"`
}

// Summary describes one chat in a listing.
type Summary struct {
	ID        string     `json:"id"`
	Summary   string     `json:"summary"`
	StartTime time.Time  `json:"start_time"`
	Deleted   *time.Time `json:"deleted,omitempty"`
	Messages  int        `json:"messages"`
}

// Engine runs chat turns against a Store and a Gateway.
type Engine struct {
	store    Store
	gateway  Gateway
	cfg      *config.Config
	settings config.SettingsReader
	now      func() time.Time
	policy   *bluemonday.Policy
	stripper *bluemonday.Policy
}

// Option configures an Engine.
type Option func(*Engine)

// WithSettings applies runtime admin settings on every call.
func WithSettings(r config.SettingsReader) Option {
	return func(e *Engine) {
		e.settings = r
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// NewEngine creates a chat Engine.
func NewEngine(store Store, gateway Gateway, cfg *config.Config, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		gateway:  gateway,
		cfg:      cfg,
		now:      time.Now,
		policy:   bluemonday.UGCPolicy(),
		stripper: bluemonday.StrictPolicy(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewChat returns the starting state of a conversation: the hidden starting
// prompt followed by the canned first question.
func (e *Engine) NewChat() *storage.Chat {
	return &storage.Chat{
		Messages: []llm.Message{
			{Role: llm.RoleUser, Content: e.cfg.Chat.StartingPrompt},
			{Role: llm.RoleAssistant, Content: e.cfg.Chat.InitialReply},
		},
		StartTime:  e.now(),
		LinksShown: [][]int64{},
	}
}

// Turn appends the user's reply, asks the LLM for the next message and
// persists both. Nothing is stored unless the whole turn succeeds.
func (e *Engine) Turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	result, err := e.turn(ctx, req)
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			metrics.RecordChatTurn(ce.Code)
		} else {
			metrics.RecordChatTurn("failed")
		}
		return nil, err
	}
	metrics.RecordChatTurn("ok")
	return result, nil
}

func (e *Engine) turn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	text := strings.TrimSpace(e.policy.Sanitize(req.Text))
	if text == "" {
		return nil, ErrEmptyReply
	}
	if !ValidChatID(req.ChatID) {
		return nil, ErrEmptyChatID
	}
	if req.UserID == "" {
		return nil, ErrLoginRequired
	}

	cfg := e.cfg.WithOverrides(ctx, e.settings)

	chats, err := e.store.GetChats(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	if len(chats) == 0 {
		chats = map[string]*storage.Chat{req.ChatID: e.NewChat()}
	}
	if req.IsNewChat {
		if _, ok := chats[req.ChatID]; !ok {
			chats[req.ChatID] = e.NewChat()
		}
	}
	original, ok := chats[req.ChatID]
	if !ok {
		return nil, ErrChatNotFound
	}

	working := original.Clone()
	working.Messages = append(working.Messages, llm.UserMessage(text))

	res := e.gateway.Send(ctx, working.Messages, false)
	if res.IsError() {
		slog.Warn("chat turn failed", "chat_id", req.ChatID, "error", res.Err)
		return nil, gatewayError(res.Err)
	}
	if res.Kind != llm.KindText {
		return nil, ErrEmptyResponse
	}

	response := strings.TrimSpace(e.policy.Sanitize(res.Response))
	if response == "" {
		return nil, ErrEmptyResponse
	}
	var reasoning *string
	if res.Reasoning != nil {
		if r := strings.TrimSpace(e.policy.Sanitize(*res.Reasoning)); r != "" {
			reasoning = &r
		}
	}

	if len(original.Messages) == 2 {
		working.Summary = limitText(text, summaryWords)
	}
	working.Messages = append(working.Messages, llm.Message{Role: llm.RoleAssistant, Content: response})

	links := []Link{}
	ids := []int64{}
	if !cfg.Chat.HideLinks {
		found, err := e.SuggestLinks(ctx, response)
		if err != nil {
			slog.Warn("failed to suggest links", "chat_id", req.ChatID, "error", err)
		}
		for _, b := range found {
			links = append(links, Link{URL: b.URL, Title: b.Title})
			ids = append(ids, b.ID)
		}
	}
	working.LinksShown = append(working.LinksShown, ids)

	chats[req.ChatID] = working
	if err := e.store.SaveChats(ctx, req.UserID, chats); err != nil {
		chats[req.ChatID] = original
		slog.Error("failed to save chat turn", "user_id", req.UserID, "chat_id", req.ChatID, "error", err)
		return nil, ErrSaveFailed
	}

	out := &TurnResult{Message: response, Links: links}
	if cfg.Chat.ShowReasoning {
		out.Reasoning = reasoning
	}
	return out, nil
}

// List returns the user's chats oldest first. Deleted chats are hidden
// unless the user is an admin.
func (e *Engine) List(ctx context.Context, userID string) ([]Summary, error) {
	if userID == "" {
		return nil, ErrLoginRequired
	}
	chats, err := e.store.GetChats(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}

	admin := e.cfg.IsAdmin(userID)
	out := make([]Summary, 0, len(chats))
	for id, c := range chats {
		if c.IsDeleted() && !admin {
			continue
		}
		s := Summary{ID: id, Summary: c.Summary, StartTime: c.StartTime, Messages: len(c.Messages)}
		if c.IsDeleted() {
			t := c.Deleted.Time
			s.Deleted = &t
		}
		out = append(out, s)
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CanView reports whether viewerID may open ownerID's chat. Admins may open
// any chat; everyone else only their own chats that are not deleted.
func (e *Engine) CanView(ctx context.Context, viewerID, ownerID, chatID string) (bool, error) {
	if viewerID == "" {
		return false, nil
	}
	if e.cfg.IsAdmin(viewerID) {
		return true, nil
	}
	if viewerID != ownerID || !ValidChatID(chatID) {
		return false, nil
	}

	chats, err := e.store.GetChats(ctx, ownerID)
	if err != nil {
		return false, fmt.Errorf("load chats: %w", err)
	}
	c, ok := chats[chatID]
	return ok && !c.IsDeleted(), nil
}

// Get returns ownerID's chat for viewerID, or ErrChatNotFound when it does
// not exist or viewerID may not see it.
func (e *Engine) Get(ctx context.Context, viewerID, ownerID, chatID string) (*storage.Chat, error) {
	if viewerID == "" {
		return nil, ErrLoginRequired
	}
	ok, err := e.CanView(ctx, viewerID, ownerID, chatID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrChatNotFound
	}

	chats, err := e.store.GetChats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load chats: %w", err)
	}
	c, ok := chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return c, nil
}

// Delete soft-deletes one of the user's chats by stamping it with the
// current time. The chat stays visible to admins.
func (e *Engine) Delete(ctx context.Context, userID, chatID string) error {
	if !ValidChatID(chatID) {
		return ErrDeleteInvalidID
	}
	if userID == "" {
		return ErrDeleteLoginRequired
	}

	chats, err := e.store.GetChats(ctx, userID)
	if err != nil {
		return fmt.Errorf("load chats: %w", err)
	}
	c, ok := chats[chatID]
	if !ok {
		return ErrDeleteNotFound
	}
	if c.IsDeleted() {
		return ErrAlreadyDeleted
	}

	c.Deleted = storage.DeletedNow(e.now())
	if err := e.store.SaveChats(ctx, userID, chats); err != nil {
		slog.Error("failed to delete chat", "user_id", userID, "chat_id", chatID, "error", err)
		return ErrDeleteFailed
	}
	slog.Info("chat deleted", "user_id", userID, "chat_id", chatID)
	return nil
}

var summaryWordPattern = regexp.MustCompile(`[A-Za-z'\-]+`)

// limitText keeps the first limit words of text and appends "..." when
// anything was cut.
func limitText(text string, limit int) string {
	words := summaryWordPattern.FindAllStringIndex(text, -1)
	if len(words) <= limit {
		return text
	}
	return strings.TrimRight(text[:words[limit][0]], " \t\r\n") + "..."
}
