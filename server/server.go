// Package server exposes the chat engine over HTTP for the front-end widget.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"socrates/chat"
	"socrates/llm"
	"socrates/storage"
)

// HeaderUserID carries the authenticated user. Session handling happens in
// front of this service.
const HeaderUserID = "X-User-ID"

// ChatService is the subset of chat.Engine served over HTTP.
type ChatService interface {
	Turn(ctx context.Context, req chat.TurnRequest) (*chat.TurnResult, error)
	List(ctx context.Context, userID string) ([]chat.Summary, error)
	Get(ctx context.Context, viewerID, ownerID, chatID string) (*storage.Chat, error)
	Delete(ctx context.Context, userID, chatID string) error
	LinksForPrompt(ctx context.Context, userID, chatID string, promptID int) ([]chat.ShownLink, error)
}

// Response is the envelope of every API reply.
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type messageData struct {
	Message string `json:"message"`
}

type turnBody struct {
	Reply     string `json:"reply"`
	IsNewChat bool   `json:"is_new_chat"`
}

// ChatView is a chat as shown to its reader. The hidden starting prompt is
// left out of Messages.
type ChatView struct {
	ID         string        `json:"id"`
	Summary    string        `json:"summary"`
	StartTime  time.Time     `json:"start_time"`
	Deleted    *time.Time    `json:"deleted,omitempty"`
	Messages   []llm.Message `json:"messages"`
	LinksShown [][]int64     `json:"links_shown"`
}

// Server wraps an echo instance serving the chat API.
type Server struct {
	echo  *echo.Echo
	chats ChatService
}

// New creates a Server with every route registered.
func New(chats ChatService) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:  true,
		LogURI:     true,
		LogError:   true,
		LogMethod:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error == nil {
				slog.Info("request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				slog.Error("request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))
	e.Use(middleware.Recover())

	s := &Server{echo: e, chats: chats}

	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := e.Group("/api/chats")
	api.POST("", s.createChat)
	api.GET("", s.listChats)
	api.GET("/:id", s.getChat)
	api.DELETE("/:id", s.deleteChat)
	api.POST("/:id/turns", s.turn)
	api.GET("/:id/links/:prompt", s.links)

	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr until Shutdown is called.
func (s *Server) Start(addr string) error {
	slog.Info("starting http server", "addr", addr)
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) createChat(c echo.Context) error {
	user := userID(c)
	if user == "" {
		return fail(c, chat.ErrLoginRequired)
	}
	return ok(c, map[string]string{"chat_id": chat.NewChatID(user)})
}

func (s *Server) listChats(c echo.Context) error {
	chats, err := s.chats.List(c.Request().Context(), userID(c))
	if err != nil {
		return fail(c, err)
	}
	return ok(c, chats)
}

func (s *Server) getChat(c echo.Context) error {
	viewer := userID(c)
	owner := c.QueryParam("user")
	if owner == "" {
		owner = viewer
	}

	id := c.Param("id")
	ch, err := s.chats.Get(c.Request().Context(), viewer, owner, id)
	if err != nil {
		return fail(c, err)
	}

	view := ChatView{
		ID:         id,
		Summary:    ch.Summary,
		StartTime:  ch.StartTime,
		Messages:   []llm.Message{},
		LinksShown: ch.LinksShown,
	}
	if len(ch.Messages) > 1 {
		view.Messages = ch.Messages[1:]
	}
	if view.LinksShown == nil {
		view.LinksShown = [][]int64{}
	}
	if ch.IsDeleted() {
		t := ch.Deleted.Time
		view.Deleted = &t
	}
	return ok(c, view)
}

func (s *Server) deleteChat(c echo.Context) error {
	if err := s.chats.Delete(c.Request().Context(), userID(c), c.Param("id")); err != nil {
		return fail(c, err)
	}
	return ok(c, messageData{Message: "Chat deleted."})
}

func (s *Server) turn(c echo.Context) error {
	var body turnBody
	if err := c.Bind(&body); err != nil {
		return fail(c, chat.ErrEmptyReply)
	}

	res, err := s.chats.Turn(c.Request().Context(), chat.TurnRequest{
		UserID:    userID(c),
		ChatID:    c.Param("id"),
		IsNewChat: body.IsNewChat,
		Text:      body.Reply,
	})
	if err != nil {
		return fail(c, err)
	}
	return ok(c, res)
}

func (s *Server) links(c echo.Context) error {
	prompt, err := strconv.Atoi(c.Param("prompt"))
	if err != nil || prompt < 0 {
		return ok(c, []chat.ShownLink{})
	}

	links, err := s.chats.LinksForPrompt(c.Request().Context(), userID(c), c.Param("id"), prompt)
	if err != nil {
		return fail(c, err)
	}
	return ok(c, links)
}

func userID(c echo.Context) string {
	return c.Request().Header.Get(HeaderUserID)
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// fail writes the error envelope. Chat errors carry their own user-facing
// message; anything else is logged and reported generically.
func fail(c echo.Context, err error) error {
	var ce *chat.Error
	if !errors.As(err, &ce) {
		slog.Error("chat request failed", "path", c.Path(), "error", err)
		return c.JSON(http.StatusInternalServerError, Response{
			Data: messageData{Message: "An unknown error occurred. Please reload and try again."},
		})
	}
	return c.JSON(statusFor(ce), Response{Data: messageData{Message: ce.Message}})
}

func statusFor(ce *chat.Error) int {
	switch ce {
	case chat.ErrLoginRequired, chat.ErrDeleteLoginRequired:
		return http.StatusUnauthorized
	case chat.ErrChatNotFound, chat.ErrDeleteNotFound:
		return http.StatusNotFound
	case chat.ErrAlreadyDeleted:
		return http.StatusConflict
	case chat.ErrSaveFailed, chat.ErrDeleteFailed:
		return http.StatusInternalServerError
	case chat.ErrEmptyResponse:
		return http.StatusBadGateway
	}
	if ce.Code == chat.CodeLLM {
		return http.StatusBadGateway
	}
	return http.StatusBadRequest
}
