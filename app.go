package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/gofrs/flock"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"socrates/bookmarks"
	"socrates/config"
	"socrates/digest"
	"socrates/feeds"
	"socrates/ingest"
	"socrates/llm"
	"socrates/notify"
	"socrates/storage"
)

var errRunInProgress = errors.New("another ingestion or digest run is in progress")

// App holds all application dependencies.
type App struct {
	cfg      *config.Config
	db       *storage.DB
	gateway  *llm.Gateway
	fetcher  *feeds.Fetcher
	tgBot    *tgbotapi.BotAPI
	telegram *notify.Telegram
	location *time.Location
}

// newApp opens the database and builds the LLM gateway, feed fetcher and,
// when a token is configured, the Telegram bot.
func newApp(cfg *config.Config) (*App, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone: %w", err)
	}

	gateway, err := llm.NewGateway(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("initialize llm gateway: %w", err)
	}

	db, err := storage.NewDB(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("initialize database: %w", err)
	}
	slog.Info("database initialized", "path", cfg.DBPath)

	app := &App{
		cfg:      cfg,
		db:       db,
		gateway:  gateway,
		fetcher:  feeds.NewFetcher(feeds.WithTimeout(cfg.FetchTimeout())),
		location: loc,
	}

	if cfg.Notify.Telegram.Token != "" {
		tgBot, err := tgbotapi.NewBotAPI(cfg.Notify.Telegram.Token)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("initialize telegram bot: %w", err)
		}
		slog.Info("telegram bot initialized", "username", tgBot.Self.UserName)
		app.tgBot = tgBot
		app.telegram = notify.NewTelegram(tgBot, app.adminChatID(context.Background()))
	}

	return app, nil
}

func (a *App) Close() error {
	return a.db.Close()
}

// adminChatID prefers the configured chat and falls back to the one
// registered with /start.
func (a *App) adminChatID(ctx context.Context) int64 {
	if a.cfg.Notify.Telegram.ChatID != 0 {
		return a.cfg.Notify.Telegram.ChatID
	}
	v, err := a.db.GetSetting(ctx, config.SettingAdminChatID)
	if err != nil {
		return 0
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		slog.Warn("ignoring invalid admin chat id", "value", v)
		return 0
	}
	return id
}

func (a *App) notifier() notify.Notifier {
	var n notify.Multi
	if a.cfg.Notify.Email.SMTPHost != "" {
		n = append(n, notify.NewEmail(a.cfg.Notify.Email))
	}
	if a.telegram != nil {
		n = append(n, a.telegram)
	}
	if len(n) == 0 {
		return notify.Nop{}
	}
	return n
}

// runIngest fetches, scores and stores one batch of articles under the run
// lock.
func (a *App) runIngest(ctx context.Context) (*ingest.Summary, error) {
	var summary *ingest.Summary
	err := a.withRunLock(func() error {
		runner := ingest.NewRunner(
			a.fetcher,
			a.gateway,
			bookmarks.NewCreator(a.db),
			a.cfg.WithOverrides(ctx, a.db),
			ingest.WithSettings(a.db),
		)
		var err error
		summary, err = runner.Run(ctx)
		return err
	})
	return summary, err
}

// runDigest assembles one weekly digest under the run lock.
func (a *App) runDigest(ctx context.Context) (*digest.Result, error) {
	var result *digest.Result
	err := a.withRunLock(func() error {
		assembler := digest.NewAssembler(a.db, a.notifier(), a.cfg.WithOverrides(ctx, a.db))
		var err error
		result, err = assembler.Run(ctx, time.Now().In(a.location))
		return err
	})
	return result, err
}

// withRunLock keeps ingestion and digest runs from overlapping, across
// processes as well as within the daemon.
func (a *App) withRunLock(fn func() error) error {
	lock := flock.New(a.cfg.LockPath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errRunInProgress
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			slog.Warn("failed to release lock", "path", a.cfg.LockPath, "error", err)
		}
	}()
	return fn()
}

func (a *App) sendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	if a.tgBot == nil {
		return 0, errors.New("telegram bot not configured")
	}
	sent, err := a.tgBot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		slog.Warn("failed to send message", "chat_id", chatID, "error", err)
		return 0, err
	}
	return int64(sent.MessageID), nil
}

func describeIngest(s *ingest.Summary) string {
	if s == nil || s.Fetched == 0 {
		return "No new articles found."
	}
	return fmt.Sprintf("Fetched %d articles, %d scored at or above the threshold, created %d bookmarks.",
		s.Fetched, s.Accepted, s.Created)
}

func describeDigest(r *digest.Result) string {
	if r == nil || r.PostID == 0 {
		return "No pending bookmarks, no digest created."
	}
	msg := fmt.Sprintf("Created draft %q (post %d) with %d bookmarks.", r.Title, r.PostID, r.Bookmarks)
	if !r.Notified {
		msg += " The admin could not be notified."
	}
	return msg
}
