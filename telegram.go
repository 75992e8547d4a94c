package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"socrates/bot"
	"socrates/storage"
)

const pollTimeout = 30

// UpdateSource is the subset of tgbotapi.BotAPI used to receive updates.
type UpdateSource interface {
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
}

// poll long-polls Telegram for admin commands until ctx is cancelled.
func (a *App) poll(ctx context.Context, src UpdateSource, commands *bot.CommandHandler) {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	u.AllowedUpdates = []string{"message"}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		updates, err := src.GetUpdates(u)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Warn("failed to get updates", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= u.Offset {
				u.Offset = update.UpdateID + 1
			}
			if update.Message != nil {
				a.handleMessage(ctx, commands, update.Message)
			}
		}
	}
}

func (a *App) handleMessage(ctx context.Context, commands *bot.CommandHandler, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}

	chatID := msg.Chat.ID
	slog.Info("received command", "chat_id", chatID, "command", msg.Command())

	if err := commands.Handle(ctx, chatID, msg.Command(), msg.CommandArguments()); err != nil {
		slog.Warn("command failed", "chat_id", chatID, "command", msg.Command(), "error", err)
	}
}

// Adapter types to bridge the App and storage to the bot package interfaces.

type tgSender struct {
	app *App
}

func (s *tgSender) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	return s.app.sendMessage(ctx, chatID, text)
}

type settingsAdapter struct {
	db *storage.DB
}

func (s *settingsAdapter) GetSetting(ctx context.Context, key string) (string, error) {
	v, err := s.db.GetSetting(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return "", bot.ErrSettingNotFound
	}
	return v, err
}

func (s *settingsAdapter) SetSetting(ctx context.Context, key, value string) error {
	return s.db.SetSetting(ctx, key, value)
}

type statsAdapter struct {
	db *storage.DB
}

func (s *statsAdapter) PendingByCategory(ctx context.Context) ([]bot.CategoryStat, error) {
	counts, err := s.db.CountBookmarksByCategory(ctx, storage.VisibilityPending)
	if err != nil {
		return nil, err
	}
	stats := make([]bot.CategoryStat, len(counts))
	for i, c := range counts {
		stats[i] = bot.CategoryStat{Category: c.Category, Count: c.Count}
	}
	return stats, nil
}

type triggerAdapter struct {
	app *App
}

func (t *triggerAdapter) TriggerIngest(ctx context.Context) (string, error) {
	summary, err := t.app.runIngest(ctx)
	if err != nil {
		return "", err
	}
	return describeIngest(summary), nil
}

func (t *triggerAdapter) TriggerDigest(ctx context.Context) (string, error) {
	result, err := t.app.runDigest(ctx)
	if err != nil {
		return "", err
	}
	return describeDigest(result), nil
}
