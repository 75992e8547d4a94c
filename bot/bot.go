// Package bot implements the admin Telegram commands: manual ingestion and
// digest runs, pending bookmark stats and runtime settings.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"socrates/config"
)

// ErrSettingNotFound is returned by a SettingsStore for unknown keys.
var ErrSettingNotFound = errors.New("setting not found")

// MessageSender sends messages to Telegram.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID int64, text string) (int64, error)
}

// SettingsStore manages persistent settings.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, error)
	SetSetting(ctx context.Context, key, value string) error
}

// ChatRegistrar learns the admin chat that notifications go to.
type ChatRegistrar interface {
	SetChatID(chatID int64)
}

// StatsProvider reports pending bookmarks per category.
type StatsProvider interface {
	PendingByCategory(ctx context.Context) ([]CategoryStat, error)
}

// IngestTrigger runs one ingestion pass and describes the outcome.
type IngestTrigger interface {
	TriggerIngest(ctx context.Context) (string, error)
}

// DigestTrigger assembles one digest and describes the outcome.
type DigestTrigger interface {
	TriggerDigest(ctx context.Context) (string, error)
}

// CategoryStat is the number of pending bookmarks in a category.
type CategoryStat struct {
	Category string
	Count    int
}

// CommandHandler handles bot commands.
type CommandHandler struct {
	sender    MessageSender
	settings  SettingsStore
	cfg       *config.Config
	registrar ChatRegistrar
	stats     StatsProvider
	ingest    IngestTrigger
	digest    DigestTrigger
}

// Option configures a CommandHandler.
type Option func(*CommandHandler)

// WithRegistrar is told the admin chat ID on /start.
func WithRegistrar(r ChatRegistrar) Option {
	return func(h *CommandHandler) {
		h.registrar = r
	}
}

// WithStats enables /stats.
func WithStats(s StatsProvider) Option {
	return func(h *CommandHandler) {
		h.stats = s
	}
}

// WithIngest enables /fetch.
func WithIngest(t IngestTrigger) Option {
	return func(h *CommandHandler) {
		h.ingest = t
	}
}

// WithDigest enables /digest.
func WithDigest(t DigestTrigger) Option {
	return func(h *CommandHandler) {
		h.digest = t
	}
}

// NewCommandHandler creates a new command handler. cfg supplies the file
// defaults shown by /settings and the optional fixed admin chat.
func NewCommandHandler(sender MessageSender, settings SettingsStore, cfg *config.Config, opts ...Option) *CommandHandler {
	h := &CommandHandler{
		sender:   sender,
		settings: settings,
		cfg:      cfg,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Handle dispatches a command. Messages from chats other than the configured
// admin chat are refused.
func (h *CommandHandler) Handle(ctx context.Context, chatID int64, command, args string) error {
	if fixed := h.cfg.Notify.Telegram.ChatID; fixed != 0 && fixed != chatID {
		_, err := h.sender.SendMessage(ctx, chatID, "This bot only answers its administrator.")
		return err
	}

	switch command {
	case "start":
		return h.HandleStart(ctx, chatID)
	case "fetch":
		return h.HandleFetch(ctx, chatID)
	case "digest":
		return h.HandleDigest(ctx, chatID)
	case "stats":
		return h.HandleStats(ctx, chatID)
	case "settings":
		return h.HandleSettings(ctx, chatID, args)
	default:
		_, err := h.sender.SendMessage(ctx, chatID, "Unknown command. Try /start for the list.")
		return err
	}
}

// HandleStart handles the /start command.
func (h *CommandHandler) HandleStart(ctx context.Context, chatID int64) error {
	if err := h.settings.SetSetting(ctx, config.SettingAdminChatID, strconv.FormatInt(chatID, 10)); err != nil {
		return fmt.Errorf("save admin_chat_id: %w", err)
	}
	if h.registrar != nil {
		h.registrar.SetChatID(chatID)
	}

	msg := "Socrates admin bot ready. Digest notifications will be sent here.\n\n" +
		"Commands:\n" +
		"/fetch - Fetch and score feeds now\n" +
		"/digest - Create the weekly digest draft now\n" +
		"/stats - Pending bookmarks per category\n" +
		"/settings - View or update settings"

	_, err := h.sender.SendMessage(ctx, chatID, msg)
	return err
}

// HandleSettings handles the /settings command.
func (h *CommandHandler) HandleSettings(ctx context.Context, chatID int64, args string) error {
	args = strings.TrimSpace(args)

	if args == "" {
		return h.displaySettings(ctx, chatID)
	}

	parts := strings.Fields(args)
	if len(parts) != 2 {
		return h.sendSettingsUsage(ctx, chatID)
	}

	subCmd := strings.ToLower(parts[0])
	value := strings.ToLower(parts[1])

	switch subCmd {
	case "threshold":
		return h.updateThreshold(ctx, chatID, value)
	case "other":
		return h.updateToggle(ctx, chatID, config.SettingIncludeOther, "Include Other category", value, false)
	case "reasoning":
		return h.updateToggle(ctx, chatID, config.SettingShowReasoning, "Show reasoning", value, false)
	case "links":
		return h.updateToggle(ctx, chatID, config.SettingHideLinks, "Show links in replies", value, true)
	default:
		return h.sendSettingsUsage(ctx, chatID)
	}
}

func (h *CommandHandler) displaySettings(ctx context.Context, chatID int64) error {
	eff := h.cfg.WithOverrides(ctx, h.settings)

	lastFetch := "never"
	if v, err := h.settings.GetSetting(ctx, config.SettingLastFeedFetch); err == nil && v != "" {
		lastFetch = v
	}

	msg := fmt.Sprintf("Current Settings:\n\n"+
		"Threshold score: %d\n"+
		"Include Other category: %s\n"+
		"Show reasoning: %s\n"+
		"Show links in replies: %s\n"+
		"Last feed fetch: %s\n\n"+
		"Update with:\n"+
		"/settings threshold N\n"+
		"/settings other on|off\n"+
		"/settings reasoning on|off\n"+
		"/settings links on|off",
		eff.ThresholdScore,
		onOff(eff.IncludeOtherCategory),
		onOff(eff.Chat.ShowReasoning),
		onOff(!eff.Chat.HideLinks),
		lastFetch,
	)

	_, err := h.sender.SendMessage(ctx, chatID, msg)
	return err
}

func (h *CommandHandler) updateThreshold(ctx context.Context, chatID int64, value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > 10 {
		_, err := h.sender.SendMessage(ctx, chatID, "Invalid threshold. Must be a number between 0 and 10.")
		return err
	}

	if err := h.settings.SetSetting(ctx, config.SettingThreshold, strconv.Itoa(n)); err != nil {
		return fmt.Errorf("save threshold: %w", err)
	}

	_, err = h.sender.SendMessage(ctx, chatID, fmt.Sprintf("Threshold score updated to %d", n))
	return err
}

// updateToggle stores an on/off setting. inverted settings store the
// opposite of what the admin typed, e.g. "links on" clears hide_links.
func (h *CommandHandler) updateToggle(ctx context.Context, chatID int64, key, label, value string, inverted bool) error {
	var on bool
	switch value {
	case "on", "yes", "true", "1":
		on = true
	case "off", "no", "false", "0":
		on = false
	default:
		_, err := h.sender.SendMessage(ctx, chatID, fmt.Sprintf("Invalid value %q. Use on or off.", value))
		return err
	}

	stored := on
	if inverted {
		stored = !on
	}
	if err := h.settings.SetSetting(ctx, key, strconv.FormatBool(stored)); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	_, err := h.sender.SendMessage(ctx, chatID, fmt.Sprintf("%s: %s", label, onOff(on)))
	return err
}

func (h *CommandHandler) sendSettingsUsage(ctx context.Context, chatID int64) error {
	msg := "Usage:\n" +
		"/settings - Show current settings\n" +
		"/settings threshold N - Minimum score to keep an article (0-10)\n" +
		"/settings other on|off - Include the Other category in digests\n" +
		"/settings reasoning on|off - Show model reasoning in chat\n" +
		"/settings links on|off - Suggest bookmarks in chat replies"
	_, err := h.sender.SendMessage(ctx, chatID, msg)
	return err
}

// HandleStats handles the /stats command.
func (h *CommandHandler) HandleStats(ctx context.Context, chatID int64) error {
	if h.stats == nil {
		return nil
	}

	stats, err := h.stats.PendingByCategory(ctx)
	if err != nil {
		return fmt.Errorf("get pending stats: %w", err)
	}

	_, err = h.sender.SendMessage(ctx, chatID, FormatStats(stats))
	return err
}

// FormatStats renders pending counts, one category per line.
func FormatStats(stats []CategoryStat) string {
	total := 0
	for _, s := range stats {
		total += s.Count
	}
	if total == 0 {
		return "No pending bookmarks. Run /fetch to look for new articles."
	}

	var sb strings.Builder
	sb.WriteString("Pending bookmarks:\n\n")
	for _, s := range stats {
		if s.Count == 0 {
			continue
		}
		fmt.Fprintf(&sb, "%s: %d\n", s.Category, s.Count)
	}
	fmt.Fprintf(&sb, "\nTotal: %d", total)
	return sb.String()
}

// HandleFetch handles the /fetch command.
func (h *CommandHandler) HandleFetch(ctx context.Context, chatID int64) error {
	if h.ingest == nil {
		return nil
	}
	return h.run(ctx, chatID, "Fetching feeds...", "Ingestion", h.ingest.TriggerIngest)
}

// HandleDigest handles the /digest command.
func (h *CommandHandler) HandleDigest(ctx context.Context, chatID int64) error {
	if h.digest == nil {
		return nil
	}
	return h.run(ctx, chatID, "Assembling digest...", "Digest", h.digest.TriggerDigest)
}

func (h *CommandHandler) run(ctx context.Context, chatID int64, start, name string, fn func(context.Context) (string, error)) error {
	if _, err := h.sender.SendMessage(ctx, chatID, start); err != nil {
		return err
	}

	summary, err := fn(ctx)
	if err != nil {
		h.sender.SendMessage(ctx, chatID, fmt.Sprintf("%s failed: %v", name, err))
		return fmt.Errorf("%s: %w", strings.ToLower(name), err)
	}

	_, err = h.sender.SendMessage(ctx, chatID, summary)
	return err
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
