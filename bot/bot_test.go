package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"socrates/config"
)

// Mock implementations for testing

type mockMessageSender struct {
	sentMessages []sentMessage
}

type sentMessage struct {
	chatID int64
	text   string
}

func (m *mockMessageSender) SendMessage(ctx context.Context, chatID int64, text string) (int64, error) {
	m.sentMessages = append(m.sentMessages, sentMessage{chatID, text})
	return int64(len(m.sentMessages)), nil
}

func (m *mockMessageSender) last() string {
	if len(m.sentMessages) == 0 {
		return ""
	}
	return m.sentMessages[len(m.sentMessages)-1].text
}

type mockSettingsStore struct {
	settings map[string]string
}

func newMockSettingsStore() *mockSettingsStore {
	return &mockSettingsStore{settings: make(map[string]string)}
}

func (m *mockSettingsStore) GetSetting(ctx context.Context, key string) (string, error) {
	if v, ok := m.settings[key]; ok {
		return v, nil
	}
	return "", ErrSettingNotFound
}

func (m *mockSettingsStore) SetSetting(ctx context.Context, key, value string) error {
	m.settings[key] = value
	return nil
}

type mockRegistrar struct {
	chatID int64
}

func (m *mockRegistrar) SetChatID(chatID int64) {
	m.chatID = chatID
}

type mockStats struct {
	stats []CategoryStat
}

func (m *mockStats) PendingByCategory(ctx context.Context) ([]CategoryStat, error) {
	return m.stats, nil
}

type mockTrigger struct {
	triggered bool
	summary   string
	err       error
}

func (m *mockTrigger) TriggerIngest(ctx context.Context) (string, error) {
	m.triggered = true
	return m.summary, m.err
}

func (m *mockTrigger) TriggerDigest(ctx context.Context) (string, error) {
	m.triggered = true
	return m.summary, m.err
}

func testConfig() *config.Config {
	return &config.Config{ThresholdScore: 5}
}

// Tests

func TestHandleStartCommand(t *testing.T) {
	sender := &mockMessageSender{}
	settings := newMockSettingsStore()
	registrar := &mockRegistrar{}

	handler := NewCommandHandler(sender, settings, testConfig(), WithRegistrar(registrar))
	ctx := context.Background()

	err := handler.HandleStart(ctx, 12345)
	if err != nil {
		t.Fatalf("HandleStart failed: %v", err)
	}

	chatID, err := settings.GetSetting(ctx, config.SettingAdminChatID)
	if err != nil {
		t.Fatalf("admin_chat_id not saved: %v", err)
	}
	if chatID != "12345" {
		t.Errorf("admin_chat_id = %q, want '12345'", chatID)
	}
	if registrar.chatID != 12345 {
		t.Errorf("registrar chat = %d, want 12345", registrar.chatID)
	}

	if len(sender.sentMessages) != 1 {
		t.Fatalf("expected 1 message, got %d", len(sender.sentMessages))
	}
	if sender.sentMessages[0].chatID != 12345 {
		t.Errorf("message sent to wrong chat: %d", sender.sentMessages[0].chatID)
	}
}

func TestHandleSettingsCommandDisplay(t *testing.T) {
	sender := &mockMessageSender{}
	settings := newMockSettingsStore()
	settings.settings[config.SettingThreshold] = "7"
	settings.settings[config.SettingHideLinks] = "true"
	settings.settings[config.SettingLastFeedFetch] = "2025-03-04T23:59:00Z"

	handler := NewCommandHandler(sender, settings, testConfig())

	if err := handler.HandleSettings(context.Background(), 12345, ""); err != nil {
		t.Fatalf("HandleSettings failed: %v", err)
	}

	msg := sender.last()
	for _, want := range []string{"Threshold score: 7", "Show links in replies: off", "Include Other category: off", "2025-03-04T23:59:00Z"} {
		if !strings.Contains(msg, want) {
			t.Errorf("settings message missing %q, got: %s", want, msg)
		}
	}
}

func TestHandleSettingsCommandDefaults(t *testing.T) {
	sender := &mockMessageSender{}
	handler := NewCommandHandler(sender, newMockSettingsStore(), testConfig())

	handler.HandleSettings(context.Background(), 12345, "")

	msg := sender.last()
	if !strings.Contains(msg, "Threshold score: 5") || !strings.Contains(msg, "Last feed fetch: never") {
		t.Errorf("settings should fall back to config values, got: %s", msg)
	}
}

func TestHandleSettingsCommandUpdates(t *testing.T) {
	tests := []struct {
		args  string
		key   string
		value string
	}{
		{"threshold 8", config.SettingThreshold, "8"},
		{"threshold 0", config.SettingThreshold, "0"},
		{"other on", config.SettingIncludeOther, "true"},
		{"other OFF", config.SettingIncludeOther, "false"},
		{"reasoning on", config.SettingShowReasoning, "true"},
		{"links off", config.SettingHideLinks, "true"},
		{"links on", config.SettingHideLinks, "false"},
	}

	for _, tt := range tests {
		t.Run(tt.args, func(t *testing.T) {
			sender := &mockMessageSender{}
			settings := newMockSettingsStore()
			handler := NewCommandHandler(sender, settings, testConfig())

			if err := handler.HandleSettings(context.Background(), 12345, tt.args); err != nil {
				t.Fatalf("HandleSettings failed: %v", err)
			}
			if got := settings.settings[tt.key]; got != tt.value {
				t.Errorf("%s = %q, want %q", tt.key, got, tt.value)
			}
		})
	}
}

func TestHandleSettingsCommandInvalid(t *testing.T) {
	for _, args := range []string{"threshold 11", "threshold -1", "threshold many", "other maybe", "colour blue", "threshold"} {
		t.Run(args, func(t *testing.T) {
			sender := &mockMessageSender{}
			settings := newMockSettingsStore()
			handler := NewCommandHandler(sender, settings, testConfig())

			handler.HandleSettings(context.Background(), 12345, args)

			if len(sender.sentMessages) != 1 {
				t.Fatalf("expected 1 message, got %d", len(sender.sentMessages))
			}
			if len(settings.settings) != 0 {
				t.Errorf("invalid input stored settings: %v", settings.settings)
			}
		})
	}
}

func TestHandleStatsCommand(t *testing.T) {
	sender := &mockMessageSender{}
	stats := &mockStats{stats: []CategoryStat{
		{Category: "Copyright", Count: 3},
		{Category: "Privacy", Count: 0},
		{Category: "Other", Count: 2},
	}}

	handler := NewCommandHandler(sender, nil, testConfig(), WithStats(stats))

	if err := handler.HandleStats(context.Background(), 12345); err != nil {
		t.Fatalf("HandleStats failed: %v", err)
	}

	msg := sender.last()
	if !strings.Contains(msg, "Copyright: 3") || !strings.Contains(msg, "Other: 2") || !strings.Contains(msg, "Total: 5") {
		t.Errorf("stats should list counts, got: %s", msg)
	}
	if strings.Contains(msg, "Privacy") {
		t.Errorf("empty categories should be omitted, got: %s", msg)
	}
}

func TestHandleStatsCommandNothingPending(t *testing.T) {
	sender := &mockMessageSender{}
	handler := NewCommandHandler(sender, nil, testConfig(), WithStats(&mockStats{}))

	handler.HandleStats(context.Background(), 12345)

	if !strings.Contains(sender.last(), "No pending bookmarks") {
		t.Errorf("unexpected message: %s", sender.last())
	}
}

func TestHandleFetchCommand(t *testing.T) {
	sender := &mockMessageSender{}
	trigger := &mockTrigger{summary: "Fetched 3 articles, created 2 bookmarks."}

	handler := NewCommandHandler(sender, nil, testConfig(), WithIngest(trigger))

	if err := handler.HandleFetch(context.Background(), 12345); err != nil {
		t.Fatalf("HandleFetch failed: %v", err)
	}
	if !trigger.triggered {
		t.Error("ingestion was not triggered")
	}
	if sender.last() != trigger.summary {
		t.Errorf("last message = %q, want summary", sender.last())
	}
}

func TestHandleDigestCommandFailure(t *testing.T) {
	sender := &mockMessageSender{}
	trigger := &mockTrigger{err: errors.New("database locked")}

	handler := NewCommandHandler(sender, nil, testConfig(), WithDigest(trigger))

	err := handler.HandleDigest(context.Background(), 12345)
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(sender.last(), "Digest failed: database locked") {
		t.Errorf("failure should be reported, got: %s", sender.last())
	}
}

func TestHandleDispatch(t *testing.T) {
	sender := &mockMessageSender{}
	trigger := &mockTrigger{summary: "done"}
	handler := NewCommandHandler(sender, newMockSettingsStore(), testConfig(), WithDigest(trigger))

	if err := handler.Handle(context.Background(), 1, "digest", ""); err != nil {
		t.Fatalf("Handle failed: %v", err)
	}
	if !trigger.triggered {
		t.Error("/digest should run the digest")
	}

	handler.Handle(context.Background(), 1, "unknown", "")
	if !strings.Contains(sender.last(), "Unknown command") {
		t.Errorf("unexpected reply: %s", sender.last())
	}
}

func TestHandleRejectsOtherChats(t *testing.T) {
	cfg := testConfig()
	cfg.Notify.Telegram.ChatID = 42
	sender := &mockMessageSender{}
	settings := newMockSettingsStore()
	handler := NewCommandHandler(sender, settings, cfg)

	handler.Handle(context.Background(), 99, "start", "")

	if _, ok := settings.settings[config.SettingAdminChatID]; ok {
		t.Error("foreign chat must not register as admin")
	}
	if !strings.Contains(sender.last(), "administrator") {
		t.Errorf("unexpected reply: %s", sender.last())
	}
}
