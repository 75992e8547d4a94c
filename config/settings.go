package config

import (
	"context"
	"log/slog"
	"strconv"
)

// Keys of runtime settings stored in the settings table.
const (
	SettingThreshold     = "threshold_score"
	SettingIncludeOther  = "include_other_category"
	SettingShowReasoning = "show_reasoning"
	SettingHideLinks     = "hide_links"
	SettingLastFeedFetch = "last_feed_fetch"
	SettingAdminChatID   = "admin_chat_id"
)

// SettingsReader looks up runtime settings.
type SettingsReader interface {
	GetSetting(ctx context.Context, key string) (string, error)
}

// WithOverrides returns a copy of c with the admin-editable settings found
// in r applied. Missing or unparseable values keep the file value.
func (c *Config) WithOverrides(ctx context.Context, r SettingsReader) *Config {
	out := *c
	if r == nil {
		return &out
	}

	if v, ok := lookup(ctx, r, SettingThreshold); ok {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 && n <= 10 {
			out.ThresholdScore = n
		} else {
			slog.Warn("ignoring invalid setting", "key", SettingThreshold, "value", v)
		}
	}
	overrideBool(ctx, r, SettingIncludeOther, &out.IncludeOtherCategory)
	overrideBool(ctx, r, SettingShowReasoning, &out.Chat.ShowReasoning)
	overrideBool(ctx, r, SettingHideLinks, &out.Chat.HideLinks)

	return &out
}

func overrideBool(ctx context.Context, r SettingsReader, key string, dst *bool) {
	v, ok := lookup(ctx, r, key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("ignoring invalid setting", "key", key, "value", v)
		return
	}
	*dst = b
}

func lookup(ctx context.Context, r SettingsReader, key string) (string, bool) {
	v, err := r.GetSetting(ctx, key)
	if err != nil || v == "" {
		return "", false
	}
	return v, true
}
