package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	LLM                  LLMConfig    `yaml:"llm"`
	Feeds                []Feed       `yaml:"feeds"`
	MaxArticlesPerFeed   int          `yaml:"max_articles_per_feed"`
	FetchTimeoutSecs     int          `yaml:"fetch_timeout_secs"`
	FocusDescription     string       `yaml:"focus_description"`
	EmphasisAspect       string       `yaml:"emphasis_aspect"`
	Categories           []string     `yaml:"categories"`
	ThresholdScore       int          `yaml:"threshold_score"`
	IncludeOtherCategory bool         `yaml:"include_other_category"`
	IngestCadence        string       `yaml:"ingest_cadence"`
	Digest               DigestConfig `yaml:"digest"`
	Chat                 ChatConfig   `yaml:"chat"`
	Notify               NotifyConfig `yaml:"notify"`
	HTTP                 HTTPConfig   `yaml:"http"`
	Timezone             string       `yaml:"timezone"`
	DBPath               string       `yaml:"db_path"`
	LockPath             string       `yaml:"lock_path"`
	LogLevel             string       `yaml:"log_level"`
}

// LLMConfig selects the provider and model and carries per-provider credentials.
type LLMConfig struct {
	Provider         string            `yaml:"provider"`
	Model            string            `yaml:"model"`
	TimeoutSecs      int               `yaml:"timeout_secs"`
	ReasoningPattern string            `yaml:"reasoning_pattern"`
	Models           map[string]string `yaml:"models"`
	OpenAI           OpenAIConfig      `yaml:"openai"`
	Anthropic        AnthropicConfig   `yaml:"anthropic"`
	Ollama           OllamaConfig      `yaml:"ollama"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
}

type AnthropicConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	Version   string `yaml:"version"`
	MaxTokens int    `yaml:"max_tokens"`
}

type OllamaConfig struct {
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	NumCtx      int     `yaml:"num_ctx"`
	Temperature float64 `yaml:"temperature"`
}

// Feed is one syndication source polled by the ingestion run.
type Feed struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

type DigestConfig struct {
	Day             string `yaml:"day"`
	PostCategory    int    `yaml:"post_category"`
	Author          string `yaml:"author"`
	EditURLTemplate string `yaml:"edit_url_template"`
}

type ChatConfig struct {
	StartingPrompt string   `yaml:"starting_prompt"`
	InitialReply   string   `yaml:"initial_reply"`
	ShowReasoning  bool     `yaml:"show_reasoning"`
	HideLinks      bool     `yaml:"hide_links"`
	AdminUsers     []string `yaml:"admin_users"`
}

type NotifyConfig struct {
	Email    EmailConfig    `yaml:"email"`
	Telegram TelegramConfig `yaml:"telegram"`
}

type EmailConfig struct {
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	To       string `yaml:"to"`
}

type TelegramConfig struct {
	Token  string `yaml:"token"`
	ChatID int64  `yaml:"chat_id"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

const (
	CadenceDaily         = "daily"
	CadenceEveryOtherDay = "every_other_day"
	CadenceWeekly        = "weekly"
)

// DefaultStartingPrompt is the hidden first message of every new chat.
const DefaultStartingPrompt = "The Socratic method is a form of cooperative argumentative dialogue between individuals, " +
	"based on asking and answering questions to stimulate critical thinking and to draw out ideas and underlying presuppositions. " +
	"Act as a Socratic tutor: ask one numbered question at a time and build on the participant's previous answer."

// DefaultInitialReply is the canned assistant reply shown when a chat starts.
const DefaultInitialReply = "Question 1: Name a digital world issue that interests you in 5 words or under."

var validDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// Load reads configuration from a YAML file and applies defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	applyDefaults(cfg)
	applyEnvironmentOverrides(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// GetConfigPath returns the config file path from environment or default.
func GetConfigPath() string {
	if path := os.Getenv("SOCRATES_CONFIG"); path != "" {
		return path
	}
	return "./config.yaml"
}

// FetchTimeout is the per-article fetch timeout.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSecs) * time.Second
}

// IsAdmin reports whether userID may see deleted chats and other users' chats.
func (c *Config) IsAdmin(userID string) bool {
	for _, u := range c.Chat.AdminUsers {
		if u == userID {
			return true
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.MaxArticlesPerFeed == 0 {
		cfg.MaxArticlesPerFeed = 5
	}
	if cfg.FetchTimeoutSecs == 0 {
		cfg.FetchTimeoutSecs = 5
	}
	if cfg.IngestCadence == "" {
		cfg.IngestCadence = CadenceDaily
	}
	if cfg.LLM.TimeoutSecs == 0 {
		cfg.LLM.TimeoutSecs = 120
	}
	if cfg.LLM.Anthropic.Version == "" {
		cfg.LLM.Anthropic.Version = "2023-06-01"
	}
	if cfg.LLM.Anthropic.MaxTokens == 0 {
		cfg.LLM.Anthropic.MaxTokens = 4000
	}
	if cfg.LLM.Ollama.BaseURL == "" {
		cfg.LLM.Ollama.BaseURL = "http://localhost:11434"
	}
	if cfg.LLM.Ollama.NumCtx == 0 {
		cfg.LLM.Ollama.NumCtx = 8192
	}
	if cfg.LLM.Ollama.Temperature == 0 {
		cfg.LLM.Ollama.Temperature = 0.1
	}
	if cfg.Digest.Day == "" {
		cfg.Digest.Day = "Sunday"
	}
	if cfg.Digest.PostCategory == 0 {
		cfg.Digest.PostCategory = 1
	}
	if cfg.Chat.StartingPrompt == "" {
		cfg.Chat.StartingPrompt = DefaultStartingPrompt
	}
	if cfg.Chat.InitialReply == "" {
		cfg.Chat.InitialReply = DefaultInitialReply
	}
	if cfg.Notify.Email.SMTPPort == 0 {
		cfg.Notify.Email.SMTPPort = 587
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Timezone == "" {
		cfg.Timezone = "UTC"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./socrates.db"
	}
	if cfg.LockPath == "" {
		cfg.LockPath = cfg.DBPath + ".lock"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
}

func applyEnvironmentOverrides(cfg *Config) {
	if dbPath := os.Getenv("SOCRATES_DB"); dbPath != "" {
		cfg.DBPath = dbPath
	}
}

func validate(cfg *Config) error {
	if cfg.LLM.Model == "" {
		return fmt.Errorf("llm.model is required")
	}
	if cfg.ThresholdScore < 0 || cfg.ThresholdScore > 10 {
		return fmt.Errorf("threshold_score must be between 0 and 10, got %d", cfg.ThresholdScore)
	}
	for i, f := range cfg.Feeds {
		if strings.TrimSpace(f.URL) == "" {
			return fmt.Errorf("feeds[%d].url is required", i)
		}
	}
	switch cfg.IngestCadence {
	case CadenceDaily, CadenceEveryOtherDay, CadenceWeekly:
	default:
		return fmt.Errorf("ingest_cadence must be one of daily, every_other_day, weekly, got %q", cfg.IngestCadence)
	}
	if !isValidDay(cfg.Digest.Day) {
		return fmt.Errorf("digest.day must be a weekday name, got %q", cfg.Digest.Day)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	return nil
}

func isValidDay(day string) bool {
	for _, d := range validDays {
		if d == day {
			return true
		}
	}
	return false
}
