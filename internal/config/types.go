package config

import (
	"time"

	"github.com/go-telegram/bot/models"
)

// Config defines the application configuration. Values can be set via environment
// variables prefixed with BOT_ (e.g., BOT_AI_API_KEY) or through config.yaml.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Bot       BotConfig       `mapstructure:"bot"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	AI        AIConfig        `mapstructure:"ai"`
	MPesa     MPesaConfig     `mapstructure:"mpesa"`
	Knowledge KnowledgeConfig `mapstructure:"knowledge"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

// LoggerConfig controls the slog handler built at startup.
type LoggerConfig struct {
	Level string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

// DatabaseConfig points at the SQLite file holding conversations, bans and payments.
type DatabaseConfig struct {
	Path         string `mapstructure:"path"          validate:"required"`
	HistoryLimit int    `mapstructure:"history_limit" validate:"min=1,max=100"`
}

// BotConfig holds router behaviour shared by every chat transport.
type BotConfig struct {
	// AdminIDs restricts /ban and /unban when non-empty.
	AdminIDs []string `mapstructure:"admin_ids"`

	SaveRetries    int           `mapstructure:"save_retries"     validate:"min=1,max=10"`
	SaveRetryDelay time.Duration `mapstructure:"save_retry_delay" validate:"min=0,max=10s"`
	DBTimeout      time.Duration `mapstructure:"db_timeout"       validate:"min=100ms,max=1m"`

	Messages MessagesConfig `mapstructure:"messages"`
}

// MessagesConfig contains every fixed reply the router can send.
// Entries ending in "Fmt" are fmt format strings.
type MessagesConfig struct {
	Banned          string `mapstructure:"banned"            validate:"required"`
	NotAuthorized   string `mapstructure:"not_authorized"    validate:"required"`
	Pong            string `mapstructure:"pong"              validate:"required"`
	BanUsage        string `mapstructure:"ban_usage"         validate:"required"`
	UnbanUsage      string `mapstructure:"unban_usage"       validate:"required"`
	BannedFmt       string `mapstructure:"banned_fmt"        validate:"required"`
	UnbannedFmt     string `mapstructure:"unbanned_fmt"      validate:"required"`
	HistoryCountFmt string `mapstructure:"history_count_fmt" validate:"required"`
	PayUsage        string `mapstructure:"pay_usage"         validate:"required"`
	InvalidPhoneFmt string `mapstructure:"invalid_phone_fmt" validate:"required"`
	PaymentSent     string `mapstructure:"payment_sent"      validate:"required"`
	PaymentFailed   string `mapstructure:"payment_failed"    validate:"required"`
	GeneralError    string `mapstructure:"general_error"     validate:"required"`
	Welcome         string `mapstructure:"welcome"           validate:"required"`
	Help            string `mapstructure:"help"              validate:"required"`
	TransportFmt    string `mapstructure:"transport_fmt"     validate:"required"`
	FeeFmt          string `mapstructure:"fee_fmt"           validate:"required"`
	FeeSummaryFmt   string `mapstructure:"fee_summary_fmt"   validate:"required"`
	ActivityFmt     string `mapstructure:"activity_fmt"      validate:"required"`
	NotSet          string `mapstructure:"not_set"           validate:"required"`
}

// TelegramConfig enables the Telegram chat transport.
type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token"   validate:"required_if=Enabled true"`

	// BotInfo is filled from getMe at startup.
	BotInfo *models.User `mapstructure:"-"`
}

// HTTPConfig configures the API server used for gateway callbacks, the
// dashboard read API and the chat webhook.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
	// AdminToken guards the read and moderation endpoints when set.
	AdminToken string `mapstructure:"admin_token"`
	// WebhookToken must be presented by chat bridges. The chat webhook
	// rejects every request while it is empty.
	WebhookToken string `mapstructure:"webhook_token"`
}

// AIConfig selects and configures the completion backend.
type AIConfig struct {
	Provider    string        `mapstructure:"provider"    validate:"required,oneof=openai gemini"`
	APIKey      string        `mapstructure:"api_key"     validate:"required"`
	BaseURL     string        `mapstructure:"base_url"    validate:"omitempty,url"`
	Model       string        `mapstructure:"model"       validate:"required"`
	Temperature float32       `mapstructure:"temperature" validate:"min=0,max=2"`
	Timeout     time.Duration `mapstructure:"timeout"     validate:"min=1s,max=10m"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"min=0,max=5"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"min=0"`
}

// MPesaConfig holds the Daraja STK push credentials.
type MPesaConfig struct {
	// Enabled turns on /pay. Credentials are only required when it is set.
	Enabled          bool          `mapstructure:"enabled"`
	Environment      string        `mapstructure:"environment"       validate:"required,oneof=sandbox production"`
	ConsumerKey      string        `mapstructure:"consumer_key"      validate:"required_if=Enabled true"`
	ConsumerSecret   string        `mapstructure:"consumer_secret"   validate:"required_if=Enabled true"`
	Shortcode        string        `mapstructure:"shortcode"         validate:"required_if=Enabled true,omitempty,numeric"`
	Passkey          string        `mapstructure:"passkey"           validate:"required_if=Enabled true"`
	CallbackURL      string        `mapstructure:"callback_url"      validate:"required_if=Enabled true,omitempty,url"`
	AccountReference string        `mapstructure:"account_reference" validate:"required,max=12"`
	TransactionDesc  string        `mapstructure:"transaction_desc"  validate:"required,max=13"`
	Timeout          time.Duration `mapstructure:"timeout"           validate:"min=1s,max=2m"`
	// RegisterURL receives successful initiations when reconciliation runs elsewhere.
	RegisterURL string        `mapstructure:"register_url" validate:"omitempty,url"`
	StaleAfter  time.Duration `mapstructure:"stale_after"  validate:"min=1m"`
}

// KnowledgeConfig points at the school data file maintained by the dashboard.
type KnowledgeConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// SchedulerConfig maps task names to their schedules.
type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

// TaskConfig configures one scheduled task.
type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}
