package config

import (
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// maxPollingTimeout caps the long-poll wait; each request is cut off at the wait plus a fixed margin.
const maxPollingTimeout = 50

// Config describes runtime configuration for telegram-poller.
type Config struct {
	// ServiceName is a human-friendly service name for logs.
	ServiceName string `env:"TG_POLLER_SERVICE_NAME" envDefault:"telegram-poller"`
	// HTTPHost is the HTTP listen host.
	HTTPHost string `env:"TG_POLLER_HTTP_HOST,required"`
	// HTTPPort is the HTTP listen port.
	HTTPPort int `env:"TG_POLLER_HTTP_PORT" envDefault:"8080"`
	// LogLevel controls log verbosity (debug, info, warn, error).
	LogLevel string `env:"TG_POLLER_LOG_LEVEL" envDefault:"info"`
	// LogFormat selects the log encoding (text or json).
	LogFormat string `env:"TG_POLLER_LOG_FORMAT" envDefault:"text"`
	// Lang selects i18n language (en or ru).
	Lang string `env:"TG_POLLER_LANG" envDefault:"en"`
	// Token is the Telegram bot token.
	Token string `env:"TG_POLLER_TOKEN,required"`
	// APIServer overrides the Bot API server URL (local Bot API server).
	APIServer string `env:"TG_POLLER_API_SERVER"`
	// AllowedChatIDs limits the chats the bot answers; empty allows every chat.
	AllowedChatIDs []int64 `env:"TG_POLLER_ALLOWED_CHAT_IDS" envSeparator:","`
	// PollingInterval is the pause between two getUpdates cycles.
	PollingInterval time.Duration `env:"TG_POLLER_POLLING_INTERVAL" envDefault:"300ms"`
	// PollingTimeout is the long-poll wait in seconds.
	PollingTimeout int `env:"TG_POLLER_POLLING_TIMEOUT" envDefault:"10"`
	// PollingLimit caps the number of updates per batch.
	PollingLimit int `env:"TG_POLLER_POLLING_LIMIT" envDefault:"100"`
	// AllowedUpdates lists the update kinds requested from Telegram.
	AllowedUpdates []string `env:"TG_POLLER_ALLOWED_UPDATES" envSeparator:"," envDefault:"message,edited_message,callback_query"`
	// BadRejectionRecovery acknowledges the offset right after a processing failure.
	BadRejectionRecovery bool `env:"TG_POLLER_BAD_REJECTION_RECOVERY" envDefault:"false"`
	// OffsetFile persists the polling offset between restarts when set.
	OffsetFile string `env:"TG_POLLER_OFFSET_FILE"`
	// WebhookURL enables webhook mode when set with WebhookSecret.
	WebhookURL string `env:"TG_POLLER_WEBHOOK_URL"`
	// WebhookSecret is the Telegram webhook secret token.
	WebhookSecret string `env:"TG_POLLER_WEBHOOK_SECRET"`
	// OpenAIAPIKey enables voice transcription.
	OpenAIAPIKey string `env:"TG_POLLER_OPENAI_API_KEY"`
	// STTModel is the OpenAI model for transcription.
	STTModel string `env:"TG_POLLER_STT_MODEL" envDefault:"gpt-4o-mini-transcribe"`
	// STTTimeout is the OpenAI transcription timeout.
	STTTimeout time.Duration `env:"TG_POLLER_STT_TIMEOUT" envDefault:"30s"`
	// ReplyRate is the maximum number of replies per second.
	ReplyRate float64 `env:"TG_POLLER_REPLY_RATE" envDefault:"20"`
	// ShutdownTimeout is the graceful shutdown timeout.
	ShutdownTimeout time.Duration `env:"TG_POLLER_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Lang = strings.ToLower(strings.TrimSpace(c.Lang))
	if c.Lang == "" {
		c.Lang = "en"
	}
	c.LogFormat = strings.ToLower(strings.TrimSpace(c.LogFormat))

	allowed := c.AllowedUpdates[:0]
	for _, kind := range c.AllowedUpdates {
		if kind = strings.TrimSpace(kind); kind != "" {
			allowed = append(allowed, kind)
		}
	}
	c.AllowedUpdates = allowed

	if strings.TrimSpace(c.HTTPHost) == "" {
		return fmt.Errorf("http host is required")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535")
	}
	if c.PollingInterval <= 0 {
		return fmt.Errorf("polling interval must be positive")
	}
	if c.PollingTimeout < 0 || c.PollingTimeout > maxPollingTimeout {
		return fmt.Errorf("polling timeout must be between 0 and %d seconds", maxPollingTimeout)
	}
	if c.PollingLimit < 1 || c.PollingLimit > 100 {
		return fmt.Errorf("polling limit must be between 1 and 100")
	}
	if c.ReplyRate <= 0 {
		return fmt.Errorf("reply rate must be positive")
	}
	if (c.WebhookURL == "") != (c.WebhookSecret == "") {
		return fmt.Errorf("webhook url and secret must be set together")
	}
	return nil
}

// HTTPAddr returns a listen address for the HTTP server.
func (c Config) HTTPAddr() string {
	return net.JoinHostPort(strings.TrimSpace(c.HTTPHost), fmt.Sprintf("%d", c.HTTPPort))
}

// WebhookEnabled reports whether webhook mode is configured.
func (c Config) WebhookEnabled() bool {
	return c.WebhookURL != "" && c.WebhookSecret != ""
}
