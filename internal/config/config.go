package config

import (
	"context"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
)

// Transport kinds understood by TRANSPORT.
const (
	TransportRasa = "rasa"
	TransportArk  = "ark"
)

// Config aggregates every setting of the service.
type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	Chat      ChatConfig
	Log       LogConfig
	AI        AIConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, errors.Wrap(err, "parse env")
	}

	addr, err := resolveAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Transport.validate(); err != nil {
		return nil, err
	}
	if cfg.Transport.Kind == TransportArk {
		// the ark transport keeps history per sender, so a shared sender would mix widgets
		cfg.Chat.SessionScopedSender = true
	}
	if err := cfg.Chat.validate(); err != nil {
		return nil, err
	}
	if cfg.AI.HistoryLimit < 1 {
		cfg.AI.HistoryLimit = 1
	}

	return &cfg, nil
}

// ServerConfig describes the HTTP listener.
type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Addr string
}

// resolveAddr turns PORT into a listen address.
func resolveAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// ":8080" and "127.0.0.1:8080" are accepted as-is.
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", errors.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

// TransportConfig selects and tunes the agent transport.
type TransportConfig struct {
	Kind       string        `env:"TRANSPORT"         envDefault:"rasa"`
	WebhookURL string        `env:"RASA_WEBHOOK_URL"  envDefault:"http://localhost:5005/webhooks/rest/webhook"`
	Timeout    time.Duration `env:"TRANSPORT_TIMEOUT" envDefault:"0s"`
}

func (c *TransportConfig) validate() error {
	c.Kind = strings.ToLower(strings.TrimSpace(c.Kind))
	switch c.Kind {
	case TransportRasa:
		if strings.TrimSpace(c.WebhookURL) == "" {
			return errors.New("RASA_WEBHOOK_URL is required for the rasa transport")
		}
	case TransportArk:
	default:
		return errors.Errorf("invalid TRANSPORT value: %q", c.Kind)
	}
	if c.Timeout < 0 {
		return errors.Errorf("invalid TRANSPORT_TIMEOUT value: %s", c.Timeout)
	}
	return nil
}

// ChatConfig holds the widget session defaults. A blank FallbackText keeps the
// session default.
type ChatConfig struct {
	SenderID            string `env:"CHAT_SENDER_ID"             envDefault:"user"`
	SessionScopedSender bool   `env:"CHAT_SESSION_SCOPED_SENDER" envDefault:"false"`
	FallbackText        string `env:"CHAT_FALLBACK_TEXT"`
}

func (c *ChatConfig) validate() error {
	c.SenderID = strings.TrimSpace(c.SenderID)
	if c.SenderID == "" && !c.SessionScopedSender {
		return errors.New("CHAT_SENDER_ID must not be blank")
	}
	return nil
}

// LogConfig controls zerolog output.
type LogConfig struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"true"`
}

// AIConfig describes the Ark chat model used by the ark transport.
type AIConfig struct {
	APIKey       string   `env:"ARK_API_KEY"`
	AccessKey    string   `env:"ARK_ACCESS_KEY"`
	SecretKey    string   `env:"ARK_SECRET_KEY"`
	Model        string   `env:"Model"`
	BaseURL      string   `env:"ARK_BASE_URL"     envDefault:"https://ark.cn-beijing.volces.com/api/v3"`
	Region       string   `env:"ARK_REGION"       envDefault:"cn-beijing"`
	Temperature  *float64 `env:"ARK_TEMPERATURE"`
	TopP         *float64 `env:"ARK_TOP_P"`
	MaxTokens    *int     `env:"ARK_MAX_TOKENS"`
	SystemPrompt string   `env:"AI_SYSTEM_PROMPT"`
	HistoryLimit int      `env:"AI_HISTORY_LIMIT" envDefault:"6"`
}

// Enabled reports whether the mandatory credentials are present.
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel builds an Ark chat model from the configuration.
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, errors.New("ark credentials or model missing: set ARK_API_KEY + Model or an AK/SK pair")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}
