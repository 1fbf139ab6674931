package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Settings is the typed, validated form of a ResolvedConfig.
type Settings struct {
	ListenAddr  string `validate:"required"`
	Environment string `validate:"oneof=development production test"`
	LogLevel    string `validate:"oneof=debug info warn error"`
	DBPath      string `validate:"required"`

	LLM     LLMSettings
	Email   EmailSettings
	Webhook WebhookSettings

	DedupWindow       time.Duration `validate:"gt=0"`
	ChatRatePerMinute int           `validate:"gte=1"`

	Brands map[string]Brand `validate:"dive"`
}

type LLMSettings struct {
	Provider string `validate:"oneof=openai openrouter"`
	Model    string `validate:"required"`
	APIKey   string
	BaseURL  string `validate:"omitempty,url"`
}

type EmailSettings struct {
	APIKey   string
	Endpoint string `validate:"omitempty,url"`
	From     string `validate:"omitempty,email"`
	FromName string
	To       string
	ReplyTo  string `validate:"omitempty,email"`
}

// Enabled reports whether handoff emails can be sent at all.
func (e EmailSettings) Enabled() bool {
	return e.APIKey != "" && e.Endpoint != ""
}

type WebhookSettings struct {
	URL    string `validate:"omitempty,url"`
	Secret string
}

var validate = validator.New()

// Settings converts and validates the resolved values.
func (r ResolvedConfig) Settings() (Settings, error) {
	window, err := time.ParseDuration(r.DedupWindow.Value)
	if err != nil {
		return Settings{}, fmt.Errorf("dedup window %q (%s): %w", r.DedupWindow.Value, r.DedupWindow.Source, err)
	}
	rate, err := strconv.Atoi(r.ChatRatePerMinute.Value)
	if err != nil {
		return Settings{}, fmt.Errorf("chat rate %q (%s): %w", r.ChatRatePerMinute.Value, r.ChatRatePerMinute.Source, err)
	}

	provider := providerOf(r.LLMProvider.Value)
	s := Settings{
		ListenAddr:  r.ListenAddr.Value,
		Environment: strings.ToLower(r.Environment.Value),
		LogLevel:    strings.ToLower(r.LogLevel.Value),
		DBPath:      r.DBPath.Value,
		LLM: LLMSettings{
			Provider: provider,
			Model:    r.LLMModel.Value,
			APIKey:   r.APIKeyForProvider(provider).Value,
			BaseURL:  r.LLMBaseURL.Value,
		},
		Email: EmailSettings{
			APIKey:   r.EmailAPIKey.Value,
			Endpoint: strings.TrimRight(r.EmailEndpoint.Value, "/"),
			From:     r.EmailFrom.Value,
			FromName: r.EmailFromName.Value,
			To:       r.EmailTo.Value,
			ReplyTo:  r.EmailReplyTo.Value,
		},
		Webhook: WebhookSettings{
			URL:    r.WebhookURL.Value,
			Secret: r.WebhookSecret.Value,
		},
		DedupWindow:       window,
		ChatRatePerMinute: rate,
		Brands:            r.Brands,
	}

	if err := validate.Struct(s); err != nil {
		return Settings{}, formatValidationError(err)
	}
	return s, nil
}

func formatValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", e.Namespace()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s", e.Namespace(), e.Param()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid (%s)", e.Namespace(), e.Tag()))
		}
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// Brand looks up a whitelisted brand.
func (s Settings) Brand(key string) (Brand, bool) {
	key = strings.TrimSpace(key)
	if key == "" {
		return Brand{}, false
	}
	b, ok := s.Brands[key]
	return b, ok
}
