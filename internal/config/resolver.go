package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceUnknown ValueSource = "unknown"
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

// Secret returns a copy safe to print.
func (v ResolvedValue) Secret() ResolvedValue {
	if v.Value == "" {
		return v
	}
	masked := "****"
	if len(v.Value) > 8 {
		masked = v.Value[:4] + "****"
	}
	return ResolvedValue{Value: masked, Source: v.Source, From: v.From}
}

type ResolveOptions struct {
	ConfigPath string
	CLIListen  string
	CLILLM     string
	CLIDBPath  string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	ListenAddr  ResolvedValue `json:"listen_addr"`
	Environment ResolvedValue `json:"environment"`
	LogLevel    ResolvedValue `json:"log_level"`
	DBPath      ResolvedValue `json:"db_path"`

	LLMProvider ResolvedValue `json:"llm_provider"`
	LLMModel    ResolvedValue `json:"llm_model"`
	LLMBaseURL  ResolvedValue `json:"llm_base_url"`

	EmailAPIKey   ResolvedValue `json:"email_api_key"`
	EmailEndpoint ResolvedValue `json:"email_endpoint"`
	EmailFrom     ResolvedValue `json:"email_from"`
	EmailFromName ResolvedValue `json:"email_from_name"`
	EmailTo       ResolvedValue `json:"email_to"`
	EmailReplyTo  ResolvedValue `json:"email_reply_to"`

	WebhookURL    ResolvedValue `json:"webhook_url"`
	WebhookSecret ResolvedValue `json:"webhook_secret"`

	DedupWindow       ResolvedValue `json:"dedup_window"`
	ChatRatePerMinute ResolvedValue `json:"chat_rate_per_minute"`

	LLMKeys map[string]ResolvedValue `json:"llm_keys,omitempty"`

	Brands     map[string]Brand `json:"brands,omitempty"`
	BrandsFrom string           `json:"brands_from,omitempty"`
}

type fileConfig struct {
	ListenAddr  string `yaml:"listen_addr"`
	Environment string `yaml:"environment"`
	LogLevel    string `yaml:"log_level"`
	DBPath      string `yaml:"db_path"`
	LLM         struct {
		Provider string `yaml:"provider"`
		Model    string `yaml:"model"`
		APIKey   string `yaml:"api_key"`
		BaseURL  string `yaml:"base_url"`
	} `yaml:"llm"`
	Email struct {
		APIKey   string `yaml:"api_key"`
		Endpoint string `yaml:"endpoint"`
		From     string `yaml:"from"`
		FromName string `yaml:"from_name"`
		To       string `yaml:"to"`
		ReplyTo  string `yaml:"reply_to"`
	} `yaml:"email"`
	Webhook struct {
		URL    string `yaml:"url"`
		Secret string `yaml:"secret"`
	} `yaml:"webhook"`
	Dedup struct {
		Window string `yaml:"window"`
	} `yaml:"dedup"`
	Chat struct {
		RatePerMinute string `yaml:"rate_per_minute"`
	} `yaml:"chat"`
	Brands map[string]Brand `yaml:"brands"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".intake", "config.yaml")
}

// ResolveConfig layers built-in defaults, the YAML file, environment and
// CLI flags, in that order, recording where each value came from.
func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{
		ConfigPath: path,
		LLMKeys:    map[string]ResolvedValue{},
		Brands:     map[string]Brand{},
	}
	applyDefaults(&out)

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}

	if cfg != nil {
		apply(&out.ListenAddr, cfg.ListenAddr, SourceConfig, path)
		apply(&out.Environment, cfg.Environment, SourceConfig, path)
		apply(&out.LogLevel, cfg.LogLevel, SourceConfig, path)
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.LLMProvider, cfg.LLM.Provider, SourceConfig, path)
		apply(&out.LLMModel, cfg.LLM.Model, SourceConfig, path)
		apply(&out.LLMBaseURL, cfg.LLM.BaseURL, SourceConfig, path)
		apply(&out.EmailAPIKey, cfg.Email.APIKey, SourceConfig, path)
		apply(&out.EmailEndpoint, cfg.Email.Endpoint, SourceConfig, path)
		apply(&out.EmailFrom, cfg.Email.From, SourceConfig, path)
		apply(&out.EmailFromName, cfg.Email.FromName, SourceConfig, path)
		apply(&out.EmailTo, cfg.Email.To, SourceConfig, path)
		apply(&out.EmailReplyTo, cfg.Email.ReplyTo, SourceConfig, path)
		apply(&out.WebhookURL, cfg.Webhook.URL, SourceConfig, path)
		apply(&out.WebhookSecret, cfg.Webhook.Secret, SourceConfig, path)
		apply(&out.DedupWindow, cfg.Dedup.Window, SourceConfig, path)
		apply(&out.ChatRatePerMinute, cfg.Chat.RatePerMinute, SourceConfig, path)

		if key := strings.TrimSpace(cfg.LLM.APIKey); key != "" {
			p := providerOf(firstNonEmpty(cfg.LLM.Provider, "default"))
			out.LLMKeys[p] = ResolvedValue{Value: key, Source: SourceConfig, From: path}
		}
		if len(cfg.Brands) > 0 {
			out.Brands = keyBrands(cfg.Brands)
			out.BrandsFrom = path
		}
	}

	if v := strings.TrimSpace(os.Getenv("PORT")); v != "" {
		out.ListenAddr = ResolvedValue{Value: ":" + v, Source: SourceEnv, From: "PORT"}
	}
	applyEnv(&out.ListenAddr, "INTAKE_LISTEN_ADDR")
	applyEnv(&out.Environment, "INTAKE_ENV")
	applyEnv(&out.LogLevel, "LOG_LEVEL")
	applyEnv(&out.DBPath, "INTAKE_DB")

	applyEnv(&out.LLMProvider, "INTAKE_LLM")
	applyEnv(&out.LLMModel, "INTAKE_LLM_MODEL")
	applyEnv(&out.LLMBaseURL, "OPENAI_BASE")

	applyEnv(&out.EmailAPIKey, "BREVO_API_KEY")
	applyEnv(&out.EmailEndpoint, "BREVO_ENDPOINT")
	applyEnv(&out.EmailFrom, "EMAIL_FROM")
	applyEnv(&out.EmailFromName, "EMAIL_FROM_NAME")
	applyEnv(&out.EmailTo, "HANDOFF_TO")
	applyEnv(&out.EmailReplyTo, "REPLY_TO")

	applyEnv(&out.WebhookURL, "SHEETS_WEBHOOK_URL")
	applyEnv(&out.WebhookSecret, "SHEETS_WEBHOOK_SECRET")

	applyEnv(&out.DedupWindow, "INTAKE_DEDUP_WINDOW")
	applyEnv(&out.ChatRatePerMinute, "INTAKE_CHAT_RATE")

	for env, provider := range map[string]string{
		"OPENAI_API_KEY":     "openai",
		"OPENROUTER_API_KEY": "openrouter",
	} {
		if v := strings.TrimSpace(os.Getenv(env)); v != "" {
			out.LLMKeys[provider] = ResolvedValue{Value: v, Source: SourceEnv, From: env}
		}
	}

	for _, env := range []string{"BRANDS_JSON", "BRAND_JSON"} {
		raw := strings.TrimSpace(os.Getenv(env))
		if raw == "" {
			continue
		}
		brands, err := ParseBrandsJSON(raw)
		if err != nil {
			return out, fmt.Errorf("%s: %w", env, err)
		}
		out.Brands = brands
		out.BrandsFrom = env
		break
	}

	apply(&out.ListenAddr, opts.CLIListen, SourceCLI, "--listen")
	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	if opts.CLILLM != "" {
		provider, model, _ := strings.Cut(opts.CLILLM, "/")
		apply(&out.LLMProvider, provider, SourceCLI, "--llm")
		apply(&out.LLMModel, model, SourceCLI, "--llm")
	}

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}

	return out, nil
}

func applyDefaults(out *ResolvedConfig) {
	def := func(dst *ResolvedValue, v string) {
		*dst = ResolvedValue{Value: v, Source: SourceDefault, From: "built-in default"}
	}
	def(&out.ListenAddr, ":8787")
	def(&out.Environment, "development")
	def(&out.LogLevel, "info")
	def(&out.DBPath, "~/.intake/intake.db")
	def(&out.LLMProvider, "openai")
	def(&out.LLMModel, "gpt-4o-mini")
	def(&out.EmailEndpoint, "https://api.brevo.com/v3")
	def(&out.DedupWindow, "5m")
	def(&out.ChatRatePerMinute, "30")
}

// APIKeyForProvider returns the key for provider, falling back to a key set
// in the config file without a provider.
func (r ResolvedConfig) APIKeyForProvider(providerOrModel string) ResolvedValue {
	provider := providerOf(providerOrModel)
	if provider == "" {
		return ResolvedValue{}
	}
	if v, ok := r.LLMKeys[provider]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	if v, ok := r.LLMKeys["default"]; ok && strings.TrimSpace(v.Value) != "" {
		return v
	}
	return ResolvedValue{}
}

func providerOf(providerOrModel string) string {
	v := strings.ToLower(strings.TrimSpace(providerOrModel))
	if v == "" {
		return ""
	}
	if idx := strings.Index(v, "/"); idx > 0 {
		return v[:idx]
	}
	return v
}

func apply(dst *ResolvedValue, raw string, source ValueSource, from string) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return
	}
	*dst = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(dst *ResolvedValue, envKey string) {
	if v := strings.TrimSpace(os.Getenv(envKey)); v != "" {
		*dst = ResolvedValue{Value: v, Source: SourceEnv, From: envKey}
	}
}

func loadConfig(path string) (*fileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func expandUserPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
