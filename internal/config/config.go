package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ListenPort string `yaml:"listen_port"`
	DBPath     string `yaml:"db_path"`

	ZendeskSubdomain string `yaml:"zendesk_subdomain"`
	ZendeskEmail     string `yaml:"zendesk_email"`
	ZendeskAPIToken  string `yaml:"zendesk_api_token"`
	ZendeskFieldID   string `yaml:"zendesk_field_id"`

	WebhookSecret string `yaml:"webhook_secret"`

	LLMProvider     string `yaml:"llm_provider"`
	LLMModel        string `yaml:"llm_model"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	OpenAIAPIKey    string `yaml:"openai_api_key"`

	FieldCacheTTLHours         int    `yaml:"field_cache_ttl_hours"`
	FieldRefreshSchedule       string `yaml:"field_refresh_schedule"`
	ExternalHTTPTimeoutSeconds int    `yaml:"external_http_timeout_seconds"`

	SlackBotToken      string `yaml:"slack_bot_token"`
	SlackTriageChannel string `yaml:"slack_triage_channel"`
}

// Load reads config.yaml (or $CONFIG_PATH) if present, then applies
// env-var overrides, defaults, and validation.
func Load() (Config, error) {
	var cfg Config

	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing %s: %w", configPath, err)
		}
	}

	// Env vars override YAML values.
	envOverride(&cfg.ListenPort, "PORT")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.ZendeskSubdomain, "ZD_SUBDOMAIN")
	envOverride(&cfg.ZendeskEmail, "ZD_EMAIL")
	envOverride(&cfg.ZendeskAPIToken, "ZD_API_TOKEN")
	envOverride(&cfg.ZendeskFieldID, "ZENDESK_FIELD_ID")
	envOverride(&cfg.WebhookSecret, "ZD_SIGNING_SECRET")
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.LLMModel, "LLM_MODEL")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverride(&cfg.OpenAIAPIKey, "OPENAI_API_KEY")
	if err := envOverrideInt(&cfg.FieldCacheTTLHours, "FIELD_CACHE_TTL_HOURS"); err != nil {
		return Config{}, err
	}
	envOverride(&cfg.FieldRefreshSchedule, "FIELD_REFRESH_SCHEDULE")
	if err := envOverrideInt(&cfg.ExternalHTTPTimeoutSeconds, "EXTERNAL_HTTP_TIMEOUT_SECONDS"); err != nil {
		return Config{}, err
	}
	envOverride(&cfg.SlackBotToken, "SLACK_BOT_TOKEN")
	envOverride(&cfg.SlackTriageChannel, "SLACK_TRIAGE_CHANNEL")

	// Defaults
	if cfg.ListenPort == "" {
		cfg.ListenPort = "3000"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./zendeskTickets.db"
	}
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "anthropic"
	}
	if cfg.FieldCacheTTLHours == 0 {
		cfg.FieldCacheTTLHours = 12
	}

	// Validate required fields.
	required := map[string]string{
		"zendesk_subdomain": cfg.ZendeskSubdomain,
		"zendesk_email":     cfg.ZendeskEmail,
		"zendesk_api_token": cfg.ZendeskAPIToken,
		"zendesk_field_id":  cfg.ZendeskFieldID,
		"webhook_secret":    cfg.WebhookSecret,
	}
	for name, val := range required {
		if val == "" {
			return Config{}, fmt.Errorf("required config '%s' is not set (via config.yaml or env var)", name)
		}
	}

	switch cfg.LLMProvider {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return Config{}, fmt.Errorf("anthropic_api_key is required when llm_provider=anthropic")
		}
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return Config{}, fmt.Errorf("openai_api_key is required when llm_provider=openai")
		}
	default:
		return Config{}, fmt.Errorf("llm_provider must be 'anthropic' or 'openai', got '%s'", cfg.LLMProvider)
	}

	if cfg.FieldCacheTTLHours < 1 {
		return Config{}, fmt.Errorf("invalid field_cache_ttl_hours '%d': must be >= 1", cfg.FieldCacheTTLHours)
	}
	if cfg.SlackTriageChannel != "" && cfg.SlackBotToken == "" {
		return Config{}, fmt.Errorf("slack_bot_token is required when slack_triage_channel is set")
	}

	return cfg, nil
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) error {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s '%s': %w", envKey, val, err)
		}
		*field = parsed
	}
	return nil
}
