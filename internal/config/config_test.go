package config

import (
	"os"
	"path/filepath"
	"testing"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))
	t.Setenv("ZD_SUBDOMAIN", "acme")
	t.Setenv("ZD_EMAIL", "agent@acme.test")
	t.Setenv("ZD_API_TOKEN", "zd-token")
	t.Setenv("ZENDESK_FIELD_ID", "360012345")
	t.Setenv("ZD_SIGNING_SECRET", "hush")
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != "3000" {
		t.Fatalf("expected default port 3000, got %s", cfg.ListenPort)
	}
	if cfg.DBPath != "./zendeskTickets.db" {
		t.Fatalf("unexpected default db path: %s", cfg.DBPath)
	}
	if cfg.LLMProvider != "anthropic" {
		t.Fatalf("expected default provider anthropic, got %s", cfg.LLMProvider)
	}
	if cfg.FieldCacheTTLHours != 12 {
		t.Fatalf("expected default TTL 12h, got %d", cfg.FieldCacheTTLHours)
	}
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
zendesk_subdomain: acme
zendesk_email: agent@acme.test
zendesk_api_token: zd-token
zendesk_field_id: "360012345"
webhook_secret: from-yaml
llm_provider: openai
openai_api_key: sk-openai
listen_port: "8080"
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ZD_SIGNING_SECRET", "from-env")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.ListenPort != "8080" {
		t.Fatalf("expected yaml port 8080, got %s", cfg.ListenPort)
	}
	if cfg.WebhookSecret != "from-env" {
		t.Fatalf("expected env to override yaml secret, got %s", cfg.WebhookSecret)
	}
	if cfg.LLMProvider != "openai" {
		t.Fatalf("expected provider openai, got %s", cfg.LLMProvider)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ZD_SUBDOMAIN", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing zendesk_subdomain")
	}
}

func TestLoadProviderKeyRequired(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LLM_PROVIDER", "openai")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when openai provider has no key")
	}
}

func TestLoadRejectsUnknownProvider(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LLM_PROVIDER", "bard")

	if _, err := Load(); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestLoadSlackChannelRequiresToken(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SLACK_TRIAGE_CHANNEL", "C123")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when triage channel set without bot token")
	}
}
