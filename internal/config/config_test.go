package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func envMap(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestApplyDefaults(t *testing.T) {
	var cfg Config
	cfg.applyEnv(envMap(nil))
	cfg.applyDefaults("/etc/stacksave")

	if cfg.Server.Address != ":8080" || cfg.Bot.Name != "StackSave Bot" {
		t.Fatalf("unexpected defaults: %+v %+v", cfg.Server, cfg.Bot)
	}
	if cfg.Bot.SessionPath != "./whatsapp-session" || cfg.Journal.DataDir != "./whatsapp-session" {
		t.Fatalf("unexpected session path defaults: %q %q", cfg.Bot.SessionPath, cfg.Journal.DataDir)
	}
	if cfg.Web3.RPCURL != "https://sepolia.base.org" || cfg.Web3.ChainID != 84532 || cfg.Web3.ConfirmTimeout != 2*time.Minute {
		t.Fatalf("unexpected web3 defaults: %+v", cfg.Web3)
	}
	if cfg.Intent.Strategy != "rules" || cfg.Bot.ReplyStrategy != "model" || cfg.LLM.Timeout != 20*time.Second {
		t.Fatalf("unexpected strategy defaults: %+v %+v %+v", cfg.Intent, cfg.Bot, cfg.LLM)
	}
	if cfg.Inbox.Driver != "none" || cfg.Dedup.Driver != "memory" || cfg.Journal.Driver != "file" {
		t.Fatalf("unexpected driver defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := Config{LLM: LLMConfig{Provider: "custom"}}
	cfg.applyEnv(envMap(map[string]string{
		"LLM_PROVIDER":             "OpenAI",
		"OPENAI_API_KEY":           "sk-test",
		"PRIVATE_KEY":              "your_private_key_here",
		"STAKING_CONTRACT_ADDRESS": "0x00000000000000000000000000000000000000aa",
		"ADMIN_PHONE_NUMBERS":      " 62811, ,62822 ",
		"BOT_NAME":                 "Tabung",
		"CHAIN_ID":                 "84532",
	}))
	cfg.applyDefaults(".")

	if cfg.LLM.Provider != "openai" || cfg.LLM.OpenAIAPIKey != "sk-test" {
		t.Fatalf("unexpected llm config: %+v", cfg.LLM)
	}
	if cfg.Web3.PrivateKey != "" {
		t.Fatalf("placeholder key must count as missing, got %q", cfg.Web3.PrivateKey)
	}
	if cfg.Web3.ContractAddress == "" || cfg.Web3.ChainID != 84532 {
		t.Fatalf("unexpected web3 config: %+v", cfg.Web3)
	}
	if len(cfg.Bot.AdminPhoneNumbers) != 2 || cfg.Bot.AdminPhoneNumbers[1] != "62822" {
		t.Fatalf("unexpected admins: %v", cfg.Bot.AdminPhoneNumbers)
	}
	if cfg.Bot.Name != "Tabung" {
		t.Fatalf("unexpected bot name %q", cfg.Bot.Name)
	}
}

func TestEnvOnlySetupKeepsModelRepliesAndStaticChainID(t *testing.T) {
	var cfg Config
	cfg.applyEnv(envMap(map[string]string{
		"LLM_PROVIDER":             "openai",
		"OPENAI_API_KEY":           "sk-test",
		"PRIVATE_KEY":              "0x59c6995e998f97a5a0044966f0945389dc9e86dae88c7a8412f4603b6b78690d",
		"STAKING_CONTRACT_ADDRESS": "0x00000000000000000000000000000000000000aa",
		"BASE_SEPOLIA_RPC_URL":     "http://127.0.0.1:1",
	}))
	cfg.applyDefaults(".")

	if cfg.Bot.ReplyStrategy != "model" {
		t.Fatalf("configured llm must drive replies, got strategy %q", cfg.Bot.ReplyStrategy)
	}
	if cfg.Web3.ChainID != 84532 {
		t.Fatalf("chain id must not depend on the node, got %d", cfg.Web3.ChainID)
	}

	cfg = Config{Bot: BotConfig{ReplyStrategy: "Template"}, Web3: Web3Config{ChainID: 8453}}
	cfg.applyDefaults(".")
	if cfg.Bot.ReplyStrategy != "template" || cfg.Web3.ChainID != 8453 {
		t.Fatalf("explicit values must win: %q %d", cfg.Bot.ReplyStrategy, cfg.Web3.ChainID)
	}
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stacksave.yaml")
	content := `
server:
  address: ":9090"
intent:
  strategy: MODEL
llm:
  timeout: 5s
inbox:
  driver: redis
  workers: 8
  redis:
    address: "localhost:6379"
dedup:
  driver: redis
journal:
  data_dir: data
log:
  audit_path: logs/audit.log
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("BOT_NAME", "From Env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":9090" || cfg.Intent.Strategy != "model" || cfg.LLM.Timeout != 5*time.Second {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.Inbox.Workers != 8 || cfg.Dedup.Redis.Address != "localhost:6379" {
		t.Fatalf("expected dedup to reuse inbox redis, got %+v", cfg.Dedup)
	}
	if cfg.Journal.DataDir != filepath.Join(dir, "data") || cfg.Log.AuditPath != filepath.Join(dir, "logs", "audit.log") {
		t.Fatalf("relative paths must resolve against config dir: %q %q", cfg.Journal.DataDir, cfg.Log.AuditPath)
	}
	if cfg.Bot.Name != "From Env" {
		t.Fatalf("env must override file, got %q", cfg.Bot.Name)
	}
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	cfg := Config{Intent: IntentConfig{Strategy: "magic"}, Journal: JournalConfig{Driver: "mysql"}}
	cfg.applyDefaults(".")
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
