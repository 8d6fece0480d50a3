// Package provider builds the configured text-generation client. A missing
// credential is not an error: the caller receives a nil client and the bot
// runs with its rule-based classifier and fixed templates.
package provider

import (
	"log/slog"
	"strings"
	"time"

	"StackSave/internal/llm"
	"StackSave/internal/llm/anthropic"
	"StackSave/internal/llm/custom"
	"StackSave/internal/llm/openai"
	"StackSave/pkg/logger"
)

// Supported provider names.
const (
	OpenAI    = "openai"
	Anthropic = "anthropic"
	Custom    = "custom"
)

// Config mirrors the llm section of the service configuration.
type Config struct {
	Provider       string
	OpenAIAPIKey   string
	OpenAIBaseURL  string
	OpenAIModel    string
	AnthropicKey   string
	AnthropicModel string
	CustomURL      string
	Timeout        time.Duration
}

// New returns the client selected by cfg.Provider, or nil when the provider
// is unknown or its credentials are absent.
func New(cfg Config) llm.Client {
	log := logger.Named("llm")
	name := strings.ToLower(strings.TrimSpace(cfg.Provider))

	var (
		client llm.Client
		err    error
	)
	switch name {
	case OpenAI:
		if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
			log.Warn("OPENAI_API_KEY 未配置，禁用大模型")
			return nil
		}
		var c *openai.Client
		c, err = openai.NewClient(openai.Config{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
			Timeout: cfg.Timeout,
		})
		if err == nil {
			client = c
		}
	case Anthropic:
		if strings.TrimSpace(cfg.AnthropicKey) == "" {
			log.Warn("ANTHROPIC_API_KEY 未配置，禁用大模型")
			return nil
		}
		var c *anthropic.Client
		c, err = anthropic.NewClient(anthropic.Config{
			APIKey:  cfg.AnthropicKey,
			Model:   cfg.AnthropicModel,
			Timeout: cfg.Timeout,
		})
		if err == nil {
			client = c
		}
	case Custom:
		if strings.TrimSpace(cfg.CustomURL) == "" {
			log.Warn("CUSTOM_LLM_URL 未配置，禁用大模型")
			return nil
		}
		var c *custom.Client
		c, err = custom.NewClient(cfg.CustomURL, cfg.Timeout)
		if err == nil {
			client = c
		}
	case "":
		return nil
	default:
		log.Warn("未知的大模型提供方", slog.String("provider", cfg.Provider))
		return nil
	}
	if err != nil {
		log.Warn("初始化大模型客户端失败", slog.String("provider", name), slog.Any("error", err))
		return nil
	}
	log.Info("大模型客户端已启用", slog.String("provider", name))
	return client
}
