package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"StackSave/internal/llm"
	"StackSave/pkg/logger"
)

// 分类策略名称，对应配置项 intent.strategy。
const (
	StrategyRules = "rules"
	StrategyModel = "model"
)

const (
	defaultModelTimeout = 10 * time.Second
	modelTemperature    = 0.3
	modelMaxTokens      = 200
)

const systemPrompt = `You are an intent classifier for a DeFi savings chatbot called StackSave.
Analyze user messages and classify them into one of these intents:
- DEPOSIT: User wants to deposit money
- WITHDRAW: User wants to withdraw money
- CHECK_BALANCE: User wants to check their balance
- STAKE: User wants to stake their funds
- UNSTAKE: User wants to unstake their funds
- HELP: User needs help or information
- UNKNOWN: Cannot determine intent

Extract any mentioned amounts and coin types (e.g., USDC, ETH, BTC).
Respond ONLY in valid JSON format:
{
  "intent": "INTENT_TYPE",
  "amount": number or null,
  "coin": "string or null",
  "confidence": 0.0-1.0,
  "explanation": "brief explanation"
}`

// 贪婪匹配：从第一个 { 到最后一个 }。
var jsonObjectPattern = regexp.MustCompile(`(?s)\{.*\}`)

// Classifier 将一条用户消息映射为分类结果，永远不会返回错误。
type Classifier interface {
	Classify(ctx context.Context, text string) Result
	Name() string
}

// ModelOption 自定义模型分类器。
type ModelOption func(*ModelClassifier)

// WithModelTimeout 设置单次模型调用的超时时间。
func WithModelTimeout(timeout time.Duration) ModelOption {
	return func(c *ModelClassifier) {
		if timeout > 0 {
			c.timeout = timeout
		}
	}
}

// WithModelLogger 替换默认日志记录器。
func WithModelLogger(l *slog.Logger) ModelOption {
	return func(c *ModelClassifier) {
		if l != nil {
			c.log = l
		}
	}
}

// ModelClassifier 优先调用大模型进行分类，任何失败都回退到关键词规则。
type ModelClassifier struct {
	client  llm.Client
	timeout time.Duration
	log     *slog.Logger
}

// NewModelClassifier 创建基于大模型的分类器。
func NewModelClassifier(client llm.Client, opts ...ModelOption) *ModelClassifier {
	c := &ModelClassifier{
		client:  client,
		timeout: defaultModelTimeout,
		log:     logger.Named("intent"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name 返回策略名称。
func (c *ModelClassifier) Name() string { return StrategyModel }

// Classify 调用大模型并校验其输出，失败时使用规则分类结果。
func (c *ModelClassifier) Classify(ctx context.Context, text string) Result {
	if c == nil || c.client == nil {
		return classifyByRules(text)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Generate(callCtx, llm.Request{
		System:      systemPrompt,
		Prompt:      text,
		Temperature: modelTemperature,
		MaxTokens:   modelMaxTokens,
	})
	if err != nil {
		c.log.Warn("模型分类失败，回退到规则分类", slog.Any("error", err))
		return classifyByRules(text)
	}

	result, err := parseModelOutput(resp.Content)
	if err != nil {
		c.log.Warn("模型输出无法解析，回退到规则分类", slog.Any("error", err))
		return classifyByRules(text)
	}
	return result
}

type modelOutput struct {
	Intent      string   `json:"intent"`
	Amount      *float64 `json:"amount"`
	Coin        *string  `json:"coin"`
	Confidence  *float64 `json:"confidence"`
	Explanation string   `json:"explanation"`
}

// parseModelOutput 从模型文本中提取 JSON 对象并转换为受约束的分类结果。
func parseModelOutput(content string) (Result, error) {
	raw := jsonObjectPattern.FindString(content)
	if raw == "" {
		return Result{}, errors.New("模型响应中未找到 JSON")
	}

	var out modelOutput
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return Result{}, fmt.Errorf("解析模型 JSON 失败: %w", err)
	}

	parsed, err := Parse(strings.TrimSpace(out.Intent))
	if err != nil {
		return Result{}, err
	}

	result := Result{Intent: parsed, Explanation: out.Explanation}
	if ValidAmount(out.Amount) {
		amount := *out.Amount
		result.Amount = &amount
	}
	if out.Coin != nil {
		coin := strings.ToUpper(strings.TrimSpace(*out.Coin))
		if IsSupportedCoin(coin) {
			result.Coin = coin
		}
	}
	if out.Confidence != nil {
		result.Confidence = clampConfidence(*out.Confidence)
	}
	return result, nil
}

// New 根据策略名称创建分类器；model 策略缺少客户端时退化为规则分类。
func New(strategy string, client llm.Client, opts ...ModelOption) Classifier {
	if strings.EqualFold(strings.TrimSpace(strategy), StrategyModel) && client != nil {
		return NewModelClassifier(client, opts...)
	}
	return NewRuleClassifier()
}
