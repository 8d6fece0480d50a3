package reply

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"StackSave/internal/intent"
	"StackSave/internal/llm"
	"StackSave/internal/web3"
	"StackSave/pkg/logger"
)

// 渲染策略名称，对应配置项 bot.reply_strategy。
const (
	StrategyTemplate = "template"
	StrategyModel    = "model"
)

const (
	defaultPersonaName  = "StackSave"
	defaultModelTimeout = 10 * time.Second
	modelTemperature    = 0.7
	modelMaxTokens      = 150
)

// Context 是渲染回复所需的数据，只有与意图相关的字段会被读取。
type Context struct {
	Amount        string
	Success       bool
	TxHash        string
	Error         string
	Balance       string
	Staked        string
	WalletAddress string
}

// OutcomeContext 根据链上操作结果构建上下文，失败时不携带交易哈希。
func OutcomeContext(amount string, out web3.Outcome) Context {
	c := Context{Amount: amount, Success: out.Success, Error: out.Error}
	if out.Amount != "" {
		c.Amount = out.Amount
	}
	if out.Success {
		c.TxHash = out.TxHash
	}
	return c
}

// BalanceContext 根据余额快照构建上下文。
func BalanceContext(snap web3.BalanceSnapshot) Context {
	return Context{
		Balance:       snap.Balance,
		Staked:        snap.StakedAmount,
		WalletAddress: snap.WalletAddress,
	}
}

// Renderer 将意图和上下文转换为回复文本，永远不会失败。
type Renderer interface {
	Render(ctx context.Context, in intent.Intent, c Context) string
	Name() string
}

// ModelOption 自定义模型渲染器。
type ModelOption func(*ModelRenderer)

// WithPersonaName 设置人设中的机器人名称。
func WithPersonaName(name string) ModelOption {
	return func(r *ModelRenderer) {
		if name = strings.TrimSpace(name); name != "" {
			r.persona = name
		}
	}
}

// WithRenderTimeout 设置单次生成调用的超时时间。
func WithRenderTimeout(timeout time.Duration) ModelOption {
	return func(r *ModelRenderer) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// ModelRenderer 优先使用大模型生成自然语言回复，失败时退回模板。
type ModelRenderer struct {
	client  llm.Client
	persona string
	timeout time.Duration
	log     *slog.Logger
}

// NewModelRenderer 创建模型渲染器。
func NewModelRenderer(client llm.Client, opts ...ModelOption) *ModelRenderer {
	r := &ModelRenderer{
		client:  client,
		persona: defaultPersonaName,
		timeout: defaultModelTimeout,
		log:     logger.Named("reply"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name 返回渲染策略名称。
func (r *ModelRenderer) Name() string { return StrategyModel }

// Render 调用大模型生成回复；成功的链上操作保证包含金额与交易哈希。
func (r *ModelRenderer) Render(ctx context.Context, in intent.Intent, c Context) string {
	if r == nil || r.client == nil {
		return renderTemplate(in, c)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.client.Generate(callCtx, llm.Request{
		System:      r.systemPrompt(),
		Prompt:      prompt(in, c),
		Temperature: modelTemperature,
		MaxTokens:   modelMaxTokens,
	})
	if err != nil {
		r.log.Warn("生成回复失败，使用模板", slog.String("intent", in.String()), slog.Any("error", err))
		return renderTemplate(in, c)
	}

	text := strings.TrimSpace(resp.Content)
	if text == "" {
		return renderTemplate(in, c)
	}
	if in.Mutating() && c.Success {
		text = ensureReceipt(text, c)
	}
	return text
}

func (r *ModelRenderer) systemPrompt() string {
	return fmt.Sprintf("You are %s, a friendly DeFi savings assistant on WhatsApp. Keep responses short, natural, and conversational. Use emojis sparingly.", r.persona)
}

// ensureReceipt 在模型遗漏时补上金额与交易哈希行。
func ensureReceipt(text string, c Context) string {
	var extra []string
	if c.Amount != "" && !containsNumber(text, c.Amount) {
		extra = append(extra, "Amount: "+c.Amount)
	}
	if c.TxHash != "" && !strings.Contains(text, c.TxHash) {
		extra = append(extra, "Tx Hash: "+c.TxHash)
	}
	if len(extra) == 0 {
		return text
	}
	return text + "\n\n" + strings.Join(extra, "\n")
}

// containsNumber 判断 text 中是否出现完整的数字 num，"10" 不算包含 "1"。
func containsNumber(text, num string) bool {
	for from := 0; ; {
		i := strings.Index(text[from:], num)
		if i < 0 {
			return false
		}
		start := from + i
		end := start + len(num)
		before := isDigit(text, start-1) || (byteAt(text, start-1) == '.' && isDigit(text, start-2))
		after := isDigit(text, end) || (byteAt(text, end) == '.' && isDigit(text, end+1))
		if !before && !after {
			return true
		}
		from = start + 1
	}
}

func byteAt(text string, i int) byte {
	if i < 0 || i >= len(text) {
		return 0
	}
	return text[i]
}

func isDigit(text string, i int) bool {
	b := byteAt(text, i)
	return b >= '0' && b <= '9'
}

func prompt(in intent.Intent, c Context) string {
	switch in {
	case intent.Deposit:
		return fmt.Sprintf("Generate a friendly, casual WhatsApp message (in Indonesian or English, match user's language) for a deposit transaction. Amount: %s, Success: %t. Keep it short and natural.", c.Amount, c.Success)
	case intent.Withdraw:
		return fmt.Sprintf("Generate a friendly WhatsApp message for a withdrawal. Amount: %s, Success: %t. Keep it conversational.", c.Amount, c.Success)
	case intent.CheckBalance:
		return fmt.Sprintf("Generate a friendly WhatsApp message showing balance. Balance: %s, Staked: %s. Make it casual and clear.", c.Balance, orZero(c.Staked))
	case intent.Stake:
		return fmt.Sprintf("Generate a friendly WhatsApp message for staking. Amount: %s, Success: %t. Sound excited if successful!", c.Amount, c.Success)
	case intent.Unstake:
		return fmt.Sprintf("Generate a friendly WhatsApp message for unstaking. Amount: %s, Success: %t. Keep it simple.", c.Amount, c.Success)
	case intent.Help:
		return "Generate a helpful WhatsApp message explaining StackSave, a DeFi savings bot. Features: deposit, withdraw, stake, check balance. Make it welcoming and easy to understand."
	case intent.Unknown:
		return "Generate a polite WhatsApp message asking the user to clarify. Suggest they can ask about balance, deposit, withdraw, or stake."
	default:
		return "Generate a polite WhatsApp message asking the user to clarify. Suggest they can ask about balance, deposit, withdraw, or stake."
	}
}

// New 根据策略名称创建渲染器；model 策略缺少客户端时退化为模板。
func New(strategy string, client llm.Client, opts ...ModelOption) Renderer {
	if strings.EqualFold(strings.TrimSpace(strategy), StrategyModel) && client != nil {
		return NewModelRenderer(client, opts...)
	}
	return NewTemplateRenderer()
}
