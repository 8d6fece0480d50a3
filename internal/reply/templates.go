package reply

import (
	"context"
	"fmt"

	"StackSave/internal/intent"
)

const (
	helpText = "👋 *Welcome to StackSave!*\n\n" +
		"I'm your DeFi assistant ready to help you manage your crypto savings. Here's what I can do:\n\n" +
		"💰 *Deposit* - Add funds to start saving\n" +
		"📤 *Withdraw* - Take out funds anytime\n" +
		"📊 *Check Balance* - View your balance and investments\n" +
		"📈 *Stake* - Invest funds to earn rewards\n" +
		"📉 *Unstake* - Withdraw your staked funds\n\n" +
		"Examples:\n" +
		"• \"Deposit 100 USDC\"\n" +
		"• \"Check balance\"\n" +
		"• \"Withdraw 50\"\n\n" +
		"How can I help you? 😊"

	unknownText = "🤔 Hmm, I'm not sure what you mean...\n\n" +
		"Try asking about:\n" +
		"• Check balance\n" +
		"• Deposit funds\n" +
		"• Withdraw funds\n" +
		"• Staking\n\n" +
		"Or type \"help\" for more info!"

	depositFailedText  = "❌ Sorry, deposit failed. Please try again or contact support if the issue persists."
	withdrawFailedText = "❌ Withdrawal failed. Please ensure you have sufficient balance and try again."
	stakeFailedText    = "❌ Staking failed. Please try again later!"
	unstakeFailedText  = "❌ Unstake failed. Please try again in a few moments."
)

// TemplateRenderer 使用固定模板生成回复，输出只由意图和上下文决定。
type TemplateRenderer struct{}

// NewTemplateRenderer 创建模板渲染器。
func NewTemplateRenderer() *TemplateRenderer { return &TemplateRenderer{} }

// Name 返回渲染策略名称。
func (TemplateRenderer) Name() string { return StrategyTemplate }

// Render 实现 Renderer 接口。
func (TemplateRenderer) Render(_ context.Context, in intent.Intent, c Context) string {
	return renderTemplate(in, c)
}

func renderTemplate(in intent.Intent, c Context) string {
	switch in {
	case intent.Deposit:
		if !c.Success {
			return depositFailedText
		}
		return fmt.Sprintf("✅ Deposit successful!\n\nAmount: %s\nTx Hash: %s\n\nYour funds are now ready to be invested! 🚀", c.Amount, c.TxHash)
	case intent.Withdraw:
		if !c.Success {
			return withdrawFailedText
		}
		return fmt.Sprintf("✅ Withdrawal successful!\n\nAmount: %s\nTx Hash: %s\n\nFunds have been sent to your wallet! 💰", c.Amount, c.TxHash)
	case intent.CheckBalance:
		return fmt.Sprintf("💰 *Balance Information*\n\n📊 Available Balance: %s\n🔒 Staked Amount: %s\n\nWant to deposit more or withdraw? Just let me know! 😊", c.Balance, orZero(c.Staked))
	case intent.Stake:
		if !c.Success {
			return stakeFailedText
		}
		return fmt.Sprintf("🎉 Successfully staked!\n\nAmount: %s\nTx Hash: %s\n\nYour funds are now earning rewards! 📈\nCheck progress anytime by typing \"check balance\"", c.Amount, c.TxHash)
	case intent.Unstake:
		if !c.Success {
			return unstakeFailedText
		}
		return fmt.Sprintf("✅ Unstake successful!\n\nAmount: %s\nTx Hash: %s\n\nFunds are back in your main balance and ready to withdraw! 💵", c.Amount, c.TxHash)
	case intent.Help:
		return helpText
	case intent.Unknown:
		return unknownText
	default:
		return unknownText
	}
}

func orZero(v string) string {
	if v == "" {
		return "0"
	}
	return v
}
