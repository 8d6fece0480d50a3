package dispatch

import (
	"context"
	"log/slog"

	xerrors "StackSave/internal/errors"
	"StackSave/internal/intent"
	"StackSave/internal/reply"
	"StackSave/internal/web3"
	"StackSave/pkg/logger"
)

// Gateway 是调度器依赖的链上操作接口。
type Gateway interface {
	Configured() bool
	Deposit(ctx context.Context, phone string, amount float64) web3.Outcome
	Withdraw(ctx context.Context, phone string, amount float64) web3.Outcome
	Stake(ctx context.Context, phone string, amount float64) web3.Outcome
	Unstake(ctx context.Context, phone string, amount float64) web3.Outcome
	Balance(ctx context.Context, phone string) (web3.BalanceSnapshot, error)
}

const (
	balanceDisabledText = "Balance checking is currently disabled. Please configure your blockchain settings to use DeFi features."
	balanceFailedText   = "Unable to retrieve your balance at the moment. Please try again later."
)

// action 描述一个会改变链上状态的意图所需的固定文案和网关调用。
type action struct {
	verb        string
	example     string
	maintenance string
	call        func(g Gateway, ctx context.Context, phone string, amount float64) web3.Outcome
}

var actions = map[intent.Intent]action{
	intent.Deposit: {
		verb:        "deposit",
		example:     "Deposit 100 USDC",
		maintenance: "Deposit feature is currently under maintenance. Please try again later.",
		call:        Gateway.Deposit,
	},
	intent.Withdraw: {
		verb:        "withdraw",
		example:     "Withdraw 50 USDC",
		maintenance: "Withdrawal feature is currently under maintenance. Please try again later.",
		call:        Gateway.Withdraw,
	},
	intent.Stake: {
		verb:        "stake",
		example:     "Stake 100 USDC",
		maintenance: "Staking feature is currently under maintenance. Please try again later.",
		call:        Gateway.Stake,
	},
	intent.Unstake: {
		verb:        "unstake",
		example:     "Unstake 50 USDC",
		maintenance: "Unstaking feature is currently under maintenance. Please try again later.",
		call:        Gateway.Unstake,
	},
}

func (a action) instruction() string {
	return "Please specify a valid amount to " + a.verb + ". For example: \"" + a.example + "\""
}

// Reply 是一次调度的结果；Outcome 仅在执行了链上操作时存在。
type Reply struct {
	Text    string
	Outcome *web3.Outcome
}

// Dispatcher 根据分类结果决定执行哪个操作，并生成回复。
type Dispatcher struct {
	gateway  Gateway
	renderer reply.Renderer
	log      *slog.Logger
}

// New 创建调度器。gateway 可以为 nil，此时所有链上功能视为未配置。
func New(gateway Gateway, renderer reply.Renderer) *Dispatcher {
	return &Dispatcher{
		gateway:  gateway,
		renderer: renderer,
		log:      logger.Named("dispatch"),
	}
}

// Dispatch 执行与意图对应的动作。只有缺少协作者等意外情况会返回错误。
func (d *Dispatcher) Dispatch(ctx context.Context, phone string, result intent.Result) (Reply, error) {
	if d == nil || d.renderer == nil {
		return Reply{}, xerrors.New(xerrors.CodeInitializationFailure, "调度器未初始化")
	}

	switch result.Intent {
	case intent.Deposit, intent.Withdraw, intent.Stake, intent.Unstake:
		return d.mutate(ctx, phone, result), nil
	case intent.CheckBalance:
		return d.balance(ctx, phone), nil
	case intent.Help, intent.Unknown:
		return Reply{Text: d.renderer.Render(ctx, result.Intent, reply.Context{})}, nil
	default:
		return Reply{Text: d.renderer.Render(ctx, intent.Unknown, reply.Context{})}, nil
	}
}

func (d *Dispatcher) configured() bool {
	return d.gateway != nil && d.gateway.Configured()
}

func (d *Dispatcher) mutate(ctx context.Context, phone string, result intent.Result) Reply {
	act := actions[result.Intent]
	if !result.HasAmount() {
		return Reply{Text: act.instruction()}
	}
	if !d.configured() {
		return Reply{Text: act.maintenance}
	}

	amount := *result.Amount
	outcome := act.call(d.gateway, ctx, phone, amount)
	if !outcome.Success {
		d.log.Warn("链上操作失败",
			slog.String("intent", result.Intent.String()),
			slog.String("code", string(outcome.Code)),
			slog.String("error", outcome.Error))
	}

	text := d.renderer.Render(ctx, result.Intent, reply.OutcomeContext(web3.FormatAmount(amount), outcome))
	return Reply{Text: text, Outcome: &outcome}
}

func (d *Dispatcher) balance(ctx context.Context, phone string) Reply {
	if !d.configured() {
		return Reply{Text: balanceDisabledText}
	}
	snap, err := d.gateway.Balance(ctx, phone)
	if err != nil {
		d.log.Warn("查询余额失败", slog.Any("error", err))
		return Reply{Text: balanceFailedText}
	}
	return Reply{Text: d.renderer.Render(ctx, intent.CheckBalance, reply.BalanceContext(snap))}
}
