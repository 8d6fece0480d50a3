package web3

import (
	xerrors "StackSave/internal/errors"
)

// Operation names a state-changing call on the staking contract.
type Operation string

const (
	OpDeposit  Operation = "deposit"
	OpWithdraw Operation = "withdraw"
	OpStake    Operation = "stake"
	OpUnstake  Operation = "unstake"
)

// Outcome is the result of one on-chain mutation. Failures are carried as
// data so callers can render them without inspecting errors.
type Outcome struct {
	Success bool
	Amount  string
	TxHash  string
	Error   string
	Code    xerrors.Code
}

// Succeeded builds a successful outcome.
func Succeeded(amount, txHash string) Outcome {
	return Outcome{Success: true, Amount: amount, TxHash: txHash}
}

// Failed builds a failed outcome from err, keeping its error code when present.
func Failed(amount string, err error) Outcome {
	out := Outcome{Amount: amount, Code: xerrors.CodeChainFailure}
	if err != nil {
		out.Error = err.Error()
		if e, ok := xerrors.From(err); ok {
			out.Code = e.Code()
		}
	}
	return out
}

// BalanceSnapshot holds the balances of one account, formatted in ether units.
type BalanceSnapshot struct {
	PhoneNumber   string
	WalletAddress string
	Balance       string
	StakedAmount  string
}
