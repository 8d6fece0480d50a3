package intent

import (
	"fmt"
	"math"
)

// Intent 表示用户消息被识别出的目标，是一个封闭的枚举。
type Intent string

const (
	Deposit      Intent = "DEPOSIT"
	Withdraw     Intent = "WITHDRAW"
	CheckBalance Intent = "CHECK_BALANCE"
	Stake        Intent = "STAKE"
	Unstake      Intent = "UNSTAKE"
	Help         Intent = "HELP"
	Unknown      Intent = "UNKNOWN"
)

// All 按固定顺序列出全部意图。
var All = []Intent{Deposit, Withdraw, CheckBalance, Stake, Unstake, Help, Unknown}

// Parse 将大写意图名称映射为枚举值，大小写敏感。
func Parse(name string) (Intent, error) {
	switch Intent(name) {
	case Deposit, Withdraw, CheckBalance, Stake, Unstake, Help, Unknown:
		return Intent(name), nil
	default:
		return Unknown, fmt.Errorf("未知的意图: %q", name)
	}
}

// Mutating 判断该意图是否会触发链上状态变更。
func (i Intent) Mutating() bool {
	switch i {
	case Deposit, Withdraw, Stake, Unstake:
		return true
	case CheckBalance, Help, Unknown:
		return false
	default:
		return false
	}
}

// String 实现 fmt.Stringer。
func (i Intent) String() string { return string(i) }

// Result 是单条消息的分类结果，只在处理该消息期间存在。
type Result struct {
	Intent      Intent
	Amount      *float64
	Coin        string
	Confidence  float64
	Explanation string
}

// HasAmount 报告金额是否存在且为有限正数。
func (r Result) HasAmount() bool {
	return ValidAmount(r.Amount)
}

// ValidAmount 判断金额是否存在且为有限正数。
func ValidAmount(amount *float64) bool {
	if amount == nil {
		return false
	}
	v := *amount
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}

func clampConfidence(v float64) float64 {
	switch {
	case math.IsNaN(v) || v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
