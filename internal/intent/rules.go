package intent

import (
	"context"
	"regexp"
	"strings"
)

// rule 是按顺序匹配的一条关键词规则。
type rule struct {
	intent     Intent
	confidence float64
	extract    bool
	match      func(lower string) bool
}

var (
	greetingPattern = regexp.MustCompile(`^(hi|hello|hey|halo|hai|hei|pagi|siang|malam|selamat)`)
	depositPattern  = regexp.MustCompile(`(deposit|depo|setor|tabung|nabung|simpan|add|save|put in|masukkan)`)
	withdrawPattern = regexp.MustCompile(`(withdraw|tarik|ambil|take out|remove|get|keluarkan)`)
	balancePattern  = regexp.MustCompile(`(balance|saldo|cek|check|how much|berapa|lihat)`)
	stakePattern    = regexp.MustCompile(`\b(stake|staking|invest|investasi)\b`)
	unstakePattern  = regexp.MustCompile(`(unstake|unstaking|cabut stake|hentikan staking)`)
	helpPattern     = regexp.MustCompile(`(help|bantuan|panduan|guide|how|cara|fitur|feature|what can|apa saja|bisa apa)`)
)

// 顺序不可调整：问候语必须先于存款规则，stake 规则需排除 unstake。
var rules = []rule{
	{intent: Help, confidence: 0.95, match: greetingPattern.MatchString},
	{intent: Deposit, confidence: 0.8, extract: true, match: depositPattern.MatchString},
	{intent: Withdraw, confidence: 0.8, extract: true, match: withdrawPattern.MatchString},
	{intent: CheckBalance, confidence: 0.85, match: balancePattern.MatchString},
	{intent: Stake, confidence: 0.75, extract: true, match: func(lower string) bool {
		return stakePattern.MatchString(lower) && !strings.Contains(lower, "unstake")
	}},
	{intent: Unstake, confidence: 0.75, extract: true, match: unstakePattern.MatchString},
	{intent: Help, confidence: 0.9, match: helpPattern.MatchString},
}

// unknownConfidence 是没有任何规则命中时的置信度。
const unknownConfidence = 0.5

// RuleClassifier 基于关键词规则的确定性分类器，支持英文与印尼语。
type RuleClassifier struct{}

// NewRuleClassifier 创建规则分类器。
func NewRuleClassifier() *RuleClassifier { return &RuleClassifier{} }

// Classify 依次尝试规则，第一条命中的规则决定结果。
func (RuleClassifier) Classify(_ context.Context, text string) Result {
	return classifyByRules(text)
}

// Name 返回策略名称。
func (RuleClassifier) Name() string { return StrategyRules }

func classifyByRules(text string) Result {
	lower := strings.ToLower(text)
	for _, r := range rules {
		if !r.match(lower) {
			continue
		}
		result := Result{Intent: r.intent, Confidence: r.confidence}
		if r.extract {
			ex := Extract(text)
			result.Amount = ex.Amount
			result.Coin = ex.Coin
		}
		return result
	}
	return Result{Intent: Unknown, Confidence: unknownConfidence}
}
