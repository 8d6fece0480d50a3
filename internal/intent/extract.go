package intent

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// Coins 是允许识别的币种，顺序即匹配优先级。
var Coins = []string{"USDC", "ETH", "BTC", "USDT", "DAI"}

var amountPattern = regexp.MustCompile(`\d+(\.\d+)?`)

// Extraction 是从文本中抽取出的金额与币种。
type Extraction struct {
	Amount *float64
	Coin   string
}

// Extract 取文本中第一个数字作为金额，并按优先级查找第一个出现的币种。
func Extract(text string) Extraction {
	var out Extraction

	if match := amountPattern.FindString(text); match != "" {
		if v, err := strconv.ParseFloat(match, 64); err == nil && !math.IsInf(v, 0) {
			out.Amount = &v
		}
	}

	upper := strings.ToUpper(text)
	for _, coin := range Coins {
		if strings.Contains(upper, coin) {
			out.Coin = coin
			break
		}
	}
	return out
}

// IsSupportedCoin 判断币种是否在允许列表中。
func IsSupportedCoin(coin string) bool {
	for _, c := range Coins {
		if c == coin {
			return true
		}
	}
	return false
}
