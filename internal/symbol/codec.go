package symbol

import (
	"errors"
	"fmt"
	"strings"

	"dex-chart-datafeed/internal/model"
)

const (
	tokenSeparator    = "|"
	contractSeparator = "/"
)

var ErrMalformedSymbol = errors.New("malformed chart symbol")

// 图表分辨率 -> 后端 timeframe
var timeframes = map[string]string{
	"15":  "15m",
	"60":  "1h",
	"240": "4h",
	"1D":  "1d",
}

// Encode 将两个 token 编码为 chart symbol，任一 token 为空时返回 false
// normalize 把原生币合约映射为 wrapped 合约，使两者得到相同的 symbol
func Encode(tokenA, tokenB *model.Token, normalize func(contract string) string) (model.ChartSymbol, bool) {
	if tokenA == nil || tokenB == nil {
		return "", false
	}
	if normalize == nil {
		normalize = func(c string) string { return c }
	}

	s := normalize(tokenA.Contract) + contractSeparator + tokenA.Symbol +
		tokenSeparator +
		normalize(tokenB.Contract) + contractSeparator + tokenB.Symbol
	return model.ChartSymbol(s), true
}

// Decode 拆分 chart symbol，返回 (tokenA, tokenB)
func Decode(s model.ChartSymbol) ([2]model.TokenRef, error) {
	var refs [2]model.TokenRef

	tokens := strings.Split(string(s), tokenSeparator)
	if len(tokens) != 2 {
		return refs, fmt.Errorf("%w: %q", ErrMalformedSymbol, s)
	}

	for i, item := range tokens {
		parts := strings.Split(item, contractSeparator)
		if len(parts) != 2 {
			return refs, fmt.Errorf("%w: %q", ErrMalformedSymbol, s)
		}
		refs[i] = model.TokenRef{Contract: parts[0], Symbol: parts[1]}
	}

	return refs, nil
}

// ResolutionToTimeframe 未知分辨率原样返回
func ResolutionToTimeframe(resolution string) string {
	if tf, ok := timeframes[resolution]; ok {
		return tf
	}
	return resolution
}
