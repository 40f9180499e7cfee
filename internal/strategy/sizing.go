package strategy

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidLevels 表示阶梯层数非法。
var ErrInvalidLevels = errors.New("strategy: number of levels must be at least 1")

// CalculatePositionSizes 按几何权重切分资金。
// 第 i 层权重为 multiple^i，层级越深（价格越低）分到的资金越多，
// 即越跌越加仓的马丁格尔式布局；multiple 为 1 时退化为均分。
func CalculatePositionSizes(balance decimal.Decimal, levels int, multiple decimal.Decimal) ([]decimal.Decimal, error) {
	if levels < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidLevels, levels)
	}

	weights := make([]decimal.Decimal, 0, levels)
	total := decimal.Zero
	weight := decimal.NewFromInt(1)
	for i := 0; i < levels; i++ {
		if i > 0 {
			weight = weight.Mul(multiple)
		}
		weights = append(weights, weight)
		total = total.Add(weight)
	}

	unit := balance.Div(total)
	sizes := make([]decimal.Decimal, 0, levels)
	for _, w := range weights {
		sizes = append(sizes, unit.Mul(w))
	}

	return sizes, nil
}
