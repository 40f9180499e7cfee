package strategy

import (
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Level 为阶梯中的一笔限价买单指令。
type Level struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	Notional decimal.Decimal
}

// BuildLadder 根据基准价与各层资金生成具体的 (价格, 数量) 阶梯。
// 步长向下取整，保证深层价格不会因舍入高于浅层；数量按
// quantityPrecision 截断（只舍不入），确保名义金额不超过该层分配。
// 数量低于 minOrderSize 的层直接丢弃，不补足也不重新分配，
// 丢弃的层单独返回供调用方记录。
func BuildLadder(basePrice, stepPerc decimal.Decimal, allocations []decimal.Decimal, quantityPrecision int, minOrderSize decimal.Decimal) (levels, dropped []Level) {
	step := basePrice.Mul(stepPerc).Div(hundred).Floor()

	for i, alloc := range allocations {
		price := basePrice.Sub(step.Mul(decimal.NewFromInt(int64(i))))
		if !price.IsPositive() {
			dropped = append(dropped, Level{Price: price})
			continue
		}

		quantity := alloc.Div(price).RoundDown(int32(quantityPrecision))
		level := Level{
			Price:    price,
			Quantity: quantity,
			Notional: quantity.Mul(price),
		}

		if quantity.LessThan(minOrderSize) {
			dropped = append(dropped, level)
			continue
		}

		levels = append(levels, level)
	}

	return levels, dropped
}
