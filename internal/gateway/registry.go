package gateway

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/jacqueswww/btfd/internal/config"
)

// backends 维护后端名称到构造函数的映射。
var backends = map[string]func(config.StrategyConfig, *zap.Logger) Gateway{
	"valr": func(cfg config.StrategyConfig, logger *zap.Logger) Gateway {
		return NewVALR(cfg, logger)
	},
	"luno": func(cfg config.StrategyConfig, logger *zap.Logger) Gateway {
		return NewLuno(cfg, logger)
	},
}

// New 根据策略配置创建对应后端的网关实例。
// 每个策略独占一个实例，互相之间不共享任何状态。
func New(cfg config.StrategyConfig, logger *zap.Logger) (Gateway, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Backend))
	constructor, ok := backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, cfg.Backend)
	}
	return constructor(cfg, logger), nil
}
