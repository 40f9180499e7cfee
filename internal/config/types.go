package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/multierr"

	"github.com/jacqueswww/btfd/internal/timespec"
)

// Config 聚合了系统运行所需的全部配置项。
// 固定小节之外的每个小节都描述一个独立策略。
type Config struct {
	App        AppConfig        `mapstructure:"app"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Monitor    MonitorConfig    `mapstructure:"monitor"`
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"`
	Strategies []StrategyConfig `mapstructure:"-"`
}

// AppConfig 控制应用级参数。
type AppConfig struct {
	Environment string `mapstructure:"environment"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level            string   `mapstructure:"level"`
	Encoding         string   `mapstructure:"encoding"`
	Development      bool     `mapstructure:"development"`
	OutputPaths      []string `mapstructure:"output_paths"`
	ErrorOutputPaths []string `mapstructure:"error_output_paths"`
}

// DatabaseConfig 管理审计库连接。
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	InMemory        bool          `mapstructure:"in_memory"`
}

// MonitorConfig 控制监控接口。
type MonitorConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// SchedulerConfig 控制策略线程的启动与轮询节奏。
type SchedulerConfig struct {
	StaggerDelay time.Duration `mapstructure:"stagger_delay"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

// StrategyConfig 描述单个策略实例，加载后不再变更，
// 由对应的调度线程独占。键名沿用原有 INI 配置约定。
type StrategyConfig struct {
	Name               string          `mapstructure:"-"`
	Backend            string          `mapstructure:"backend"`
	APIKey             string          `mapstructure:"api_key"`
	APISecret          string          `mapstructure:"api_secret"`
	FiatCurrencyCode   string          `mapstructure:"fiat_currency_code"`
	CryptoCurrencyCode string          `mapstructure:"crypto_currency_code"`
	IcebergLevels      int             `mapstructure:"iceberg_levels"`
	LevelStepPerc      decimal.Decimal `mapstructure:"level_step_percentage"`
	IcebergMultiple    decimal.Decimal `mapstructure:"iceberg_multiple"`
	MinOrderSize       decimal.Decimal `mapstructure:"minimum_order_size"`
	QuantityPrecision  int             `mapstructure:"quantity_precision"`
	BalanceLimit       decimal.Decimal `mapstructure:"balance_limit"`
	RestructureTime    string          `mapstructure:"restructure_time"`
}

// Validate 对配置进行基本校验。
func (c *Config) Validate() error {
	var err error

	if c.App.Environment == "" {
		err = multierr.Append(err, errors.New("app.environment 不能为空"))
	}
	if c.Logging.Level == "" {
		err = multierr.Append(err, errors.New("logging.level 不能为空"))
	}
	if c.Logging.Encoding == "" {
		err = multierr.Append(err, errors.New("logging.encoding 不能为空"))
	}
	if c.Database.Path == "" && !c.Database.InMemory {
		err = multierr.Append(err, errors.New("database.path 不能为空"))
	}
	if c.Database.MaxOpenConns <= 0 {
		err = multierr.Append(err, errors.New("database.max_open_conns 必须大于0"))
	}
	if c.Database.MaxIdleConns < 0 {
		err = multierr.Append(err, errors.New("database.max_idle_conns 不能为负"))
	}
	if c.Monitor.Enabled && (c.Monitor.Port <= 0 || c.Monitor.Port > 65535) {
		err = multierr.Append(err, errors.New("monitor.port 必须位于[1,65535]"))
	}
	if c.Scheduler.StaggerDelay < 0 {
		err = multierr.Append(err, errors.New("scheduler.stagger_delay 不能为负"))
	}
	if c.Scheduler.PollInterval <= 0 {
		err = multierr.Append(err, errors.New("scheduler.poll_interval 必须大于0"))
	}
	if len(c.Strategies) == 0 {
		err = multierr.Append(err, errors.New("至少需要配置一个策略小节"))
	}

	for i := range c.Strategies {
		err = multierr.Append(err, c.Strategies[i].validate())
	}

	if err != nil {
		return fmt.Errorf("配置校验失败: %w", err)
	}

	return nil
}

var one = decimal.NewFromInt(1)

func (s *StrategyConfig) validate() error {
	var err error

	invalid := func(field string) error {
		return fmt.Errorf("策略 %q: %s", s.Name, field)
	}

	if s.Backend == "" {
		err = multierr.Append(err, invalid("backend 不能为空"))
	}
	if s.APIKey == "" || s.APISecret == "" {
		err = multierr.Append(err, invalid("api_key/api_secret 不能为空"))
	}
	if s.FiatCurrencyCode == "" || s.CryptoCurrencyCode == "" {
		err = multierr.Append(err, invalid("货币代码不能为空"))
	}
	if s.IcebergLevels < 1 {
		err = multierr.Append(err, invalid("iceberg_levels 必须不小于1"))
	}
	if !s.LevelStepPerc.IsPositive() {
		err = multierr.Append(err, invalid("level_step_percentage 必须为正"))
	}
	if s.IcebergMultiple.LessThan(one) {
		err = multierr.Append(err, invalid("iceberg_multiple 必须不小于1"))
	}
	if s.MinOrderSize.IsNegative() {
		err = multierr.Append(err, invalid("minimum_order_size 不能为负"))
	}
	if s.QuantityPrecision < 0 {
		err = multierr.Append(err, invalid("quantity_precision 不能为负"))
	}
	if !s.BalanceLimit.IsPositive() || s.BalanceLimit.GreaterThan(one) {
		err = multierr.Append(err, invalid("balance_limit 必须位于(0,1]"))
	}
	if _, parseErr := timespec.Parse(s.RestructureTime); parseErr != nil {
		err = multierr.Append(err, fmt.Errorf("策略 %q: restructure_time 非法: %w", s.Name, parseErr))
	}

	return err
}

// SleepDuration 返回两次重建之间的等待时长，配置校验通过后不会失败。
func (s *StrategyConfig) SleepDuration() time.Duration {
	d, err := timespec.Parse(s.RestructureTime)
	if err != nil {
		return 0
	}
	return d
}

// Pair 返回交易对的规范写法，如 BTCZAR。
func (s *StrategyConfig) Pair() string {
	return s.CryptoCurrencyCode + s.FiatCurrencyCode
}
