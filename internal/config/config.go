package config

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"

	mapstructure "github.com/go-viper/mapstructure/v2"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

const (
	defaultConfigPath = "configs/config.ini"
	envPrefix         = "btfd"
)

// 固定小节，其余小节一律按策略解析。
var reservedSections = map[string]bool{
	"app":       true,
	"logging":   true,
	"database":  true,
	"monitor":   true,
	"scheduler": true,
}

// Load 读取 INI 配置文件并结合环境变量返回 Config。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = defaultConfigPath
	}

	v.SetConfigFile(path)
	v.SetConfigType("ini")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil, fmt.Errorf("未找到配置文件 %q: %w", path, err)
		}
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, decodeHook()); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	strategies, err := parseStrategySections(v.AllSettings())
	if err != nil {
		return nil, err
	}
	cfg.Strategies = strategies

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", "production")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.encoding", "console")
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})

	v.SetDefault("database.path", "data/btfd.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 4)
	v.SetDefault("database.conn_max_lifetime", "1h")
	v.SetDefault("database.in_memory", false)

	v.SetDefault("monitor.enabled", true)
	v.SetDefault("monitor.port", 9090)

	v.SetDefault("scheduler.stagger_delay", "10s")
	v.SetDefault("scheduler.poll_interval", "1s")
}

func parseStrategySections(settings map[string]interface{}) ([]StrategyConfig, error) {
	strategies := make([]StrategyConfig, 0)

	for name, raw := range settings {
		if reservedSections[name] {
			continue
		}
		section, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}

		var sc StrategyConfig
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			Result:  &sc,
			TagName: "mapstructure",
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				stringToDecimalHookFunc(),
				mapstructure.StringToTimeDurationHookFunc(),
			),
		})
		if err != nil {
			return nil, fmt.Errorf("构造策略解码器失败: %w", err)
		}
		if err := decoder.Decode(section); err != nil {
			return nil, fmt.Errorf("解析策略小节 %q 失败: %w", name, err)
		}

		sc.Name = name
		strategies = append(strategies, sc)
	}

	// 启动顺序与配置遍历顺序解耦，按名称排序保证确定性。
	sort.Slice(strategies, func(i, j int) bool {
		return strategies[i].Name < strategies[j].Name
	})

	return strategies, nil
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			stringToDecimalHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

func stringToDecimalHookFunc() mapstructure.DecodeHookFuncType {
	decimalType := reflect.TypeOf(decimal.Decimal{})
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != decimalType {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return decimal.NewFromString(strings.TrimSpace(v))
		case int:
			return decimal.NewFromInt(int64(v)), nil
		case int64:
			return decimal.NewFromInt(v), nil
		case float64:
			return decimal.NewFromFloat(v), nil
		default:
			return data, nil
		}
	}
}
