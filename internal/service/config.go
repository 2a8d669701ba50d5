// internal/service/config.go
package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string        `mapstructure:"LogLevel"`
	Dex      DexConfig     `mapstructure:"Dex"`
	Backend  BackendConfig `mapstructure:"Backend"`
	History  HistoryConfig `mapstructure:"History"`
	Pulse    PulseConfig   `mapstructure:"Pulse"`
	Cache    CacheConfig   `mapstructure:"Cache"`
	Chart    ChartConfig   `mapstructure:"Chart"`
}

// DexConfig 对应图表 exchange 条目
type DexConfig struct {
	Name         string
	Description  string
	CurrencyCode string
	AllowLogger  bool
	// WrappedContract 为原生币对应的 wrapped 合约，编码 chart symbol 前会把 NativeContract 替换成它
	NativeContract  string
	WrappedContract string
}

// BackendConfig 定义了后端 REST 与 WebSocket 地址
type BackendConfig struct {
	RESTURL        string
	WSURL          string
	CandlesPath    string
	VolumesPath    string
	HeaderPath     string
	RequestTimeout time.Duration
}

// HistoryConfig 描述后端单次响应的限制
type HistoryConfig struct {
	MaxResponseLength int
	ExpectedOrder     string // latestFirst | earliestFirst
}

type PulseConfig struct {
	PingInterval time.Duration
}

// CacheConfig 选择 last bar 缓存的实现
type CacheConfig struct {
	Driver        string // memory | redis
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// ChartConfig 定义了要展示的交易对和主题
type ChartConfig struct {
	TokenA             TokenConfig
	TokenB             TokenConfig
	Theme              string
	HeaderPollInterval time.Duration
	Colors             *ColorsConfig
	// SnapshotDir 非空时，退出前把当前 bar 序列写入该目录
	SnapshotDir string
}

// ColorsConfig 为图表调色板，为空时不生成 overrides
type ColorsConfig struct {
	Background      string
	Up              string
	Down            string
	UpTransparent   string
	DownTransparent string
	GridLine        string
	Axis            string
}

type TokenConfig struct {
	Contract string
	Symbol   string
}

// LoadConfig 读取 configPath 下的 config.yaml，环境变量可覆盖同名键 (Backend.WSURL -> BACKEND_WSURL)
func LoadConfig(configPath string) (*Config, error) {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)

	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// 没有默认值的键需要显式绑定，否则 Unmarshal 看不到环境变量
	for _, key := range []string{"Backend.RESTURL", "Backend.WSURL", "Cache.RedisPassword"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		Logger.Warn("Config file not found, relying on defaults and environment")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("LogLevel", "info")
	v.SetDefault("Dex.Name", "DEX")
	v.SetDefault("Dex.Description", "Decentralized exchange")
	v.SetDefault("Dex.AllowLogger", true)
	v.SetDefault("Backend.CandlesPath", "/chart/spot-price-candles")
	v.SetDefault("Backend.VolumesPath", "/chart/tokens-pair-volume")
	v.SetDefault("Backend.HeaderPath", "/chart/header")
	v.SetDefault("Backend.RequestTimeout", 10*time.Second)
	v.SetDefault("History.MaxResponseLength", 1000)
	v.SetDefault("History.ExpectedOrder", "latestFirst")
	v.SetDefault("Pulse.PingInterval", 20*time.Second)
	v.SetDefault("Cache.Driver", "memory")
	v.SetDefault("Cache.RedisAddr", "localhost:6379")
	v.SetDefault("Cache.KeyPrefix", "lastbar:")
	v.SetDefault("Chart.Theme", "Dark")
	v.SetDefault("Chart.HeaderPollInterval", 5*time.Second)
}

// Validate 做基本的配置校验
func (c *Config) Validate() error {
	if c.Backend.RESTURL == "" {
		return errors.New("Backend.RESTURL cannot be empty")
	}
	if c.Backend.WSURL == "" {
		return errors.New("Backend.WSURL cannot be empty")
	}
	if c.History.ExpectedOrder != "latestFirst" && c.History.ExpectedOrder != "earliestFirst" {
		return fmt.Errorf("History.ExpectedOrder must be 'latestFirst' or 'earliestFirst', got '%s'", c.History.ExpectedOrder)
	}
	if c.History.MaxResponseLength <= 0 {
		return fmt.Errorf("History.MaxResponseLength must be positive, got %d", c.History.MaxResponseLength)
	}
	if c.Pulse.PingInterval <= 0 {
		return errors.New("Pulse.PingInterval must be positive")
	}
	if c.Cache.Driver != "memory" && c.Cache.Driver != "redis" {
		return fmt.Errorf("Cache.Driver must be 'memory' or 'redis', got '%s'", c.Cache.Driver)
	}
	if c.Chart.TokenA.Contract == "" || c.Chart.TokenB.Contract == "" {
		return errors.New("Chart.TokenA and Chart.TokenB contracts are required")
	}
	return nil
}

// NativeToWrapped 返回把原生币合约映射为 wrapped 合约的函数
func (d DexConfig) NativeToWrapped() func(string) string {
	return func(contract string) string {
		if d.NativeContract != "" && contract == d.NativeContract && d.WrappedContract != "" {
			return d.WrappedContract
		}
		return contract
	}
}
