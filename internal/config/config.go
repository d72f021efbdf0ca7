// Package config loads the core's runtime configuration from a layered
// source (file, environment, command-line flag) via viper, decoding
// into typed structs with UnmarshalExact so an unrecognized key is a
// load-time error rather than a silently ignored typo.
package config

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/Edgame2/masterTrade-sub003/pkg/types"
)

// AppConfig is the top-level shape the loader produces. Nested structs
// mirror the collaborator configs already defined in pkg/types and the
// owning packages; config only assembles and validates their values.
type AppConfig struct {
	Server ServerConfig     `mapstructure:"server"`
	Data   DataConfig       `mapstructure:"data"`
	Log    LogConfig        `mapstructure:"log"`
	Risk   RiskLimitsConfig `mapstructure:"risk"`
	Rules  []RuleConfig     `mapstructure:"rateLimitRules"`
	Activation ActivationConfig `mapstructure:"activation"`
}

// ActivationConfig tunes how often the strategy activation engine
// re-evaluates its candidate set against current market conditions.
type ActivationConfig struct {
	EvaluationCooldown time.Duration `mapstructure:"evaluationCooldown"`
}

// ServerConfig mirrors types.ServerConfig with string durations, since
// viper/mapstructure decode those more predictably from file/env
// sources than the wire-level JSON tags on the domain struct.
type ServerConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	WebSocketPath  string        `mapstructure:"webSocketPath"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	MaxConnections int           `mapstructure:"maxConnections"`
	EnableMetrics  bool          `mapstructure:"enableMetrics"`
	MetricsPort    int           `mapstructure:"metricsPort"`
}

// ToTypes converts to the domain-level config used by internal/api.
func (s ServerConfig) ToTypes() *types.ServerConfig {
	return &types.ServerConfig{
		Host:           s.Host,
		Port:           s.Port,
		WebSocketPath:  s.WebSocketPath,
		ReadTimeout:    s.ReadTimeout,
		WriteTimeout:   s.WriteTimeout,
		MaxConnections: s.MaxConnections,
		EnableMetrics:  s.EnableMetrics,
		MetricsPort:    s.MetricsPort,
	}
}

// DataConfig mirrors types.DataConfig.
type DataConfig struct {
	DataDir         string `mapstructure:"dataDir"`
	CacheSizeMB     int    `mapstructure:"cacheSizeMB"`
	UseMemoryMap    bool   `mapstructure:"useMemoryMap"`
	CompressionType string `mapstructure:"compressionType"`
}

// LogConfig controls the zap logger built in cmd/server.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// RiskLimitsConfig carries the subset of execution.RiskConfig that is
// reasonable to tune without a redeploy.
type RiskLimitsConfig struct {
	MaxPositionSize      decimal.Decimal `mapstructure:"maxPositionSize"`
	MaxTotalExposure      decimal.Decimal `mapstructure:"maxTotalExposure"`
	MaxDailyLoss         decimal.Decimal `mapstructure:"maxDailyLoss"`
	MaxDrawdown          decimal.Decimal `mapstructure:"maxDrawdown"`
	MaxConsecutiveLosses int             `mapstructure:"maxConsecutiveLosses"`
	PaperTrading         bool            `mapstructure:"paperTrading"`
}

// RuleConfig is the file/env representation of a types.RateLimitRule.
type RuleConfig struct {
	Name           string   `mapstructure:"name"`
	Algorithm      string   `mapstructure:"algorithm"`
	RequestsPerSec float64  `mapstructure:"requestsPerSecond"`
	BurstSize      int64    `mapstructure:"burstSize"`
	WindowSeconds  float64  `mapstructure:"windowSeconds"`
	PathPatterns   []string `mapstructure:"pathPatterns"`
	Methods        []string `mapstructure:"methods"`
	Priority       int      `mapstructure:"priority"`
}

// ToTypes converts to the domain rule, validating the algorithm name at
// load time rather than falling back to a default.
func (r RuleConfig) ToTypes() (types.RateLimitRule, error) {
	var algo types.RateLimitAlgorithm
	switch r.Algorithm {
	case string(types.AlgoTokenBucket):
		algo = types.AlgoTokenBucket
	case string(types.AlgoSlidingWindow):
		algo = types.AlgoSlidingWindow
	case string(types.AlgoFixedWindow):
		algo = types.AlgoFixedWindow
	case string(types.AlgoLeakyBucket):
		algo = types.AlgoLeakyBucket
	default:
		return types.RateLimitRule{}, fmt.Errorf("config: rule %q: unknown algorithm %q", r.Name, r.Algorithm)
	}
	return types.RateLimitRule{
		Name:              r.Name,
		Algorithm:         algo,
		RequestsPerSec:    r.RequestsPerSec,
		BurstSize:         r.BurstSize,
		WindowSeconds:     r.WindowSeconds,
		PathPatterns:      r.PathPatterns,
		Methods:           r.Methods,
		Priority:          r.Priority,
	}, nil
}

// Defaults returns the configuration used when no file/env/flag
// overrides anything, matching cmd/server's previous flag defaults.
func Defaults() AppConfig {
	return AppConfig{
		Server: ServerConfig{
			Host:           "localhost",
			Port:           8080,
			WebSocketPath:  "/ws",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxConnections: 100,
			EnableMetrics:  true,
			MetricsPort:    9090,
		},
		Data: DataConfig{
			DataDir:         "./data",
			CacheSizeMB:     256,
			UseMemoryMap:    false,
			CompressionType: "gzip",
		},
		Log: LogConfig{
			Level:    "info",
			Encoding: "console",
		},
		Risk: RiskLimitsConfig{
			MaxPositionSize:      decimal.NewFromInt(10000),
			MaxTotalExposure:     decimal.NewFromInt(50000),
			MaxDailyLoss:         decimal.NewFromInt(2000),
			MaxDrawdown:          decimal.NewFromFloat(0.2),
			MaxConsecutiveLosses: 5,
			PaperTrading:         true,
		},
		Activation: ActivationConfig{
			EvaluationCooldown: 15 * time.Minute,
		},
	}
}

// Load builds the layered config: Defaults() seeded into viper, then a
// config file at path (if non-empty and present), then TRADING_*
// environment variables, all decoded with UnmarshalExact so a stray or
// misspelled key fails the load instead of being silently dropped.
func Load(path string) (AppConfig, error) {
	v := viper.New()
	v.SetEnvPrefix("trading")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	seedDefaults(v, Defaults())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return AppConfig{}, fmt.Errorf("config: reading %s: %w", path, err)
			}
		}
	}

	var cfg AppConfig
	decodeHook := mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		decimalDecodeHook,
	)
	if err := v.Unmarshal(&cfg, func(c *mapstructure.DecoderConfig) {
		c.ErrorUnused = true
		c.DecodeHook = decodeHook
	}); err != nil {
		return AppConfig{}, fmt.Errorf("config: decoding: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if c.Data.DataDir == "" {
		return fmt.Errorf("config: data.dataDir must not be empty")
	}
	for _, r := range c.Rules {
		if _, err := r.ToTypes(); err != nil {
			return err
		}
	}
	return nil
}

func seedDefaults(v *viper.Viper, d AppConfig) {
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.webSocketPath", d.Server.WebSocketPath)
	v.SetDefault("server.readTimeout", d.Server.ReadTimeout)
	v.SetDefault("server.writeTimeout", d.Server.WriteTimeout)
	v.SetDefault("server.maxConnections", d.Server.MaxConnections)
	v.SetDefault("server.enableMetrics", d.Server.EnableMetrics)
	v.SetDefault("server.metricsPort", d.Server.MetricsPort)

	v.SetDefault("data.dataDir", d.Data.DataDir)
	v.SetDefault("data.cacheSizeMB", d.Data.CacheSizeMB)
	v.SetDefault("data.useMemoryMap", d.Data.UseMemoryMap)
	v.SetDefault("data.compressionType", d.Data.CompressionType)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.encoding", d.Log.Encoding)

	v.SetDefault("risk.maxPositionSize", d.Risk.MaxPositionSize.String())
	v.SetDefault("risk.maxTotalExposure", d.Risk.MaxTotalExposure.String())
	v.SetDefault("risk.maxDailyLoss", d.Risk.MaxDailyLoss.String())
	v.SetDefault("risk.maxDrawdown", d.Risk.MaxDrawdown.String())
	v.SetDefault("risk.maxConsecutiveLosses", d.Risk.MaxConsecutiveLosses)
	v.SetDefault("risk.paperTrading", d.Risk.PaperTrading)

	v.SetDefault("activation.evaluationCooldown", d.Activation.EvaluationCooldown)
}

var decimalType = reflect.TypeOf(decimal.Decimal{})

// decimalDecodeHook lets decimal.Decimal fields be supplied as plain
// strings or numbers in either the config file or an env var.
func decimalDecodeHook(from, to reflect.Type, data interface{}) (interface{}, error) {
	if to != decimalType {
		return data, nil
	}
	switch v := data.(type) {
	case decimal.Decimal:
		return v, nil
	case string:
		return decimal.NewFromString(v)
	case float64:
		return decimal.NewFromFloat(v), nil
	case int:
		return decimal.NewFromInt(int64(v)), nil
	default:
		return data, fmt.Errorf("config: cannot decode %T into decimal.Decimal", data)
	}
}
