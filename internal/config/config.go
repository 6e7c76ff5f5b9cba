package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin 模式：debug / release / test
}

type DatabaseConfig struct {
	Driver       string `mapstructure:"driver"` // mysql / postgres
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Name         string `mapstructure:"name"`
	SSLMode      string `mapstructure:"ssl_mode"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"`
}

type RedisConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	LockTTLSeconds int    `mapstructure:"lock_ttl_seconds"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	CreditApplied string `mapstructure:"credit_applied"`
}

type BusinessConfig struct {
	OutboxIntervalMs int `mapstructure:"outbox_interval_ms"`
	OutboxBatchSize  int `mapstructure:"outbox_batch_size"`
	MaxRetryCount    int `mapstructure:"max_retry_count"`
}

const envPrefix = "LEDGER"

var defaults = map[string]interface{}{
	"server.port":                 8080,
	"server.mode":                 "release",
	"database.driver":             "mysql",
	"database.host":               "127.0.0.1",
	"database.port":               3306,
	"database.user":               "root",
	"database.password":           "",
	"database.name":               "credit_ledger",
	"database.ssl_mode":           "disable",
	"database.max_open_conns":     50,
	"database.max_idle_conns":     10,
	"database.log_level":          "warn",
	"redis.enabled":               false,
	"redis.host":                  "127.0.0.1",
	"redis.port":                  6379,
	"redis.password":              "",
	"redis.db":                    0,
	"redis.lock_ttl_seconds":      10,
	"kafka.enabled":               false,
	"kafka.brokers":               []string{"127.0.0.1:9092"},
	"kafka.topic.credit_applied":  "ledger.credit-applied",
	"business.outbox_interval_ms": 200,
	"business.outbox_batch_size":  100,
	"business.max_retry_count":    5,
}

// Load 加载配置
// 优先级：环境变量（LEDGER_ 前缀，. 换成 _）> 配置文件 > 默认值。
// 工作目录下的 .env 会先被加载到环境变量；.env 和配置文件不存在都不算错误。
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("读取 .env 失败: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	return cfg, nil
}
