package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string
	AllowedOrigin         string
	DatabaseURL           string
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	ReportCacheTTLSeconds int
	AuthSecret            string
	AccessTokenTTLMinutes int
	RequireCustomer       bool
	CurrencySymbol        string
	LogLevel              string
	LogFormat             string
}

// Load reads configuration from the environment. When CONFIG_FILE names a
// YAML file its values are used underneath the environment.
func Load() (Config, error) {
	v := viper.New()
	v.SetDefault("port", "8080")
	v.SetDefault("allowed_origin", "http://127.0.0.1:3000")
	v.SetDefault("database_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	v.SetDefault("report_cache_ttl_seconds", 30)
	v.SetDefault("auth_secret", "")
	v.SetDefault("access_token_ttl_minutes", 480)
	v.SetDefault("require_customer", true)
	v.SetDefault("currency_symbol", "$")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
	v.AutomaticEnv()

	if path := strings.TrimSpace(v.GetString("config_file")); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cacheTTL := v.GetInt("report_cache_ttl_seconds")
	if cacheTTL < 1 {
		cacheTTL = 30
	}
	tokenTTL := v.GetInt("access_token_ttl_minutes")
	if tokenTTL < 1 {
		tokenTTL = 480
	}

	cfg := Config{
		Port:                  v.GetString("port"),
		AllowedOrigin:         v.GetString("allowed_origin"),
		DatabaseURL:           strings.TrimSpace(v.GetString("database_url")),
		RedisAddr:             strings.TrimSpace(v.GetString("redis_addr")),
		RedisPassword:         v.GetString("redis_password"),
		RedisDB:               v.GetInt("redis_db"),
		ReportCacheTTLSeconds: cacheTTL,
		AuthSecret:            strings.TrimSpace(v.GetString("auth_secret")),
		AccessTokenTTLMinutes: tokenTTL,
		RequireCustomer:       v.GetBool("require_customer"),
		CurrencySymbol:        v.GetString("currency_symbol"),
		LogLevel:              strings.ToLower(v.GetString("log_level")),
		LogFormat:             strings.ToLower(v.GetString("log_format")),
	}

	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}
