package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"
)

type Config struct {
	AppName string
	AppPort int

	LogLevel string

	// SQLite DSN shared by the app tables and the whatsmeow session store.
	DBDSN string

	// External affiliate backend.
	ShopeeAPIBaseURL string
	ShopeeAPIKey     string
	ConvertTimeout   time.Duration

	MarketplaceTokens []string

	// Redis conversion cache (optional; enabled only when RedisHost is set).
	RedisHost          string
	RedisPort          int
	RedisPassword      string
	ConversionCacheTTL time.Duration

	Timezone         string
	DispatchTick     time.Duration
	DispatchMinDelay time.Duration
	DispatchMaxDelay time.Duration
	// Minimum gap between two posts to the same group.
	DispatchGroupInterval time.Duration
	// Allowed send windows as "HH:MM-HH:MM" in Timezone; empty means any time.
	DispatchWindows []string
	// Consecutive delivery failures before a destination group is disabled.
	RiskThreshold int

	CORSOrigins []string
}

func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("APP_NAME", "promolink")
	v.SetDefault("APP_PORT", 9724)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("DB_DSN", "file:promolink.db?_foreign_keys=on")

	v.SetDefault("SHOPEE_API_BASE_URL", "http://localhost:3001")
	v.SetDefault("CONVERT_TIMEOUT", "20s")
	v.SetDefault("MARKETPLACE_TOKENS", "shopee")

	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("CONVERSION_CACHE_TTL", "24h")

	v.SetDefault("TIMEZONE", "Asia/Jakarta")
	v.SetDefault("DISPATCH_TICK", "20s")
	v.SetDefault("DISPATCH_MIN_DELAY", "15s")
	v.SetDefault("DISPATCH_MAX_DELAY", "45s")
	v.SetDefault("DISPATCH_GROUP_INTERVAL", "30m")
	v.SetDefault("RISK_THRESHOLD", 3)

	return v
}

func NewConfig(v *viper.Viper) (Config, error) {
	cfg := Config{
		AppName: v.GetString("APP_NAME"),
		AppPort: v.GetInt("APP_PORT"),

		LogLevel: v.GetString("LOG_LEVEL"),

		DBDSN: v.GetString("DB_DSN"),

		ShopeeAPIBaseURL: strings.TrimRight(strings.TrimSpace(v.GetString("SHOPEE_API_BASE_URL")), "/"),
		ShopeeAPIKey:     v.GetString("SHOPEE_API_KEY"),
		ConvertTimeout:   v.GetDuration("CONVERT_TIMEOUT"),

		MarketplaceTokens: splitList(v.GetString("MARKETPLACE_TOKENS")),

		RedisHost:          strings.TrimSpace(v.GetString("REDIS_HOST")),
		RedisPort:          v.GetInt("REDIS_PORT"),
		RedisPassword:      v.GetString("REDIS_PASSWORD"),
		ConversionCacheTTL: v.GetDuration("CONVERSION_CACHE_TTL"),

		Timezone:         v.GetString("TIMEZONE"),
		DispatchTick:     v.GetDuration("DISPATCH_TICK"),
		DispatchMinDelay: v.GetDuration("DISPATCH_MIN_DELAY"),
		DispatchMaxDelay: v.GetDuration("DISPATCH_MAX_DELAY"),

		DispatchGroupInterval: v.GetDuration("DISPATCH_GROUP_INTERVAL"),
		DispatchWindows:       splitList(v.GetString("DISPATCH_WINDOWS")),
		RiskThreshold:         v.GetInt("RISK_THRESHOLD"),

		CORSOrigins: splitList(v.GetString("CORS_ORIGINS")),
	}

	if cfg.AppPort <= 0 || cfg.AppPort > 65535 {
		return Config{}, fmt.Errorf("invalid APP_PORT %d", cfg.AppPort)
	}
	if cfg.RedisPort <= 0 || cfg.RedisPort > 65535 {
		return Config{}, fmt.Errorf("invalid REDIS_PORT %d", cfg.RedisPort)
	}
	if cfg.DBDSN == "" {
		return Config{}, fmt.Errorf("DB_DSN is empty")
	}
	if cfg.ConvertTimeout <= 0 {
		return Config{}, fmt.Errorf("invalid CONVERT_TIMEOUT %s", cfg.ConvertTimeout)
	}
	if cfg.DispatchTick <= 0 {
		return Config{}, fmt.Errorf("invalid DISPATCH_TICK %s", cfg.DispatchTick)
	}
	if cfg.DispatchMinDelay < 0 || cfg.DispatchMaxDelay < cfg.DispatchMinDelay {
		return Config{}, fmt.Errorf("invalid dispatch delay range %s..%s", cfg.DispatchMinDelay, cfg.DispatchMaxDelay)
	}
	if cfg.DispatchGroupInterval < 0 {
		return Config{}, fmt.Errorf("invalid DISPATCH_GROUP_INTERVAL %s", cfg.DispatchGroupInterval)
	}
	if cfg.RiskThreshold <= 0 {
		return Config{}, fmt.Errorf("invalid RISK_THRESHOLD %d", cfg.RiskThreshold)
	}
	if _, err := time.LoadLocation(cfg.Timezone); err != nil {
		return Config{}, fmt.Errorf("invalid TIMEZONE %q: %w", cfg.Timezone, err)
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
