package config

import (
	"strings"
	"sync"

	"github.com/spf13/viper"
)

var once sync.Once

func InitConfig() {
	once.Do(func() {
		viper.AutomaticEnv()

		viper.BindEnv("api_mirrors", "BINANCE_API_MIRRORS")
		viper.BindEnv("kline_interval", "KLINE_INTERVAL")
		viper.BindEnv("cache_interval_minutes", "CACHE_INTERVAL_MINUTES")
		viper.BindEnv("alert_interval_seconds", "ALERT_INTERVAL_SECONDS")
		viper.BindEnv("volume_multiple", "VOLUME_MULTIPLE")
		viper.BindEnv("min_quote_volume", "MIN_QUOTE_VOLUME")
		viper.BindEnv("alert_min_quote_volume", "ALERT_MIN_QUOTE_VOLUME")
		viper.BindEnv("alert_log_limit", "ALERT_LOG_LIMIT")
		viper.BindEnv("oi_workers", "OPEN_INTEREST_WORKERS")
		viper.BindEnv("http_port", "HTTP_PORT")
		viper.BindEnv("metrics_port", "METRICS_PORT")
		viper.BindEnv("db_path", "DB_PATH")
		viper.BindEnv("telegram_bot_token", "TELEGRAM_BOT_TOKEN")
		viper.BindEnv("smtp_host", "SMTP_HOST")
		viper.BindEnv("smtp_port", "SMTP_PORT")
		viper.BindEnv("smtp_user", "SMTP_USER")
		viper.BindEnv("smtp_password", "SMTP_PASSWORD")
		viper.BindEnv("smtp_from", "SMTP_FROM")
		viper.BindEnv("debug", "DEBUG")
		viper.BindEnv("lang", "BOT_LANG")

		viper.SetDefault("api_mirrors",
			"https://fapi.binance.com,https://fapi1.binance.com,https://fapi2.binance.com,https://fapi3.binance.com")
		viper.SetDefault("kline_interval", "1h")
		viper.SetDefault("cache_interval_minutes", 15)
		viper.SetDefault("alert_interval_seconds", 60)
		viper.SetDefault("volume_multiple", 3.0)
		viper.SetDefault("min_quote_volume", 100_000_000.0)
		viper.SetDefault("alert_min_quote_volume", 3_000_000.0)
		viper.SetDefault("alert_log_limit", 30)
		viper.SetDefault("oi_workers", 8)
		viper.SetDefault("http_port", 8081)
		viper.SetDefault("metrics_port", 9090)
		viper.SetDefault("db_path", "/app/data/volspike.db")
		viper.SetDefault("smtp_port", 587)
		viper.SetDefault("debug", false)
		viper.SetDefault("lang", "en")
	})
}

func GetString(key string) string {
	InitConfig()
	return viper.GetString(key)
}

func GetInt(key string) int {
	InitConfig()
	return viper.GetInt(key)
}

func GetFloat(key string) float64 {
	InitConfig()
	return viper.GetFloat64(key)
}

func GetBool(key string) bool {
	InitConfig()
	return viper.GetBool(key)
}

// GetStringSlice splits a comma separated value, dropping blanks.
func GetStringSlice(key string) []string {
	InitConfig()
	parts := strings.Split(viper.GetString(key), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
