package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type Config struct {
	Port           string
	Env            string `validate:"oneof=debug release test"`
	LogLevel       string `validate:"oneof=debug info warn error"`
	AllowedOrigins []string

	// Telegram
	BotToken              string
	NotificationChannelID int64
	AdminUserIDs          []int64

	// Яндекс Парк (Fleet API)
	YandexBaseURL      string        `validate:"required,url"`
	YandexParkID       string        `validate:"required"`
	YandexClientID     string        `validate:"required"`
	YandexAPIKey       string        `validate:"required"`
	FleetTimeout       time.Duration `validate:"gt=0"`
	FleetMinSpacing    time.Duration `validate:"gte=0"`
	FleetProfileLimit  int           `validate:"gt=0,lte=1000"`
	FleetOrderPageSize int           `validate:"gt=0,lte=500"`
	FleetMaxPages      int           `validate:"gt=0"`
	FleetOrderLookback time.Duration `validate:"gt=0"`

	// Хранилище: postgres или sqlite
	DBDriver   string `validate:"oneof=postgres sqlite"`
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string
	SQLitePath string

	// Сессии регистрации; пустой адрес, хранение в памяти
	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration `validate:"gt=0"`

	// Сверка заказов
	SweepEnabled      bool
	SweepInterval     time.Duration `validate:"gt=0"`
	SweepJitter       time.Duration `validate:"gte=0"`
	SweepEntrySpacing time.Duration `validate:"gte=0"`
	ThresholdsFile    string

	// Админский API
	JWTSecret       string
	JWTAccessExpiry time.Duration `validate:"gt=0"`
}

func Load() *Config {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		Env:            getEnv("GIN_MODE", "debug"),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),

		BotToken:              getEnv("BOT_TOKEN", ""),
		NotificationChannelID: getEnvAsInt64("NOTIFICATION_CHANNEL_ID", 0),
		AdminUserIDs:          getEnvAsInt64Slice("ADMIN_USER_IDS", nil),

		YandexBaseURL:      getEnv("YANDEX_BASE_URL", "https://fleet-api.taxi.yandex.net"),
		YandexParkID:       getEnv("YANDEX_PARK_ID", ""),
		YandexClientID:     getEnv("YANDEX_CLIENT_ID", ""),
		YandexAPIKey:       getEnv("YANDEX_API_KEY", ""),
		FleetTimeout:       getEnvAsDuration("FLEET_TIMEOUT", 10*time.Second),
		FleetMinSpacing:    getEnvAsDuration("FLEET_MIN_SPACING", 1500*time.Millisecond),
		FleetProfileLimit:  getEnvAsInt("FLEET_PROFILE_LIMIT", 1000),
		FleetOrderPageSize: getEnvAsInt("FLEET_ORDER_PAGE_SIZE", 500),
		FleetMaxPages:      getEnvAsInt("FLEET_MAX_PAGES", 50),
		FleetOrderLookback: getEnvAsDuration("FLEET_ORDER_LOOKBACK", 5*365*24*time.Hour),

		DBDriver:   getEnv("DB_DRIVER", "postgres"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "postgres"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),
		SQLitePath: getEnv("SQLITE_PATH", "bot.db"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		SessionTTL:    getEnvAsDuration("SESSION_TTL", 30*time.Minute),

		SweepEnabled:      getEnvAsBool("SWEEP_ENABLED", true),
		SweepInterval:     getEnvAsDuration("SWEEP_INTERVAL", time.Hour),
		SweepJitter:       getEnvAsDuration("SWEEP_JITTER", 5*time.Minute),
		SweepEntrySpacing: getEnvAsDuration("SWEEP_ENTRY_SPACING", 2*time.Second),
		ThresholdsFile:    getEnv("THRESHOLDS_FILE", ""),

		JWTSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		JWTAccessExpiry: getEnvAsDuration("JWT_ACCESS_EXPIRY", 24*time.Hour),
	}

	zap.L().Info("📋 Конфигурация загружена",
		zap.String("port", cfg.Port),
		zap.String("mode", cfg.Env),
		zap.String("db_driver", cfg.DBDriver),
		zap.Bool("bot_token_set", cfg.BotToken != ""),
		zap.Bool("redis", cfg.RedisAddr != ""),
		zap.Duration("sweep_interval", cfg.SweepInterval),
	)
	return cfg
}

// Validate проверяет обязательные поля и диапазоны
func (c *Config) Validate() error {
	return validator.New().Struct(c)
}

// ValidateLocal: проверка без учётных данных парка (админские команды CLI)
func (c *Config) ValidateLocal() error {
	return validator.New().StructExcept(c, "YandexParkID", "YandexClientID", "YandexAPIKey")
}

// DSN строка подключения к PostgreSQL
func (c *Config) DSN() string {
	return "host=" + c.DBHost + " port=" + c.DBPort + " user=" + c.DBUser +
		" password=" + c.DBPassword + " dbname=" + c.DBName + " sslmode=" + c.DBSSLMode
}

// IsConfiguredAdmin: администратор из ADMIN_USER_IDS, права есть всегда
func (c *Config) IsConfiguredAdmin(userID int64) bool {
	for _, id := range c.AdminUserIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	strVal := getEnv(key, "")
	if val, err := strconv.ParseBool(strVal); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	strVal := getEnv(key, "")
	if val, err := strconv.Atoi(strVal); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	strVal := getEnv(key, "")
	if val, err := strconv.ParseInt(strings.TrimSpace(strVal), 10, 64); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	strVal := getEnv(key, "")
	if val, err := time.ParseDuration(strVal); err == nil {
		return val
	}
	return defaultValue
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	val := getEnv(key, "")
	if val == "" {
		return defaultValue
	}
	parts := strings.Split(val, ",")
	for i, part := range parts {
		parts[i] = strings.TrimSpace(part)
	}
	return parts
}

// getEnvAsInt64Slice разбирает список id через запятую, нечисловые значения пропускаются
func getEnvAsInt64Slice(key string, defaultValue []int64) []int64 {
	parts := getEnvAsSlice(key, nil)
	if len(parts) == 0 {
		return defaultValue
	}
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		if id, err := strconv.ParseInt(p, 10, 64); err == nil {
			out = append(out, id)
		}
	}
	return out
}
