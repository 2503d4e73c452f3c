// Пакет config — загрузка и валидация конфигурации Film Rental
// из переменных окружения (префикс FR_).
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/time/rate"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// DefaultPaymentRecipient — адрес получателя оплаты аренды по умолчанию.
const DefaultPaymentRecipient = "0xeC1f782d67575FE1E62078986b05a053bdD46602"

// Config содержит все параметры конфигурации Film Rental.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- HTTP Server Timeouts ---

	HTTPReadTimeout time.Duration
	// 0 — без ограничения (submit оплаты ждёт подтверждения транзакции)
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration

	// --- Graceful shutdown ---

	ShutdownTimeout time.Duration

	// --- Хранилище ---

	// Каталог с films.json, rentals_*.json и users.json
	DataDir string

	// --- Удалённый каталог ---

	// Базовый URL API каталога (пусто — удалённый источник отключён)
	CatalogAPIURL string
	// Bearer-токен для API каталога (опционально)
	CatalogAPIToken string
	// Таймаут HTTP-запроса к API каталога
	CatalogAPITimeout time.Duration
	// Путь health-проверки API каталога для topologymetrics
	CatalogAPIHealthPath string
	// TTL последней известной копии каталога в памяти
	CatalogCacheTTL time.Duration
	// Cron-расписание синхронизации каталога (пусто — отключено)
	CatalogSyncSchedule string

	// --- Оплата ---

	PaymentRecipient string
	// JSON-RPC узел EVM-сети (пусто — проверка баланса и транзакций отключена)
	ChainRPCURL     string
	ChainRPCTimeout time.Duration
	// Интервал опроса eth_getTransactionReceipt
	ChainPollInterval time.Duration
	// Максимальное ожидание подтверждения (0 — только контекст запроса)
	PaymentConfirmTimeout time.Duration
	// Время жизни платёжной сессии в памяти
	PaymentSessionTTL time.Duration
	// Принимать txHash без проверки в сети, если RPC не настроен
	PaymentTrustClient bool

	// --- JWT ---

	// HS256-секрет для выдачи токенов
	JWTSecret string
	// true, если секрет сгенерирован при старте
	JWTSecretGenerated bool
	JWTTTL             time.Duration
	JWTIssuer          string
	JWTLeeway          time.Duration
	// JWKS внешнего IdP (опционально, RS256)
	JWKSURL             string
	JWKSRefreshInterval time.Duration
	JWKSClientTimeout   time.Duration

	// --- Пользователи ---

	// DSN PostgreSQL (пусто — пользователи в users.json)
	DBDSN             string
	SeedAdminPassword string
	SeedStaffPassword string
	RequireStaffAuth  bool
	LoginRateLimit    rate.Limit
	LoginRateBurst    int

	// --- topologymetrics ---

	DephealthGroup         string
	DephealthCheckInterval time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// FR_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("FR_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("FR_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("FR_PORT: значение %d вне диапазона 1-65535", cfg.Port)
	}

	cfg.LogLevel, err = parseLogLevel(getEnvDefault("FR_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("FR_LOG_LEVEL: %w", err)
	}

	cfg.LogFormat = getEnvDefault("FR_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("FR_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- HTTP Server Timeouts ---

	cfg.HTTPReadTimeout, err = getEnvDuration("FR_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_HTTP_READ_TIMEOUT: %w", err)
	}
	cfg.HTTPWriteTimeout, err = getEnvDuration("FR_HTTP_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("FR_HTTP_WRITE_TIMEOUT: %w", err)
	}
	cfg.HTTPIdleTimeout, err = getEnvDuration("FR_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_HTTP_IDLE_TIMEOUT: %w", err)
	}
	cfg.ShutdownTimeout, err = getEnvDuration("FR_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_SHUTDOWN_TIMEOUT: %w", err)
	}

	// --- Хранилище ---

	cfg.DataDir = getEnvDefault("FR_DATA_DIR", "data")

	// --- Удалённый каталог ---

	cfg.CatalogAPIURL = strings.TrimRight(os.Getenv("FR_CATALOG_API_URL"), "/")
	if cfg.CatalogAPIURL != "" {
		if err := validateHTTPURL(cfg.CatalogAPIURL); err != nil {
			return nil, fmt.Errorf("FR_CATALOG_API_URL: %w", err)
		}
	}
	cfg.CatalogAPIToken = os.Getenv("FR_CATALOG_API_TOKEN")
	cfg.CatalogAPITimeout, err = getEnvPositiveDuration("FR_CATALOG_API_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_CATALOG_API_TIMEOUT: %w", err)
	}
	cfg.CatalogAPIHealthPath = getEnvDefault("FR_CATALOG_API_HEALTH_PATH", "/films")
	cfg.CatalogCacheTTL, err = getEnvPositiveDuration("FR_CATALOG_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FR_CATALOG_CACHE_TTL: %w", err)
	}
	cfg.CatalogSyncSchedule = os.Getenv("FR_CATALOG_SYNC_SCHEDULE")
	if cfg.CatalogSyncSchedule != "" {
		if _, err := cron.ParseStandard(cfg.CatalogSyncSchedule); err != nil {
			return nil, fmt.Errorf("FR_CATALOG_SYNC_SCHEDULE: некорректное расписание %q: %w", cfg.CatalogSyncSchedule, err)
		}
	}

	// --- Оплата ---

	cfg.PaymentRecipient = getEnvDefault("FR_PAYMENT_RECIPIENT", DefaultPaymentRecipient)
	if !isHexAddress(cfg.PaymentRecipient) {
		return nil, fmt.Errorf("FR_PAYMENT_RECIPIENT: некорректный адрес %q", cfg.PaymentRecipient)
	}
	cfg.ChainRPCURL = os.Getenv("FR_CHAIN_RPC_URL")
	if cfg.ChainRPCURL != "" {
		if err := validateHTTPURL(cfg.ChainRPCURL); err != nil {
			return nil, fmt.Errorf("FR_CHAIN_RPC_URL: %w", err)
		}
	}
	cfg.ChainRPCTimeout, err = getEnvPositiveDuration("FR_CHAIN_RPC_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_CHAIN_RPC_TIMEOUT: %w", err)
	}
	cfg.ChainPollInterval, err = getEnvPositiveDuration("FR_CHAIN_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_CHAIN_POLL_INTERVAL: %w", err)
	}
	cfg.PaymentConfirmTimeout, err = getEnvDuration("FR_PAYMENT_CONFIRM_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("FR_PAYMENT_CONFIRM_TIMEOUT: %w", err)
	}
	cfg.PaymentSessionTTL, err = getEnvPositiveDuration("FR_PAYMENT_SESSION_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FR_PAYMENT_SESSION_TTL: %w", err)
	}
	cfg.PaymentTrustClient, err = getEnvBool("FR_PAYMENT_TRUST_CLIENT", false)
	if err != nil {
		return nil, fmt.Errorf("FR_PAYMENT_TRUST_CLIENT: %w", err)
	}

	// --- JWT ---

	cfg.JWTSecret = os.Getenv("FR_JWT_SECRET")
	if cfg.JWTSecret == "" {
		cfg.JWTSecret, err = randomSecret()
		if err != nil {
			return nil, fmt.Errorf("FR_JWT_SECRET: генерация секрета: %w", err)
		}
		cfg.JWTSecretGenerated = true
	} else if len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("FR_JWT_SECRET: минимальная длина 32 символа")
	}
	cfg.JWTTTL, err = getEnvPositiveDuration("FR_JWT_TTL", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("FR_JWT_TTL: %w", err)
	}
	cfg.JWTIssuer = getEnvDefault("FR_JWT_ISSUER", "filmrental")
	cfg.JWTLeeway, err = getEnvDuration("FR_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_JWT_LEEWAY: %w", err)
	}
	cfg.JWKSURL = os.Getenv("FR_JWKS_URL")
	if cfg.JWKSURL != "" {
		if err := validateHTTPURL(cfg.JWKSURL); err != nil {
			return nil, fmt.Errorf("FR_JWKS_URL: %w", err)
		}
	}
	cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("FR_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("FR_JWKS_REFRESH_INTERVAL: %w", err)
	}
	cfg.JWKSClientTimeout, err = getEnvPositiveDuration("FR_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// --- Пользователи ---

	cfg.DBDSN = os.Getenv("FR_DB_DSN")
	cfg.SeedAdminPassword = getEnvDefault("FR_SEED_ADMIN_PASSWORD", "password123")
	cfg.SeedStaffPassword = getEnvDefault("FR_SEED_STAFF_PASSWORD", "staffpass")
	cfg.RequireStaffAuth, err = getEnvBool("FR_REQUIRE_STAFF_AUTH", false)
	if err != nil {
		return nil, fmt.Errorf("FR_REQUIRE_STAFF_AUTH: %w", err)
	}

	// FR_LOGIN_RATE — попыток входа в секунду с одного адреса (по умолчанию 1)
	loginRate, err := getEnvFloat("FR_LOGIN_RATE", 1)
	if err != nil {
		return nil, fmt.Errorf("FR_LOGIN_RATE: %w", err)
	}
	if loginRate <= 0 {
		return nil, fmt.Errorf("FR_LOGIN_RATE: значение должно быть > 0")
	}
	cfg.LoginRateLimit = rate.Limit(loginRate)
	cfg.LoginRateBurst, err = getEnvInt("FR_LOGIN_BURST", 5)
	if err != nil {
		return nil, fmt.Errorf("FR_LOGIN_BURST: %w", err)
	}
	if cfg.LoginRateBurst < 1 {
		return nil, fmt.Errorf("FR_LOGIN_BURST: значение должно быть >= 1")
	}

	// --- topologymetrics ---

	cfg.DephealthGroup = getEnvDefault("FR_DEPHEALTH_GROUP", "filmrental")
	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("FR_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("FR_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	return cfg, nil
}

// CatalogEnabled — настроен ли удалённый API каталога.
func (c *Config) CatalogEnabled() bool {
	return c.CatalogAPIURL != ""
}

// ChainEnabled — настроен ли JSON-RPC узел.
func (c *Config) ChainEnabled() bool {
	return c.ChainRPCURL != ""
}

// DatabaseEnabled — используется ли PostgreSQL для пользователей.
func (c *Config) DatabaseEnabled() bool {
	return c.DBDSN != ""
}

// MigrateURL возвращает DSN в формате golang-migrate (схема pgx5://).
func (c *Config) MigrateURL() string {
	dsn := c.DBDSN
	for _, prefix := range []string{"postgres://", "postgresql://"} {
		if strings.HasPrefix(dsn, prefix) {
			return "pgx5://" + strings.TrimPrefix(dsn, prefix)
		}
	}
	return dsn
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное число: %q", val)
	}
	return f, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 15m)", val)
	}
	if d < 0 {
		return 0, fmt.Errorf("значение должно быть >= 0")
	}
	return d, nil
}

// getEnvPositiveDuration — как getEnvDuration, но значение должно быть > 0.
func getEnvPositiveDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	d, err := getEnvDuration(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("значение должно быть > 0")
	}
	return d, nil
}

// getEnvBool возвращает булево значение переменной окружения или значение по умолчанию.
func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("некорректное булево значение: %q (допустимые: true, false, 1, 0)", val)
	}
	return b, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// validateHTTPURL проверяет, что строка — абсолютный http(s) URL.
func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("некорректный URL %q: %w", raw, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL %q: ожидается схема http или https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("URL %q: отсутствует хост", raw)
	}
	return nil
}

// isHexAddress проверяет формат EVM-адреса: 0x + 40 hex-символов.
func isHexAddress(s string) bool {
	if len(s) != 42 || !strings.HasPrefix(strings.ToLower(s), "0x") {
		return false
	}
	_, err := hex.DecodeString(s[2:])
	return err == nil
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
