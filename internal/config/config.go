package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"polytrade/pkg/crypto"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Exchange ExchangeConfig
	Bot      BotConfig
	Logging  LoggingConfig
}

// ServerConfig - настройки HTTP сервера
type ServerConfig struct {
	Port            int
	Host            string
	UseHTTPS        bool
	CertFile        string
	KeyFile         string
	ShutdownTimeout time.Duration

	// AllowedOrigins - origins браузера через запятую для CORS и /ws/stream, пусто - все
	AllowedOrigins string
}

// DatabaseConfig - настройки подключения к БД
type DatabaseConfig struct {
	Driver       string
	Host         string
	Port         int
	Name         string
	User         string
	Password     string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

// SecurityConfig - настройки безопасности
type SecurityConfig struct {
	// EncryptionKey - ключ AES-256 для API ключей аккаунтов (32 байта или base64)
	EncryptionKey string
	// AppUser/AppPasswordHash - basic auth панели. Пустой хеш - доступ без пароля.
	AppUser         string
	AppPasswordHash string
}

// ExchangeConfig - параметры REST клиентов биржи
type ExchangeConfig struct {
	RateLimit float64       // weight в секунду на API ключ
	RateBurst float64       // ёмкость ведра
	InfoTTL   time.Duration // время жизни кеша exchangeInfo
	Testnet   bool          // публичные рыночные данные с testnet
}

// BotConfig - тайминги торгового ядра
type BotConfig struct {
	LegDelay             time.Duration // пауза между ногами пакета
	SettleDelay          time.Duration // пауза после пакета, чтобы позиции появились в positionRisk
	RestartSettle        time.Duration // пауза между остановкой и запуском стрим-воркера
	StreamReconnectDelay time.Duration // фиксированная пауза перед переподключением потока
	StreamReadTimeout    time.Duration // тишина в потоке дольше этого - обрыв
	OrderTimeout         time.Duration // таймаут одного компенсирующего ордера
	EventBuffer          int           // буфер канала подписчика событий
	BalanceUpdateFreq    time.Duration // обновление балансов аккаунтов (0 - выключено)
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level       string
	Format      string
	Output      string
	Development bool
}

// Load загружает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnvAsInt("SERVER_PORT", 8080),
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS:        getEnvAsBool("USE_HTTPS", false),
			CertFile:        getEnv("CERT_FILE", ""),
			KeyFile:         getEnv("KEY_FILE", ""),
			ShutdownTimeout: getEnvAsDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			AllowedOrigins:  getEnv("ALLOWED_ORIGINS", ""),
		},
		Database: DatabaseConfig{
			Driver:       getEnv("DB_DRIVER", "postgres"),
			Host:         getEnv("DB_HOST", "localhost"),
			Port:         getEnvAsInt("DB_PORT", 5432),
			Name:         getEnv("DB_NAME", "polytrade"),
			User:         getEnv("DB_USER", "user"),
			Password:     getEnv("DB_PASSWORD", "password"),
			SSLMode:      getEnv("DB_SSL_MODE", "disable"),
			MaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
		},
		Security: SecurityConfig{
			EncryptionKey:   getEnv("ENCRYPTION_KEY", ""),
			AppUser:         getEnv("APP_USER", "admin"),
			AppPasswordHash: getEnv("APP_PASSWORD_HASH", ""),
		},
		Exchange: ExchangeConfig{
			RateLimit: getEnvAsFloat("BINANCE_RATE_LIMIT", 40),
			RateBurst: getEnvAsFloat("BINANCE_RATE_BURST", 80),
			InfoTTL:   getEnvAsDuration("BINANCE_INFO_TTL", time.Hour),
			Testnet:   getEnvAsBool("BINANCE_TESTNET", false),
		},
		Bot: BotConfig{
			LegDelay:             getEnvAsDuration("LEG_DELAY", 100*time.Millisecond),
			SettleDelay:          getEnvAsDuration("SETTLE_DELAY", 1500*time.Millisecond),
			RestartSettle:        getEnvAsDuration("RESTART_SETTLE", 0),
			StreamReconnectDelay: getEnvAsDuration("STREAM_RECONNECT_DELAY", 5*time.Second),
			StreamReadTimeout:    getEnvAsDuration("STREAM_READ_TIMEOUT", 60*time.Second),
			OrderTimeout:         getEnvAsDuration("ORDER_TIMEOUT", 10*time.Second),
			EventBuffer:          getEnvAsInt("EVENT_BUFFER", 256),
			BalanceUpdateFreq:    getEnvAsDuration("BALANCE_UPDATE_FREQ", 0),
		},
		Logging: LoggingConfig{
			Level:       getEnv("LOG_LEVEL", "info"),
			Format:      getEnv("LOG_FORMAT", "json"),
			Output:      getEnv("LOG_OUTPUT", "stdout"),
			Development: getEnvAsBool("LOG_DEVELOPMENT", false),
		},
	}

	// APP_PASSWORD в открытом виде хешируется при старте
	if cfg.Security.AppPasswordHash == "" {
		if plain := os.Getenv("APP_PASSWORD"); plain != "" {
			hash, err := crypto.HashPassword(plain, crypto.DefaultCost)
			if err != nil {
				return nil, fmt.Errorf("APP_PASSWORD: %w", err)
			}
			cfg.Security.AppPasswordHash = hash
		}
	}

	if err := cfg.validateSecurity(); err != nil {
		return nil, err
	}

	if err := cfg.validateRanges(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// EncryptionKeyBytes возвращает ключ шифрования в виде 32 байт
func (c *Config) EncryptionKeyBytes() ([]byte, error) {
	return crypto.ParseKey(c.Security.EncryptionKey)
}

// validateSecurity проверяет параметры безопасности
func (c *Config) validateSecurity() error {
	if c.Security.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting API keys")
	}

	if _, err := c.EncryptionKeyBytes(); err != nil {
		return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes or base64 of 32 bytes for AES-256")
	}

	if c.Security.AppPasswordHash != "" && !crypto.IsBcryptHash(c.Security.AppPasswordHash) {
		return fmt.Errorf("APP_PASSWORD_HASH is not a bcrypt hash")
	}

	return nil
}

// validateRanges проверяет числовые диапазоны параметров
func (c *Config) validateRanges() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("DB_PORT must be between 1 and 65535, got %d", c.Database.Port)
	}

	if c.Bot.LegDelay < 0 || c.Bot.SettleDelay < 0 || c.Bot.RestartSettle < 0 {
		return fmt.Errorf("LEG_DELAY, SETTLE_DELAY and RESTART_SETTLE cannot be negative")
	}

	if c.Bot.StreamReconnectDelay <= 0 {
		return fmt.Errorf("STREAM_RECONNECT_DELAY must be positive, got %v", c.Bot.StreamReconnectDelay)
	}

	if c.Bot.OrderTimeout <= 0 {
		return fmt.Errorf("ORDER_TIMEOUT must be positive, got %v", c.Bot.OrderTimeout)
	}

	if c.Bot.EventBuffer < 1 {
		return fmt.Errorf("EVENT_BUFFER must be at least 1, got %d", c.Bot.EventBuffer)
	}

	if c.Exchange.RateLimit <= 0 {
		return fmt.Errorf("BINANCE_RATE_LIMIT must be positive, got %v", c.Exchange.RateLimit)
	}

	return nil
}

// DSN возвращает строку подключения к базе данных
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode)
}

// DSNWithoutPassword возвращает строку подключения без пароля (для логирования)
func (d DatabaseConfig) DSNWithoutPassword() string {
	return fmt.Sprintf("host=%s port=%d user=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Name, d.SSLMode)
}

// Addr возвращает адрес для http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	value, err := strconv.ParseFloat(getEnv(key, ""), 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration принимает "1.5s", "100ms" или число секунд ("1.5")
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	if secs, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return time.Duration(secs * float64(time.Second))
	}
	return defaultValue
}
