// Пакет config — загрузка и валидация конфигурации SRM Manager
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации SRM Manager.
type Config struct {
	// --- Сервер ---

	// Порт HTTP-сервера (по умолчанию 8040)
	Port int
	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// --- Хранилище и движок передачи ---

	// Корневой каталог хранилища, в который отображаются SURL
	DataDir string
	// Ёмкость хранилища для резервирований, байты
	MaxCapacity int64
	// Базовый URL для выдачи TURL (например, https://srm.kryukov.lan/data)
	TransferURLBase string
	// Поддерживаемые протоколы передачи (srmGetTransferProtocols)
	TransferProtocols []string
	// Число рабочих горутин движка
	EngineWorkers int
	// Максимальное число файлов в одном запросе (0 — без ограничения)
	MaxFilesPerRequest int

	// --- Сроки жизни запросов ---

	// Время жизни запроса по умолчанию для каждого типа
	GetLifetime         time.Duration
	PutLifetime         time.Duration
	CopyLifetime        time.Duration
	BringOnlineLifetime time.Duration
	LsLifetime          time.Duration
	// Верхняя граница desiredTotalRequestTime (0 — без ограничения)
	MaxRequestLifetime time.Duration

	// --- Сроки закрепления, файлов и резервирований ---

	// Время закрепления файла по умолчанию
	PinLifetime time.Duration
	// Верхняя граница времени закрепления
	MaxPinLifetime time.Duration
	// Время жизни файла по умолчанию (0 — бессрочно)
	FileLifetime time.Duration
	// Верхняя граница времени жизни файла (0 — без ограничения)
	MaxFileLifetime time.Duration
	// Время жизни резервирования по умолчанию
	SpaceLifetime time.Duration
	// Верхняя граница времени жизни резервирования
	MaxSpaceLifetime time.Duration

	// --- Фоновые процессы ---

	// Интервал проверки истёкших запросов и закреплений
	SweepInterval time.Duration
	// Интервал очистки истёкших резервирований
	SpacePurgeInterval time.Duration
	// Сколько завершённый запрос хранится в памяти до выгрузки в архив
	FinishedRequestRetention time.Duration
	// Подсказка клиенту об интервале опроса статуса
	EstimatedWait time.Duration

	// --- PostgreSQL (опционально) ---

	// Хост PostgreSQL; пустой — работа без персистентности
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Имя пользователя PostgreSQL
	DBUser string
	// Пароль пользователя PostgreSQL
	DBPassword string
	// Режим SSL: disable, require, verify-ca, verify-full
	DBSSLMode string

	// --- Архив запросов ---

	// Размер LRU-кэша архивных запросов
	ArchiveCacheSize int
	// TTL записей кэша архивных запросов
	ArchiveCacheTTL time.Duration

	// --- JWT (опционально) ---

	// URL JWKS endpoint; пустой — аутентификация отключена
	JWKSURL string
	// Ожидаемый issuer JWT; пустой — issuer не проверяется
	JWTIssuer string
	// Таймаут HTTP-клиента JWKS
	JWKSClientTimeout time.Duration
	// Интервал обновления ключей JWKS
	JWKSRefreshInterval time.Duration
	// Допустимое расхождение часов при проверке exp/nbf
	JWTLeeway time.Duration

	// --- topologymetrics ---

	// Имя группы в метриках зависимостей
	DephealthGroup string
	// Интервал проверки зависимостей
	DephealthCheckInterval time.Duration

	// --- HTTP Server Timeouts ---

	// Таймаут чтения HTTP-сервера (по умолчанию 30s)
	HTTPReadTimeout time.Duration
	// Таймаут записи HTTP-сервера (по умолчанию 60s)
	HTTPWriteTimeout time.Duration
	// Таймаут простоя HTTP-сервера (по умолчанию 120s)
	HTTPIdleTimeout time.Duration

	// --- Graceful shutdown ---

	// Таймаут graceful shutdown (по умолчанию 5s)
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения.
// Возвращает ошибку, если обязательные переменные не заданы
// или значения некорректны.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// --- Сервер ---

	// SRM_PORT — порт HTTP-сервера (по умолчанию 8040)
	cfg.Port, err = getEnvInt("SRM_PORT", 8040)
	if err != nil {
		return nil, fmt.Errorf("SRM_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("SRM_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// SRM_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("SRM_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("SRM_LOG_LEVEL: %w", err)
	}

	// SRM_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("SRM_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("SRM_LOG_FORMAT: недопустимый формат %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- Хранилище и движок передачи ---

	// SRM_DATA_DIR — обязательный
	cfg.DataDir, err = getEnvRequired("SRM_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// SRM_MAX_CAPACITY — обязательный, ёмкость хранилища в байтах
	cfg.MaxCapacity, err = getEnvInt64Required("SRM_MAX_CAPACITY")
	if err != nil {
		return nil, err
	}

	// SRM_TRANSFER_URL_BASE — базовый URL TURL (по умолчанию file://<data dir>)
	cfg.TransferURLBase = strings.TrimRight(getEnvDefault("SRM_TRANSFER_URL_BASE", "file://"+cfg.DataDir), "/")

	// SRM_TRANSFER_PROTOCOLS — протоколы передачи (по умолчанию "file,https")
	cfg.TransferProtocols = parseCSV(getEnvDefault("SRM_TRANSFER_PROTOCOLS", "file,https"))
	if len(cfg.TransferProtocols) == 0 {
		return nil, fmt.Errorf("SRM_TRANSFER_PROTOCOLS: пустой список протоколов")
	}

	// SRM_ENGINE_WORKERS — число рабочих горутин движка (по умолчанию 4)
	cfg.EngineWorkers, err = getEnvInt("SRM_ENGINE_WORKERS", 4)
	if err != nil {
		return nil, fmt.Errorf("SRM_ENGINE_WORKERS: %w", err)
	}
	if cfg.EngineWorkers < 1 || cfg.EngineWorkers > 256 {
		return nil, fmt.Errorf("SRM_ENGINE_WORKERS: значение %d вне допустимого диапазона 1-256", cfg.EngineWorkers)
	}

	// SRM_MAX_FILES_PER_REQUEST — предел числа файлов в запросе (по умолчанию 1000)
	cfg.MaxFilesPerRequest, err = getEnvInt("SRM_MAX_FILES_PER_REQUEST", 1000)
	if err != nil {
		return nil, fmt.Errorf("SRM_MAX_FILES_PER_REQUEST: %w", err)
	}
	if cfg.MaxFilesPerRequest < 0 {
		return nil, fmt.Errorf("SRM_MAX_FILES_PER_REQUEST: значение должно быть >= 0")
	}

	// --- Сроки жизни запросов (по умолчанию 24h для каждого типа) ---

	lifetimes := []struct {
		key string
		dst *time.Duration
	}{
		{"SRM_GET_LIFETIME", &cfg.GetLifetime},
		{"SRM_PUT_LIFETIME", &cfg.PutLifetime},
		{"SRM_COPY_LIFETIME", &cfg.CopyLifetime},
		{"SRM_BRING_ONLINE_LIFETIME", &cfg.BringOnlineLifetime},
		{"SRM_LS_LIFETIME", &cfg.LsLifetime},
	}
	for _, lt := range lifetimes {
		*lt.dst, err = getEnvPositiveDuration(lt.key, 24*time.Hour)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", lt.key, err)
		}
	}

	// SRM_MAX_REQUEST_LIFETIME — верхняя граница (по умолчанию 7 суток)
	cfg.MaxRequestLifetime, err = getEnvDuration("SRM_MAX_REQUEST_LIFETIME", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SRM_MAX_REQUEST_LIFETIME: %w", err)
	}

	// --- Сроки закрепления, файлов и резервирований ---

	// SRM_PIN_LIFETIME — время закрепления по умолчанию (по умолчанию 4h)
	cfg.PinLifetime, err = getEnvPositiveDuration("SRM_PIN_LIFETIME", 4*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SRM_PIN_LIFETIME: %w", err)
	}

	// SRM_MAX_PIN_LIFETIME — верхняя граница закрепления (по умолчанию 7 суток)
	cfg.MaxPinLifetime, err = getEnvDuration("SRM_MAX_PIN_LIFETIME", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SRM_MAX_PIN_LIFETIME: %w", err)
	}
	if cfg.MaxPinLifetime > 0 && cfg.MaxPinLifetime < cfg.PinLifetime {
		return nil, fmt.Errorf("SRM_MAX_PIN_LIFETIME (%s) меньше SRM_PIN_LIFETIME (%s)", cfg.MaxPinLifetime, cfg.PinLifetime)
	}

	// SRM_FILE_LIFETIME — время жизни файла по умолчанию (по умолчанию 0 — бессрочно)
	cfg.FileLifetime, err = getEnvDuration("SRM_FILE_LIFETIME", 0)
	if err != nil {
		return nil, fmt.Errorf("SRM_FILE_LIFETIME: %w", err)
	}

	// SRM_MAX_FILE_LIFETIME — верхняя граница времени жизни файла (по умолчанию без ограничения)
	cfg.MaxFileLifetime, err = getEnvDuration("SRM_MAX_FILE_LIFETIME", 0)
	if err != nil {
		return nil, fmt.Errorf("SRM_MAX_FILE_LIFETIME: %w", err)
	}

	// SRM_SPACE_LIFETIME — время жизни резервирования по умолчанию (по умолчанию 24h)
	cfg.SpaceLifetime, err = getEnvPositiveDuration("SRM_SPACE_LIFETIME", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SRM_SPACE_LIFETIME: %w", err)
	}

	// SRM_MAX_SPACE_LIFETIME — верхняя граница (по умолчанию 30 суток)
	cfg.MaxSpaceLifetime, err = getEnvDuration("SRM_MAX_SPACE_LIFETIME", 30*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SRM_MAX_SPACE_LIFETIME: %w", err)
	}

	// --- Фоновые процессы ---

	// SRM_SWEEP_INTERVAL — интервал проверки истёкших запросов (по умолчанию 30s)
	cfg.SweepInterval, err = getEnvPositiveDuration("SRM_SWEEP_INTERVAL", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_SWEEP_INTERVAL: %w", err)
	}

	// SRM_SPACE_PURGE_INTERVAL — интервал очистки резервирований (по умолчанию 1m)
	cfg.SpacePurgeInterval, err = getEnvPositiveDuration("SRM_SPACE_PURGE_INTERVAL", time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SRM_SPACE_PURGE_INTERVAL: %w", err)
	}

	// SRM_FINISHED_REQUEST_RETENTION — хранение завершённых запросов в памяти (по умолчанию 1h)
	cfg.FinishedRequestRetention, err = getEnvPositiveDuration("SRM_FINISHED_REQUEST_RETENTION", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("SRM_FINISHED_REQUEST_RETENTION: %w", err)
	}

	// SRM_ESTIMATED_WAIT — подсказка об интервале опроса (по умолчанию 5s)
	cfg.EstimatedWait, err = getEnvDuration("SRM_ESTIMATED_WAIT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_ESTIMATED_WAIT: %w", err)
	}

	// --- PostgreSQL (опционально) ---

	// SRM_DB_HOST — если не задан, запросы и резервирования хранятся только в памяти
	cfg.DBHost = getEnvDefault("SRM_DB_HOST", "")
	if cfg.DBHost != "" {
		// SRM_DB_PORT — порт PostgreSQL (по умолчанию 5432)
		cfg.DBPort, err = getEnvInt("SRM_DB_PORT", 5432)
		if err != nil {
			return nil, fmt.Errorf("SRM_DB_PORT: %w", err)
		}

		// SRM_DB_NAME, SRM_DB_USER, SRM_DB_PASSWORD — обязательные при заданном хосте
		if cfg.DBName, err = getEnvRequired("SRM_DB_NAME"); err != nil {
			return nil, err
		}
		if cfg.DBUser, err = getEnvRequired("SRM_DB_USER"); err != nil {
			return nil, err
		}
		if cfg.DBPassword, err = getEnvRequired("SRM_DB_PASSWORD"); err != nil {
			return nil, err
		}

		// SRM_DB_SSL_MODE — режим SSL (по умолчанию disable)
		cfg.DBSSLMode = getEnvDefault("SRM_DB_SSL_MODE", "disable")
		validSSLModes := map[string]bool{
			"disable": true, "require": true, "verify-ca": true, "verify-full": true,
		}
		if !validSSLModes[cfg.DBSSLMode] {
			return nil, fmt.Errorf("SRM_DB_SSL_MODE: недопустимое значение %q, допустимые: disable, require, verify-ca, verify-full", cfg.DBSSLMode)
		}
	}

	// --- Архив запросов ---

	// SRM_ARCHIVE_CACHE_SIZE — размер кэша архивных запросов (по умолчанию 1000)
	cfg.ArchiveCacheSize, err = getEnvInt("SRM_ARCHIVE_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("SRM_ARCHIVE_CACHE_SIZE: %w", err)
	}
	if cfg.ArchiveCacheSize < 1 {
		return nil, fmt.Errorf("SRM_ARCHIVE_CACHE_SIZE: значение должно быть > 0")
	}

	// SRM_ARCHIVE_CACHE_TTL — TTL записей кэша (по умолчанию 10m)
	cfg.ArchiveCacheTTL, err = getEnvPositiveDuration("SRM_ARCHIVE_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SRM_ARCHIVE_CACHE_TTL: %w", err)
	}

	// --- JWT (опционально) ---

	// SRM_JWKS_URL — если не задан, аутентификация отключена
	cfg.JWKSURL = getEnvDefault("SRM_JWKS_URL", "")

	// SRM_JWT_ISSUER — ожидаемый issuer (по умолчанию не проверяется)
	cfg.JWTIssuer = getEnvDefault("SRM_JWT_ISSUER", "")

	// SRM_JWKS_CLIENT_TIMEOUT — таймаут запроса ключей (по умолчанию 10s)
	cfg.JWKSClientTimeout, err = getEnvPositiveDuration("SRM_JWKS_CLIENT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_JWKS_CLIENT_TIMEOUT: %w", err)
	}

	// SRM_JWKS_REFRESH_INTERVAL — интервал обновления ключей (по умолчанию 15m)
	cfg.JWKSRefreshInterval, err = getEnvPositiveDuration("SRM_JWKS_REFRESH_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("SRM_JWKS_REFRESH_INTERVAL: %w", err)
	}

	// SRM_JWT_LEEWAY — допуск расхождения часов (по умолчанию 5s)
	cfg.JWTLeeway, err = getEnvDuration("SRM_JWT_LEEWAY", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_JWT_LEEWAY: %w", err)
	}

	// --- topologymetrics ---

	// SRM_DEPHEALTH_GROUP — группа в метриках зависимостей (по умолчанию srm)
	cfg.DephealthGroup = getEnvDefault("SRM_DEPHEALTH_GROUP", "srm")

	// SRM_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvPositiveDuration("SRM_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// --- HTTP Server Timeouts ---

	// SRM_HTTP_READ_TIMEOUT — таймаут чтения (по умолчанию 30s)
	cfg.HTTPReadTimeout, err = getEnvDuration("SRM_HTTP_READ_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_HTTP_READ_TIMEOUT: %w", err)
	}

	// SRM_HTTP_WRITE_TIMEOUT — таймаут записи (по умолчанию 60s)
	cfg.HTTPWriteTimeout, err = getEnvDuration("SRM_HTTP_WRITE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_HTTP_WRITE_TIMEOUT: %w", err)
	}

	// SRM_HTTP_IDLE_TIMEOUT — таймаут простоя (по умолчанию 120s)
	cfg.HTTPIdleTimeout, err = getEnvDuration("SRM_HTTP_IDLE_TIMEOUT", 120*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_HTTP_IDLE_TIMEOUT: %w", err)
	}

	// --- Graceful shutdown ---

	// SRM_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("SRM_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("SRM_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// PersistenceEnabled — задано подключение к PostgreSQL.
func (c *Config) PersistenceEnabled() bool {
	return c.DBHost != ""
}

// AuthEnabled — задан JWKS endpoint, запросы требуют JWT.
func (c *Config) AuthEnabled() bool {
	return c.JWKSURL != ""
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL возвращает URL PostgreSQL без пароля (для меток метрик зависимостей).
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%d/%s", c.DBHost, c.DBPort, c.DBName)
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

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

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

// getEnvInt64Required возвращает обязательное int64 значение переменной окружения.
// Возвращает ошибку, если переменная не задана или значение некорректное (<=0).
func getEnvInt64Required(key string) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return 0, fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: некорректное целое число: %q", key, val)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s: значение должно быть положительным, получено %d", key, n)
	}
	return n, nil
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

// parseCSV разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func parseCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
