package config

import (
	"log/slog"
	"strings"
	"testing"
	"time"
)

// setEnvs устанавливает переменные окружения на время теста.
func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

// minimalEnvs возвращает минимальный набор обязательных переменных.
func minimalEnvs() map[string]string {
	return map[string]string{
		"SRM_DATA_DIR":     "/var/lib/srm",
		"SRM_MAX_CAPACITY": "1099511627776",
	}
}

func TestLoad_MinimalConfig(t *testing.T) {
	setEnvs(t, minimalEnvs())

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}

	// Проверяем значения по умолчанию
	if cfg.Port != 8040 {
		t.Errorf("Port = %d, ожидается 8040", cfg.Port)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидается Info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидается json", cfg.LogFormat)
	}
	if cfg.MaxCapacity != 1<<40 {
		t.Errorf("MaxCapacity = %d, ожидается 1 TiB", cfg.MaxCapacity)
	}
	if cfg.TransferURLBase != "file:///var/lib/srm" {
		t.Errorf("TransferURLBase = %q", cfg.TransferURLBase)
	}
	if len(cfg.TransferProtocols) != 2 || cfg.TransferProtocols[0] != "file" {
		t.Errorf("TransferProtocols = %v, ожидается [file https]", cfg.TransferProtocols)
	}
	for name, d := range map[string]time.Duration{
		"GetLifetime":         cfg.GetLifetime,
		"PutLifetime":         cfg.PutLifetime,
		"CopyLifetime":        cfg.CopyLifetime,
		"BringOnlineLifetime": cfg.BringOnlineLifetime,
		"LsLifetime":          cfg.LsLifetime,
		"SpaceLifetime":       cfg.SpaceLifetime,
	} {
		if d != 24*time.Hour {
			t.Errorf("%s = %s, ожидается 24h", name, d)
		}
	}
	if cfg.PinLifetime != 4*time.Hour {
		t.Errorf("PinLifetime = %s, ожидается 4h", cfg.PinLifetime)
	}
	if cfg.FileLifetime != 0 {
		t.Errorf("FileLifetime = %s, ожидается 0", cfg.FileLifetime)
	}
	if cfg.PersistenceEnabled() {
		t.Error("без SRM_DB_HOST персистентность должна быть отключена")
	}
	if cfg.AuthEnabled() {
		t.Error("без SRM_JWKS_URL аутентификация должна быть отключена")
	}
	if cfg.ShutdownTimeout != 5*time.Second {
		t.Errorf("ShutdownTimeout = %s, ожидается 5s", cfg.ShutdownTimeout)
	}
}

func TestLoad_Database(t *testing.T) {
	setEnvs(t, minimalEnvs())
	setEnvs(t, map[string]string{
		"SRM_DB_HOST":     "pg.kryukov.lan",
		"SRM_DB_NAME":     "srm",
		"SRM_DB_USER":     "srm",
		"SRM_DB_PASSWORD": "secret",
	})

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() вернул ошибку: %v", err)
	}
	if !cfg.PersistenceEnabled() {
		t.Fatal("персистентность должна быть включена")
	}
	want := "host=pg.kryukov.lan port=5432 dbname=srm user=srm password=secret sslmode=disable"
	if got := cfg.DatabaseDSN(); got != want {
		t.Errorf("DatabaseDSN() = %q, ожидается %q", got, want)
	}
	if got := cfg.DatabaseURL(); strings.Contains(got, "secret") {
		t.Errorf("DatabaseURL() не должен содержать пароль: %q", got)
	}
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name    string
		envs    map[string]string
		wantErr string
	}{
		{"нет SRM_DATA_DIR", map[string]string{"SRM_DATA_DIR": ""}, "SRM_DATA_DIR"},
		{"нет SRM_MAX_CAPACITY", map[string]string{"SRM_MAX_CAPACITY": ""}, "SRM_MAX_CAPACITY"},
		{"отрицательная ёмкость", map[string]string{"SRM_MAX_CAPACITY": "-1"}, "SRM_MAX_CAPACITY"},
		{"некорректный порт", map[string]string{"SRM_PORT": "abc"}, "SRM_PORT"},
		{"порт вне диапазона", map[string]string{"SRM_PORT": "70000"}, "SRM_PORT"},
		{"некорректный уровень", map[string]string{"SRM_LOG_LEVEL": "verbose"}, "SRM_LOG_LEVEL"},
		{"некорректный формат", map[string]string{"SRM_LOG_FORMAT": "xml"}, "SRM_LOG_FORMAT"},
		{"нулевой интервал", map[string]string{"SRM_SWEEP_INTERVAL": "0s"}, "SRM_SWEEP_INTERVAL"},
		{"некорректная длительность", map[string]string{"SRM_GET_LIFETIME": "сутки"}, "SRM_GET_LIFETIME"},
		{"максимум меньше умолчания", map[string]string{"SRM_MAX_PIN_LIFETIME": "1h"}, "SRM_MAX_PIN_LIFETIME"},
		{"нет пароля БД", map[string]string{
			"SRM_DB_HOST": "localhost", "SRM_DB_NAME": "srm", "SRM_DB_USER": "srm",
		}, "SRM_DB_PASSWORD"},
		{"недопустимый sslmode", map[string]string{
			"SRM_DB_HOST": "localhost", "SRM_DB_NAME": "srm", "SRM_DB_USER": "srm",
			"SRM_DB_PASSWORD": "x", "SRM_DB_SSL_MODE": "prefer",
		}, "SRM_DB_SSL_MODE"},
		{"нулевой воркер", map[string]string{"SRM_ENGINE_WORKERS": "0"}, "SRM_ENGINE_WORKERS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, minimalEnvs())
			setEnvs(t, tt.envs)

			_, err := Load()
			if err == nil {
				t.Fatal("ожидалась ошибка")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ошибка %q не упоминает %s", err, tt.wantErr)
			}
		})
	}
}

func TestParseCSV(t *testing.T) {
	got := parseCSV(" file , ,https,gsiftp ")
	want := []string{"file", "https", "gsiftp"}
	if len(got) != len(want) {
		t.Fatalf("parseCSV = %v, ожидается %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("[%d] = %q, ожидается %q", i, got[i], want[i])
		}
	}
	if parseCSV("") != nil {
		t.Error("пустая строка должна давать nil")
	}
}
