// SRM Token Issuer — выпуск тестовых JWT для SRM Manager в dev-среде.
// Генерирует RSA ключевую пару при старте, отдаёт JWKS по GET /jwks и
// подписывает токены со scope srm:read / srm:write по POST /token.
// SRM Manager подключается к нему через SRM_JWKS_URL=http://<host>:<port>/jwks.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/srm-manager/internal/api/errors"
	"github.com/bigkaa/srm-manager/internal/api/middleware"
)

// keyID — идентификатор единственного ключа подписи.
const keyID = "srm-dev-key"

// issuerConfig — параметры из переменных окружения.
type issuerConfig struct {
	Port       string        // ISSUER_PORT — порт HTTP-сервера (по умолчанию 8090)
	Issuer     string        // ISSUER_NAME — значение iss (должно совпадать с SRM_JWT_ISSUER)
	KeySize    int           // ISSUER_KEY_SIZE — размер RSA ключа (по умолчанию 2048)
	DefaultTTL time.Duration // ISSUER_DEFAULT_TTL — время жизни токена по умолчанию
}

func loadConfig() issuerConfig {
	cfg := issuerConfig{
		Port:       envOrDefault("ISSUER_PORT", "8090"),
		Issuer:     envOrDefault("ISSUER_NAME", "srm-token-issuer"),
		KeySize:    2048,
		DefaultTTL: time.Hour,
	}
	if v := os.Getenv("ISSUER_KEY_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size >= 2048 {
			cfg.KeySize = size
		}
	}
	if v := os.Getenv("ISSUER_DEFAULT_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil && ttl > 0 {
			cfg.DefaultTTL = ttl
		}
	}
	return cfg
}

func envOrDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// jwk — публичный RSA ключ в формате RFC 7517.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	Use string `json:"use"`
	Alg string `json:"alg"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// publicJWKS сериализует JWKS с одним ключом подписи.
func publicJWKS(pub *rsa.PublicKey) ([]byte, error) {
	return json.Marshal(map[string][]jwk{
		"keys": {{
			Kty: "RSA",
			Kid: keyID,
			Use: "sig",
			Alg: "RS256",
			N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
			E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
		}},
	})
}

// tokenRequest — тело POST /token. Пустой scopes — оба scope SRM.
type tokenRequest struct {
	Sub        string   `json:"sub"`
	Username   string   `json:"preferred_username"`
	Scopes     []string `json:"scopes"`
	TTLSeconds int      `json:"ttl_seconds"`
}

type tokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int64  `json:"expires_in"`
}

// issuer — состояние сервиса: ключ подписи и кэшированный JWKS.
type issuer struct {
	cfg    issuerConfig
	key    *rsa.PrivateKey
	jwks   []byte
	now    func() time.Time
	logger *slog.Logger
}

func (s *issuer) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	_, _ = w.Write(s.jwks)
}

func (s *issuer) handleToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Невалидный JSON: "+err.Error())
		return
	}
	if req.Sub == "" {
		apierrors.ValidationError(w, "Поле 'sub' обязательно")
		return
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{middleware.ScopeRead, middleware.ScopeWrite}
	}
	ttl := s.cfg.DefaultTTL
	if req.TTLSeconds > 0 {
		ttl = time.Duration(req.TTLSeconds) * time.Second
	}

	signed, err := s.sign(req.Sub, req.Username, scopes, ttl)
	if err != nil {
		s.logger.Error("Ошибка подписи JWT", slog.String("error", err.Error()))
		apierrors.InternalError(w, "Ошибка генерации токена")
		return
	}

	s.logger.Info("Токен выдан",
		slog.String("sub", req.Sub),
		slog.String("scope", strings.Join(scopes, " ")),
		slog.Duration("ttl", ttl),
	)

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(tokenResponse{Token: signed, ExpiresIn: int64(ttl.Seconds())})
}

// sign подписывает токен в формате, который принимает middleware.JWTAuth:
// RS256, kid в заголовке, scope — строка через пробел.
func (s *issuer) sign(sub, username string, scopes []string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := middleware.Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		PreferredUsername: username,
		ScopeString:       strings.Join(scopes, " "),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = keyID
	return token.SignedString(s.key)
}

func (s *issuer) router() http.Handler {
	r := chi.NewRouter()
	r.Get("/jwks", s.handleJWKS)
	r.Post("/token", s.handleToken)
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	return r
}

func newIssuer(cfg issuerConfig, logger *slog.Logger) (*issuer, error) {
	key, err := rsa.GenerateKey(rand.Reader, cfg.KeySize)
	if err != nil {
		return nil, err
	}
	jwks, err := publicJWKS(&key.PublicKey)
	if err != nil {
		return nil, err
	}
	return &issuer{cfg: cfg, key: key, jwks: jwks, now: time.Now, logger: logger}, nil
}

func main() {
	cfg := loadConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	logger.Info("Генерация RSA ключевой пары", slog.Int("key_size", cfg.KeySize))
	s, err := newIssuer(cfg, logger)
	if err != nil {
		logger.Error("Ошибка инициализации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           s.router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger.Info("SRM Token Issuer запущен (HTTP, только для dev-среды)",
		slog.String("addr", srv.Addr),
		slog.String("issuer", cfg.Issuer),
	)
	if err := srv.ListenAndServe(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
