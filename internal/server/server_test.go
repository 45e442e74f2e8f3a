package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/MicahParks/keyfunc/v3"

	"github.com/bigkaa/srm-manager/internal/api/handlers"
	"github.com/bigkaa/srm-manager/internal/api/middleware"
)

func newTestRouter(t *testing.T, withAuth bool) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	var jwtAuth *middleware.JWTAuth
	if withAuth {
		kf, err := keyfunc.NewJWKSetJSON(json.RawMessage(`{"keys":[]}`))
		if err != nil {
			t.Fatal(err)
		}
		jwtAuth = middleware.NewJWTAuthWithKeyfunc(kf, "", time.Second, logger)
	}

	srm := handlers.NewSRMHandler(nil, nil, nil, []string{"file"}, logger)
	return NewRouter(logger, srm, handlers.NewHealthHandler(nil, nil), jwtAuth)
}

func serve(router http.Handler, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader("")))
	return rec
}

// TestRouter_NoAuth проверяет маршруты без аутентификации.
func TestRouter_NoAuth(t *testing.T) {
	router := newTestRouter(t, false)

	if rec := serve(router, http.MethodGet, "/health/live"); rec.Code != http.StatusOK {
		t.Errorf("/health/live: ожидался статус 200, получен %d", rec.Code)
	}
	rec := serve(router, http.MethodPost, "/srm/v2/srmPing")
	if rec.Code != http.StatusOK {
		t.Fatalf("srmPing: ожидался статус 200, получен %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), middleware.AnonymousSubject) {
		t.Errorf("ожидался анонимный субъект в ответе: %s", rec.Body.String())
	}
	if rec := serve(router, http.MethodGet, "/srm/v2/srmPing"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET на операцию: ожидался статус 405, получен %d", rec.Code)
	}
}

// TestRouter_AuthExclusions проверяет, что health и metrics доступны без JWT.
func TestRouter_AuthExclusions(t *testing.T) {
	router := newTestRouter(t, true)

	for _, path := range []string{"/health/live", "/metrics"} {
		if rec := serve(router, http.MethodGet, path); rec.Code != http.StatusOK {
			t.Errorf("%s: ожидался статус 200, получен %d", path, rec.Code)
		}
	}
	if rec := serve(router, http.MethodPost, "/srm/v2/srmPing"); rec.Code != http.StatusUnauthorized {
		t.Errorf("srmPing без токена: ожидался статус 401, получен %d", rec.Code)
	}
}
