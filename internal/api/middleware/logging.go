// logging.go — журнал HTTP-запросов SRM Manager через slog.
// Для вызовов фасада в запись добавляется имя SRM-операции.
package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// RequestLogger пишет одну запись на запрос. Уровень по классу статуса:
// 5xx — ERROR, 4xx — WARN, остальные — INFO.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := record(w)
			next.ServeHTTP(rec, r)

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", rec.bytes),
				slog.String("remote_addr", r.RemoteAddr),
				slog.String("subject", SubjectFromContext(r.Context())),
			}
			if op := chi.URLParam(r, "operation"); op != "" {
				attrs = append(attrs, slog.String("operation", op))
			}
			logger.LogAttrs(r.Context(), statusLevel(rec.status), "HTTP запрос", attrs...)
		})
	}
}

func statusLevel(code int) slog.Level {
	switch {
	case code >= http.StatusInternalServerError:
		return slog.LevelError
	case code >= http.StatusBadRequest:
		return slog.LevelWarn
	}
	return slog.LevelInfo
}
