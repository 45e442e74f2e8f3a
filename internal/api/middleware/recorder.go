package middleware

import "net/http"

// statusRecorder запоминает статус-код и размер ответа для логов и метрик.
// Оборачивает ResponseWriter один раз на запрос: метрики и журнал
// используют общую обёртку, если она уже установлена выше по цепочке.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

// record возвращает обёртку над w, переиспользуя существующую.
func record(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController.
func (rec *statusRecorder) Unwrap() http.ResponseWriter {
	return rec.ResponseWriter
}
