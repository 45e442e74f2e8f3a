// Пакет errors — ошибки транспортного уровня SRM Manager в формате
// {"error": {"code": "...", "message": "..."}}.
//
// Итоги SRM-операций, в том числе неуспешные, сюда не попадают: они
// возвращаются с HTTP 200 в returnStatus. Конверт используется только
// для неразобранного тела, неизвестной операции и отказов доступа.
package errors

import (
	"encoding/json"
	"net/http"
)

// codes — машиночитаемый код для каждого используемого HTTP-статуса.
var codes = map[int]string{
	http.StatusBadRequest:          "VALIDATION_ERROR",
	http.StatusUnauthorized:        "UNAUTHORIZED",
	http.StatusForbidden:           "FORBIDDEN",
	http.StatusNotFound:            "NOT_FOUND",
	http.StatusInternalServerError: "INTERNAL_ERROR",
}

type envelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Write отправляет конверт ошибки с кодом, соответствующим statusCode.
func Write(w http.ResponseWriter, statusCode int, message string) {
	var body envelope
	body.Error.Code = Code(statusCode)
	body.Error.Message = message

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

// Code возвращает код конверта для HTTP-статуса.
func Code(statusCode int) string {
	if c, ok := codes[statusCode]; ok {
		return c
	}
	return codes[http.StatusInternalServerError]
}

// ValidationError — 400: тело запроса не разобрано.
func ValidationError(w http.ResponseWriter, message string) {
	Write(w, http.StatusBadRequest, message)
}

// NotFound — 404: неизвестная операция.
func NotFound(w http.ResponseWriter, message string) {
	Write(w, http.StatusNotFound, message)
}

func Unauthorized(w http.ResponseWriter, message string) {
	Write(w, http.StatusUnauthorized, message)
}

func Forbidden(w http.ResponseWriter, message string) {
	Write(w, http.StatusForbidden, message)
}

func InternalError(w http.ResponseWriter, message string) {
	Write(w, http.StatusInternalServerError, message)
}
