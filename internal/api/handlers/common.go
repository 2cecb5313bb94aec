package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"

	"polytrade/internal/bot"
	"polytrade/internal/exchange"
	"polytrade/internal/service"
	"polytrade/pkg/crypto"
	"polytrade/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// MaxRequestBodySize ограничение размера тела запроса (1 MB)
const MaxRequestBodySize = 1 << 20 // 1 MB

// ErrorResponse стандартный формат ответа об ошибке для всех API endpoints
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse стандартный формат успешного ответа
type SuccessResponse struct {
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// respondWithJSON отправляет JSON ответ
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Failed to marshal response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// respondWithError отправляет JSON ответ с ошибкой
func respondWithError(w http.ResponseWriter, code int, message, errCode, details string) {
	respondWithJSON(w, code, ErrorResponse{
		Error:   message,
		Code:    errCode,
		Details: details,
	})
}

// decodeJSON читает тело запроса с ограничением размера
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body", "invalid_body", err.Error())
		return false
	}
	return true
}

// parseID извлекает положительный целый параметр пути
func parseID(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)[name])
	if err != nil || id <= 0 {
		respondWithError(w, http.StatusBadRequest, "Invalid "+name, "invalid_id", "")
		return 0, false
	}
	return id, true
}

// respondServiceError переводит ошибку сервиса в HTTP статус.
// Порядок важен: ErrLegFailed оборачивает ошибку биржи.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var exErr *exchange.ExchangeError

	switch {
	case errors.Is(err, bot.ErrInvalidLeg), errors.Is(err, bot.ErrInvalidTarget):
		respondWithError(w, http.StatusBadRequest, "Invalid request", "invalid_request", err.Error())
	case errors.Is(err, service.ErrInvalidAccount):
		respondWithError(w, http.StatusBadRequest, "Invalid account data", "invalid_account", err.Error())
	case errors.Is(err, service.ErrCredentials):
		respondWithError(w, http.StatusBadRequest, "Account credentials cannot be decrypted", "credentials", credentialsDetails(err))
	case errors.Is(err, service.ErrAccountInactive):
		respondWithError(w, http.StatusBadRequest, "Account is inactive", "account_inactive", "")
	case errors.Is(err, service.ErrAccountNotFound):
		respondWithError(w, http.StatusNotFound, "Account not found", "account_not_found", "")
	case errors.Is(err, exchange.ErrSymbolNotFound):
		respondWithError(w, http.StatusNotFound, "Symbol not found", "symbol_not_found", "")
	case errors.Is(err, service.ErrAccountExists):
		respondWithError(w, http.StatusConflict, "Account already exists", "account_exists", "")
	case errors.Is(err, bot.ErrLegFailed):
		respondWithError(w, http.StatusBadGateway, "Batch failed, submitted legs rolled back", "leg_failed", err.Error())
	case errors.Is(err, service.ErrConnectionFailed), errors.As(err, &exErr):
		respondWithError(w, http.StatusBadGateway, "Exchange request failed", "exchange_error", err.Error())
	case errors.Is(err, bot.ErrManagerStopped):
		respondWithError(w, http.StatusServiceUnavailable, "Server is shutting down", "stopping", "")
	case errors.Is(err, context.DeadlineExceeded):
		respondWithError(w, http.StatusGatewayTimeout, "Request timed out", "timeout", "")
	default:
		utils.L().Error("request failed",
			utils.String("method", r.Method),
			utils.String("path", r.URL.Path),
			utils.Err(err),
		)
		respondWithError(w, http.StatusInternalServerError, "Internal server error", "internal", "")
	}
}

// credentialsDetails отличает смену ENCRYPTION_KEY от повреждённой записи
func credentialsDetails(err error) string {
	if errors.Is(err, crypto.ErrKeyMismatch) {
		return crypto.ErrKeyMismatch.Error() + ": ENCRYPTION_KEY differs from the key the account was saved with"
	}
	return ""
}
