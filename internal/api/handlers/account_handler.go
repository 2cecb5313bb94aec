package handlers

import (
	"net/http"
	"strings"
)

// CreateAccountRequest - тело запроса добавления аккаунта
type CreateAccountRequest struct {
	Name      string `json:"name"`
	APIKey    string `json:"api_key"`
	APISecret string `json:"api_secret"`
	Testnet   bool   `json:"testnet"`
}

// RefreshBalancesResponse - результат обновления балансов
type RefreshBalancesResponse struct {
	Updated int `json:"updated"`
}

// AccountHandler отвечает за торговые аккаунты
//
// Endpoints:
// - GET /api/v1/accounts - список аккаунтов
// - POST /api/v1/accounts - добавить аккаунт (ключи проверяются на бирже)
// - GET /api/v1/accounts/{id} - аккаунт по ID
// - POST /api/v1/accounts/{id}/toggle - включить/выключить
// - DELETE /api/v1/accounts/{id} - удалить
// - POST /api/v1/accounts/balances/refresh - обновить балансы активных аккаунтов
type AccountHandler struct {
	accounts AccountServiceInterface
	tracking TrackingStopper
}

// NewAccountHandler создает новый AccountHandler.
// tracking может быть nil, тогда стримы при выключении не останавливаются.
func NewAccountHandler(accounts AccountServiceInterface, tracking TrackingStopper) *AccountHandler {
	return &AccountHandler{accounts: accounts, tracking: tracking}
}

// GetAccounts возвращает все аккаунты без ключей
// GET /api/v1/accounts
func (h *AccountHandler) GetAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.accounts.GetAccounts()
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, accounts)
}

// CreateAccount добавляет аккаунт
// POST /api/v1/accounts
//
// Тело запроса:
//
//	{
//	  "name": "main",
//	  "api_key": "...",
//	  "api_secret": "...",
//	  "testnet": false
//	}
//
// Ответы:
// - 201 Created: аккаунт сохранён, hedge-режим включён
// - 400 Bad Request: некорректные данные
// - 409 Conflict: имя занято
// - 502 Bad Gateway: биржа отклонила ключи
func (h *AccountHandler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if strings.TrimSpace(req.APIKey) == "" || strings.TrimSpace(req.APISecret) == "" {
		respondWithError(w, http.StatusBadRequest, "API key and secret are required", "invalid_account", "")
		return
	}

	account, err := h.accounts.AddAccount(r.Context(), req.Name, req.APIKey, req.APISecret, req.Testnet)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusCreated, account)
}

// GetAccount возвращает аккаунт по ID
// GET /api/v1/accounts/{id}
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	account, err := h.accounts.GetAccount(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, account)
}

// ToggleAccount переключает активность. Выключенный аккаунт теряет стрим.
// POST /api/v1/accounts/{id}/toggle
func (h *AccountHandler) ToggleAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	account, err := h.accounts.ToggleActive(id)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	if !account.Active && h.tracking != nil {
		h.tracking.StopTracking(id)
	}
	respondWithJSON(w, http.StatusOK, account)
}

// DeleteAccount удаляет аккаунт и останавливает его стрим
// DELETE /api/v1/accounts/{id}
func (h *AccountHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}

	if h.tracking != nil {
		h.tracking.StopTracking(id)
	}

	if err := h.accounts.DeleteAccount(id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SuccessResponse{Message: "Account deleted"})
}

// RefreshBalances обновляет балансы активных аккаунтов
// POST /api/v1/accounts/balances/refresh
func (h *AccountHandler) RefreshBalances(w http.ResponseWriter, r *http.Request) {
	updated, err := h.accounts.UpdateAllBalances(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, RefreshBalancesResponse{Updated: updated})
}
