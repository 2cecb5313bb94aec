package handlers

import (
	"net/http"

	"polytrade/internal/bot"
	"polytrade/internal/models"
)

// SubmitTradesRequest - пакет ног для одного аккаунта
type SubmitTradesRequest struct {
	AccountID int          `json:"account_id"`
	Legs      []models.Leg `json:"legs"`
}

// SubmitTradesResponse - число открытых ног
type SubmitTradesResponse struct {
	Submitted int `json:"submitted"`
}

// CloseTradesRequest - позиции для закрытия
type CloseTradesRequest struct {
	AccountID int                  `json:"account_id"`
	Targets   []models.CloseTarget `json:"targets"`
}

// CloseTradesResponse - число подтверждённых закрытий
type CloseTradesResponse struct {
	Closed    int `json:"closed"`
	Requested int `json:"requested"`
}

// RoiResponse - ROI открытых позиций аккаунта
type RoiResponse struct {
	AccountID int                  `json:"account_id"`
	Trades    []models.RoiSnapshot `json:"trades"`
}

// TrackingResponse - состояние стрима аккаунта
type TrackingResponse struct {
	AccountID int             `json:"account_id"`
	Running   bool            `json:"running"`
	State     bot.WorkerState `json:"state,omitempty"`
	StateInfo string          `json:"state_info,omitempty"`
}

// TradeHandler - торговые операции и живой трекинг
//
// Endpoints:
// - POST /api/v1/trades/submit - открыть пакет ног
// - POST /api/v1/trades/close - закрыть позиции
// - GET /api/v1/trades/roi/{accountID} - снимок ROI
// - POST /api/v1/tracking/{accountID}/start - запустить стрим
// - POST /api/v1/tracking/{accountID}/stop - остановить стрим
// - GET /api/v1/tracking/{accountID} - состояние стрима
type TradeHandler struct {
	trades TradeServiceInterface
}

// NewTradeHandler создает новый TradeHandler
func NewTradeHandler(trades TradeServiceInterface) *TradeHandler {
	return &TradeHandler{trades: trades}
}

// SubmitTrades открывает пакет ног
// POST /api/v1/trades/submit
//
// Тело запроса:
//
//	{
//	  "account_id": 1,
//	  "legs": [
//	    {"symbol": "BTCUSDT", "side": "LONG", "leverage": 10, "margin": 100, "margin_mode": "ISOLATED"}
//	  ]
//	}
//
// Ответы:
// - 200 OK: все ноги открыты
// - 400 Bad Request: некорректная нога, аккаунт неактивен
// - 404 Not Found: аккаунт не найден
// - 502 Bad Gateway: нога отклонена биржей, открытые ноги закрыты
func (h *TradeHandler) SubmitTrades(w http.ResponseWriter, r *http.Request) {
	var req SubmitTradesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AccountID <= 0 {
		respondWithError(w, http.StatusBadRequest, "account_id is required", "invalid_request", "")
		return
	}

	submitted, err := h.trades.SubmitTrades(r.Context(), req.AccountID, req.Legs)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, SubmitTradesResponse{Submitted: submitted})
}

// CloseTrades закрывает позиции. Частичный успех - 200 с числом закрытых.
// POST /api/v1/trades/close
func (h *TradeHandler) CloseTrades(w http.ResponseWriter, r *http.Request) {
	var req CloseTradesRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.AccountID <= 0 {
		respondWithError(w, http.StatusBadRequest, "account_id is required", "invalid_request", "")
		return
	}

	closed, err := h.trades.CloseTrades(r.Context(), req.AccountID, req.Targets)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, CloseTradesResponse{Closed: closed, Requested: len(req.Targets)})
}

// GetRoi возвращает снимок ROI открытых позиций
// GET /api/v1/trades/roi/{accountID}
func (h *TradeHandler) GetRoi(w http.ResponseWriter, r *http.Request) {
	accountID, ok := parseID(w, r, "accountID")
	if !ok {
		return
	}

	trades, err := h.trades.FetchRoiSnapshot(r.Context(), accountID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if trades == nil {
		trades = []models.RoiSnapshot{}
	}
	respondWithJSON(w, http.StatusOK, RoiResponse{AccountID: accountID, Trades: trades})
}

// StartTracking запускает или перезапускает стрим аккаунта
// POST /api/v1/tracking/{accountID}/start
func (h *TradeHandler) StartTracking(w http.ResponseWriter, r *http.Request) {
	accountID, ok := parseID(w, r, "accountID")
	if !ok {
		return
	}

	if err := h.trades.StartTracking(r.Context(), accountID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.respondTracking(w, accountID)
}

// StopTracking останавливает стрим. Повторная остановка - 200.
// POST /api/v1/tracking/{accountID}/stop
func (h *TradeHandler) StopTracking(w http.ResponseWriter, r *http.Request) {
	accountID, ok := parseID(w, r, "accountID")
	if !ok {
		return
	}

	h.trades.StopTracking(accountID)
	h.respondTracking(w, accountID)
}

// GetTracking возвращает состояние стрима
// GET /api/v1/tracking/{accountID}
func (h *TradeHandler) GetTracking(w http.ResponseWriter, r *http.Request) {
	accountID, ok := parseID(w, r, "accountID")
	if !ok {
		return
	}
	h.respondTracking(w, accountID)
}

func (h *TradeHandler) respondTracking(w http.ResponseWriter, accountID int) {
	state, running := h.trades.TrackingState(accountID)
	resp := TrackingResponse{
		AccountID: accountID,
		Running:   running,
		State:     state,
	}
	if state != "" {
		resp.StateInfo = bot.StateInfo(state)
	}
	respondWithJSON(w, http.StatusOK, resp)
}
