package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"polytrade/pkg/utils"
)

// PriceResponse - последняя цена символа
type PriceResponse struct {
	Symbol string  `json:"symbol"`
	Price  float64 `json:"price"`
}

// MarketHandler - рыночные данные для формы заявки
//
// Endpoints:
// - GET /api/v1/market/symbols - торгуемые USDT контракты
// - GET /api/v1/market/symbols/{symbol} - шаг лота и минимальный notional
// - GET /api/v1/market/price/{symbol} - последняя цена
type MarketHandler struct {
	market MarketServiceInterface
}

// NewMarketHandler создает новый MarketHandler
func NewMarketHandler(market MarketServiceInterface) *MarketHandler {
	return &MarketHandler{market: market}
}

// GetSymbols GET /api/v1/market/symbols
func (h *MarketHandler) GetSymbols(w http.ResponseWriter, r *http.Request) {
	symbols, err := h.market.Symbols(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, symbols)
}

// GetSymbolInfo GET /api/v1/market/symbols/{symbol}
func (h *MarketHandler) GetSymbolInfo(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolParam(w, r)
	if !ok {
		return
	}

	info, err := h.market.SymbolInfo(r.Context(), symbol)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, info)
}

// GetPrice GET /api/v1/market/price/{symbol}
func (h *MarketHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol, ok := symbolParam(w, r)
	if !ok {
		return
	}

	price, err := h.market.Price(r.Context(), symbol)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, PriceResponse{Symbol: symbol, Price: price})
}

func symbolParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	symbol := utils.NormalizeSymbol(mux.Vars(r)["symbol"])
	if err := utils.ValidateSymbol(symbol); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid symbol", "invalid_symbol", err.Error())
		return "", false
	}
	return symbol, true
}
