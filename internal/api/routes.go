package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"polytrade/internal/api/handlers"
	"polytrade/internal/api/middleware"
	"polytrade/internal/websocket"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Dependencies содержит все зависимости для API handlers
type Dependencies struct {
	AccountService handlers.AccountServiceInterface
	TradeService   handlers.TradeServiceInterface
	MarketService  handlers.MarketServiceInterface
	Hub            *websocket.Hub

	// AppUser/AppPasswordHash - basic auth, пустой хеш отключает проверку
	AppUser         string
	AppPasswordHash string
	// AllowedOrigins - CORS origins через запятую
	AllowedOrigins string
}

// HealthResponse - ответ /health
type HealthResponse struct {
	Status    string `json:"status"`
	Time      int64  `json:"time"`
	WSClients int    `json:"ws_clients"`
}

// SetupRoutes настраивает все HTTP маршруты приложения
//
// Структура маршрутов:
//
// /api/v1/
//
//	├── /accounts/
//	│   ├── GET / - список аккаунтов
//	│   ├── POST / - подключить аккаунт
//	│   ├── POST /balances/refresh - обновить балансы
//	│   ├── GET /{id} - получить аккаунт
//	│   ├── POST /{id}/toggle - включить/выключить
//	│   └── DELETE /{id} - удалить
//	├── /trades/
//	│   ├── POST /submit - открыть пакет ног
//	│   ├── POST /close - закрыть позиции
//	│   └── GET /roi/{accountID} - снимок ROI
//	├── /tracking/
//	│   ├── GET /{accountID} - состояние стрима
//	│   ├── POST /{accountID}/start - запустить
//	│   └── POST /{accountID}/stop - остановить
//	└── /market/
//	    ├── GET /symbols - торгуемые символы
//	    ├── GET /symbols/{symbol} - фильтры символа
//	    └── GET /price/{symbol} - mark price
//
// /ws/stream - WebSocket поток событий (?account_id=N)
// /metrics - prometheus
// /health - без авторизации
//
// Middleware:
// 1. Recovery, Logging, CORS - для всех маршрутов
// 2. PasswordAuth - для /api/v1, /ws/stream и /metrics
func SetupRoutes(deps *Dependencies) *mux.Router {
	if deps == nil {
		deps = &Dependencies{}
	}

	router := mux.NewRouter()

	router.Use(middleware.Recovery)
	router.Use(middleware.Logging)
	router.Use(middleware.CORS(deps.AllowedOrigins))

	auth := middleware.PasswordAuth(deps.AppUser, deps.AppPasswordHash)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(auth)

	if deps.AccountService != nil {
		var tracking handlers.TrackingStopper
		if deps.TradeService != nil {
			tracking = deps.TradeService
		}
		accountHandler := handlers.NewAccountHandler(deps.AccountService, tracking)

		api.HandleFunc("/accounts", accountHandler.GetAccounts).Methods(http.MethodGet)
		api.HandleFunc("/accounts", accountHandler.CreateAccount).Methods(http.MethodPost)
		api.HandleFunc("/accounts/balances/refresh", accountHandler.RefreshBalances).Methods(http.MethodPost)
		api.HandleFunc("/accounts/{id}", accountHandler.GetAccount).Methods(http.MethodGet)
		api.HandleFunc("/accounts/{id}/toggle", accountHandler.ToggleAccount).Methods(http.MethodPost)
		api.HandleFunc("/accounts/{id}", accountHandler.DeleteAccount).Methods(http.MethodDelete)
	}

	if deps.TradeService != nil {
		tradeHandler := handlers.NewTradeHandler(deps.TradeService)

		api.HandleFunc("/trades/submit", tradeHandler.SubmitTrades).Methods(http.MethodPost)
		api.HandleFunc("/trades/close", tradeHandler.CloseTrades).Methods(http.MethodPost)
		api.HandleFunc("/trades/roi/{accountID}", tradeHandler.GetRoi).Methods(http.MethodGet)

		api.HandleFunc("/tracking/{accountID}", tradeHandler.GetTracking).Methods(http.MethodGet)
		api.HandleFunc("/tracking/{accountID}/start", tradeHandler.StartTracking).Methods(http.MethodPost)
		api.HandleFunc("/tracking/{accountID}/stop", tradeHandler.StopTracking).Methods(http.MethodPost)
	}

	if deps.MarketService != nil {
		marketHandler := handlers.NewMarketHandler(deps.MarketService)

		api.HandleFunc("/market/symbols", marketHandler.GetSymbols).Methods(http.MethodGet)
		api.HandleFunc("/market/symbols/{symbol}", marketHandler.GetSymbolInfo).Methods(http.MethodGet)
		api.HandleFunc("/market/price/{symbol}", marketHandler.GetPrice).Methods(http.MethodGet)
	}

	if deps.Hub != nil {
		router.Handle("/ws/stream", auth(http.HandlerFunc(deps.Hub.ServeWS))).Methods(http.MethodGet)
	}

	router.Handle("/metrics", auth(promhttp.Handler())).Methods(http.MethodGet)

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := HealthResponse{
			Status: "ok",
			Time:   time.Now().Unix(),
		}
		if deps.Hub != nil {
			resp.WSClients = deps.Hub.ClientCount()
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(resp)
	}).Methods(http.MethodGet)

	return router
}
