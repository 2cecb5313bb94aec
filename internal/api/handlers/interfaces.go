package handlers

import (
	"context"

	"polytrade/internal/bot"
	"polytrade/internal/models"
	"polytrade/internal/service"
)

// AccountServiceInterface - операции над аккаунтами, нужные handler'ам
type AccountServiceInterface interface {
	AddAccount(ctx context.Context, name, apiKey, apiSecret string, testnet bool) (*models.Account, error)
	GetAccounts() ([]*models.Account, error)
	GetAccount(id int) (*models.Account, error)
	ToggleActive(id int) (*models.Account, error)
	DeleteAccount(id int) error
	UpdateAllBalances(ctx context.Context) (int, error)
}

// TradeServiceInterface - торговые операции и трекинг
type TradeServiceInterface interface {
	SubmitTrades(ctx context.Context, accountID int, legs []models.Leg) (int, error)
	CloseTrades(ctx context.Context, accountID int, targets []models.CloseTarget) (int, error)
	FetchRoiSnapshot(ctx context.Context, accountID int) ([]models.RoiSnapshot, error)
	StartTracking(ctx context.Context, accountID int) error
	StopTracking(accountID int) bool
	TrackingState(accountID int) (bot.WorkerState, bool)
}

// MarketServiceInterface - публичные рыночные данные
type MarketServiceInterface interface {
	Symbols(ctx context.Context) ([]string, error)
	SymbolInfo(ctx context.Context, symbol string) (*service.SymbolDetails, error)
	Price(ctx context.Context, symbol string) (float64, error)
}

// TrackingStopper останавливает стрим аккаунта при его выключении или удалении
type TrackingStopper interface {
	StopTracking(accountID int) bool
}

var (
	_ AccountServiceInterface = (*service.AccountService)(nil)
	_ TradeServiceInterface   = (*service.TradeService)(nil)
	_ MarketServiceInterface  = (*service.MarketService)(nil)
)
