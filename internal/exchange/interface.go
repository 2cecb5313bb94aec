package exchange

import (
	"context"
	"errors"
	"fmt"

	"polytrade/internal/models"
)

// Client - операции фьючерсной биржи, которые нужны оркестратору,
// сборщику снимков и стрим-воркеру. Символы в верхнем регистре.
type Client interface {
	// SetLeverage устанавливает плечо символа. Повторная установка того же плеча - не ошибка.
	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetMarginType переключает ISOLATED/CROSS. «Уже установлено» - не ошибка.
	SetMarginType(ctx context.Context, symbol, mode string) error

	// Price возвращает последнюю цену символа
	Price(ctx context.Context, symbol string) (float64, error)

	// PositionRisk возвращает позиции символа, пустой symbol - все позиции аккаунта
	PositionRisk(ctx context.Context, symbol string) ([]models.Position, error)

	// RoundLotSize округляет объём вниз до шага лота символа
	RoundLotSize(ctx context.Context, symbol string, qty float64) (float64, error)

	// OrderMarket размещает рыночный ордер в hedge-режиме
	OrderMarket(ctx context.Context, symbol, side string, qty float64, positionSide string) (*Order, error)

	// ExchangeInfo возвращает описание всех символов
	ExchangeInfo(ctx context.Context) ([]SymbolInfo, error)

	// SymbolFilters возвращает фильтр лота и минимальный notional символа
	SymbolFilters(ctx context.Context, symbol string) (*LotSize, float64, error)

	// FuturesBalance возвращает баланс USDT фьючерсного кошелька
	FuturesBalance(ctx context.Context) (float64, error)

	// SetHedgeMode включает раздельные LONG/SHORT позиции
	SetHedgeMode(ctx context.Context) error

	// DialMarkPriceStream открывает один поток mark price на все символы (нижний регистр)
	DialMarkPriceStream(ctx context.Context, symbols []string) (StreamConn, error)
}

// StreamConn - открытое websocket соединение потока
type StreamConn interface {
	ReadMessage() ([]byte, error)
	Close() error
}

// Order - подтверждённый биржей ордер
type Order struct {
	ID           int64   `json:"id"`
	Symbol       string  `json:"symbol"`
	Side         string  `json:"side"`          // BUY / SELL
	PositionSide string  `json:"position_side"` // LONG / SHORT
	Quantity     float64 `json:"quantity"`
	FilledQty    float64 `json:"filled_qty"`
	AvgPrice     float64 `json:"avg_price"`
	Status       string  `json:"status"`
}

// SymbolInfo - строка exchangeInfo
type SymbolInfo struct {
	Symbol       string  `json:"symbol"`
	BaseAsset    string  `json:"base_asset"`
	QuoteAsset   string  `json:"quote_asset"`
	Status       string  `json:"status"`
	ContractType string  `json:"contract_type"`
	Lot          LotSize `json:"lot"`
	MinNotional  float64 `json:"min_notional"`
}

// LotSize - фильтр LOT_SIZE в строковом виде биржи
type LotSize struct {
	MinQty   string `json:"min_qty"`
	MaxQty   string `json:"max_qty"`
	StepSize string `json:"step_size"`
}

// Статусы символа
const (
	SymbolStatusTrading = "TRADING"
	QuoteAssetUSDT      = "USDT"
)

// ExchangeError представляет ошибку от биржи
type ExchangeError struct {
	Exchange string
	Op       string
	Code     int64
	Message  string
	Original error
}

func (e *ExchangeError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s %s: code=%d %s", e.Exchange, e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Exchange, e.Op, e.Message)
}

// Unwrap возвращает оригинальную ошибку для поддержки errors.Is() и errors.As()
func (e *ExchangeError) Unwrap() error {
	return e.Original
}

var (
	ErrSymbolNotFound = errors.New("symbol not found")
	ErrQuantityZero   = errors.New("quantity rounds to zero")
	ErrNoSymbols      = errors.New("no symbols to subscribe")
)

// ErrorCode извлекает код биржи из цепочки ошибок, 0 если кода нет
func ErrorCode(err error) int64 {
	var exErr *ExchangeError
	if errors.As(err, &exErr) {
		return exErr.Code
	}
	return 0
}
