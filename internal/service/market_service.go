package service

import (
	"context"
	"sort"

	"polytrade/internal/exchange"
	"polytrade/pkg/utils"
)

// SymbolDetails - фильтры символа для формы заявки
type SymbolDetails struct {
	Symbol      string  `json:"symbol"`
	MinQty      string  `json:"min_qty"`
	MaxQty      string  `json:"max_qty"`
	StepSize    string  `json:"step_size"`
	MinNotional float64 `json:"min_notional"`
}

// MarketService - рыночные данные без ключей аккаунта
type MarketService struct {
	factory ClientFactory
	testnet bool
}

// NewMarketService создает новый экземпляр сервиса
func NewMarketService(factory ClientFactory, testnet bool) *MarketService {
	return &MarketService{factory: factory, testnet: testnet}
}

// Symbols возвращает торгуемые USDT контракты, отсортированные по имени
func (s *MarketService) Symbols(ctx context.Context) ([]string, error) {
	infos, err := s.factory.Public(s.testnet).ExchangeInfo(ctx)
	if err != nil {
		return nil, err
	}

	symbols := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.QuoteAsset == exchange.QuoteAssetUSDT && info.Status == exchange.SymbolStatusTrading {
			symbols = append(symbols, info.Symbol)
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// SymbolInfo возвращает шаг лота и минимальный notional символа
func (s *MarketService) SymbolInfo(ctx context.Context, symbol string) (*SymbolDetails, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if err := utils.ValidateSymbol(symbol); err != nil {
		return nil, err
	}

	lot, minNotional, err := s.factory.Public(s.testnet).SymbolFilters(ctx, symbol)
	if err != nil {
		return nil, err
	}

	return &SymbolDetails{
		Symbol:      symbol,
		MinQty:      lot.MinQty,
		MaxQty:      lot.MaxQty,
		StepSize:    lot.StepSize,
		MinNotional: minNotional,
	}, nil
}

// Price возвращает последнюю цену символа
func (s *MarketService) Price(ctx context.Context, symbol string) (float64, error) {
	symbol = utils.NormalizeSymbol(symbol)
	if err := utils.ValidateSymbol(symbol); err != nil {
		return 0, err
	}
	return s.factory.Public(s.testnet).Price(ctx, symbol)
}
