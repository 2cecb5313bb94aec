package exchange

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"polytrade/internal/models"
	"polytrade/pkg/ratelimit"
	"polytrade/pkg/utils"
)

const (
	binanceName = "binance"

	binanceBaseURL        = "https://fapi.binance.com"
	binanceTestnetBaseURL = "https://testnet.binancefuture.com"
	binanceWSURL          = "wss://fstream.binance.com"
	binanceTestnetWSURL   = "wss://stream.binancefuture.com"

	// коды «ничего не изменилось»
	codeNoNeedChangeMarginType = -4046
	codeNoNeedChangePosition   = -4059

	defaultInfoTTL = time.Hour
)

// Веса REST запросов Binance USD-M
const (
	weightDefault      = 1
	weightPositionRisk = 5
	weightBalance      = 5
	weightExchangeInfo = 1
)

// BinanceConfig - параметры клиента
type BinanceConfig struct {
	APIKey    string
	APISecret string
	Testnet   bool

	// BaseURL/WSBaseURL переопределяют адреса (тесты, прокси)
	BaseURL   string
	WSBaseURL string

	HTTPClient *http.Client
	Limiter    *rate.Limiter
	InfoTTL    time.Duration

	// HandshakeTimeout - таймаут установки websocket соединения (default: 10s)
	HandshakeTimeout time.Duration
	// ReadTimeout - websocket без сообщений дольше этого считается оборванным (default: 60s)
	ReadTimeout time.Duration
}

// BinanceClient - Client поверх go-binance/v2/futures.
// Базовый URL задаётся на экземпляре: глобальный futures.UseTestnet
// нельзя менять при одновременной работе тестовых и боевых аккаунтов.
type BinanceClient struct {
	api         *futures.Client
	wsBase      string
	limiter     *rate.Limiter
	info        *symbolCache
	dialer      *websocket.Dialer
	readTimeout time.Duration
	log         *utils.Logger
}

var _ Client = (*BinanceClient)(nil)

// NewBinanceClient создаёт клиента. Без ключей доступны только публичные методы.
func NewBinanceClient(cfg BinanceConfig) *BinanceClient {
	api := futures.NewClient(cfg.APIKey, cfg.APISecret)

	switch {
	case cfg.BaseURL != "":
		api.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	case cfg.Testnet:
		api.BaseURL = binanceTestnetBaseURL
	default:
		api.BaseURL = binanceBaseURL
	}

	if cfg.HTTPClient != nil {
		api.HTTPClient = cfg.HTTPClient
	} else {
		api.HTTPClient = GetGlobalHTTPClient().GetClient()
	}

	wsBase := cfg.WSBaseURL
	if wsBase == "" {
		wsBase = binanceWSURL
		if cfg.Testnet {
			wsBase = binanceTestnetWSURL
		}
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(0, 0)
	}

	ttl := cfg.InfoTTL
	if ttl <= 0 {
		ttl = defaultInfoTTL
	}

	handshake := cfg.HandshakeTimeout
	if handshake <= 0 {
		handshake = 10 * time.Second
	}
	readTimeout := cfg.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 60 * time.Second
	}

	return &BinanceClient{
		api:         api,
		wsBase:      strings.TrimRight(wsBase, "/"),
		limiter:     limiter,
		info:        sharedSymbolCache(api.BaseURL, ttl),
		dialer:      &websocket.Dialer{HandshakeTimeout: handshake, Proxy: http.ProxyFromEnvironment},
		readTimeout: readTimeout,
		log:         utils.L().WithComponent("binance"),
	}
}

// wait списывает вес запроса из ведра ключа. Вес больше burst
// обрезается до burst: rate.Limiter иначе сразу вернёт ошибку.
func (b *BinanceClient) wait(ctx context.Context, weight int) error {
	if burst := b.limiter.Burst(); weight > burst {
		weight = burst
	}
	return b.limiter.WaitN(ctx, weight)
}

// ============================================================
// Настройки символа
// ============================================================

func (b *BinanceClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := b.wait(ctx, weightDefault); err != nil {
		return err
	}
	_, err := b.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx)
	if err != nil {
		return wrapBinanceError("set_leverage", err)
	}
	return nil
}

func (b *BinanceClient) SetMarginType(ctx context.Context, symbol, mode string) error {
	marginType := futures.MarginTypeIsolated
	if strings.EqualFold(mode, models.MarginCross) || strings.EqualFold(mode, "CROSSED") {
		marginType = futures.MarginTypeCrossed
	}

	if err := b.wait(ctx, weightDefault); err != nil {
		return err
	}
	err := b.api.NewChangeMarginTypeService().Symbol(symbol).MarginType(marginType).Do(ctx)
	if err != nil {
		if apiErrorCode(err) == codeNoNeedChangeMarginType {
			return nil
		}
		return wrapBinanceError("set_margin_type", err)
	}
	return nil
}

// SetHedgeMode включает dual side position
func (b *BinanceClient) SetHedgeMode(ctx context.Context) error {
	if err := b.wait(ctx, weightDefault); err != nil {
		return err
	}
	err := b.api.NewChangePositionModeService().DualSide(true).Do(ctx)
	if err != nil {
		if apiErrorCode(err) == codeNoNeedChangePosition {
			return nil
		}
		return wrapBinanceError("set_hedge_mode", err)
	}
	return nil
}

// ============================================================
// Рыночные данные
// ============================================================

func (b *BinanceClient) Price(ctx context.Context, symbol string) (float64, error) {
	if err := b.wait(ctx, weightDefault); err != nil {
		return 0, err
	}

	prices, err := b.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, wrapBinanceError("price", err)
	}
	for _, p := range prices {
		if p.Symbol == symbol {
			return parseField("price", p.Price)
		}
	}
	return 0, &ExchangeError{Exchange: binanceName, Op: "price", Message: symbol, Original: ErrSymbolNotFound}
}

func (b *BinanceClient) ExchangeInfo(ctx context.Context) ([]SymbolInfo, error) {
	return b.info.all(ctx, b.loadExchangeInfo)
}

func (b *BinanceClient) SymbolFilters(ctx context.Context, symbol string) (*LotSize, float64, error) {
	info, err := b.info.get(ctx, symbol, b.loadExchangeInfo)
	if err != nil {
		return nil, 0, err
	}
	lot := info.Lot
	return &lot, info.MinNotional, nil
}

func (b *BinanceClient) RoundLotSize(ctx context.Context, symbol string, qty float64) (float64, error) {
	info, err := b.info.get(ctx, symbol, b.loadExchangeInfo)
	if err != nil {
		return 0, err
	}
	return utils.RoundToStep(qty, info.Lot.StepSize)
}

func (b *BinanceClient) loadExchangeInfo(ctx context.Context) ([]SymbolInfo, error) {
	if err := b.wait(ctx, weightExchangeInfo); err != nil {
		return nil, err
	}
	res, err := b.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, wrapBinanceError("exchange_info", err)
	}

	out := make([]SymbolInfo, 0, len(res.Symbols))
	for i := range res.Symbols {
		s := &res.Symbols[i]
		info := SymbolInfo{
			Symbol:       s.Symbol,
			BaseAsset:    s.BaseAsset,
			QuoteAsset:   s.QuoteAsset,
			Status:       s.Status,
			ContractType: string(s.ContractType),
		}
		if lot := s.LotSizeFilter(); lot != nil {
			info.Lot = LotSize{MinQty: lot.MinQuantity, MaxQty: lot.MaxQuantity, StepSize: lot.StepSize}
		}
		if mn := s.MinNotionalFilter(); mn != nil {
			info.MinNotional, _ = utils.ParseFloat(mn.Notional)
		}
		out = append(out, info)
	}
	return out, nil
}

// ============================================================
// Аккаунт и позиции
// ============================================================

func (b *BinanceClient) FuturesBalance(ctx context.Context) (float64, error) {
	if err := b.wait(ctx, weightBalance); err != nil {
		return 0, err
	}
	balances, err := b.api.NewGetBalanceService().Do(ctx)
	if err != nil {
		return 0, wrapBinanceError("balance", err)
	}
	for _, bal := range balances {
		if bal.Asset == QuoteAssetUSDT {
			return parseField("balance", bal.Balance)
		}
	}
	return 0, nil
}

func (b *BinanceClient) PositionRisk(ctx context.Context, symbol string) ([]models.Position, error) {
	if err := b.wait(ctx, weightPositionRisk); err != nil {
		return nil, err
	}

	svc := b.api.NewGetPositionRiskService()
	if symbol != "" {
		svc = svc.Symbol(symbol)
	}
	risks, err := svc.Do(ctx)
	if err != nil {
		return nil, wrapBinanceError("position_risk", err)
	}

	positions := make([]models.Position, 0, len(risks))
	for _, r := range risks {
		p, err := convertPositionRisk(r)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, nil
}

func convertPositionRisk(r *futures.PositionRisk) (models.Position, error) {
	amount, err := parseField("positionAmt", r.PositionAmt)
	if err != nil {
		return models.Position{}, err
	}
	entry, err := parseField("entryPrice", r.EntryPrice)
	if err != nil {
		return models.Position{}, err
	}
	mark, _ := utils.ParseFloat(r.MarkPrice)
	pnl, _ := utils.ParseFloat(r.UnRealizedProfit)
	lev, _ := utils.ParseFloat(r.Leverage)

	return models.Position{
		Symbol:        r.Symbol,
		Side:          strings.ToUpper(r.PositionSide),
		EntryPrice:    entry,
		MarkPrice:     mark,
		Leverage:      int(lev),
		Amount:        amount,
		UnrealizedPnl: pnl,
	}, nil
}

// ============================================================
// Ордера
// ============================================================

func (b *BinanceClient) OrderMarket(ctx context.Context, symbol, side string, qty float64, positionSide string) (*Order, error) {
	if qty <= 0 {
		return nil, &ExchangeError{Exchange: binanceName, Op: "order_market", Message: symbol, Original: ErrQuantityZero}
	}

	precision := int32(8)
	if info, err := b.info.get(ctx, symbol, b.loadExchangeInfo); err == nil {
		precision = utils.StepPrecision(info.Lot.StepSize)
	}
	qtyStr := utils.FormatQuantity(qty, precision)

	if err := b.wait(ctx, weightDefault); err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := b.api.NewCreateOrderService().
		Symbol(symbol).
		Side(futures.SideType(strings.ToUpper(side))).
		PositionSide(futures.PositionSideType(strings.ToUpper(positionSide))).
		Type(futures.OrderTypeMarket).
		Quantity(qtyStr).
		Do(ctx)
	if err != nil {
		return nil, wrapBinanceError("order_market", err)
	}

	order := &Order{
		ID:           res.OrderID,
		Symbol:       res.Symbol,
		Side:         string(res.Side),
		PositionSide: string(res.PositionSide),
		Status:       string(res.Status),
	}
	order.Quantity, _ = utils.ParseFloat(res.OrigQuantity)
	order.FilledQty, _ = utils.ParseFloat(res.ExecutedQuantity)
	order.AvgPrice, _ = utils.ParseFloat(res.AvgPrice)

	b.log.Debug("market order placed",
		utils.Symbol(symbol),
		utils.Side(side),
		utils.String("position_side", positionSide),
		utils.String("quantity", qtyStr),
		utils.Int64("order_id", res.OrderID),
		utils.Latency(time.Since(start)),
	)
	return order, nil
}

// ============================================================
// Ошибки
// ============================================================

func apiErrorCode(err error) int64 {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func wrapBinanceError(op string, err error) error {
	var apiErr *common.APIError
	if errors.As(err, &apiErr) {
		return &ExchangeError{Exchange: binanceName, Op: op, Code: apiErr.Code, Message: apiErr.Message, Original: err}
	}
	return &ExchangeError{Exchange: binanceName, Op: op, Message: err.Error(), Original: err}
}

func parseField(name, value string) (float64, error) {
	f, err := utils.ParseFloat(value)
	if err != nil {
		return 0, &ExchangeError{Exchange: binanceName, Op: "parse_" + name, Message: err.Error(), Original: err}
	}
	return f, nil
}

// ============================================================
// Кеш exchangeInfo
// ============================================================

// symbolCache хранит exchangeInfo на один базовый URL.
// Фильтры меняются редко, а без кеша каждая нога стоила бы лишний запрос.
type symbolCache struct {
	ttl       time.Duration
	mu        sync.Mutex
	fetchedAt time.Time
	list      []SymbolInfo
	bySymbol  map[string]SymbolInfo
}

var (
	symbolCaches   = make(map[string]*symbolCache)
	symbolCachesMu sync.Mutex
)

func sharedSymbolCache(baseURL string, ttl time.Duration) *symbolCache {
	symbolCachesMu.Lock()
	defer symbolCachesMu.Unlock()

	c, ok := symbolCaches[baseURL]
	if !ok {
		c = &symbolCache{ttl: ttl}
		symbolCaches[baseURL] = c
	}
	return c
}

type infoLoader func(ctx context.Context) ([]SymbolInfo, error)

func (c *symbolCache) all(ctx context.Context, load infoLoader) ([]SymbolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx, load); err != nil {
		return nil, err
	}
	out := make([]SymbolInfo, len(c.list))
	copy(out, c.list)
	return out, nil
}

func (c *symbolCache) get(ctx context.Context, symbol string, load infoLoader) (SymbolInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.refreshLocked(ctx, load); err != nil {
		return SymbolInfo{}, err
	}
	info, ok := c.bySymbol[symbol]
	if !ok {
		return SymbolInfo{}, &ExchangeError{Exchange: binanceName, Op: "symbol_info", Message: symbol, Original: ErrSymbolNotFound}
	}
	return info, nil
}

func (c *symbolCache) refreshLocked(ctx context.Context, load infoLoader) error {
	if c.bySymbol != nil && time.Since(c.fetchedAt) < c.ttl {
		return nil
	}
	list, err := load(ctx)
	if err != nil {
		return err
	}
	c.list = list
	c.bySymbol = make(map[string]SymbolInfo, len(list))
	for _, s := range list {
		c.bySymbol[s.Symbol] = s
	}
	c.fetchedAt = time.Now()
	return nil
}
