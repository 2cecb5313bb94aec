package bot

import (
	"context"
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"polytrade/internal/config"
	"polytrade/internal/exchange"
	"polytrade/internal/models"
)

// ============================================================
// fakeClient - биржа в памяти
// ============================================================

// placedOrder - ордер, дошедший до биржи
type placedOrder struct {
	Symbol       string
	Side         string
	Quantity     float64
	PositionSide string
}

// fakeClient ведёт позиции в памяти: ордер открытия создаёт позицию,
// встречный ордер её уменьшает.
type fakeClient struct {
	mu sync.Mutex

	prices    map[string]float64
	positions []models.Position
	lotStep   float64

	failLeverage map[string]error
	failPrice    map[string]error
	failOpen     map[string]error // ошибка ордера открытия по символу
	failClose    map[string]error // ошибка встречного ордера по символу
	failRisk     map[string]error // ошибка PositionRisk по символу ("" - все позиции)

	orders        []placedOrder
	riskCalls     []string
	leverageCalls []string
	marginCalls   []string
	priceCalls    int

	dial func(ctx context.Context, symbols []string) (exchange.StreamConn, error)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		prices:       map[string]float64{},
		lotStep:      0.001,
		failLeverage: map[string]error{},
		failPrice:    map[string]error{},
		failOpen:     map[string]error{},
		failClose:    map[string]error{},
		failRisk:     map[string]error{},
	}
}

func (f *fakeClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leverageCalls = append(f.leverageCalls, symbol)
	return f.failLeverage[symbol]
}

func (f *fakeClient) SetMarginType(ctx context.Context, symbol, mode string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marginCalls = append(f.marginCalls, symbol+":"+mode)
	return nil
}

func (f *fakeClient) Price(ctx context.Context, symbol string) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.priceCalls++
	if err := f.failPrice[symbol]; err != nil {
		return 0, err
	}
	price, ok := f.prices[symbol]
	if !ok {
		return 0, exchange.ErrSymbolNotFound
	}
	return price, nil
}

func (f *fakeClient) PositionRisk(ctx context.Context, symbol string) ([]models.Position, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.riskCalls = append(f.riskCalls, symbol)
	if err := f.failRisk[symbol]; err != nil {
		return nil, err
	}

	out := make([]models.Position, 0, len(f.positions))
	for _, p := range f.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeClient) RoundLotSize(ctx context.Context, symbol string, qty float64) (float64, error) {
	if f.lotStep <= 0 {
		return qty, nil
	}
	return math.Floor(qty/f.lotStep+1e-9) * f.lotStep, nil
}

func (f *fakeClient) OrderMarket(ctx context.Context, symbol, side string, qty float64, positionSide string) (*exchange.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	opening := side == models.OpenOrderSide(positionSide)
	if opening {
		if err := f.failOpen[symbol]; err != nil {
			return nil, err
		}
	} else if err := f.failClose[symbol]; err != nil {
		return nil, err
	}

	f.orders = append(f.orders, placedOrder{Symbol: symbol, Side: side, Quantity: qty, PositionSide: positionSide})
	f.applyLocked(symbol, positionSide, qty, opening)

	return &exchange.Order{
		ID:           int64(len(f.orders)),
		Symbol:       symbol,
		Side:         side,
		PositionSide: positionSide,
		Quantity:     qty,
		FilledQty:    qty,
		Status:       "FILLED",
	}, nil
}

// applyLocked меняет позицию после исполнения ордера
func (f *fakeClient) applyLocked(symbol, positionSide string, qty float64, opening bool) {
	delta := qty
	if positionSide == models.SideShort {
		delta = -qty
	}
	if !opening {
		delta = -delta
	}

	for i := range f.positions {
		if f.positions[i].Symbol == symbol && f.positions[i].Side == positionSide {
			f.positions[i].Amount += delta
			if math.Abs(f.positions[i].Amount) < 1e-12 {
				f.positions[i].Amount = 0
			}
			return
		}
	}
	f.positions = append(f.positions, models.Position{
		Symbol:     symbol,
		Side:       positionSide,
		EntryPrice: f.prices[symbol],
		MarkPrice:  f.prices[symbol],
		Leverage:   1,
		Amount:     delta,
	})
}

func (f *fakeClient) ExchangeInfo(ctx context.Context) ([]exchange.SymbolInfo, error) {
	return nil, nil
}

func (f *fakeClient) SymbolFilters(ctx context.Context, symbol string) (*exchange.LotSize, float64, error) {
	return &exchange.LotSize{StepSize: "0.001"}, 5, nil
}

func (f *fakeClient) FuturesBalance(ctx context.Context) (float64, error) {
	return 1000, nil
}

func (f *fakeClient) SetHedgeMode(ctx context.Context) error {
	return nil
}

func (f *fakeClient) DialMarkPriceStream(ctx context.Context, symbols []string) (exchange.StreamConn, error) {
	f.mu.Lock()
	dial := f.dial
	f.mu.Unlock()
	if dial == nil {
		return nil, errors.New("stream not configured")
	}
	return dial(ctx, symbols)
}

func (f *fakeClient) setPositions(positions ...models.Position) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = positions
}

func (f *fakeClient) placedOrders() []placedOrder {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]placedOrder(nil), f.orders...)
}

// openAmount возвращает объём позиции symbol/side
func (f *fakeClient) openAmount(symbol, side string) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.positions {
		if p.Symbol == symbol && p.Side == side {
			return p.Amount
		}
	}
	return 0
}

// ============================================================
// fakeConn - websocket соединение потока
// ============================================================

// fakeConn отдаёт кадры из канала. Close разблокирует ReadMessage.
type fakeConn struct {
	frames    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
	onClose   func()
}

func newFakeConn(buffer int) *fakeConn {
	return &fakeConn{
		frames: make(chan []byte, buffer),
		closed: make(chan struct{}),
	}
}

var errConnClosed = errors.New("use of closed connection")

func (c *fakeConn) ReadMessage() ([]byte, error) {
	select {
	case data, ok := <-c.frames:
		if !ok {
			return nil, errors.New("connection reset by peer")
		}
		return data, nil
	case <-c.closed:
		return nil, errConnClosed
	}
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.onClose != nil {
			c.onClose()
		}
	})
	return nil
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

// ============================================================
// helpers
// ============================================================

// staticResolver всегда возвращает один клиент
func staticResolver(client exchange.Client) ClientResolver {
	return ClientResolverFunc(func(ctx context.Context, accountID int) (exchange.Client, error) {
		return client, nil
	})
}

// connTracker считает одновременно открытые соединения
type connTracker struct {
	open    atomic.Int32
	maxOpen atomic.Int32
	dials   atomic.Int32
}

func (t *connTracker) dial(ctx context.Context, symbols []string) (exchange.StreamConn, error) {
	t.dials.Add(1)
	n := t.open.Add(1)
	for {
		cur := t.maxOpen.Load()
		if n <= cur || t.maxOpen.CompareAndSwap(cur, n) {
			break
		}
	}
	conn := newFakeConn(1)
	conn.onClose = func() { t.open.Add(-1) }
	return conn, nil
}

func testBotConfig() config.BotConfig {
	return config.BotConfig{
		LegDelay:             0,
		SettleDelay:          0,
		RestartSettle:        0,
		StreamReconnectDelay: 10 * time.Millisecond,
		OrderTimeout:         time.Second,
		EventBuffer:          64,
	}
}

// waitFor ждёт выполнения условия
func waitFor(timeout time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(2 * time.Millisecond)
	}
	return cond()
}

// nextEvent читает событие нужного типа
func nextEvent(ch <-chan Event, eventType string, timeout time.Duration) (Event, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-ch:
			if !ok {
				return Event{}, false
			}
			if ev.Type == eventType {
				return ev, true
			}
		case <-timer.C:
			return Event{}, false
		}
	}
}
