package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"polytrade/internal/bot"
	"polytrade/internal/exchange"
	"polytrade/internal/models"
	"polytrade/internal/repository"
)

// ============ Mock AccountRepository ============

type MockAccountRepository struct {
	mu        sync.Mutex
	accounts  map[int]*models.Account
	createErr error
	getErr    error
	updateErr error
	nextID    int
	balances  map[int]float64
}

func NewMockAccountRepository() *MockAccountRepository {
	return &MockAccountRepository{
		accounts: make(map[int]*models.Account),
		balances: make(map[int]float64),
		nextID:   1,
	}
}

func (m *MockAccountRepository) Create(account *models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	for _, a := range m.accounts {
		if a.Name == account.Name {
			return repository.ErrAccountExists
		}
	}
	account.ID = m.nextID
	m.nextID++
	account.CreatedAt = time.Now()
	copied := *account
	m.accounts[account.ID] = &copied
	return nil
}

func (m *MockAccountRepository) GetByID(id int) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, repository.ErrAccountNotFound
	}
	copied := *a
	return &copied, nil
}

func (m *MockAccountRepository) GetAll() ([]*models.Account, error) {
	return m.list(false)
}

func (m *MockAccountRepository) GetActive() ([]*models.Account, error) {
	return m.list(true)
}

func (m *MockAccountRepository) list(activeOnly bool) ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	var out []*models.Account
	for id := 1; id < m.nextID; id++ {
		a, ok := m.accounts[id]
		if !ok || (activeOnly && !a.Active) {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	return out, nil
}

func (m *MockAccountRepository) UpdateBalance(id int, balance float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.FuturesBalance = balance
	m.balances[id] = balance
	return nil
}

func (m *MockAccountRepository) SetActive(id int, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	a, ok := m.accounts[id]
	if !ok {
		return repository.ErrAccountNotFound
	}
	a.Active = active
	return nil
}

func (m *MockAccountRepository) Delete(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return repository.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

// ============ Mock exchange.Client ============

type MockClient struct {
	mu sync.Mutex

	balance    float64
	balanceErr error
	hedgeErr   error
	hedgeCalls int

	prices    map[string]float64
	positions []models.Position
	infos     []exchange.SymbolInfo
	lot       *exchange.LotSize
	notional  float64
	orders    int
	orderErr  error
}

func NewMockClient() *MockClient {
	return &MockClient{
		balance: 1000,
		prices:  map[string]float64{},
		lot:     &exchange.LotSize{MinQty: "0.001", MaxQty: "1000", StepSize: "0.001"},
	}
}

func (c *MockClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return nil
}

func (c *MockClient) SetMarginType(ctx context.Context, symbol, mode string) error {
	return nil
}

func (c *MockClient) Price(ctx context.Context, symbol string) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p, ok := c.prices[symbol]
	if !ok {
		return 0, exchange.ErrSymbolNotFound
	}
	return p, nil
}

func (c *MockClient) PositionRisk(ctx context.Context, symbol string) ([]models.Position, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Position
	for _, p := range c.positions {
		if symbol == "" || p.Symbol == symbol {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *MockClient) RoundLotSize(ctx context.Context, symbol string, qty float64) (float64, error) {
	return qty, nil
}

func (c *MockClient) OrderMarket(ctx context.Context, symbol, side string, qty float64, positionSide string) (*exchange.Order, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.orderErr != nil {
		return nil, c.orderErr
	}
	c.orders++
	return &exchange.Order{ID: int64(c.orders), Symbol: symbol, Side: side, PositionSide: positionSide, Quantity: qty}, nil
}

func (c *MockClient) ExchangeInfo(ctx context.Context) ([]exchange.SymbolInfo, error) {
	return c.infos, nil
}

func (c *MockClient) SymbolFilters(ctx context.Context, symbol string) (*exchange.LotSize, float64, error) {
	for _, info := range c.infos {
		if info.Symbol == symbol {
			return c.lot, c.notional, nil
		}
	}
	return nil, 0, exchange.ErrSymbolNotFound
}

func (c *MockClient) FuturesBalance(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.balance, c.balanceErr
}

func (c *MockClient) SetHedgeMode(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hedgeCalls++
	return c.hedgeErr
}

func (c *MockClient) DialMarkPriceStream(ctx context.Context, symbols []string) (exchange.StreamConn, error) {
	return nil, errors.New("not supported in service tests")
}

// ============ Mock ClientFactory ============

type MockFactory struct {
	mu      sync.Mutex
	client  *MockClient
	byKey   map[string]*MockClient
	public  *MockClient
	newErr  error
	creds   []models.Credentials
	publics []bool
}

func NewMockFactory(client *MockClient) *MockFactory {
	return &MockFactory{client: client, byKey: map[string]*MockClient{}, public: client}
}

func (f *MockFactory) NewClient(exchangeName string, creds models.Credentials) (exchange.Client, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	f.creds = append(f.creds, creds)
	if c, ok := f.byKey[creds.APIKey]; ok {
		return c, nil
	}
	return f.client, nil
}

func (f *MockFactory) Public(testnet bool) exchange.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.publics = append(f.publics, testnet)
	return f.public
}

func (f *MockFactory) lastCreds() models.Credentials {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.creds) == 0 {
		return models.Credentials{}
	}
	return f.creds[len(f.creds)-1]
}

// ============ Mock Tracker ============

type MockTracker struct {
	mu         sync.Mutex
	restarts   chan int
	restartErr error
	stopped    []int
	running    map[int]bool
}

func NewMockTracker() *MockTracker {
	return &MockTracker{restarts: make(chan int, 16), running: map[int]bool{}}
}

func (t *MockTracker) Restart(ctx context.Context, accountID int) error {
	t.mu.Lock()
	err := t.restartErr
	if err == nil {
		t.running[accountID] = true
	}
	t.mu.Unlock()
	t.restarts <- accountID
	return err
}

func (t *MockTracker) Stop(accountID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopped = append(t.stopped, accountID)
	was := t.running[accountID]
	delete(t.running, accountID)
	return was
}

func (t *MockTracker) IsRunning(accountID int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running[accountID]
}

func (t *MockTracker) WorkerState(accountID int) (bot.WorkerState, bool) {
	if t.IsRunning(accountID) {
		return bot.StateStreaming, true
	}
	return "", false
}

// waitRestart ждёт асинхронный перезапуск трекинга
func (t *MockTracker) waitRestart(timeout time.Duration) (int, bool) {
	select {
	case id := <-t.restarts:
		return id, true
	case <-time.After(timeout):
		return 0, false
	}
}
