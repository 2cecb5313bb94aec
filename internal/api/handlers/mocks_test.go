package handlers

import (
	"context"
	"sync"
	"time"

	"polytrade/internal/bot"
	"polytrade/internal/exchange"
	"polytrade/internal/models"
	"polytrade/internal/service"
)

// ============ MockAccountService ============

type MockAccountService struct {
	mu       sync.Mutex
	accounts map[int]*models.Account
	nextID   int
	errors   map[string]error
	updated  int
}

func NewMockAccountService() *MockAccountService {
	return &MockAccountService{
		accounts: make(map[int]*models.Account),
		nextID:   1,
		errors:   make(map[string]error),
	}
}

// SetError задаёт ошибку операции
func (m *MockAccountService) SetError(operation string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[operation] = err
}

func (m *MockAccountService) AddEntry(name string, active bool) *models.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := &models.Account{
		ID:        m.nextID,
		Name:      name,
		Exchange:  models.ExchangeBinanceUM,
		APIKeyEnc: "ENC[v1]:secret",
		Active:    active,
		CreatedAt: time.Now(),
	}
	m.accounts[a.ID] = a
	m.nextID++
	return a
}

func (m *MockAccountService) AddAccount(ctx context.Context, name, apiKey, apiSecret string, testnet bool) (*models.Account, error) {
	if err := m.errors["AddAccount"]; err != nil {
		return nil, err
	}
	a := m.AddEntry(name, true)
	a.Testnet = testnet
	return a, nil
}

func (m *MockAccountService) GetAccounts() ([]*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.errors["GetAccounts"]; err != nil {
		return nil, err
	}
	out := []*models.Account{}
	for id := 1; id < m.nextID; id++ {
		if a, ok := m.accounts[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *MockAccountService) GetAccount(id int) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	return a, nil
}

func (m *MockAccountService) ToggleActive(id int) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, service.ErrAccountNotFound
	}
	a.Active = !a.Active
	return a, nil
}

func (m *MockAccountService) DeleteAccount(id int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[id]; !ok {
		return service.ErrAccountNotFound
	}
	delete(m.accounts, id)
	return nil
}

func (m *MockAccountService) UpdateAllBalances(ctx context.Context) (int, error) {
	if err := m.errors["UpdateAllBalances"]; err != nil {
		return 0, err
	}
	return m.updated, nil
}

// ============ MockTradeService ============

type MockTradeService struct {
	mu sync.Mutex

	submitErr error
	closeErr  error
	roiErr    error
	startErr  error

	closed    int
	snapshots []models.RoiSnapshot
	running   map[int]bool

	lastLegs    []models.Leg
	lastTargets []models.CloseTarget
	stopped     []int
}

func NewMockTradeService() *MockTradeService {
	return &MockTradeService{running: make(map[int]bool)}
}

func (m *MockTradeService) SubmitTrades(ctx context.Context, accountID int, legs []models.Leg) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLegs = legs
	if m.submitErr != nil {
		return 0, m.submitErr
	}
	return len(legs), nil
}

func (m *MockTradeService) CloseTrades(ctx context.Context, accountID int, targets []models.CloseTarget) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastTargets = targets
	if m.closeErr != nil {
		return 0, m.closeErr
	}
	return m.closed, nil
}

func (m *MockTradeService) FetchRoiSnapshot(ctx context.Context, accountID int) ([]models.RoiSnapshot, error) {
	if m.roiErr != nil {
		return nil, m.roiErr
	}
	return m.snapshots, nil
}

func (m *MockTradeService) StartTracking(ctx context.Context, accountID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.startErr != nil {
		return m.startErr
	}
	m.running[accountID] = true
	return nil
}

func (m *MockTradeService) StopTracking(accountID int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = append(m.stopped, accountID)
	was := m.running[accountID]
	delete(m.running, accountID)
	return was
}

func (m *MockTradeService) TrackingState(accountID int) (bot.WorkerState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running[accountID] {
		return bot.StateStreaming, true
	}
	return "", false
}

// ============ MockMarketService ============

type MockMarketService struct {
	symbols []string
	prices  map[string]float64
	details map[string]*service.SymbolDetails
	err     error
}

func NewMockMarketService() *MockMarketService {
	return &MockMarketService{
		prices:  make(map[string]float64),
		details: make(map[string]*service.SymbolDetails),
	}
}

func (m *MockMarketService) Symbols(ctx context.Context) ([]string, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.symbols, nil
}

func (m *MockMarketService) SymbolInfo(ctx context.Context, symbol string) (*service.SymbolDetails, error) {
	if m.err != nil {
		return nil, m.err
	}
	d, ok := m.details[symbol]
	if !ok {
		return nil, exchange.ErrSymbolNotFound
	}
	return d, nil
}

func (m *MockMarketService) Price(ctx context.Context, symbol string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	p, ok := m.prices[symbol]
	if !ok {
		return 0, exchange.ErrSymbolNotFound
	}
	return p, nil
}
