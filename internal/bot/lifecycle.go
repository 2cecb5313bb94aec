package bot

import (
	"context"
	"errors"
	"sync"
	"time"

	"polytrade/pkg/utils"
)

var ErrManagerStopped = errors.New("stream manager stopped")

// ManagerConfig - тайминги менеджера воркеров
type ManagerConfig struct {
	RestartSettle  time.Duration // пауза между остановкой старого и запуском нового воркера
	ReconnectDelay time.Duration
}

// Manager владеет стрим-воркерами, не больше одного на аккаунт.
// Переходы одного аккаунта сериализуются, разные аккаунты не мешают друг другу.
type Manager struct {
	resolver ClientResolver
	bus      *EventBus
	fetcher  *SnapshotFetcher
	cfg      ManagerConfig
	log      *utils.Logger

	// контекст жизни воркеров, отменяется в StopAll
	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	workers map[int]*workerHandle
	locks   map[int]*sync.Mutex
	closed  bool
	wg      sync.WaitGroup
}

type workerHandle struct {
	worker *StreamWorker
	cancel context.CancelFunc
}

// NewManager создаёт менеджер
func NewManager(resolver ClientResolver, bus *EventBus, fetcher *SnapshotFetcher, cfg ManagerConfig) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	if fetcher == nil {
		fetcher = NewSnapshotFetcher()
	}
	return &Manager{
		resolver: resolver,
		bus:      bus,
		fetcher:  fetcher,
		cfg:      cfg,
		log:      utils.L().WithComponent("stream_manager"),
		ctx:      ctx,
		cancel:   cancel,
		workers:  make(map[int]*workerHandle),
		locks:    make(map[int]*sync.Mutex),
	}
}

// Restart останавливает воркер аккаунта, дожидается его завершения,
// запускает новый и отправляет подписчикам текущий снимок позиций.
func (m *Manager) Restart(ctx context.Context, accountID int) error {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	m.stopLocked(accountID)

	if err := sleepCtx(ctx, m.cfg.RestartSettle); err != nil {
		return err
	}

	if err := m.start(accountID); err != nil {
		return err
	}

	m.pushSnapshot(ctx, accountID)
	return nil
}

// Stop останавливает воркер аккаунта и дожидается его завершения.
// Возвращает false, если воркер не был запущен.
func (m *Manager) Stop(accountID int) bool {
	lock := m.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	return m.stopLocked(accountID)
}

// StopAll останавливает все воркеры. После вызова Restart возвращает ErrManagerStopped.
func (m *Manager) StopAll() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	m.cancel()
	m.wg.Wait()
	m.log.Info("all stream workers stopped")
}

// IsRunning - у аккаунта есть работающий воркер
func (m *Manager) IsRunning(accountID int) bool {
	m.mu.Lock()
	h, ok := m.workers[accountID]
	m.mu.Unlock()
	return ok && IsActive(h.worker.State())
}

// WorkerState возвращает состояние воркера аккаунта
func (m *Manager) WorkerState(accountID int) (WorkerState, bool) {
	m.mu.Lock()
	h, ok := m.workers[accountID]
	m.mu.Unlock()
	if !ok {
		return "", false
	}
	return h.worker.State(), true
}

// ActiveCount возвращает число работающих воркеров
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, h := range m.workers {
		if IsActive(h.worker.State()) {
			count++
		}
	}
	return count
}

func (m *Manager) accountLock(accountID int) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()

	lock, ok := m.locks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		m.locks[accountID] = lock
	}
	return lock
}

// stopLocked вызывается под блокировкой аккаунта
func (m *Manager) stopLocked(accountID int) bool {
	m.mu.Lock()
	h, ok := m.workers[accountID]
	delete(m.workers, accountID)
	m.mu.Unlock()

	if !ok {
		return false
	}

	h.cancel()
	<-h.worker.Done()
	m.log.Info("stream worker stopped", utils.AccountID(accountID))
	return true
}

// start запускает воркер на контексте менеджера. Вызывается под блокировкой аккаунта.
func (m *Manager) start(accountID int) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrManagerStopped
	}

	wctx, cancel := context.WithCancel(m.ctx)
	h := &workerHandle{
		worker: NewStreamWorker(accountID, m.resolver, m.bus, m.cfg.ReconnectDelay),
		cancel: cancel,
	}
	m.workers[accountID] = h
	m.wg.Add(1)
	m.mu.Unlock()

	ActiveStreamWorkers.Inc()
	go func() {
		defer m.wg.Done()
		defer ActiveStreamWorkers.Dec()
		defer cancel()

		h.worker.Run(wctx)

		// воркер мог завершиться сам (нет позиций, ошибка) - убираем его из реестра
		m.mu.Lock()
		if m.workers[accountID] == h {
			delete(m.workers, accountID)
		}
		m.mu.Unlock()
	}()

	return nil
}

// pushSnapshot отправляет текущий снимок, не дожидаясь первого тика потока
func (m *Manager) pushSnapshot(ctx context.Context, accountID int) {
	client, err := m.resolver.ResolveClient(ctx, accountID)
	if err != nil {
		m.log.Warn("snapshot push skipped", utils.AccountID(accountID), utils.Err(err))
		return
	}

	trades, err := m.fetcher.Fetch(ctx, client)
	if err != nil {
		m.log.Warn("snapshot push failed", utils.AccountID(accountID), utils.Err(err))
		m.bus.Publish(NewErrorEvent(accountID, err))
		return
	}

	m.bus.Publish(NewTradesEvent(accountID, trades))
}
