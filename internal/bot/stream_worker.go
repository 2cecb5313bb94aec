package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"polytrade/internal/exchange"
	"polytrade/internal/models"
	"polytrade/pkg/utils"
)

// DefaultReconnectDelay - пауза перед переподключением потока
const DefaultReconnectDelay = 5 * time.Second

// ClientResolver выдаёт готового клиента биржи для аккаунта
type ClientResolver interface {
	ResolveClient(ctx context.Context, accountID int) (exchange.Client, error)
}

// ClientResolverFunc позволяет использовать функцию как ClientResolver
type ClientResolverFunc func(ctx context.Context, accountID int) (exchange.Client, error)

func (f ClientResolverFunc) ResolveClient(ctx context.Context, accountID int) (exchange.Client, error) {
	return f(ctx, accountID)
}

// StreamWorker транслирует mark price открытых позиций одного аккаунта в EventBus.
// Набор символов фиксируется при старте. Новый набор - новый воркер.
type StreamWorker struct {
	accountID      int
	resolver       ClientResolver
	bus            *EventBus
	reconnectDelay time.Duration
	log            *utils.Logger

	mu      sync.RWMutex
	state   WorkerState
	symbols []string

	done chan struct{}
}

// NewStreamWorker создаёт воркер в состоянии CREATED
func NewStreamWorker(accountID int, resolver ClientResolver, bus *EventBus, reconnectDelay time.Duration) *StreamWorker {
	if reconnectDelay <= 0 {
		reconnectDelay = DefaultReconnectDelay
	}
	return &StreamWorker{
		accountID:      accountID,
		resolver:       resolver,
		bus:            bus,
		reconnectDelay: reconnectDelay,
		log:            utils.L().WithComponent("stream").WithAccount(accountID),
		state:          StateCreated,
		done:           make(chan struct{}),
	}
}

// Run блокирует до остановки воркера. Остановка - отмена ctx.
func (w *StreamWorker) Run(ctx context.Context) {
	defer close(w.done)
	defer w.setState(StateTerminated)

	w.setState(StateResolving)

	client, symbols, err := w.resolve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.setState(StateError)
		w.log.Error("stream worker failed to start", utils.Err(err))
		w.bus.Publish(NewErrorEvent(w.accountID, err))
		return
	}

	if len(symbols) == 0 {
		w.setState(StateEmpty)
		w.log.Info("no open positions, nothing to stream")
		w.bus.Publish(NewTradesEvent(w.accountID, nil))
		return
	}

	w.mu.Lock()
	w.symbols = symbols
	w.mu.Unlock()

	w.log.Info("stream worker started", utils.Strings("symbols", symbols))

	for {
		conn, err := client.DialMarkPriceStream(ctx, symbols)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn("stream dial failed", utils.Err(err))
		} else {
			w.setState(StateStreaming)
			if err := w.readLoop(ctx, conn); err != nil && ctx.Err() == nil {
				w.log.Warn("stream connection lost", utils.Err(err))
			}
		}

		if ctx.Err() != nil {
			return
		}

		w.setState(StateReconnecting)
		StreamReconnects.Inc()
		if err := sleepCtx(ctx, w.reconnectDelay); err != nil {
			return
		}
	}
}

// resolve получает клиента и набор символов открытых позиций
func (w *StreamWorker) resolve(ctx context.Context) (exchange.Client, []string, error) {
	client, err := w.resolver.ResolveClient(ctx, w.accountID)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve client: %w", err)
	}

	positions, err := client.PositionRisk(ctx, "")
	if err != nil {
		return nil, nil, fmt.Errorf("position risk: %w", err)
	}

	return client, ActiveSymbols(positions), nil
}

// readLoop читает кадры до ошибки соединения или остановки.
// Отмена ctx закрывает соединение, чтобы разблокировать ReadMessage.
func (w *StreamWorker) readLoop(ctx context.Context, conn exchange.StreamConn) error {
	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-stop:
		}
	}()
	defer func() {
		close(stop)
		_ = conn.Close()
	}()

	for {
		data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		upd, ok := exchange.ParseMarkPriceFrame(data)
		RecordStreamMessage(ok)
		if !ok {
			continue
		}

		w.bus.Publish(NewMarkPriceEvent(w.accountID, upd.Symbol, upd.MarkPrice))
	}
}

func (w *StreamWorker) setState(to WorkerState) {
	w.mu.Lock()
	defer w.mu.Unlock()

	from := w.state
	if from == to {
		return
	}
	if !CanTransition(from, to) {
		w.log.Warn("unexpected worker transition", utils.String("from", string(from)), utils.State(string(to)))
	}
	w.state = to
	w.log.Debug("worker state", utils.String("from", string(from)), utils.State(string(to)))
}

// AccountID возвращает аккаунт воркера
func (w *StreamWorker) AccountID() int {
	return w.accountID
}

// State возвращает текущее состояние
func (w *StreamWorker) State() WorkerState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Symbols возвращает набор символов потока (нижний регистр)
func (w *StreamWorker) Symbols() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]string(nil), w.symbols...)
}

// Done закрывается после выхода из Run
func (w *StreamWorker) Done() <-chan struct{} {
	return w.done
}

// ActiveSymbols - уникальные символы ненулевых позиций в нижнем регистре, отсортированные
func ActiveSymbols(positions []models.Position) []string {
	seen := make(map[string]struct{}, len(positions))
	symbols := make([]string, 0, len(positions))
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		s := strings.ToLower(p.Symbol)
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}
