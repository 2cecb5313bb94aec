package bot

import (
	"sync"
	"time"

	"polytrade/internal/models"
)

// Типы событий для подписчиков
const (
	EventMarkPrice = "markPrice"
	EventTrades    = "trades"
	EventError     = "error"
)

// Event - событие стрима или снимка позиций
type Event struct {
	Type      string               `json:"type"`
	AccountID int                  `json:"account_id"`
	Symbol    string               `json:"symbol,omitempty"`
	MarkPrice float64              `json:"mark_price,omitempty"`
	Trades    []models.RoiSnapshot `json:"trades,omitempty"`
	Error     string               `json:"error,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
}

// NewMarkPriceEvent - обновление mark price символа
func NewMarkPriceEvent(accountID int, symbol string, markPrice float64) Event {
	return Event{
		Type:      EventMarkPrice,
		AccountID: accountID,
		Symbol:    symbol,
		MarkPrice: markPrice,
		Timestamp: time.Now(),
	}
}

// NewTradesEvent - полный снимок позиций. Пустой снимок - позиций нет.
func NewTradesEvent(accountID int, trades []models.RoiSnapshot) Event {
	if trades == nil {
		trades = []models.RoiSnapshot{}
	}
	return Event{
		Type:      EventTrades,
		AccountID: accountID,
		Trades:    trades,
		Timestamp: time.Now(),
	}
}

// NewErrorEvent - ошибка воркера или снимка
func NewErrorEvent(accountID int, err error) Event {
	return Event{
		Type:      EventError,
		AccountID: accountID,
		Error:     err.Error(),
		Timestamp: time.Now(),
	}
}

// EventBus раздаёт события подписчикам. Publish не блокирует:
// при полном буфере подписчика событие для него теряется.
type EventBus struct {
	mu     sync.RWMutex
	subs   map[int]chan Event
	nextID int
	closed bool
}

func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan Event)}
}

// Subscribe регистрирует подписчика. cancel закрывает канал, повторный вызов безопасен.
func (b *EventBus) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan Event, buffer)

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish отправляет событие всем подписчикам и возвращает число доставок
func (b *EventBus) Publish(ev Event) int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	delivered := 0
	for _, ch := range b.subs {
		if tryEnqueueEvent(ch, ev, "events") {
			delivered++
		}
	}
	return delivered
}

// SubscriberCount возвращает число подписчиков
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close закрывает все каналы подписчиков. Новые подписки получают закрытый канал.
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
