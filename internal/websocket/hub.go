package websocket

import (
	"context"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"polytrade/internal/bot"
	"polytrade/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// hubBroadcastBuffer - очередь сообщений между шиной и клиентами
const hubBroadcastBuffer = 256

// outbound - сериализованное сообщение и аккаунт, к которому оно относится.
// accountID 0 - сообщение для всех клиентов.
type outbound struct {
	accountID int
	data      []byte
}

// Hub управляет всеми активными WebSocket соединениями
//
// Назначение:
// Раздаёт события стрим-воркеров (mark price, снимки позиций, ошибки)
// подключенным браузерам без polling.
//
// Функции:
// - Регистрация и отмена регистрации клиентов
// - Broadcast с фильтром по аккаунту клиента
// - Сброс медленных клиентов
// - Мост из bot.EventBus (Forward)
//
// Использование:
// 1. hub := NewHub()
// 2. go hub.Run()
// 3. go hub.Forward(ctx, bus, buffer)
// 4. hub.Stop() при остановке сервера
type Hub struct {
	// Зарегистрированные клиенты
	clients map[*Client]bool

	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client

	stop     chan struct{}
	stopOnce sync.Once

	dropped     atomic.Int64
	clientCount atomic.Int32

	mu  sync.RWMutex
	log *utils.Logger
}

// NewHub создает новый Hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan outbound, hubBroadcastBuffer),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		stop:       make(chan struct{}),
		log:        utils.L().WithComponent("ws_hub"),
	}
}

// Run запускает главный цикл Hub до вызова Stop.
// Список клиентов копируется под RLock, отправка идёт без блокировки.
func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.clientCount.Store(int32(len(h.clients)))
			h.mu.Unlock()
			h.log.Debug("client connected",
				utils.AccountID(client.accountID),
				utils.Count(int(h.clientCount.Load())),
			)

		case client := <-h.unregister:
			h.remove(client)
			h.log.Debug("client disconnected", utils.Count(int(h.clientCount.Load())))

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver отправляет сообщение подходящим клиентам, медленных отключает
func (h *Hub) deliver(msg outbound) {
	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		if client.wants(msg.accountID) {
			clients = append(clients, client)
		}
	}
	h.mu.RUnlock()

	var slow []*Client
	for _, client := range clients {
		select {
		case client.send <- msg.data:
		default:
			slow = append(slow, client)
		}
	}

	if len(slow) > 0 {
		for _, client := range slow {
			h.remove(client)
		}
		h.log.Warn("removed slow clients",
			utils.Int("removed", len(slow)),
			utils.Count(int(h.clientCount.Load())),
		)
	}
}

func (h *Hub) remove(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client.send)
		h.clientCount.Store(int32(len(h.clients)))
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		delete(h.clients, client)
		close(client.send)
	}
	h.clientCount.Store(0)
}

// Stop завершает Run и закрывает соединения клиентов. Повторный вызов безопасен.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.stop)
	})
}

// BroadcastEvent отправляет событие шины клиентам его аккаунта
func (h *Hub) BroadcastEvent(ev bot.Event) {
	msg := NewEventMessage(ev)
	if msg == nil {
		h.log.Warn("unknown event type", utils.String("type", ev.Type))
		return
	}
	h.broadcastTo(ev.AccountID, msg)
}

func (h *Hub) broadcastTo(accountID int, message interface{}) {
	data, err := json.Marshal(message)
	if err != nil {
		h.log.Error("marshal broadcast message", utils.Err(err))
		return
	}
	h.enqueue(outbound{accountID: accountID, data: data})
}

// enqueue не блокирует издателя: при переполненной очереди сообщение теряется
func (h *Hub) enqueue(msg outbound) {
	select {
	case h.broadcast <- msg:
	default:
		h.dropped.Add(1)
		bot.RecordBufferOverflow("ws_hub")
	}
}

// Forward подписывается на шину и пересылает события до отмены ctx
// или закрытия шины
func (h *Hub) Forward(ctx context.Context, bus *bot.EventBus, buffer int) {
	events, unsubscribe := bus.Subscribe(buffer)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.stop:
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			h.BroadcastEvent(ev)
		}
	}
}

// ClientCount возвращает количество подключенных клиентов
func (h *Hub) ClientCount() int {
	return int(h.clientCount.Load())
}

// DroppedMessages возвращает число сообщений, потерянных из-за переполнения очереди
func (h *Hub) DroppedMessages() int64 {
	return h.dropped.Load()
}
