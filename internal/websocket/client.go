package websocket

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"polytrade/pkg/utils"
)

const (
	// Время ожидания записи сообщения
	writeWait = 10 * time.Second

	// Время ожидания между pong сообщениями
	pongWait = 60 * time.Second

	// Интервал отправки ping сообщений (должен быть меньше pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Клиент только слушает, входящие сообщения не нужны
	maxMessageSize = 4096

	// Размер буфера отправки клиента. Снимок позиций крупный, mark price частые.
	clientSendBufferSize = 512
)

// OriginChecker проверяет Origin с O(1) lookup через map
// Потокобезопасен для чтения после инициализации
type OriginChecker struct {
	allowedOrigins map[string]struct{}
	allowAll       bool
}

// originChecker - глобальный экземпляр, заменяется только до старта сервера
var originChecker = NewOriginChecker("")

// SetAllowedOrigins задаёт разрешённые origins для upgrade
func SetAllowedOrigins(origins string) {
	originChecker = NewOriginChecker(origins)
}

// NewOriginChecker разбирает список origins через запятую.
// Пустое значение или "*" разрешают все origins.
func NewOriginChecker(origins string) *OriginChecker {
	checker := &OriginChecker{
		allowedOrigins: make(map[string]struct{}),
	}

	if origins == "" || origins == "*" {
		checker.allowAll = true
		return checker
	}

	for _, origin := range strings.Split(origins, ",") {
		origin = strings.TrimSpace(origin)
		if origin != "" {
			checker.allowedOrigins[origin] = struct{}{}
		}
	}
	return checker
}

// Check проверяет origin за O(1)
func (oc *OriginChecker) Check(origin string) bool {
	if origin == "" {
		return true // не браузерные клиенты (curl, wscat)
	}
	if oc.allowAll {
		return true
	}
	_, ok := oc.allowedOrigins[origin]
	return ok
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return originChecker.Check(r.Header.Get("Origin"))
	},
	EnableCompression: true,
}

// Client представляет одно WebSocket соединение
//
// Каждый клиент имеет две горутины:
// 1. readPump - держит соединение живым (pong) и замечает отключение
// 2. writePump - пишет сообщения из send
type Client struct {
	conn *websocket.Conn
	hub  *Hub

	// Буферизованный канал исходящих сообщений, закрывает только Hub
	send chan []byte

	// accountID - фильтр подписки, 0 - все аккаунты
	accountID int
}

// wants - клиент подписан на события аккаунта
func (c *Client) wants(accountID int) bool {
	return c.accountID == 0 || accountID == 0 || c.accountID == accountID
}

// readPump читает входящие кадры до ошибки соединения
func (c *Client) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("websocket read error", utils.AccountID(c.accountID), utils.Err(err))
			}
			return
		}
	}
}

// writePump отправляет сообщения клиенту.
// Накопившиеся в буфере сообщения уходят отдельными кадрами: каждое - целый JSON.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub закрыл канал
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ServeWS обрабатывает WebSocket запросы от клиента
//
// Параметр account_id ограничивает поток одним аккаунтом.
//
// Использование в routes:
// router.HandleFunc("/ws/stream", hub.ServeWS)
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	accountID := 0
	if raw := r.URL.Query().Get("account_id"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil || id <= 0 {
			http.Error(w, "invalid account_id", http.StatusBadRequest)
			return
		}
		accountID = id
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", utils.Err(err))
		return
	}

	client := &Client{
		conn:      conn,
		hub:       h,
		send:      make(chan []byte, clientSendBufferSize),
		accountID: accountID,
	}

	hello, err := json.Marshal(NewConnectedMessage(accountID))
	if err == nil {
		client.send <- hello
	}

	select {
	case h.register <- client:
	case <-h.stop:
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server stopping"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
