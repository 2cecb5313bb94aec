package websocket

import (
	"time"

	"polytrade/internal/bot"
	"polytrade/internal/models"
)

// MessageType определяет тип WebSocket сообщения
type MessageType string

// Типы WebSocket сообщений
const (
	// MessageTypeMarkPrice - новая mark price символа открытой позиции
	MessageTypeMarkPrice MessageType = bot.EventMarkPrice

	// MessageTypeTrades - полный снимок ROI позиций аккаунта.
	// Пустой список означает, что открытых позиций нет.
	MessageTypeTrades MessageType = bot.EventTrades

	// MessageTypeError - стрим аккаунта остановлен или снимок не получен
	MessageTypeError MessageType = bot.EventError

	// MessageTypeConnected - приветствие после подключения
	MessageTypeConnected MessageType = "connected"
)

// BaseMessage - базовая структура для всех WebSocket сообщений
type BaseMessage struct {
	Type      MessageType `json:"type"`
	AccountID int         `json:"account_id"`
	Timestamp time.Time   `json:"timestamp"`
}

// MarkPriceMessage - обновление mark price
type MarkPriceMessage struct {
	BaseMessage
	Symbol    string  `json:"symbol"`
	MarkPrice float64 `json:"mark_price"`
}

// TradesMessage - снимок позиций. Trades всегда массив, в том числе пустой.
type TradesMessage struct {
	BaseMessage
	Trades []models.RoiSnapshot `json:"trades"`
}

// ErrorMessage - ошибка стрима
type ErrorMessage struct {
	BaseMessage
	Error string `json:"error"`
}

// ConnectedMessage подтверждает подписку. AccountID 0 - все аккаунты.
type ConnectedMessage struct {
	BaseMessage
}

// NewEventMessage переводит событие шины в сообщение клиента.
// Неизвестный тип события возвращает nil.
func NewEventMessage(ev bot.Event) interface{} {
	base := BaseMessage{
		Type:      MessageType(ev.Type),
		AccountID: ev.AccountID,
		Timestamp: ev.Timestamp,
	}

	switch ev.Type {
	case bot.EventMarkPrice:
		return &MarkPriceMessage{BaseMessage: base, Symbol: ev.Symbol, MarkPrice: ev.MarkPrice}
	case bot.EventTrades:
		trades := ev.Trades
		if trades == nil {
			trades = []models.RoiSnapshot{}
		}
		return &TradesMessage{BaseMessage: base, Trades: trades}
	case bot.EventError:
		return &ErrorMessage{BaseMessage: base, Error: ev.Error}
	default:
		return nil
	}
}

// NewConnectedMessage создает приветствие для клиента
func NewConnectedMessage(accountID int) *ConnectedMessage {
	return &ConnectedMessage{
		BaseMessage: BaseMessage{
			Type:      MessageTypeConnected,
			AccountID: accountID,
			Timestamp: time.Now(),
		},
	}
}
