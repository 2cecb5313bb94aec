package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Направление позиции
const (
	SideLong  = "LONG"
	SideShort = "SHORT"
	SideBoth  = "BOTH" // one-way режим, в hedge-режиме не встречается
)

// Сторона ордера
const (
	OrderBuy  = "BUY"
	OrderSell = "SELL"
)

// Режим маржи ноги
const (
	MarginIsolated = "ISOLATED"
	MarginCross    = "CROSS"
)

var (
	ErrEmptySymbol       = errors.New("symbol is empty")
	ErrInvalidSide       = errors.New("side must be LONG or SHORT")
	ErrInvalidLeverage   = errors.New("leverage must be a positive integer")
	ErrInvalidMargin     = errors.New("margin must be positive")
	ErrInvalidMarginMode = errors.New("margin mode must be ISOLATED or CROSS")
)

// OpenOrderSide - сторона ордера открытия: LONG открывается покупкой
func OpenOrderSide(side string) string {
	if side == SideShort {
		return OrderSell
	}
	return OrderBuy
}

// CloseOrderSide - сторона ордера закрытия, противоположная открытию
func CloseOrderSide(side string) string {
	if side == SideShort {
		return OrderBuy
	}
	return OrderSell
}

// Leg - одна нога пакетной заявки
type Leg struct {
	Symbol     string  `json:"symbol"`
	Side       string  `json:"side"`     // LONG / SHORT
	Leverage   int     `json:"leverage"` // целое плечо
	Margin     float64 `json:"margin"`   // сумма в валюте котировки (USDT)
	MarginMode string  `json:"margin_mode"`
}

// Normalize приводит строковые поля к виду биржи. Пустой режим маржи - ISOLATED.
func (l Leg) Normalize() Leg {
	l.Symbol = strings.ToUpper(strings.TrimSpace(l.Symbol))
	l.Side = strings.ToUpper(strings.TrimSpace(l.Side))
	l.MarginMode = strings.ToUpper(strings.TrimSpace(l.MarginMode))
	if l.MarginMode == "" {
		l.MarginMode = MarginIsolated
	}
	if l.MarginMode == "CROSSED" {
		l.MarginMode = MarginCross
	}
	return l
}

// Validate проверяет ногу после Normalize
func (l Leg) Validate() error {
	if l.Symbol == "" {
		return ErrEmptySymbol
	}
	if l.Side != SideLong && l.Side != SideShort {
		return fmt.Errorf("%s: %w", l.Symbol, ErrInvalidSide)
	}
	if l.Leverage <= 0 {
		return fmt.Errorf("%s: %w", l.Symbol, ErrInvalidLeverage)
	}
	if l.Margin <= 0 {
		return fmt.Errorf("%s: %w", l.Symbol, ErrInvalidMargin)
	}
	if l.MarginMode != MarginIsolated && l.MarginMode != MarginCross {
		return fmt.Errorf("%s: %w", l.Symbol, ErrInvalidMarginMode)
	}
	return nil
}

// SubmittedLeg - нога, по которой биржа подтвердила ордер открытия
type SubmittedLeg struct {
	Symbol   string  `json:"symbol"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
	OrderID  int64   `json:"order_id"`
}

// CloseTarget - позиция, которую нужно закрыть
type CloseTarget struct {
	Symbol string `json:"symbol"`
	Side   string `json:"side"`
}

// Normalize приводит цель закрытия к верхнему регистру
func (c CloseTarget) Normalize() CloseTarget {
	c.Symbol = strings.ToUpper(strings.TrimSpace(c.Symbol))
	c.Side = strings.ToUpper(strings.TrimSpace(c.Side))
	return c
}

// Validate проверяет цель после Normalize
func (c CloseTarget) Validate() error {
	if c.Symbol == "" {
		return ErrEmptySymbol
	}
	if c.Side != SideLong && c.Side != SideShort {
		return fmt.Errorf("%s: %w", c.Symbol, ErrInvalidSide)
	}
	return nil
}

// Position - позиция на бирже в представлении positionRisk
type Position struct {
	Symbol        string  `json:"symbol"`
	Side          string  `json:"position_side"` // LONG / SHORT / BOTH
	EntryPrice    float64 `json:"entry_price"`
	MarkPrice     float64 `json:"mark_price"`
	Leverage      int     `json:"leverage"`
	Amount        float64 `json:"amount"` // со знаком, 0 - позиции нет
	UnrealizedPnl float64 `json:"unrealized_pnl"`
}

// IsOpen - позиция не нулевая
func (p Position) IsOpen() bool {
	return p.Amount != 0
}

// RoiSnapshot - ROI открытой позиции на момент запроса. Не хранится.
type RoiSnapshot struct {
	Symbol     string    `json:"symbol"`
	Side       string    `json:"side"`
	EntryPrice float64   `json:"entry_price"`
	MarkPrice  float64   `json:"mark_price"`
	Leverage   int       `json:"leverage"`
	Amount     float64   `json:"amount"`
	ROI        float64   `json:"roi"` // проценты
	PnL        float64   `json:"pnl"` // USDT
	Timestamp  time.Time `json:"timestamp"`
}
