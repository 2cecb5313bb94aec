package utils

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// math.go - арифметика количеств и цен для фьючерсных ордеров
//
// Объёмы округляются через decimal: шаг лота биржи (0.001, 0.1, 1)
// не представим точно во float64, а повторное округление
// уже округлённого объёма не должно его менять.

// RoundToStep округляет значение ВНИЗ до ближайшего кратного шага биржи
// в строковом виде ("0.00100000").
//
// Округление вниз гарантирует, что ордер не превысит выделенную маржу.
// Шаг <= 0 означает отсутствие ограничения: значение возвращается как есть.
//
// Примеры:
//   - RoundToStep(0.123456, "0.001") = 0.123
//   - RoundToStep(1.999, "0.01") = 1.99
//   - RoundToStep(100.5, "1") = 100
func RoundToStep(value float64, step string) (float64, error) {
	s, err := decimal.NewFromString(strings.TrimSpace(step))
	if err != nil {
		return 0, fmt.Errorf("invalid step size %q: %w", step, err)
	}
	if !s.IsPositive() {
		return value, nil
	}
	f, _ := decimal.NewFromFloat(value).Div(s).Floor().Mul(s).Float64()
	return f, nil
}

// StepPrecision возвращает число значащих знаков после запятой в шаге:
// "0.00100000" -> 3, "1" -> 0
func StepPrecision(step string) int32 {
	s, err := decimal.NewFromString(strings.TrimSpace(step))
	if err != nil || !s.IsPositive() {
		return 8
	}
	// String() отбрасывает хвостовые нули
	str := s.String()
	if i := strings.IndexByte(str, '.'); i >= 0 {
		return int32(len(str) - i - 1)
	}
	return 0
}

// FormatQuantity форматирует объём для REST API биржи без экспоненты
func FormatQuantity(qty float64, precision int32) string {
	return decimal.NewFromFloat(qty).Truncate(precision).String()
}

// ParseFloat разбирает числовую строку биржи. Пустая строка - ноль.
func ParseFloat(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q: %w", s, err)
	}
	f, _ := d.Float64()
	return f, nil
}
