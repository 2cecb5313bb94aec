package bot

import "polytrade/internal/models"

// CalculateROI возвращает ROI позиции в процентах от маржи.
// Без цены входа ROI не определён и равен 0. Для SHORT знак инвертируется.
func CalculateROI(entry, mark float64, leverage int, side string) float64 {
	if entry <= 0 {
		return 0
	}
	roi := (mark - entry) / entry * float64(leverage) * 100
	if side == models.SideShort {
		return -roi
	}
	return roi
}

// CalculatePnL - нереализованный PnL в валюте котировки.
// amount со знаком: у шорта отрицательный, поэтому отдельной ветки нет.
func CalculatePnL(entry, mark, amount float64) float64 {
	if entry <= 0 {
		return 0
	}
	return (mark - entry) * amount
}
