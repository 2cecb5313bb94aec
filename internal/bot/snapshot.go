package bot

import (
	"context"
	"fmt"
	"time"

	"polytrade/internal/exchange"
	"polytrade/internal/models"
	"polytrade/pkg/utils"
)

// SnapshotFetcher собирает ROI открытых позиций одним проходом
type SnapshotFetcher struct {
	log *utils.Logger
	now func() time.Time
}

func NewSnapshotFetcher() *SnapshotFetcher {
	return &SnapshotFetcher{
		log: utils.L().WithComponent("snapshot"),
		now: time.Now,
	}
}

// Fetch возвращает по одной записи на каждую ненулевую позицию аккаунта.
// Цена запрашивается один раз на символ: в hedge-режиме у символа бывает две позиции.
func (f *SnapshotFetcher) Fetch(ctx context.Context, client exchange.Client) ([]models.RoiSnapshot, error) {
	positions, err := client.PositionRisk(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("position risk: %w", err)
	}

	prices := make(map[string]float64)
	snapshots := make([]models.RoiSnapshot, 0, len(positions))
	ts := f.now()

	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}

		mark, ok := prices[p.Symbol]
		if !ok {
			mark, err = client.Price(ctx, p.Symbol)
			if err != nil {
				return nil, fmt.Errorf("price %s: %w", p.Symbol, err)
			}
			prices[p.Symbol] = mark
		}

		snapshots = append(snapshots, models.RoiSnapshot{
			Symbol:     p.Symbol,
			Side:       positionSide(p),
			EntryPrice: p.EntryPrice,
			MarkPrice:  mark,
			Leverage:   p.Leverage,
			Amount:     p.Amount,
			ROI:        CalculateROI(p.EntryPrice, mark, p.Leverage, positionSide(p)),
			PnL:        CalculatePnL(p.EntryPrice, mark, p.Amount),
			Timestamp:  ts,
		})
	}

	f.log.Debug("snapshot fetched", utils.Count(len(snapshots)))
	return snapshots, nil
}

// positionSide определяет сторону позиции one-way режима по знаку объёма
func positionSide(p models.Position) string {
	if p.Side == models.SideLong || p.Side == models.SideShort {
		return p.Side
	}
	if p.Amount < 0 {
		return models.SideShort
	}
	return models.SideLong
}
