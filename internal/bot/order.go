package bot

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"polytrade/internal/config"
	"polytrade/internal/exchange"
	"polytrade/internal/models"
	"polytrade/pkg/utils"
)

var (
	ErrInvalidLeg    = errors.New("invalid leg")
	ErrInvalidTarget = errors.New("invalid close target")
	ErrLegFailed     = errors.New("leg failed, submitted legs rolled back")
)

// OrderExecutor - исполнитель пакетных заявок.
//
// Ноги отправляются строго последовательно с паузой LegDelay.
// Ошибка любой ноги останавливает пакет и запускает откат уже открытых ног.
type OrderExecutor struct {
	cfg config.BotConfig
	log *utils.Logger
}

// SubmitResult - результат пакетной заявки
type SubmitResult struct {
	// Submitted - открытые ноги. При ошибке пакета пусто.
	Submitted []models.SubmittedLeg
	// RolledBack - ноги, по которым был выполнен откат
	RolledBack []models.SubmittedLeg
	// FailedLeg - нога, на которой пакет остановился
	FailedLeg *models.Leg
}

// NewOrderExecutor создаёт исполнитель
func NewOrderExecutor(cfg config.BotConfig) *OrderExecutor {
	return &OrderExecutor{
		cfg: cfg,
		log: utils.L().WithComponent("orders"),
	}
}

// Submit открывает ноги по порядку.
// Успех - все ноги открыты и выдержана пауза SettleDelay.
// Ошибка - открытые ноги закрыты встречными ордерами, возвращается ErrLegFailed.
func (oe *OrderExecutor) Submit(ctx context.Context, client exchange.Client, legs []models.Leg) (*SubmitResult, error) {
	normalized, err := normalizeLegs(legs)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{}
	submitted := make([]models.SubmittedLeg, 0, len(normalized))

	for i, leg := range normalized {
		if i > 0 {
			if err := sleepCtx(ctx, oe.cfg.LegDelay); err != nil {
				return oe.abort(client, result, submitted, leg, err)
			}
		}

		sub, err := oe.openLeg(ctx, client, leg)
		if err != nil {
			RecordLeg(leg.Symbol, "failed")
			oe.log.Error("leg failed",
				utils.Symbol(leg.Symbol),
				utils.Side(leg.Side),
				utils.Err(err),
			)
			return oe.abort(client, result, submitted, leg, err)
		}

		RecordLeg(leg.Symbol, "submitted")
		submitted = append(submitted, sub)
		oe.log.Info("leg submitted",
			utils.Symbol(sub.Symbol),
			utils.Side(sub.Side),
			utils.Quantity(sub.Quantity),
			utils.OrderID(strconv.FormatInt(sub.OrderID, 10)),
		)
	}

	result.Submitted = submitted

	// отменённый контекст не отменяет уже открытые позиции
	_ = sleepCtx(ctx, oe.cfg.SettleDelay)

	return result, nil
}

// abort откатывает открытые ноги и возвращает исходную ошибку
func (oe *OrderExecutor) abort(
	client exchange.Client,
	result *SubmitResult,
	submitted []models.SubmittedLeg,
	failed models.Leg,
	cause error,
) (*SubmitResult, error) {
	result.FailedLeg = &failed
	result.RolledBack = oe.rollback(client, submitted)
	return result, fmt.Errorf("%w: %s %s: %w", ErrLegFailed, failed.Symbol, failed.Side, cause)
}

// openLeg настраивает символ, считает объём и размещает ордер открытия
func (oe *OrderExecutor) openLeg(ctx context.Context, client exchange.Client, leg models.Leg) (models.SubmittedLeg, error) {
	if err := client.SetLeverage(ctx, leg.Symbol, leg.Leverage); err != nil {
		return models.SubmittedLeg{}, fmt.Errorf("set leverage: %w", err)
	}

	if err := client.SetMarginType(ctx, leg.Symbol, leg.MarginMode); err != nil {
		return models.SubmittedLeg{}, fmt.Errorf("set margin type: %w", err)
	}

	price, err := client.Price(ctx, leg.Symbol)
	if err != nil {
		return models.SubmittedLeg{}, fmt.Errorf("price: %w", err)
	}
	if price <= 0 {
		return models.SubmittedLeg{}, fmt.Errorf("price: non-positive price %v", price)
	}

	// маржа переводится в объём по текущей цене, плечо на объём не влияет
	qty, err := client.RoundLotSize(ctx, leg.Symbol, leg.Margin/price)
	if err != nil {
		return models.SubmittedLeg{}, fmt.Errorf("round lot size: %w", err)
	}
	if qty <= 0 {
		return models.SubmittedLeg{}, exchange.ErrQuantityZero
	}

	start := time.Now()
	order, err := client.OrderMarket(ctx, leg.Symbol, models.OpenOrderSide(leg.Side), qty, leg.Side)
	RecordOrderLatency("open", time.Since(start))
	if err != nil {
		return models.SubmittedLeg{}, fmt.Errorf("order: %w", err)
	}

	sub := models.SubmittedLeg{
		Symbol:   leg.Symbol,
		Side:     leg.Side,
		Quantity: qty,
	}
	if order != nil {
		sub.OrderID = order.ID
		if order.Quantity > 0 {
			sub.Quantity = order.Quantity
		}
	}
	return sub, nil
}

// rollback закрывает открытые ноги в порядке открытия.
// Ошибка одной ноги не прерывает откат остальных.
func (oe *OrderExecutor) rollback(client exchange.Client, submitted []models.SubmittedLeg) []models.SubmittedLeg {
	rolledBack := make([]models.SubmittedLeg, 0, len(submitted))

	for _, leg := range submitted {
		// откат не должен зависеть от контекста запроса
		ctx, cancel := context.WithTimeout(context.Background(), oe.cfg.OrderTimeout)
		closed, err := oe.closePosition(ctx, client, leg.Symbol, leg.Side, false, "rollback")
		cancel()

		switch {
		case err != nil:
			RecordRollback("failed")
			oe.log.Error("rollback failed, position may remain open",
				utils.Symbol(leg.Symbol),
				utils.Side(leg.Side),
				utils.Err(err),
			)
		case closed:
			RecordRollback("closed")
			rolledBack = append(rolledBack, leg)
			oe.log.Warn("leg rolled back", utils.Symbol(leg.Symbol), utils.Side(leg.Side))
		default:
			RecordRollback("flat")
			rolledBack = append(rolledBack, leg)
			oe.log.Warn("rollback skipped, no open position", utils.Symbol(leg.Symbol), utils.Side(leg.Side))
		}
	}

	return rolledBack
}

// Close закрывает позиции целей. Ошибка одной цели не прерывает остальные.
// Возвращает число подтверждённых закрытий.
func (oe *OrderExecutor) Close(ctx context.Context, client exchange.Client, targets []models.CloseTarget) (int, error) {
	if len(targets) == 0 {
		return 0, fmt.Errorf("%w: no targets", ErrInvalidTarget)
	}

	normalized := make([]models.CloseTarget, len(targets))
	for i, t := range targets {
		normalized[i] = t.Normalize()
		if err := normalized[i].Validate(); err != nil {
			return 0, fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
	}

	closedCount := 0
	for _, t := range normalized {
		closed, err := oe.closePosition(ctx, client, t.Symbol, t.Side, true, "close")
		switch {
		case err != nil:
			RecordClose("failed")
			oe.log.Error("close failed", utils.Symbol(t.Symbol), utils.Side(t.Side), utils.Err(err))
		case closed:
			RecordClose("closed")
			closedCount++
			oe.log.Info("position closed", utils.Symbol(t.Symbol), utils.Side(t.Side))
		default:
			RecordClose("not_found")
			oe.log.Warn("no open position to close", utils.Symbol(t.Symbol), utils.Side(t.Side))
		}
	}

	_ = sleepCtx(ctx, oe.cfg.SettleDelay)

	return closedCount, nil
}

// closePosition размещает встречный ордер на весь объём позиции symbol/side.
// openOnly - искать первую ненулевую позицию стороны, иначе первую позицию стороны.
// false без ошибки - закрывать нечего.
func (oe *OrderExecutor) closePosition(
	ctx context.Context,
	client exchange.Client,
	symbol, side string,
	openOnly bool,
	kind string,
) (bool, error) {
	positions, err := client.PositionRisk(ctx, symbol)
	if err != nil {
		return false, fmt.Errorf("position risk: %w", err)
	}

	pos, ok := matchPosition(positions, symbol, side, openOnly)
	if !ok || !pos.IsOpen() {
		return false, nil
	}

	start := time.Now()
	_, err = client.OrderMarket(ctx, symbol, models.CloseOrderSide(side), math.Abs(pos.Amount), side)
	RecordOrderLatency(kind, time.Since(start))
	if err != nil {
		return false, fmt.Errorf("close order: %w", err)
	}
	return true, nil
}

// matchPosition ищет позицию по символу и стороне
func matchPosition(positions []models.Position, symbol, side string, openOnly bool) (models.Position, bool) {
	for _, p := range positions {
		if p.Symbol != symbol || p.Side != side {
			continue
		}
		if openOnly && !p.IsOpen() {
			continue
		}
		return p, true
	}
	return models.Position{}, false
}

// normalizeLegs проверяет весь пакет до первого запроса к бирже
func normalizeLegs(legs []models.Leg) ([]models.Leg, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("%w: no legs", ErrInvalidLeg)
	}

	normalized := make([]models.Leg, len(legs))
	for i, leg := range legs {
		normalized[i] = leg.Normalize()
		if err := normalized[i].Validate(); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidLeg, err)
		}
	}
	return normalized, nil
}

// sleepCtx ждёт d или отмену контекста
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
