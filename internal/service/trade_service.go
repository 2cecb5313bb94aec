package service

import (
	"context"
	"time"

	"polytrade/internal/bot"
	"polytrade/internal/models"
	"polytrade/pkg/utils"
)

// restartTimeout ограничивает перезапуск трекинга после сделки
const restartTimeout = 30 * time.Second

// TradeService - операции над позициями аккаунта: пакетное открытие, закрытие,
// снимок ROI и управление живым трекингом.
type TradeService struct {
	resolver bot.ClientResolver
	executor *bot.OrderExecutor
	fetcher  *bot.SnapshotFetcher
	tracker  Tracker
	log      *utils.Logger

	// afterTrade вызывается в отдельной горутине после открытия или закрытия
	afterTrade func(accountID int)
}

// NewTradeService создает новый экземпляр сервиса
func NewTradeService(
	resolver bot.ClientResolver,
	executor *bot.OrderExecutor,
	fetcher *bot.SnapshotFetcher,
	tracker Tracker,
) *TradeService {
	s := &TradeService{
		resolver: resolver,
		executor: executor,
		fetcher:  fetcher,
		tracker:  tracker,
		log:      utils.L().WithComponent("trades"),
	}
	s.afterTrade = s.restartTracking
	return s
}

// SubmitTrades открывает пакет ног и возвращает число открытых.
// После пакета (в том числе откатанного) трекинг перезапускается под новый набор символов.
func (s *TradeService) SubmitTrades(ctx context.Context, accountID int, legs []models.Leg) (int, error) {
	client, err := s.resolver.ResolveClient(ctx, accountID)
	if err != nil {
		return 0, err
	}

	result, err := s.executor.Submit(ctx, client, legs)
	if result == nil {
		return 0, err
	}

	go s.afterTrade(accountID)

	if err != nil {
		s.log.Warn("trade batch failed",
			utils.AccountID(accountID),
			utils.Int("rolled_back", len(result.RolledBack)),
			utils.Err(err),
		)
		return 0, err
	}

	s.log.Info("trade batch submitted", utils.AccountID(accountID), utils.Count(len(result.Submitted)))
	return len(result.Submitted), nil
}

// CloseTrades закрывает позиции и возвращает число подтверждённых закрытий
func (s *TradeService) CloseTrades(ctx context.Context, accountID int, targets []models.CloseTarget) (int, error) {
	client, err := s.resolver.ResolveClient(ctx, accountID)
	if err != nil {
		return 0, err
	}

	closed, err := s.executor.Close(ctx, client, targets)
	if err != nil {
		return 0, err
	}

	go s.afterTrade(accountID)

	s.log.Info("positions closed",
		utils.AccountID(accountID),
		utils.Count(closed),
		utils.Int("requested", len(targets)),
	)
	return closed, nil
}

// FetchRoiSnapshot возвращает ROI открытых позиций аккаунта
func (s *TradeService) FetchRoiSnapshot(ctx context.Context, accountID int) ([]models.RoiSnapshot, error) {
	client, err := s.resolver.ResolveClient(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return s.fetcher.Fetch(ctx, client)
}

// StartTracking запускает (или перезапускает) стрим аккаунта.
// Аккаунт проверяется сразу, чтобы ошибка вернулась вызывающему, а не только в ленту событий.
func (s *TradeService) StartTracking(ctx context.Context, accountID int) error {
	if _, err := s.resolver.ResolveClient(ctx, accountID); err != nil {
		return err
	}
	return s.tracker.Restart(ctx, accountID)
}

// StopTracking останавливает стрим аккаунта. Повторный вызов безопасен.
func (s *TradeService) StopTracking(accountID int) bool {
	return s.tracker.Stop(accountID)
}

// TrackingState возвращает состояние стрима аккаунта
func (s *TradeService) TrackingState(accountID int) (bot.WorkerState, bool) {
	return s.tracker.WorkerState(accountID)
}

func (s *TradeService) restartTracking(accountID int) {
	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()

	if err := s.tracker.Restart(ctx, accountID); err != nil {
		s.log.Warn("tracking restart failed", utils.AccountID(accountID), utils.Err(err))
	}
}
