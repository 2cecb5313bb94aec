package service

import (
	"context"

	"polytrade/internal/bot"
	"polytrade/internal/exchange"
	"polytrade/internal/models"
	"polytrade/internal/repository"
)

// AccountRepositoryInterface определяет интерфейс репозитория аккаунтов
type AccountRepositoryInterface interface {
	Create(account *models.Account) error
	GetByID(id int) (*models.Account, error)
	GetAll() ([]*models.Account, error)
	GetActive() ([]*models.Account, error)
	UpdateBalance(id int, balance float64) error
	SetActive(id int, active bool) error
	Delete(id int) error
}

// ClientFactory создаёт клиентов биржи
type ClientFactory interface {
	NewClient(exchangeName string, creds models.Credentials) (exchange.Client, error)
	Public(testnet bool) exchange.Client
}

// Tracker - менеджер стрим-воркеров
type Tracker interface {
	Restart(ctx context.Context, accountID int) error
	Stop(accountID int) bool
	IsRunning(accountID int) bool
	WorkerState(accountID int) (bot.WorkerState, bool)
}

// Проверка реализации интерфейсов
var (
	_ AccountRepositoryInterface = (*repository.AccountRepository)(nil)
	_ ClientFactory              = (*exchange.Factory)(nil)
	_ Tracker                    = (*bot.Manager)(nil)
	_ bot.ClientResolver         = (*AccountService)(nil)
)
