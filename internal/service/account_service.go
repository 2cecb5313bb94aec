package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"polytrade/internal/exchange"
	"polytrade/internal/models"
	"polytrade/internal/repository"
	"polytrade/pkg/crypto"
	"polytrade/pkg/utils"
)

// Ошибки сервиса
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrAccountInactive  = errors.New("account is inactive")
	ErrAccountExists    = errors.New("account already exists")
	ErrInvalidAccount   = errors.New("invalid account data")
	ErrCredentials      = errors.New("cannot decrypt account credentials")
	ErrConnectionFailed = errors.New("failed to connect to exchange")
)

// AccountService - бизнес-логика аккаунтов и выдача клиентов биржи.
// Расшифрованные ключи не покидают сервис.
type AccountService struct {
	repo    AccountRepositoryInterface
	vault   *crypto.Vault
	factory ClientFactory
	log     *utils.Logger
}

// NewAccountService создает новый экземпляр сервиса
func NewAccountService(repo AccountRepositoryInterface, vault *crypto.Vault, factory ClientFactory) *AccountService {
	return &AccountService{
		repo:    repo,
		vault:   vault,
		factory: factory,
		log:     utils.L().WithComponent("accounts"),
	}
}

// ResolveClient возвращает клиента активного аккаунта.
// Ключи, которые не удалось расшифровать, дают ErrCredentials без обращения к бирже.
func (s *AccountService) ResolveClient(ctx context.Context, accountID int) (exchange.Client, error) {
	account, err := s.getAccount(accountID)
	if err != nil {
		return nil, err
	}

	if !account.Active {
		return nil, ErrAccountInactive
	}

	creds, err := s.decryptCredentials(account)
	if err != nil {
		return nil, err
	}

	client, err := s.factory.NewClient(account.Exchange, creds)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}
	return client, nil
}

// decryptCredentials расшифровывает ключи аккаунта.
// Старые форматы хранения принимаются, но отмечаются в логе.
func (s *AccountService) decryptCredentials(account *models.Account) (models.Credentials, error) {
	apiKey, keyFormat, err := s.vault.Open(account.APIKeyEnc)
	if err != nil {
		return models.Credentials{}, errors.Join(ErrCredentials, fmt.Errorf("api key: %w", err))
	}

	apiSecret, secretFormat, err := s.vault.Open(account.APISecretEnc)
	if err != nil {
		return models.Credentials{}, errors.Join(ErrCredentials, fmt.Errorf("api secret: %w", err))
	}

	if keyFormat.IsLegacy() || secretFormat.IsLegacy() {
		s.log.Warn("account credentials stored in legacy format",
			utils.AccountID(account.ID),
			utils.String("key_format", keyFormat.String()),
			utils.String("secret_format", secretFormat.String()),
		)
	}

	return models.Credentials{APIKey: apiKey, APISecret: apiSecret, Testnet: account.Testnet}, nil
}

// AddAccount проверяет ключи на бирже, включает hedge-режим и сохраняет аккаунт.
// Выполняет:
// 1. Валидацию имени и ключей
// 2. Чтение фьючерсного баланса (проверка ключей)
// 3. Включение hedge-режима
// 4. Шифрование ключей и сохранение в БД
func (s *AccountService) AddAccount(ctx context.Context, name, apiKey, apiSecret string, testnet bool) (*models.Account, error) {
	name = strings.TrimSpace(name)
	apiKey = strings.TrimSpace(apiKey)
	apiSecret = strings.TrimSpace(apiSecret)

	if err := utils.ValidateAccountName(name); err != nil {
		return nil, errors.Join(ErrInvalidAccount, err)
	}
	if err := utils.ValidateAPIKey(apiKey); err != nil {
		return nil, errors.Join(ErrInvalidAccount, err)
	}
	if err := utils.ValidateAPISecret(apiSecret); err != nil {
		return nil, errors.Join(ErrInvalidAccount, err)
	}

	client, err := s.factory.NewClient(models.ExchangeBinanceUM, models.Credentials{
		APIKey:    apiKey,
		APISecret: apiSecret,
		Testnet:   testnet,
	})
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	balance, err := client.FuturesBalance(ctx)
	if err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	if err := client.SetHedgeMode(ctx); err != nil {
		return nil, errors.Join(ErrConnectionFailed, err)
	}

	encKey, err := s.vault.Encrypt(apiKey)
	if err != nil {
		return nil, err
	}
	encSecret, err := s.vault.Encrypt(apiSecret)
	if err != nil {
		return nil, err
	}

	account := &models.Account{
		Name:           name,
		Exchange:       models.ExchangeBinanceUM,
		APIKeyEnc:      encKey,
		APISecretEnc:   encSecret,
		Testnet:        testnet,
		Active:         true,
		FuturesBalance: balance,
	}

	if err := s.repo.Create(account); err != nil {
		if errors.Is(err, repository.ErrAccountExists) {
			return nil, ErrAccountExists
		}
		return nil, err
	}

	s.log.Info("account added",
		utils.AccountID(account.ID),
		utils.String("name", account.Name),
		utils.Bool("testnet", testnet),
		utils.Float64("balance", balance),
	)
	return account, nil
}

// GetAccounts возвращает все аккаунты
func (s *AccountService) GetAccounts() ([]*models.Account, error) {
	accounts, err := s.repo.GetAll()
	if err != nil {
		return nil, err
	}
	if accounts == nil {
		accounts = []*models.Account{}
	}
	return accounts, nil
}

// GetAccount возвращает аккаунт по ID
func (s *AccountService) GetAccount(id int) (*models.Account, error) {
	return s.getAccount(id)
}

// ToggleActive переключает флаг активности
func (s *AccountService) ToggleActive(id int) (*models.Account, error) {
	account, err := s.getAccount(id)
	if err != nil {
		return nil, err
	}

	account.Active = !account.Active
	if err := s.repo.SetActive(id, account.Active); err != nil {
		return nil, mapRepoError(err)
	}
	account.UpdatedAt = time.Now()
	return account, nil
}

// DeleteAccount удаляет аккаунт
func (s *AccountService) DeleteAccount(id int) error {
	return mapRepoError(s.repo.Delete(id))
}

// UpdateAllBalances обновляет балансы активных аккаунтов.
// Ошибка одного аккаунта не прерывает остальные. Возвращает число обновлённых.
func (s *AccountService) UpdateAllBalances(ctx context.Context) (int, error) {
	accounts, err := s.repo.GetActive()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, account := range accounts {
		balance, err := s.fetchBalance(ctx, account)
		if err != nil {
			s.log.Warn("balance update failed", utils.AccountID(account.ID), utils.Err(err))
			continue
		}
		if err := s.repo.UpdateBalance(account.ID, balance); err != nil {
			s.log.Warn("balance save failed", utils.AccountID(account.ID), utils.Err(err))
			continue
		}
		updated++
	}

	s.log.Debug("balances updated", utils.Count(updated), utils.Int("total", len(accounts)))
	return updated, nil
}

func (s *AccountService) fetchBalance(ctx context.Context, account *models.Account) (float64, error) {
	creds, err := s.decryptCredentials(account)
	if err != nil {
		return 0, err
	}
	client, err := s.factory.NewClient(account.Exchange, creds)
	if err != nil {
		return 0, err
	}
	return client.FuturesBalance(ctx)
}

// StartBalanceUpdater периодически обновляет балансы до отмены ctx
func (s *AccountService) StartBalanceUpdater(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.UpdateAllBalances(ctx); err != nil {
					s.log.Error("balance updater", utils.Err(err))
				}
			}
		}
	}()
}

func (s *AccountService) getAccount(id int) (*models.Account, error) {
	account, err := s.repo.GetByID(id)
	if err != nil {
		return nil, mapRepoError(err)
	}
	return account, nil
}

// mapRepoError переводит ошибки репозитория в ошибки сервиса
func mapRepoError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, repository.ErrAccountNotFound):
		return ErrAccountNotFound
	case errors.Is(err, repository.ErrAccountExists):
		return ErrAccountExists
	default:
		return err
	}
}
