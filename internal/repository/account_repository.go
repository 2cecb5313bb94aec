package repository

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"

	"polytrade/internal/models"
)

// Ошибки репозитория аккаунтов
var (
	ErrAccountNotFound = errors.New("account not found")
	ErrAccountExists   = errors.New("account already exists")
)

// accountsSchema - таблица аккаунтов. Ключи хранятся только зашифрованными.
const accountsSchema = `
	CREATE TABLE IF NOT EXISTS accounts (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		exchange VARCHAR(32) NOT NULL DEFAULT 'BINANCE_UM',
		api_key_enc TEXT NOT NULL,
		api_secret_enc TEXT NOT NULL,
		testnet BOOLEAN NOT NULL DEFAULT FALSE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		futures_balance DOUBLE PRECISION NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const accountColumns = `id, name, exchange, api_key_enc, api_secret_enc, testnet, active, futures_balance, created_at, updated_at`

// AccountRepository - работа с таблицей accounts
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository создает новый экземпляр репозитория
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Migrate создаёт таблицу, если её нет
func (r *AccountRepository) Migrate() error {
	_, err := r.db.Exec(accountsSchema)
	return err
}

// Create сохраняет новый аккаунт
func (r *AccountRepository) Create(account *models.Account) error {
	query := `
		INSERT INTO accounts (name, exchange, api_key_enc, api_secret_enc, testnet, active, futures_balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`

	now := time.Now()
	account.CreatedAt = now
	account.UpdatedAt = now

	if account.Exchange == "" {
		account.Exchange = models.ExchangeBinanceUM
	}

	err := r.db.QueryRow(
		query,
		account.Name,
		account.Exchange,
		account.APIKeyEnc,
		account.APISecretEnc,
		account.Testnet,
		account.Active,
		account.FuturesBalance,
		account.CreatedAt,
		account.UpdatedAt,
	).Scan(&account.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrAccountExists
		}
		return err
	}

	return nil
}

// GetByID возвращает аккаунт по ID
func (r *AccountRepository) GetByID(id int) (*models.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`

	account, err := scanAccount(r.db.QueryRow(query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}

	return account, nil
}

// GetAll возвращает все аккаунты
func (r *AccountRepository) GetAll() ([]*models.Account, error) {
	return r.list(`SELECT ` + accountColumns + ` FROM accounts ORDER BY id`)
}

// GetActive возвращает только активные аккаунты
func (r *AccountRepository) GetActive() ([]*models.Account, error) {
	return r.list(`SELECT ` + accountColumns + ` FROM accounts WHERE active = TRUE ORDER BY id`)
}

func (r *AccountRepository) list(query string, args ...interface{}) ([]*models.Account, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, account)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return accounts, nil
}

// UpdateBalance обновляет кешированный баланс
func (r *AccountRepository) UpdateBalance(id int, balance float64) error {
	query := `
		UPDATE accounts
		SET futures_balance = $1, updated_at = $2
		WHERE id = $3`

	return r.execAffecting(query, balance, time.Now(), id)
}

// SetActive включает или отключает аккаунт
func (r *AccountRepository) SetActive(id int, active bool) error {
	query := `
		UPDATE accounts
		SET active = $1, updated_at = $2
		WHERE id = $3`

	return r.execAffecting(query, active, time.Now(), id)
}

// Delete удаляет аккаунт
func (r *AccountRepository) Delete(id int) error {
	return r.execAffecting(`DELETE FROM accounts WHERE id = $1`, id)
}

// execAffecting выполняет запрос и возвращает ErrAccountNotFound, если строка не затронута
func (r *AccountRepository) execAffecting(query string, args ...interface{}) error {
	result, err := r.db.Exec(query, args...)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	account := &models.Account{}
	err := row.Scan(
		&account.ID,
		&account.Name,
		&account.Exchange,
		&account.APIKeyEnc,
		&account.APISecretEnc,
		&account.Testnet,
		&account.Active,
		&account.FuturesBalance,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// isUniqueViolation проверяет, является ли ошибка нарушением UNIQUE constraint
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	errStr := err.Error()
	return strings.Contains(errStr, "duplicate key") || strings.Contains(errStr, "23505")
}
