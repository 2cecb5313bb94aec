package models

import "time"

// ExchangeBinanceUM - USD-M фьючерсы Binance, единственная поддерживаемая площадка
const ExchangeBinanceUM = "BINANCE_UM"

// Account представляет торговый аккаунт с зашифрованными API ключами
type Account struct {
	ID             int       `json:"id" db:"id"`
	Name           string    `json:"name" db:"name"`
	Exchange       string    `json:"exchange" db:"exchange"`
	APIKeyEnc      string    `json:"-" db:"api_key_enc"`    // зашифрован, не возвращается в JSON
	APISecretEnc   string    `json:"-" db:"api_secret_enc"` // зашифрован
	Testnet        bool      `json:"testnet" db:"testnet"`
	Active         bool      `json:"active" db:"active"`
	FuturesBalance float64   `json:"futures_balance" db:"futures_balance"` // USDT, кешируется при обновлении
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"`
}

// Credentials - расшифрованные ключи, живут только в памяти сервиса
type Credentials struct {
	APIKey    string
	APISecret string
	Testnet   bool
}
