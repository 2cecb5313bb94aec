package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// validator.go - проверка входных данных торговых запросов и аккаунтов

// MaxLeverage - максимальное плечо USD-M фьючерсов Binance
const MaxLeverage = 125

var (
	ErrEmptyValue = errors.New("value is empty")

	symbolRegex = regexp.MustCompile(`^[A-Z0-9]{2,30}$`)
	apiKeyRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{16,128}$`)
)

// NormalizeSymbol приводит символ к виду биржи: "btc-usdt" -> "BTCUSDT"
func NormalizeSymbol(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	return strings.NewReplacer("-", "", "_", "", "/", "").Replace(s)
}

// ValidateSymbol проверяет формат символа после нормализации
func ValidateSymbol(symbol string) error {
	if strings.TrimSpace(symbol) == "" {
		return fmt.Errorf("symbol: %w", ErrEmptyValue)
	}
	if !symbolRegex.MatchString(NormalizeSymbol(symbol)) {
		return fmt.Errorf("invalid symbol format: %q", symbol)
	}
	return nil
}

// ValidateLeverage проверяет плечо: 1..MaxLeverage
func ValidateLeverage(leverage int) error {
	if leverage < 1 || leverage > MaxLeverage {
		return fmt.Errorf("leverage must be between 1 and %d, got %d", MaxLeverage, leverage)
	}
	return nil
}

// ValidateMargin проверяет сумму маржи ноги в валюте котировки
func ValidateMargin(margin float64) error {
	if margin <= 0 {
		return fmt.Errorf("margin must be positive, got %v", margin)
	}
	return nil
}

// ValidateAPIKey - базовая проверка API ключа (Binance: 64 символа, буквы и цифры)
func ValidateAPIKey(key string) error {
	if key == "" {
		return fmt.Errorf("api key: %w", ErrEmptyValue)
	}
	if !apiKeyRegex.MatchString(key) {
		return errors.New("api key has invalid format")
	}
	return nil
}

// ValidateAPISecret проверяет только длину: секрет может содержать любые символы
func ValidateAPISecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("api secret: %w", ErrEmptyValue)
	}
	if len(secret) < 16 {
		return errors.New("api secret is too short")
	}
	return nil
}

// ValidateAccountName проверяет отображаемое имя аккаунта
func ValidateAccountName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("account name: %w", ErrEmptyValue)
	}
	if len(name) > 100 {
		return errors.New("account name is too long")
	}
	return nil
}
