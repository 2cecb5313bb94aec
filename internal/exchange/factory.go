package exchange

import (
	"fmt"
	"strings"
	"time"

	"polytrade/internal/models"
	"polytrade/pkg/ratelimit"
)

// SupportedExchanges - площадки, для которых есть реализация Client
var SupportedExchanges = []string{
	models.ExchangeBinanceUM,
}

// FactoryConfig - общие параметры клиентов
type FactoryConfig struct {
	RateLimit float64 // weight в секунду на API ключ
	RateBurst float64
	InfoTTL   time.Duration

	// StreamReadTimeout - тишина в потоке mark price дольше этого считается обрывом
	StreamReadTimeout time.Duration

	// Переопределение адресов (тесты, прокси). Пусто - боевые или testnet адреса.
	BaseURL   string
	WSBaseURL string
}

// Factory создаёт клиентов бирж. Клиенты одного API ключа делят limiter.
type Factory struct {
	cfg      FactoryConfig
	limiters *ratelimit.Registry
}

func NewFactory(cfg FactoryConfig) *Factory {
	return &Factory{
		cfg:      cfg,
		limiters: ratelimit.NewRegistry(cfg.RateLimit, cfg.RateBurst),
	}
}

// NewClient создаёт клиента аккаунта по расшифрованным ключам
func (f *Factory) NewClient(exchangeName string, creds models.Credentials) (Client, error) {
	if !IsSupported(exchangeName) {
		return nil, fmt.Errorf("unsupported exchange: %s", exchangeName)
	}

	return NewBinanceClient(BinanceConfig{
		APIKey:    creds.APIKey,
		APISecret: creds.APISecret,
		Testnet:   creds.Testnet,
		BaseURL:   f.cfg.BaseURL,
		WSBaseURL: f.cfg.WSBaseURL,
		Limiter:   f.limiters.Get(limiterKey(creds.APIKey, creds.Testnet)),
		InfoTTL:   f.cfg.InfoTTL,

		ReadTimeout: f.cfg.StreamReadTimeout,
	}), nil
}

// Public возвращает клиента без ключей для рыночных данных
func (f *Factory) Public(testnet bool) Client {
	return NewBinanceClient(BinanceConfig{
		Testnet:   testnet,
		BaseURL:   f.cfg.BaseURL,
		WSBaseURL: f.cfg.WSBaseURL,
		Limiter:   f.limiters.Get(limiterKey("", testnet)),
		InfoTTL:   f.cfg.InfoTTL,

		ReadTimeout: f.cfg.StreamReadTimeout,
	})
}

func limiterKey(apiKey string, testnet bool) string {
	if testnet {
		return "testnet:" + apiKey
	}
	return "live:" + apiKey
}

// IsSupported проверяет название площадки без учёта регистра
func IsSupported(name string) bool {
	for _, supported := range SupportedExchanges {
		if strings.EqualFold(name, supported) {
			return true
		}
	}
	return false
}
