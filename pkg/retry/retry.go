package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config - параметры повторов с экспоненциальной задержкой и jitter
type Config struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxElapsed - общий бюджет времени на все попытки
	MaxElapsed time.Duration

	// MaxTries - число попыток, включая первую. 0 - без ограничения (действует MaxElapsed).
	MaxTries uint

	// OnRetry вызывается перед ожиданием очередной попытки
	OnRetry func(err error, delay time.Duration)
}

// StartupConfig - ожидание зависимостей при старте (БД поднимается вместе с сервером)
func StartupConfig() Config {
	return Config{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsed:      30 * time.Second,
		MaxTries:        8,
	}
}

// Do выполняет operation до успеха, исчерпания попыток или бюджета,
// Permanent ошибки или отмены ctx.
//
//	err := retry.Do(ctx, func() error {
//	    return db.PingContext(ctx)
//	}, retry.StartupConfig())
func Do(ctx context.Context, operation func() error, cfg Config) error {
	b := backoff.NewExponentialBackOff()
	if cfg.InitialInterval > 0 {
		b.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		b.MaxInterval = cfg.MaxInterval
	}

	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if cfg.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(cfg.MaxElapsed))
	}
	if cfg.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(cfg.MaxTries))
	}
	if cfg.OnRetry != nil {
		opts = append(opts, backoff.WithNotify(cfg.OnRetry))
	}

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, operation()
	}, opts...)
	return err
}

// Permanent помечает ошибку как неповторяемую
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}
