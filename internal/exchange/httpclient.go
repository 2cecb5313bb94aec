package exchange

import (
	"crypto/tls"
	"net"
	"net/http"
	"sync"
	"time"
)

// HTTPClientConfig - параметры общего HTTP транспорта REST клиентов
type HTTPClientConfig struct {
	ConnectTimeout time.Duration // TCP connect (default: 5s)
	ReadTimeout    time.Duration // ожидание заголовков ответа (default: 10s)
	TotalTimeout   time.Duration // весь запрос (default: 30s)

	MaxIdleConns        int           // default: 100
	MaxIdleConnsPerHost int           // default: 10
	MaxConnsPerHost     int           // default: 20
	IdleConnTimeout     time.Duration // default: 90s

	TLSHandshakeTimeout time.Duration // default: 5s
	KeepAliveInterval   time.Duration // default: 30s
}

// DefaultHTTPClientConfig возвращает значения по умолчанию
func DefaultHTTPClientConfig() HTTPClientConfig {
	return HTTPClientConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		TotalTimeout:   30 * time.Second,

		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
		MaxConnsPerHost:     20,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout: 5 * time.Second,
		KeepAliveInterval:   30 * time.Second,
	}
}

// HTTPClient - http.Client с пулом соединений, общий для всех аккаунтов.
// Все аккаунты ходят на один хост биржи, отдельный пул на аккаунт не нужен.
type HTTPClient struct {
	client *http.Client
}

var (
	globalClient     *HTTPClient
	globalClientOnce sync.Once
)

// GetGlobalHTTPClient возвращает общий клиент, создавая его при первом вызове
func GetGlobalHTTPClient() *HTTPClient {
	globalClientOnce.Do(func() {
		globalClient = NewHTTPClient(DefaultHTTPClientConfig())
	})
	return globalClient
}

// NewHTTPClient создаёт клиент с настроенным транспортом
func NewHTTPClient(config HTTPClientConfig) *HTTPClient {
	dialer := &net.Dialer{
		Timeout:   config.ConnectTimeout,
		KeepAlive: config.KeepAliveInterval,
	}

	transport := &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,

		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		MaxConnsPerHost:     config.MaxConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,

		TLSHandshakeTimeout: config.TLSHandshakeTimeout,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},

		ForceAttemptHTTP2:     true,
		ExpectContinueTimeout: 1 * time.Second,
		ResponseHeaderTimeout: config.ReadTimeout,
	}

	return &HTTPClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.TotalTimeout,
		},
	}
}

// GetClient возвращает *http.Client для передачи в SDK биржи
func (hc *HTTPClient) GetClient() *http.Client {
	return hc.client
}

// Close закрывает простаивающие соединения
func (hc *HTTPClient) Close() {
	if transport, ok := hc.client.Transport.(*http.Transport); ok {
		transport.CloseIdleConnections()
	}
}

// CloseGlobalClient вызывается при завершении приложения
func CloseGlobalClient() {
	if globalClient != nil {
		globalClient.Close()
	}
}
