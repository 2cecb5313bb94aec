package service

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"polytrade/internal/exchange"
)

func TestMarketService_Symbols(t *testing.T) {
	client := NewMockClient()
	client.infos = []exchange.SymbolInfo{
		{Symbol: "ETHUSDT", QuoteAsset: "USDT", Status: "TRADING"},
		{Symbol: "BTCUSDT", QuoteAsset: "USDT", Status: "TRADING"},
		{Symbol: "BTCBUSD", QuoteAsset: "BUSD", Status: "TRADING"},
		{Symbol: "LUNAUSDT", QuoteAsset: "USDT", Status: "SETTLING"},
	}
	factory := NewMockFactory(client)

	svc := NewMarketService(factory, true)
	symbols, err := svc.Symbols(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"BTCUSDT", "ETHUSDT"}
	if !reflect.DeepEqual(symbols, want) {
		t.Errorf("symbols = %v, want %v", symbols, want)
	}
	if len(factory.publics) != 1 || !factory.publics[0] {
		t.Errorf("expected public testnet client, got %v", factory.publics)
	}
}

func TestMarketService_SymbolInfo(t *testing.T) {
	client := NewMockClient()
	client.infos = []exchange.SymbolInfo{{Symbol: "BTCUSDT", QuoteAsset: "USDT", Status: "TRADING"}}
	client.notional = 5
	svc := NewMarketService(NewMockFactory(client), false)

	tests := []struct {
		name     string
		symbol   string
		wantErr  bool
		notFound bool
	}{
		{name: "нормализация символа", symbol: "btc-usdt"},
		{name: "пустой символ", symbol: "", wantErr: true},
		{name: "неизвестный символ", symbol: "XRPUSDT", wantErr: true, notFound: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info, err := svc.SymbolInfo(context.Background(), tt.symbol)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.notFound && !errors.Is(err, exchange.ErrSymbolNotFound) {
					t.Errorf("expected ErrSymbolNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.Symbol != "BTCUSDT" || info.StepSize != "0.001" || info.MinNotional != 5 {
				t.Errorf("unexpected details: %+v", info)
			}
		})
	}
}

func TestMarketService_Price(t *testing.T) {
	client := NewMockClient()
	client.prices["BTCUSDT"] = 43000.5
	svc := NewMarketService(NewMockFactory(client), false)

	price, err := svc.Price(context.Background(), " btcusdt ")
	if err != nil || price != 43000.5 {
		t.Errorf("Price = %v, %v", price, err)
	}

	if _, err := svc.Price(context.Background(), "ETHUSDT"); !errors.Is(err, exchange.ErrSymbolNotFound) {
		t.Errorf("expected ErrSymbolNotFound, got %v", err)
	}
}
