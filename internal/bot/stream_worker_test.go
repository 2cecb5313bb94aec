package bot

import (
	"context"
	"errors"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"polytrade/internal/exchange"
	"polytrade/internal/models"
)

func openPositions() []models.Position {
	return []models.Position{
		{Symbol: "ETHUSDT", Side: models.SideShort, EntryPrice: 1800, Leverage: 5, Amount: -1},
		{Symbol: "BTCUSDT", Side: models.SideLong, EntryPrice: 27000, Leverage: 10, Amount: 0.01},
		{Symbol: "BTCUSDT", Side: models.SideShort, EntryPrice: 27000, Leverage: 10, Amount: -0.01},
		{Symbol: "XRPUSDT", Side: models.SideLong, Amount: 0},
	}
}

func TestActiveSymbols(t *testing.T) {
	got := ActiveSymbols(openPositions())
	want := []string{"btcusdt", "ethusdt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ActiveSymbols = %v, want %v", got, want)
	}
	if got := ActiveSymbols(nil); len(got) != 0 {
		t.Errorf("empty positions: %v", got)
	}
}

func TestStreamWorker_StreamsMarkPrice(t *testing.T) {
	client := newFakeClient()
	client.setPositions(openPositions()...)

	conn := newFakeConn(8)
	var dialed []string
	client.dial = func(ctx context.Context, symbols []string) (exchange.StreamConn, error) {
		dialed = symbols
		return conn, nil
	}

	bus := NewEventBus()
	events, cancelSub := bus.Subscribe(16)
	defer cancelSub()

	w := NewStreamWorker(7, staticResolver(client), bus, 10*time.Millisecond)
	if w.State() != StateCreated {
		t.Fatalf("initial state = %s", w.State())
	}

	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	conn.frames <- []byte(`{"stream":"btcusdt@markPrice","data":{"e":"markPriceUpdate","s":"BTCUSDT","p":"27100.5"}}`)
	conn.frames <- []byte(`not json`)
	conn.frames <- []byte(`{"stream":"ethusdt@markPrice","data":{"e":"markPriceUpdate","s":"ETHUSDT","p":"1790"}}`)

	first, ok := nextEvent(events, EventMarkPrice, time.Second)
	if !ok || first.Symbol != "BTCUSDT" || first.MarkPrice != 27100.5 || first.AccountID != 7 {
		t.Fatalf("first event = %+v ok=%v", first, ok)
	}
	second, ok := nextEvent(events, EventMarkPrice, time.Second)
	if !ok || second.Symbol != "ETHUSDT" || second.MarkPrice != 1790 {
		t.Fatalf("second event = %+v ok=%v (malformed frame must be skipped)", second, ok)
	}

	if w.State() != StateStreaming {
		t.Errorf("state = %s, want STREAMING", w.State())
	}
	if !reflect.DeepEqual(dialed, []string{"btcusdt", "ethusdt"}) || !reflect.DeepEqual(w.Symbols(), dialed) {
		t.Errorf("dialed = %v, symbols = %v", dialed, w.Symbols())
	}

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
	if w.State() != StateTerminated {
		t.Errorf("state after stop = %s", w.State())
	}
	if !conn.isClosed() {
		t.Error("connection should be closed on stop")
	}
}

func TestStreamWorker_EmptyPositions(t *testing.T) {
	client := newFakeClient()
	client.setPositions(models.Position{Symbol: "BTCUSDT", Side: models.SideLong, Amount: 0})
	var dials atomic.Int32
	client.dial = func(ctx context.Context, symbols []string) (exchange.StreamConn, error) {
		dials.Add(1)
		return newFakeConn(1), nil
	}

	bus := NewEventBus()
	events, cancelSub := bus.Subscribe(4)
	defer cancelSub()

	w := NewStreamWorker(1, staticResolver(client), bus, time.Millisecond)
	w.Run(context.Background())

	if w.State() != StateTerminated {
		t.Errorf("state = %s", w.State())
	}
	if dials.Load() != 0 {
		t.Error("no connection must be opened without positions")
	}

	ev, ok := nextEvent(events, EventTrades, time.Second)
	if !ok || ev.Trades == nil || len(ev.Trades) != 0 {
		t.Errorf("expected empty trades event, got %+v ok=%v", ev, ok)
	}
}

func TestStreamWorker_ResolveFailures(t *testing.T) {
	tests := []struct {
		name     string
		resolver ClientResolver
	}{
		{
			name: "account not found",
			resolver: ClientResolverFunc(func(ctx context.Context, id int) (exchange.Client, error) {
				return nil, errors.New("account not found")
			}),
		},
		{
			name: "positions unavailable",
			resolver: func() ClientResolver {
				c := newFakeClient()
				c.failRisk[""] = errors.New("invalid api key")
				return staticResolver(c)
			}(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bus := NewEventBus()
			events, cancelSub := bus.Subscribe(4)
			defer cancelSub()

			w := NewStreamWorker(2, tt.resolver, bus, time.Millisecond)
			done := make(chan struct{})
			go func() {
				w.Run(context.Background())
				close(done)
			}()

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("worker must terminate without retry")
			}

			ev, ok := nextEvent(events, EventError, time.Second)
			if !ok || ev.AccountID != 2 || ev.Error == "" {
				t.Errorf("expected error event, got %+v ok=%v", ev, ok)
			}
			if w.State() != StateTerminated {
				t.Errorf("state = %s", w.State())
			}
		})
	}
}

func TestStreamWorker_ReconnectsAfterConnectionLoss(t *testing.T) {
	client := newFakeClient()
	client.setPositions(openPositions()...)

	conns := make(chan *fakeConn, 4)
	var dials atomic.Int32
	client.dial = func(ctx context.Context, symbols []string) (exchange.StreamConn, error) {
		n := dials.Add(1)
		if n == 2 {
			return nil, errors.New("dial tcp: connection refused")
		}
		c := newFakeConn(4)
		conns <- c
		return c, nil
	}

	bus := NewEventBus()
	events, cancelSub := bus.Subscribe(16)
	defer cancelSub()

	w := NewStreamWorker(1, staticResolver(client), bus, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	first := <-conns
	close(first.frames) // обрыв соединения

	third := <-conns // вторая попытка провалилась, третья успешна
	third.frames <- []byte(`{"data":{"e":"markPriceUpdate","s":"BTCUSDT","p":"1"}}`)

	if _, ok := nextEvent(events, EventMarkPrice, time.Second); !ok {
		t.Fatal("no events after reconnect")
	}
	if got := dials.Load(); got != 3 {
		t.Errorf("dials = %d, want 3", got)
	}

	cancel()
	<-w.Done()
	if w.State() != StateTerminated {
		t.Errorf("state = %s", w.State())
	}
}

func TestStreamWorker_StopDuringBackoff(t *testing.T) {
	client := newFakeClient()
	client.setPositions(openPositions()...)
	client.dial = func(ctx context.Context, symbols []string) (exchange.StreamConn, error) {
		return nil, errors.New("unreachable")
	}

	w := NewStreamWorker(1, staticResolver(client), NewEventBus(), time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	go w.Run(ctx)

	if !waitFor(time.Second, func() bool { return w.State() == StateReconnecting }) {
		t.Fatalf("state = %s, want RECONNECTING", w.State())
	}

	cancel()
	select {
	case <-w.Done():
	case <-time.After(time.Second):
		t.Fatal("stop must interrupt the backoff wait")
	}
}
