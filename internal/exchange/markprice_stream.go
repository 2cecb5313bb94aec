package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"

	"polytrade/pkg/utils"
)

// markprice_stream.go - combined stream <symbol>@markPrice
//
// Одно соединение на все символы аккаунта:
//   wss://fstream.binance.com/stream?streams=btcusdt@markPrice/ethusdt@markPrice
// Кадр: {"stream":"btcusdt@markPrice","data":{"e":"markPriceUpdate","s":"BTCUSDT","p":"..."}}

const markPriceEvent = "markPriceUpdate"

// В кадре есть и "p", и "P" (mark и estimated settle price),
// поэтому разбор строго чувствителен к регистру.
var frameJSON = jsoniter.Config{CaseSensitive: true}.Froze()

// MarkPriceUpdate - разобранное обновление mark price
type MarkPriceUpdate struct {
	Symbol      string
	MarkPrice   float64
	IndexPrice  float64
	FundingRate float64
	EventTime   time.Time
}

type markPriceData struct {
	Event         string `json:"e"`
	EventTime     int64  `json:"E"`
	Symbol        string `json:"s"`
	MarkPrice     string `json:"p"`
	IndexPrice    string `json:"i"`
	SettlePrice   string `json:"P"`
	FundingRate   string `json:"r"`
	NextFundingAt int64  `json:"T"`
}

type combinedFrame struct {
	Stream string              `json:"stream"`
	Data   jsoniter.RawMessage `json:"data"`
}

// ParseMarkPriceFrame разбирает кадр combined или raw потока.
// Нераспознанные и битые кадры возвращают ok=false.
func ParseMarkPriceFrame(frame []byte) (MarkPriceUpdate, bool) {
	var combined combinedFrame
	if err := frameJSON.Unmarshal(frame, &combined); err != nil {
		return MarkPriceUpdate{}, false
	}

	payload := frame
	if len(combined.Data) > 0 {
		payload = combined.Data
	}

	var data markPriceData
	if err := frameJSON.Unmarshal(payload, &data); err != nil {
		return MarkPriceUpdate{}, false
	}
	if data.Event != markPriceEvent || data.Symbol == "" || data.MarkPrice == "" {
		return MarkPriceUpdate{}, false
	}

	mark, err := utils.ParseFloat(data.MarkPrice)
	if err != nil || mark <= 0 {
		return MarkPriceUpdate{}, false
	}
	index, _ := utils.ParseFloat(data.IndexPrice)
	funding, _ := utils.ParseFloat(data.FundingRate)

	return MarkPriceUpdate{
		Symbol:      strings.ToUpper(data.Symbol),
		MarkPrice:   mark,
		IndexPrice:  index,
		FundingRate: funding,
		EventTime:   time.UnixMilli(data.EventTime),
	}, true
}

// MarkPriceStreamURL собирает адрес combined потока
func MarkPriceStreamURL(base string, symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@markPrice")
	}
	return strings.TrimRight(base, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

// DialMarkPriceStream открывает одно соединение на все символы
func (b *BinanceClient) DialMarkPriceStream(ctx context.Context, symbols []string) (StreamConn, error) {
	if len(symbols) == 0 {
		return nil, ErrNoSymbols
	}

	url := MarkPriceStreamURL(b.wsBase, symbols)
	conn, resp, err := b.dialer.DialContext(ctx, url, nil)
	if err != nil {
		if resp != nil {
			return nil, &ExchangeError{Exchange: binanceName, Op: "ws_dial", Message: fmt.Sprintf("handshake status %d", resp.StatusCode), Original: err}
		}
		return nil, &ExchangeError{Exchange: binanceName, Op: "ws_dial", Message: err.Error(), Original: err}
	}

	b.log.Debug("mark price stream connected", utils.Int("symbols", len(symbols)))
	return newWSConn(conn, b.readTimeout), nil
}

// wsConn - websocket.Conn с дедлайном чтения.
// Binance шлёт markPrice раз в 3 секунды, тишина дольше readTimeout - обрыв.
type wsConn struct {
	conn        *websocket.Conn
	readTimeout time.Duration
	closeOnce   sync.Once
	closeErr    error
}

func newWSConn(conn *websocket.Conn, readTimeout time.Duration) *wsConn {
	return &wsConn{conn: conn, readTimeout: readTimeout}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	if c.readTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	_, data, err := c.conn.ReadMessage()
	return data, err
}

// Close можно вызывать из другой горутины для прерывания ReadMessage
func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		deadline := time.Now().Add(time.Second)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
