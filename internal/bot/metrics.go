package bot

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ============================================================
// Prometheus метрики торгового ядра
// ============================================================

// ============ Оркестратор ============

// LegsTotal - ноги пакетных заявок по результату
var LegsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrade",
		Subsystem: "orders",
		Name:      "legs_total",
		Help:      "Total number of submitted legs by result",
	},
	[]string{"symbol", "result"}, // result: submitted, failed
)

// RollbackOrders - компенсирующие ордера отката
var RollbackOrders = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrade",
		Subsystem: "orders",
		Name:      "rollback_orders_total",
		Help:      "Compensating orders placed during rollback by result",
	},
	[]string{"result"}, // closed, flat, failed
)

// CloseOrders - ордера закрытия по результату
var CloseOrders = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrade",
		Subsystem: "orders",
		Name:      "close_orders_total",
		Help:      "Close requests by result",
	},
	[]string{"result"}, // closed, not_found, failed
)

// OrderLatency - время размещения рыночного ордера
var OrderLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: "polytrade",
		Subsystem: "orders",
		Name:      "order_latency_ms",
		Help:      "Time to place a market order in milliseconds",
		Buckets:   []float64{50, 100, 200, 300, 500, 1000, 2000, 5000},
	},
	[]string{"kind"}, // open, close, rollback
)

// ============ Стриминг ============

// ActiveStreamWorkers - запущенные стрим-воркеры
var ActiveStreamWorkers = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: "polytrade",
		Subsystem: "stream",
		Name:      "active_workers",
		Help:      "Current number of running stream workers",
	},
)

// StreamReconnects - переподключения потока mark price
var StreamReconnects = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: "polytrade",
		Subsystem: "stream",
		Name:      "reconnects_total",
		Help:      "Number of mark price stream reconnects",
	},
)

// StreamMessages - входящие кадры потока
var StreamMessages = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrade",
		Subsystem: "stream",
		Name:      "messages_total",
		Help:      "Inbound stream frames by kind",
	},
	[]string{"kind"}, // mark_price, dropped
)

// ============ Шина событий ============

// BufferOverflows - события, отброшенные из-за полного буфера подписчика
var BufferOverflows = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "polytrade",
		Subsystem: "events",
		Name:      "buffer_overflows_total",
		Help:      "Number of events dropped because a subscriber buffer was full",
	},
	[]string{"buffer"},
)

// BufferBacklog - заполненность буфера в момент переполнения
var BufferBacklog = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: "polytrade",
		Subsystem: "events",
		Name:      "buffer_backlog_ratio",
		Help:      "Buffer fill ratio observed on overflow",
	},
	[]string{"buffer"},
)

// ============ Вспомогательные функции ============

// RecordLeg записывает результат одной ноги
func RecordLeg(symbol, result string) {
	LegsTotal.WithLabelValues(symbol, result).Inc()
}

// RecordRollback записывает результат компенсирующего ордера
func RecordRollback(result string) {
	RollbackOrders.WithLabelValues(result).Inc()
}

// RecordClose записывает результат закрытия позиции
func RecordClose(result string) {
	CloseOrders.WithLabelValues(result).Inc()
}

// RecordOrderLatency записывает время размещения ордера
func RecordOrderLatency(kind string, d time.Duration) {
	OrderLatency.WithLabelValues(kind).Observe(float64(d.Microseconds()) / 1000)
}

// RecordStreamMessage учитывает входящий кадр
func RecordStreamMessage(recognized bool) {
	if recognized {
		StreamMessages.WithLabelValues("mark_price").Inc()
		return
	}
	StreamMessages.WithLabelValues("dropped").Inc()
}

// RecordBufferOverflow записывает переполнение буфера
func RecordBufferOverflow(bufferName string) {
	BufferOverflows.WithLabelValues(bufferName).Inc()
}

// RecordBufferBacklog записывает заполненность буфера
func RecordBufferBacklog(bufferName string, capacity, length int) {
	if capacity <= 0 {
		return
	}
	BufferBacklog.WithLabelValues(bufferName).Set(float64(length) / float64(capacity))
}
