package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var feedConnectionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "server",
	Name:      "feed_connections_active",
	Help:      "Number of active ws feed connections",
})

func ObserveFeedConnections(count int) {
	feedConnectionsGauge.Set(float64(count))
}

var activeSessionsGauge = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "parking",
	Name:      "sessions_active",
	Help:      "Number of vehicles currently on the lot",
})

func ObserveActiveSessions(count int) {
	activeSessionsGauge.Set(float64(count))
}

var checkInCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "parking",
	Name:      "checkin_count",
	Help:      "Total number of check-ins.",
})

func CountCheckIn() {
	checkInCounter.Inc()
}

var checkOutCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "parking",
	Name:      "checkout_count",
	Help:      "Total number of check-outs.",
})

func CountCheckOut() {
	checkOutCounter.Inc()
}

var paymentCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wallet",
	Name:      "payment_count",
	Help:      "Total number of settled parking fees.",
})

var paymentAmountCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wallet",
	Name:      "payment_amount",
	Help:      "Total amount collected in parking fees.",
})

func CountPayment(amount int) {
	paymentCounter.Inc()
	paymentAmountCounter.Add(float64(amount))
}

var paymentFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wallet",
	Name:      "payment_failure_count",
	Help:      "Total number of settlements refused for insufficient balance.",
})

func CountPaymentFailure() {
	paymentFailureCounter.Inc()
}

var topUpCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wallet",
	Name:      "topup_count",
	Help:      "Total number of wallet top-ups.",
})

var topUpAmountCounter = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "wallet",
	Name:      "topup_amount",
	Help:      "Total amount loaded onto wallets.",
})

func CountTopUp(amount int) {
	topUpCounter.Inc()
	topUpAmountCounter.Add(float64(amount))
}
