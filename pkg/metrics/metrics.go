package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bombily", Name: "order_transitions_total", Help: "Order transition attempts by event and result"},
		[]string{"event", "result"},
	)
	OrdersCreatedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bombily", Name: "orders_created_total", Help: "Orders created by type"},
		[]string{"type"},
	)
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bombily", Name: "notifications_total", Help: "Notifications dispatched by result"},
		[]string{"result"},
	)
	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "bombily", Name: "feed_events_total", Help: "Order change events received by type"},
		[]string{"type"},
	)
	FeedDuplicatesTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bombily", Name: "feed_duplicates_total", Help: "Redelivered change events dropped"})
	FeedReconnectsTotal = promauto.NewCounter(prometheus.CounterOpts{Namespace: "bombily", Name: "feed_reconnects_total", Help: "Change feed reconnect attempts"})
	RealtimeSubscribers = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "bombily", Name: "realtime_subscribers", Help: "Connected websocket subscribers"})
)
