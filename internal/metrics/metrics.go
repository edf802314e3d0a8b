package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors are registered on the default registry and exposed
// by the callback server on GET /metrics.
var (
	STKPushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daraja_stk_push_total",
		Help: "STK push attempts by outcome.",
	}, []string{"outcome"})

	STKQueries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "daraja_stk_query_total",
		Help: "STK status queries by outcome.",
	}, []string{"outcome"})

	TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "daraja_token_refresh_total",
		Help: "OAuth access token refreshes performed.",
	})

	CallbacksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mpesa_callbacks_received_total",
		Help: "Payment callbacks received by result.",
	}, []string{"result"})

	NotificationsStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_notifications_stored",
		Help: "Notifications currently held in the store.",
	})

	NotificationsUnread = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "payment_notifications_unread",
		Help: "Unread notifications currently held in the store.",
	})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mcp_tool_calls_total",
		Help: "MCP tool invocations by tool and outcome.",
	}, []string{"tool", "outcome"})
)
