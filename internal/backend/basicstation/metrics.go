package basicstation

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brocaar/basicstation-testserver/internal/metrics"
)

var (
	wsc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_basicstation_websocket_send_count",
		Help: "The number of messages sent over the websocket (per msgtype).",
	}, []string{"msgtype", "encoding"})

	wrc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_basicstation_websocket_receive_count",
		Help: "The number of messages received over the websocket (per msgtype).",
	}, []string{"msgtype", "encoding"})

	wdc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_basicstation_websocket_dropped_count",
		Help: "The number of received messages that were dropped (per reason).",
	}, []string{"reason"})

	ppc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_basicstation_websocket_ping_pong_count",
		Help: "The number of WebSocket Ping/Pong requests sent and received (per event type).",
	}, []string{"type"})

	gwc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_basicstation_gateway_connect_count",
		Help: "The number of gateway connections received by the backend.",
	})

	gwd = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_basicstation_gateway_disconnect_count",
		Help: "The number of gateways that disconnected from the backend.",
	})

	sessionStateCounter = metrics.MustRegisterNewCounter(
		"backend_basicstation_session_state",
		"The number of session state transitions (per state).",
		[]string{"state"},
	)

	ric = promauto.NewCounter(prometheus.CounterOpts{
		Name: "backend_basicstation_router_info_count",
		Help: "The number of router-info requests handled by the backend.",
	})
)

func websocketSendCounter(msgType string, enc string) prometheus.Counter {
	return wsc.With(prometheus.Labels{"msgtype": msgType, "encoding": enc})
}

func websocketReceiveCounter(msgType string, enc string) prometheus.Counter {
	return wrc.With(prometheus.Labels{"msgtype": msgType, "encoding": enc})
}

func websocketDroppedCounter(reason string) prometheus.Counter {
	return wdc.With(prometheus.Labels{"reason": reason})
}

func websocketPingPongCounter(typ string) prometheus.Counter {
	return ppc.With(prometheus.Labels{"type": typ})
}

func connectCounter() prometheus.Counter {
	return gwc
}

func disconnectCounter() prometheus.Counter {
	return gwd
}

func routerInfoCounter() prometheus.Counter {
	return ric
}
