package mqtt

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_mqtt_event_count",
		Help: "The number of gateway events published by the MQTT integration (per event).",
	}, []string{"event"})

	sc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "integration_mqtt_state_count",
		Help: "The number of gateway states published by the MQTT integration (per state).",
	}, []string{"state"})

	mqttc = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integration_mqtt_connect_count",
		Help: "The number of times the integration connected to the MQTT broker.",
	})

	mqttd = promauto.NewCounter(prometheus.CounterOpts{
		Name: "integration_mqtt_disconnect_count",
		Help: "The number of times the integration disconnected from the MQTT broker.",
	})
)

func mqttEventCounter(e string) prometheus.Counter {
	return pc.With(prometheus.Labels{"event": e})
}

func mqttStateCounter(s string) prometheus.Counter {
	return sc.With(prometheus.Labels{"state": s})
}

func mqttConnectCounter() prometheus.Counter {
	return mqttc
}

func mqttDisconnectCounter() prometheus.Counter {
	return mqttd
}
