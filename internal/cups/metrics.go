package cups

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/brocaar/basicstation-testserver/internal/metrics"
)

var (
	uic = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cups_update_info_count",
		Help: "The number of update-info requests handled (per result).",
	}, []string{"result"})

	ufc = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cups_update_field_count",
		Help: "The number of update-info responses carrying an update (per field).",
	}, []string{"field"})

	resolveTimer = metrics.MustRegisterNewTimerWithError(
		"cups_resolve",
		"The time it takes to resolve a router record from the home directory.",
		nil,
	)
)

func updateInfoCounter(result string) prometheus.Counter {
	return uic.With(prometheus.Labels{"result": result})
}

func updateFieldCounter(field string) prometheus.Counter {
	return ufc.With(prometheus.Labels{"field": field})
}
