// Package metrics exposes the Prometheus metrics.
package metrics

import (
	"net"
	"net/http"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/basicstation-testserver/internal/config"
)

// Setup starts the Prometheus metrics endpoint when enabled.
func Setup(conf config.Config) error {
	if !conf.Metrics.Prometheus.EndpointEnabled {
		return nil
	}

	ln, err := net.Listen("tcp", conf.Metrics.Prometheus.Bind)
	if err != nil {
		return errors.Wrap(err, "create metrics listener error")
	}

	log.WithFields(log.Fields{
		"bind": ln.Addr(),
	}).Info("metrics: starting prometheus metrics server")

	server := http.Server{
		Handler: promhttp.Handler(),
	}

	go func() {
		err := server.Serve(ln)
		log.WithError(err).Error("metrics: prometheus metrics server error")
	}()

	return nil
}
