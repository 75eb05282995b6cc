package cmd

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation"
	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/cups"
	"github.com/brocaar/basicstation-testserver/internal/forwarder"
	"github.com/brocaar/basicstation-testserver/internal/integration"
	"github.com/brocaar/basicstation-testserver/internal/metrics"
	"github.com/brocaar/basicstation-testserver/internal/regions"
)

// server holds the components started by the run command.
type server struct {
	conf config.Config

	catalog      *regions.Catalog
	backend      *basicstation.Backend
	updateServer *cups.Server
	integration  integration.Integration
}

func run(cmd *cobra.Command, args []string) error {
	s := server{
		conf: config.C,
	}

	tasks := []func() error{
		s.setLogLevel,
		s.printStartMessage,
		s.setupCatalog,
		s.setupIntegration,
		s.setupBackend,
		s.setupForwarder,
		s.setupUpdateServer,
		s.setupMetrics,
		s.startIntegration,
	}

	for _, t := range tasks {
		if err := t(); err != nil {
			log.Fatal(err)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	log.WithField("signal", <-sigChan).Info("signal received")
	log.Warning("shutting down server")

	s.shutdown()

	return nil
}

func (s *server) setLogLevel() error {
	log.SetLevel(log.Level(uint8(s.conf.General.LogLevel)))
	return nil
}

func (s *server) printStartMessage() error {
	log.WithFields(log.Fields{
		"version": version,
	}).Info("starting Basic Station test server")
	return nil
}

func (s *server) setupCatalog() error {
	var err error
	s.catalog, err = regions.LoadFile(s.conf.Regions.CatalogFile)
	if err != nil {
		return errors.Wrap(err, "load region catalog error")
	}
	return nil
}

func (s *server) setupIntegration() error {
	var err error
	s.integration, err = integration.Setup(s.conf)
	if err != nil {
		return errors.Wrap(err, "setup integration error")
	}
	return nil
}

func (s *server) setupBackend() error {
	var err error
	s.backend, err = basicstation.NewBackend(s.conf, s.catalog)
	if err != nil {
		return errors.Wrap(err, "setup backend error")
	}
	return nil
}

func (s *server) setupForwarder() error {
	if err := forwarder.Setup(s.backend, s.integration); err != nil {
		return errors.Wrap(err, "setup forwarder error")
	}
	return nil
}

func (s *server) setupUpdateServer() error {
	if !s.conf.Update.Enabled {
		return nil
	}

	var err error
	s.updateServer, err = cups.NewServer(s.conf)
	if err != nil {
		return errors.Wrap(err, "setup update server error")
	}
	return nil
}

func (s *server) setupMetrics() error {
	if err := metrics.Setup(s.conf); err != nil {
		return errors.Wrap(err, "setup metrics error")
	}
	return nil
}

func (s *server) startIntegration() error {
	if err := s.integration.Start(); err != nil {
		return errors.Wrap(err, "start integration error")
	}
	return nil
}

func (s *server) shutdown() {
	if err := s.backend.Close(); err != nil {
		log.WithError(err).Error("close backend error")
	}

	if s.updateServer != nil {
		if err := s.updateServer.Close(); err != nil {
			log.WithError(err).Error("close update server error")
		}
	}

	if err := s.integration.Stop(); err != nil {
		log.WithError(err).Error("stop integration error")
	}
}
