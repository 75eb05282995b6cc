// Package integration publishes the backend events to an external system.
package integration

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/proto"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/integration/mqtt"
)

// Event types.
const (
	EventUp  = "up"
	EventAck = "ack"
)

// Integration defines the interface that an integration must implement.
type Integration interface {
	// SetGatewaySubscription updates the gateway subscription for the given
	// gateway ID. The integration must implement this such that it is safe
	// to call the same action multiple times.
	SetGatewaySubscription(subscribe bool, gatewayID lorawan.EUI64) error

	// PublishEvent publishes the given event.
	PublishEvent(gatewayID lorawan.EUI64, event string, id uint32, v proto.Message) error

	// Start starts the integration.
	Start() error

	// Stop stops the integration.
	Stop() error
}

// Setup returns the configured integration. When disabled, the returned
// integration discards all events.
func Setup(conf config.Config) (Integration, error) {
	if !conf.Integration.Enabled {
		return nopIntegration{}, nil
	}

	i, err := mqtt.NewBackend(conf)
	if err != nil {
		return nil, errors.Wrap(err, "setup mqtt integration error")
	}

	return i, nil
}

type nopIntegration struct{}

func (nopIntegration) SetGatewaySubscription(bool, lorawan.EUI64) error {
	return nil
}

func (nopIntegration) PublishEvent(lorawan.EUI64, string, uint32, proto.Message) error {
	return nil
}

func (nopIntegration) Start() error {
	return nil
}

func (nopIntegration) Stop() error {
	return nil
}
