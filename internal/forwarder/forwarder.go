// Package forwarder forwards the backend events to the integration.
package forwarder

import (
	"github.com/chirpstack/chirpstack/api/go/v4/gw"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/backend/events"
	"github.com/brocaar/basicstation-testserver/internal/integration"
)

// Backend defines the backend callbacks used by the forwarder.
type Backend interface {
	SetUplinkFrameFunc(func(*gw.UplinkFrame))
	SetDownlinkTxAckFunc(func(*gw.DownlinkTxAck))
	SetConnectionEventFunc(func(events.Connection))
}

// Setup configures the forwarder.
func Setup(b Backend, i integration.Integration) error {
	if b == nil {
		return errors.New("backend is not set")
	}

	if i == nil {
		return errors.New("integration is not set")
	}

	b.SetConnectionEventFunc(func(event events.Connection) {
		gatewayConnection(i, event)
	})
	b.SetUplinkFrameFunc(func(pl *gw.UplinkFrame) {
		forwardUplinkFrame(i, pl)
	})
	b.SetDownlinkTxAckFunc(func(pl *gw.DownlinkTxAck) {
		forwardDownlinkTxAck(i, pl)
	})

	return nil
}

func gatewayConnection(i integration.Integration, event events.Connection) {
	if err := i.SetGatewaySubscription(event.Connected, event.GatewayID); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"gateway_id":  event.GatewayID,
			"remote_addr": event.RemoteAddr,
		}).Error("forwarder: set gateway subscription error")
	}
}

func forwardUplinkFrame(i integration.Integration, pl *gw.UplinkFrame) {
	var gatewayID lorawan.EUI64
	if err := gatewayID.UnmarshalText([]byte(pl.GetRxInfo().GetGatewayId())); err != nil {
		log.WithError(err).Error("forwarder: decode gateway id error")
		return
	}

	uplinkID := pl.GetRxInfo().GetUplinkId()
	if err := i.PublishEvent(gatewayID, integration.EventUp, uplinkID, pl); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"gateway_id": gatewayID,
			"event_type": integration.EventUp,
			"uplink_id":  uplinkID,
		}).Error("forwarder: publish event error")
	}
}

func forwardDownlinkTxAck(i integration.Integration, pl *gw.DownlinkTxAck) {
	var gatewayID lorawan.EUI64
	if err := gatewayID.UnmarshalText([]byte(pl.GetGatewayId())); err != nil {
		log.WithError(err).Error("forwarder: decode gateway id error")
		return
	}

	downID := pl.GetDownlinkId()
	if err := i.PublishEvent(gatewayID, integration.EventAck, downID, pl); err != nil {
		log.WithError(err).WithFields(log.Fields{
			"gateway_id":  gatewayID,
			"event_type":  integration.EventAck,
			"downlink_id": downID,
		}).Error("forwarder: publish event error")
	}
}
