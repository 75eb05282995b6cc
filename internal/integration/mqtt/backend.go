// Package mqtt implements the MQTT event integration.
package mqtt

import (
	"bytes"
	"sync"
	"text/template"
	"time"

	"github.com/chirpstack/chirpstack/api/go/v4/gw"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/integration/mqtt/auth"
	"github.com/brocaar/basicstation-testserver/internal/marshaler"
)

// stateLoopInterval defines how often the published conn states are
// reconciled with the connected gateways.
const stateLoopInterval = 100 * time.Millisecond

// Backend implements a MQTT backend.
type Backend struct {
	auth auth.Authentication

	conn       paho.Client
	connMux    sync.RWMutex
	connClosed bool
	clientOpts *paho.ClientOptions

	gatewaysMux       sync.RWMutex
	gateways          map[lorawan.EUI64]struct{}
	gatewaysOnlineMux sync.Mutex
	gatewaysOnline    map[lorawan.EUI64]struct{}

	stateRetained bool
	maxTokenWait  time.Duration

	qos                uint8
	eventTopicTemplate *template.Template
	stateTopicTemplate *template.Template

	marshal   func(msg proto.Message) ([]byte, error)
	unmarshal func(b []byte, msg proto.Message) error
}

// NewBackend creates a new Backend.
func NewBackend(conf config.Config) (*Backend, error) {
	var err error
	mqttConf := conf.Integration.MQTT

	b := Backend{
		qos:            mqttConf.Auth.Generic.QOS,
		clientOpts:     paho.NewClientOptions(),
		gateways:       make(map[lorawan.EUI64]struct{}),
		gatewaysOnline: make(map[lorawan.EUI64]struct{}),
		stateRetained:  mqttConf.StateRetained,
		maxTokenWait:   mqttConf.MaxTokenWait,
	}

	b.auth, err = auth.NewGenericAuthentication(conf)
	if err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: new generic authentication error")
	}

	m, err := marshaler.GetMarshaler(conf.Integration.Marshaler)
	if err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: get marshaler error")
	}
	b.marshal = m.Marshal
	b.unmarshal = m.Unmarshal

	b.eventTopicTemplate, err = template.New("event").Parse(mqttConf.EventTopicTemplate)
	if err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: parse event-topic template error")
	}

	if mqttConf.StateTopicTemplate != "" {
		b.stateTopicTemplate, err = template.New("state").Parse(mqttConf.StateTopicTemplate)
		if err != nil {
			return nil, errors.Wrap(err, "integration/mqtt: parse state-topic template error")
		}
	}

	b.clientOpts.SetProtocolVersion(4)
	b.clientOpts.SetAutoReconnect(true)
	b.clientOpts.SetOnConnectHandler(b.onConnected)
	b.clientOpts.SetConnectionLostHandler(b.onConnectionLost)
	b.clientOpts.SetKeepAlive(mqttConf.KeepAlive)
	b.clientOpts.SetMaxReconnectInterval(mqttConf.MaxReconnectInterval)

	if err = b.auth.Init(b.clientOpts); err != nil {
		return nil, errors.Wrap(err, "integration/mqtt: init authentication error")
	}

	b.conn = paho.NewClient(b.clientOpts)

	return &b, nil
}

// Start connects to the broker in the background and starts publishing the
// gateway states.
func (b *Backend) Start() error {
	go func() {
		b.connectLoop()
		b.stateLoop()
	}()
	return nil
}

// Stop publishes the OFFLINE state for all connected gateways and closes
// the broker connection.
func (b *Backend) Stop() error {
	b.connMux.Lock()
	defer b.connMux.Unlock()

	b.gatewaysMux.Lock()
	defer b.gatewaysMux.Unlock()

	if b.conn.IsConnected() {
		for gatewayID := range b.gateways {
			pl := gw.ConnState{
				GatewayId: gatewayID.String(),
				State:     gw.ConnState_OFFLINE,
			}
			if err := b.PublishState(gatewayID, "conn", &pl); err != nil {
				log.WithError(err).Error("integration/mqtt: publish state error")
			}
		}
	}

	b.conn.Disconnect(250)
	b.connClosed = true
	return nil
}

// SetGatewaySubscription sets or unsets the gateway. The conn state is
// published by the state loop, so that the gateways map always reflects the
// desired state, also when the broker is not reachable.
func (b *Backend) SetGatewaySubscription(subscribe bool, gatewayID lorawan.EUI64) error {
	log.WithFields(log.Fields{
		"gateway_id": gatewayID,
		"subscribe":  subscribe,
	}).Debug("integration/mqtt: set gateway subscription")

	b.gatewaysMux.Lock()
	defer b.gatewaysMux.Unlock()

	if subscribe {
		b.gateways[gatewayID] = struct{}{}
	} else {
		delete(b.gateways, gatewayID)
	}

	return nil
}

// PublishEvent publishes the given event.
func (b *Backend) PublishEvent(gatewayID lorawan.EUI64, event string, id uint32, v proto.Message) error {
	mqttEventCounter(event).Inc()
	idPrefix := map[string]string{
		"up":  "uplink_",
		"ack": "downlink_",
	}
	return b.publishEvent(gatewayID, event, log.Fields{
		idPrefix[event] + "id": id,
	}, v)
}

// PublishState publishes the given state.
func (b *Backend) PublishState(gatewayID lorawan.EUI64, state string, v proto.Message) error {
	if b.stateTopicTemplate == nil {
		log.WithFields(log.Fields{
			"state":      state,
			"gateway_id": gatewayID,
		}).Debug("integration/mqtt: ignoring publish state, no state_topic_template configured")
		return nil
	}

	mqttStateCounter(state).Inc()

	topic, err := b.stateTopic(gatewayID, state)
	if err != nil {
		return err
	}

	bytes, err := b.marshal(v)
	if err != nil {
		return errors.Wrap(err, "marshal message error")
	}

	log.WithFields(log.Fields{
		"topic":      topic,
		"qos":        b.qos,
		"state":      state,
		"gateway_id": gatewayID,
	}).Info("integration/mqtt: publishing state")

	return tokenWrapper(b.conn.Publish(topic, b.qos, b.stateRetained, bytes), b.maxTokenWait)
}

func (b *Backend) eventTopic(gatewayID lorawan.EUI64, event string) (string, error) {
	topic := bytes.NewBuffer(nil)
	if err := b.eventTopicTemplate.Execute(topic, struct {
		GatewayID lorawan.EUI64
		EventType string
	}{gatewayID, event}); err != nil {
		return "", errors.Wrap(err, "execute event template error")
	}
	return topic.String(), nil
}

func (b *Backend) stateTopic(gatewayID lorawan.EUI64, state string) (string, error) {
	topic := bytes.NewBuffer(nil)
	if err := b.stateTopicTemplate.Execute(topic, struct {
		GatewayID lorawan.EUI64
		StateType string
	}{gatewayID, state}); err != nil {
		return "", errors.Wrap(err, "execute state template error")
	}
	return topic.String(), nil
}

func (b *Backend) connect() error {
	b.connMux.Lock()
	defer b.connMux.Unlock()

	if b.connClosed {
		return nil
	}

	return tokenWrapper(b.conn.Connect(), b.maxTokenWait)
}

// connectLoop blocks until the client is connected or the integration is
// stopped.
func (b *Backend) connectLoop() {
	for !b.isClosed() {
		if err := b.connect(); err != nil {
			log.WithError(err).Error("integration/mqtt: connection error")
			time.Sleep(2 * time.Second)
			continue
		}
		break
	}
}

func (b *Backend) onConnected(c paho.Client) {
	mqttConnectCounter().Inc()
	log.Info("integration/mqtt: connected to mqtt broker")

	b.gatewaysOnlineMux.Lock()
	defer b.gatewaysOnlineMux.Unlock()

	// re-publish the states on the new connection
	b.gatewaysOnline = make(map[lorawan.EUI64]struct{})
}

func (b *Backend) onConnectionLost(c paho.Client, err error) {
	mqttDisconnectCounter().Inc()
	log.WithError(err).Error("integration/mqtt: connection error")
}

// stateLoop publishes the ONLINE / OFFLINE state for gateways that
// connected or disconnected since the previous run.
func (b *Backend) stateLoop() {
	for {
		time.Sleep(stateLoopInterval)

		if b.isClosed() {
			return
		}

		if !b.conn.IsConnected() {
			continue
		}

		var online, offline []lorawan.EUI64

		b.gatewaysMux.RLock()
		b.gatewaysOnlineMux.Lock()

		for gatewayID := range b.gateways {
			if _, ok := b.gatewaysOnline[gatewayID]; !ok {
				online = append(online, gatewayID)
			}
		}

		for gatewayID := range b.gatewaysOnline {
			if _, ok := b.gateways[gatewayID]; !ok {
				offline = append(offline, gatewayID)
			}
		}

		b.gatewaysMux.RUnlock()

		for _, gatewayID := range online {
			pl := gw.ConnState{
				GatewayId: gatewayID.String(),
				State:     gw.ConnState_ONLINE,
			}
			if err := b.PublishState(gatewayID, "conn", &pl); err != nil {
				log.WithError(err).WithField("gateway_id", gatewayID).Error("integration/mqtt: publish conn state error")
				continue
			}
			b.gatewaysOnline[gatewayID] = struct{}{}
		}

		for _, gatewayID := range offline {
			pl := gw.ConnState{
				GatewayId: gatewayID.String(),
				State:     gw.ConnState_OFFLINE,
			}
			if err := b.PublishState(gatewayID, "conn", &pl); err != nil {
				log.WithError(err).WithField("gateway_id", gatewayID).Error("integration/mqtt: publish conn state error")
				continue
			}
			delete(b.gatewaysOnline, gatewayID)
		}

		b.gatewaysOnlineMux.Unlock()
	}
}

func (b *Backend) publishEvent(gatewayID lorawan.EUI64, event string, fields log.Fields, msg proto.Message) error {
	topic, err := b.eventTopic(gatewayID, event)
	if err != nil {
		return err
	}

	bytes, err := b.marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal message error")
	}

	fields["topic"] = topic
	fields["qos"] = b.qos
	fields["event"] = event
	fields["gateway_id"] = gatewayID

	log.WithFields(fields).Info("integration/mqtt: publishing event")
	return tokenWrapper(b.conn.Publish(topic, b.qos, false, bytes), b.maxTokenWait)
}

// isClosed returns true when the integration is shutting down.
func (b *Backend) isClosed() bool {
	b.connMux.RLock()
	defer b.connMux.RUnlock()
	return b.connClosed
}

func tokenWrapper(token paho.Token, timeout time.Duration) error {
	if !token.WaitTimeout(timeout) {
		return errors.New("token wait timeout error")
	}
	return token.Error()
}
