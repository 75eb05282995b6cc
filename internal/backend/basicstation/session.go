package basicstation

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
	"github.com/brocaar/basicstation-testserver/internal/gpstime"
)

// SessionState defines the state of a Mux session.
type SessionState int

// Session states.
const (
	Connecting SessionState = iota
	AwaitingVersion
	Configured
	Active
	Closed
)

func (s SessionState) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case AwaitingVersion:
		return "awaiting_version"
	case Configured:
		return "configured"
	case Active:
		return "active"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// session holds the state of a single Mux connection. Nothing is shared
// between sessions, a reconnecting station starts with a new session.
type session struct {
	sync.Mutex

	// gorilla/websocket supports a single concurrent writer
	writeMu sync.Mutex

	backend    *Backend
	conn       *websocket.Conn
	gatewayID  lorawan.EUI64
	remoteAddr string

	state        SessionState
	encoding     structs.Encoding
	opts         RouterConfigOptions
	anchor       gpstime.Anchor
	lastTimesync time.Time

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func newSession(b *Backend, conn *websocket.Conn, gatewayID lorawan.EUI64, remoteAddr string) *session {
	ctx, cancel := context.WithCancel(b.ctx)

	return &session{
		backend:    b,
		conn:       conn,
		gatewayID:  gatewayID,
		remoteAddr: remoteAddr,
		state:      Connecting,
		encoding:   structs.TextualEncoding,
		opts:       b.routerConfigOptions,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// State returns the current session state.
func (s *session) State() SessionState {
	s.Lock()
	defer s.Unlock()
	return s.state
}

func (s *session) setState(state SessionState) {
	s.Lock()
	defer s.Unlock()

	if s.state == state {
		return
	}

	log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"from":       s.state,
		"to":         state,
	}).Debug("backend/basicstation: session state changed")
	s.state = state
	sessionStateCounter(prometheus.Labels{"state": state.String()})
}

// Encoding returns the encoding negotiated for the session.
func (s *session) Encoding() structs.Encoding {
	s.Lock()
	defer s.Unlock()
	return s.encoding
}

// start moves the session into AwaitingVersion and starts its background
// tasks.
func (s *session) start() {
	s.setState(AwaitingVersion)

	if s.backend.pingInterval > 0 {
		s.goTask(s.pingLoop)
	}

	if s.backend.timesyncPush && s.backend.timesyncInterval > 0 {
		s.goTask(s.timeTransferLoop)
	}

	if s.backend.featureToggle != "" && s.backend.featureToggleInterval > 0 {
		s.goTask(s.featureToggleLoop)
	}
}

// close cancels the background tasks and waits until they have returned.
func (s *session) close() {
	s.cancel()
	s.wg.Wait()
	s.setState(Closed)
}

func (s *session) goTask(f func()) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		f()
	}()
}

func (s *session) pingLoop() {
	ticker := time.NewTicker(s.backend.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			websocketPingPongCounter("ping").Inc()
			if err := s.conn.WriteControl(websocket.PingMessage, nil, deadline(s.backend.writeTimeout)); err != nil {
				log.WithError(err).WithField("gateway_id", s.gatewayID).Error("backend/basicstation: send ping message error")
				return
			}
		}
	}
}

func (s *session) featureToggleLoop() {
	ticker := time.NewTicker(s.backend.featureToggleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if state := s.State(); state != Configured && state != Active {
				continue
			}

			s.Lock()
			var value string
			switch s.backend.featureToggle {
			case FeatureDutyCycle:
				s.opts.DutyCycle = toggleSwitch(s.opts.DutyCycle)
				value = s.opts.DutyCycle
			case FeatureLBT:
				s.opts.LBT = toggleSwitch(s.opts.LBT)
				value = s.opts.LBT
			}
			s.Unlock()

			log.WithFields(log.Fields{
				"gateway_id": s.gatewayID,
				"feature":    s.backend.featureToggle,
				"value":      value,
			}).Info("backend/basicstation: feature toggled")

			if err := s.sendRouterConfig(); err != nil {
				log.WithError(err).WithField("gateway_id", s.gatewayID).Error("backend/basicstation: send router_config error")
			}
		}
	}
}

// run reads messages until the connection is closed.
func (s *session) run() {
	for {
		mt, b, err := s.conn.ReadMessage()
		if err != nil {
			s.logReadError(err)
			return
		}

		// the station does not always respond to ping messages
		s.conn.SetReadDeadline(deadline(s.backend.readTimeout))

		s.handleFrame(mt, b)
	}
}

func (s *session) logReadError(err error) {
	if s.backend.closed() {
		return
	}

	logger := log.WithFields(log.Fields{
		"gateway_id":  s.gatewayID,
		"remote_addr": s.remoteAddr,
	})

	if ce, ok := err.(*websocket.CloseError); ok {
		if ce.Code == websocket.CloseNormalClosure {
			logger.WithField("close_code", ce.Code).Info("backend/basicstation: connection closed by gateway")
		} else {
			logger.WithError(err).WithField("close_code", ce.Code).Error("backend/basicstation: connection closed abnormally")
		}
		return
	}

	logger.WithError(err).Error("backend/basicstation: read message error")
}

func (s *session) handleFrame(mt int, b []byte) {
	enc := structs.TextualEncoding
	if mt == websocket.BinaryMessage {
		if s.Encoding() != structs.BinaryEncoding {
			websocketDroppedCounter("binary_not_negotiated").Inc()
			log.WithField("gateway_id", s.gatewayID).Warning("backend/basicstation: binary message received but binary protocol was not negotiated")
			return
		}
		enc = structs.BinaryEncoding
	}

	log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"encoding":   enc,
		"message":    messageLogValue(enc, b),
	}).Debug("backend/basicstation: message received")

	msg, err := structs.Decode(enc, b)
	if err != nil {
		logger := log.WithError(err).WithFields(log.Fields{
			"gateway_id": s.gatewayID,
			"encoding":   enc,
			"payload":    messageLogValue(enc, b),
		})

		if errors.Cause(err) == structs.ErrUnrecognizedKind {
			websocketDroppedCounter("unrecognized_kind").Inc()
			logger.Warning("backend/basicstation: unexpected message-type")
		} else {
			websocketDroppedCounter("malformed").Inc()
			logger.Error("backend/basicstation: decode message error")
		}
		return
	}

	websocketReceiveCounter(msg.Kind().String(), enc.String()).Inc()
	s.handle(msg)
}

func messageLogValue(enc structs.Encoding, b []byte) string {
	if enc == structs.BinaryEncoding {
		return hex.EncodeToString(b)
	}
	return string(b)
}

// handle dispatches the decoded message by kind.
func (s *session) handle(msg structs.Message) {
	state := s.State()
	if state == AwaitingVersion && msg.Kind() != structs.VersionKind {
		websocketDroppedCounter("awaiting_version").Inc()
		log.WithFields(log.Fields{
			"gateway_id":   s.gatewayID,
			"message_kind": msg.Kind(),
		}).Warning("backend/basicstation: message received before version, dropping")
		return
	}

	switch v := msg.(type) {
	case structs.Version:
		s.handleVersion(v)
		return
	case structs.UplinkDataFrame, structs.JoinRequest, structs.UplinkProprietaryFrame:
		s.handleUplink(v)
	case structs.DownlinkTransmitted:
		s.handleDownlinkTransmitted(v)
	case structs.TimeSyncRequest:
		s.handleTimeSyncRequest(v)
	default:
		websocketDroppedCounter("unexpected_kind").Inc()
		log.WithFields(log.Fields{
			"gateway_id":   s.gatewayID,
			"message_kind": msg.Kind(),
		}).Warning("backend/basicstation: unexpected message-type")
	}

	if state == Configured {
		s.setState(Active)
	}
}

func (s *session) handleVersion(v structs.Version) {
	log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"station":    v.Station,
		"firmware":   v.Firmware,
		"package":    v.Package,
		"model":      v.Model,
		"protocol":   v.Protocol,
		"features":   v.Features,
	}).Info("backend/basicstation: gateway version received")

	// every version message renegotiates the encoding
	enc := structs.TextualEncoding
	if s.backend.binaryProtocol {
		if v.HasCapability(s.backend.binaryCapability) {
			enc = structs.BinaryEncoding
		} else {
			log.WithFields(log.Fields{
				"gateway_id": s.gatewayID,
				"capability": s.backend.binaryCapability,
			}).Warning("backend/basicstation: binary protocol requested but not supported by gateway, using textual encoding")
		}
	}

	s.Lock()
	s.encoding = enc
	s.Unlock()

	if err := s.sendRouterConfig(); err != nil {
		log.WithError(err).WithField("gateway_id", s.gatewayID).Error("backend/basicstation: send router_config error")
		return
	}

	s.setState(Configured)
}

func (s *session) sendRouterConfig() error {
	s.Lock()
	opts := s.opts
	binary := s.encoding == structs.BinaryEncoding
	s.Unlock()

	rc, err := BuildRouterConfig(opts, binary)
	if err != nil {
		return errors.Wrap(err, "build router_config error")
	}

	if err := s.send(rc); err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"gateway_id":      s.gatewayID,
		"region":          rc.Region,
		"hwspec":          rc.HWSpec,
		"protocol_format": rc.ProtocolFormat,
	}).Info("backend/basicstation: router_config message sent to gateway")

	return nil
}

// send encodes the message using the negotiated encoding and writes it to
// the connection. Messages without binary form are sent textually.
func (s *session) send(msg structs.Message) error {
	enc := s.Encoding()

	b, err := structs.Encode(enc, msg)
	if errors.Cause(err) == structs.ErrBinaryNotSupported {
		enc = structs.TextualEncoding
		b, err = structs.EncodeTextual(msg)
	}
	if err != nil {
		return errors.Wrap(err, "encode message error")
	}

	frameType := websocket.TextMessage
	if enc == structs.BinaryEncoding {
		frameType = websocket.BinaryMessage
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.conn.SetWriteDeadline(deadline(s.backend.writeTimeout))
	if err := s.conn.WriteMessage(frameType, b); err != nil {
		return errors.Wrap(err, "send message to gateway error")
	}

	websocketSendCounter(msg.Kind().String(), enc.String()).Inc()

	log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"encoding":   enc,
		"message":    messageLogValue(enc, b),
	}).Debug("backend/basicstation: message sent")

	return nil
}
