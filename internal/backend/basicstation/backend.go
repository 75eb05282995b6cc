// Package basicstation implements the Info and Mux endpoints of a LoRa Basics
// Station network server used for testing stations.
package basicstation

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/chirpstack/chirpstack/api/go/v4/gw"
	"github.com/gorilla/websocket"
	"github.com/patrickmn/go-cache"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
	"github.com/brocaar/basicstation-testserver/internal/backend/events"
	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/regions"
	"github.com/brocaar/basicstation-testserver/internal/token"
)

// Features that can be toggled periodically.
const (
	FeatureDutyCycle = "duty_cycle"
	FeatureLBT       = "lbt"
)

// fallbackRegion is used when the configured region has no profile.
const fallbackRegion = "US915"

// CloseCodeUnknownRouter is sent when the Mux path does not identify a
// router.
const CloseCodeUnknownRouter = 1020

// websocket upgrade parameters
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// Backend implements the Info and Mux endpoints.
type Backend struct {
	sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc

	infoLn     net.Listener
	muxLn      net.Listener
	infoServer *http.Server
	muxServer  *http.Server
	scheme     string
	isClosed   bool

	pingInterval time.Duration
	readTimeout  time.Duration
	writeTimeout time.Duration

	muxURI      string
	muxsID      string
	tokenSecret string

	band                band.Band
	routerConfigOptions RouterConfigOptions

	binaryProtocol        bool
	binaryCapability      string
	timesyncPush          bool
	timesyncInterval      time.Duration
	autoDownlink          bool
	featureToggle         string
	featureToggleInterval time.Duration

	gateways  gateways
	diidCache *cache.Cache

	uplinkFrameFunc   func(*gw.UplinkFrame)
	downlinkTxAckFunc func(*gw.DownlinkTxAck)
}

// NewBackend creates a new Backend and starts the Info and Mux listeners.
// The catalog holds the regional configuration used to build router_config
// messages.
func NewBackend(conf config.Config, catalog *regions.Catalog) (*Backend, error) {
	bsConf := conf.Backend.BasicStation

	ctx, cancel := context.WithCancel(context.Background())

	b := Backend{
		ctx:    ctx,
		cancel: cancel,
		scheme: "ws",

		pingInterval: bsConf.PingInterval,
		readTimeout:  bsConf.ReadTimeout,
		writeTimeout: bsConf.WriteTimeout,

		muxURI:      bsConf.MuxURI,
		muxsID:      bsConf.MuxsID,
		tokenSecret: bsConf.Auth.TokenSecret,

		binaryProtocol:        bsConf.BinaryProtocol,
		binaryCapability:      bsConf.BinaryCapability,
		timesyncPush:          bsConf.TimesyncPush,
		timesyncInterval:      bsConf.TimesyncInterval,
		autoDownlink:          bsConf.AutoDownlink,
		featureToggle:         bsConf.FeatureToggle.Feature,
		featureToggleInterval: bsConf.FeatureToggle.Interval,

		gateways: gateways{
			gateways: make(map[lorawan.EUI64]*session),
		},
		diidCache: newDIIDCache(bsConf.DownlinkTTL),
	}

	if b.binaryCapability == "" {
		b.binaryCapability = structs.ProtocolFormatProtobuf
	}

	switch b.featureToggle {
	case "", FeatureDutyCycle, FeatureLBT:
	default:
		cancel()
		return nil, errors.Errorf("unknown feature_toggle feature: %s", b.featureToggle)
	}

	profile, err := catalog.Profile(bsConf.Region)
	if errors.Cause(err) == regions.ErrUnknownProfile {
		log.WithFields(log.Fields{
			"region":   bsConf.Region,
			"fallback": fallbackRegion,
		}).Warning("backend/basicstation: unknown region, using fallback")
		profile, err = catalog.Profile(fallbackRegion)
	}
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "get region profile error")
	}

	b.band, err = band.GetConfig(band.Name(profile.Name), false, lorawan.DwellTimeNoLimit)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "get band config error")
	}

	b.routerConfigOptions = RouterConfigOptions{
		Catalog:      catalog,
		Profile:      profile,
		RouterConfig: bsConf.RouterConfig,
		AsymDR:       bsConf.AsymDR,
		PDUOnly:      bsConf.PDUOnly,
		PDUEncoding:  bsConf.PDUEncoding,
		DutyCycle:    bsConf.DutyCycle,
		DCMode:       bsConf.DCMode,
		DCLimits:     bsConf.DCLimits,
		LBT:          bsConf.LBT,
		LBTChannels:  bsConf.LBTChannels,
		SingleRadio:  bsConf.SingleRadio,
	}

	// validate the router_config options once at startup
	if _, err := BuildRouterConfig(b.routerConfigOptions, false); err != nil {
		cancel()
		return nil, errors.Wrap(err, "build router_config error")
	}

	var tlsConfig *tls.Config
	if bsConf.CACert != "" {
		tlsConfig, err = clientCATLSConfig(bsConf.CACert)
		if err != nil {
			cancel()
			return nil, err
		}
	}
	useTLS := bsConf.TLSCert != "" || bsConf.TLSKey != ""
	if useTLS {
		b.scheme = "wss"
	}

	infoMux := http.NewServeMux()
	infoMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		b.websocketWrap(b.handleRouterInfo, w, r)
	})

	muxMux := http.NewServeMux()
	muxMux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		connectCounter().Inc()
		b.websocketWrap(b.handleGateway, w, r)
		disconnectCounter().Inc()
	})

	// using net.Listen makes it easier to test as we can bind to ":0" and
	// then read back the Addr to find the assigned (random) port.
	b.infoLn, err = net.Listen("tcp", bsConf.InfoBind)
	if err != nil {
		cancel()
		return nil, errors.Wrap(err, "create info listener error")
	}

	b.muxLn, err = net.Listen("tcp", bsConf.MuxBind)
	if err != nil {
		cancel()
		b.infoLn.Close()
		return nil, errors.Wrap(err, "create mux listener error")
	}

	b.infoServer = &http.Server{Handler: infoMux, TLSConfig: tlsConfig}
	b.muxServer = &http.Server{Handler: muxMux, TLSConfig: tlsConfig}

	log.WithFields(log.Fields{
		"region":        profile.Name,
		"router_config": profile.SelectRouterConfig(bsConf.AsymDR),
		"binary":        bsConf.BinaryProtocol,
	}).Info("backend/basicstation: region profile selected")

	b.serve("info", b.infoServer, b.infoLn, useTLS, bsConf)
	b.serve("mux", b.muxServer, b.muxLn, useTLS, bsConf)

	return &b, nil
}

func clientCATLSConfig(caCert string) (*tls.Config, error) {
	rawCACert, err := os.ReadFile(caCert)
	if err != nil {
		return nil, errors.Wrap(err, "read ca cert error")
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(rawCACert) {
		return nil, errors.New("append ca cert error")
	}

	return &tls.Config{
		ClientCAs:  caCertPool,
		ClientAuth: tls.RequireAndVerifyClientCert,
	}, nil
}

func (b *Backend) serve(name string, server *http.Server, ln net.Listener, useTLS bool, conf config.BasicStation) {
	go func() {
		log.WithFields(log.Fields{
			"endpoint": name,
			"bind":     ln.Addr(),
			"tls_cert": conf.TLSCert,
			"tls_key":  conf.TLSKey,
			"ca_cert":  conf.CACert,
		}).Info("backend/basicstation: starting websocket listener")

		var err error
		if useTLS {
			err = server.ServeTLS(ln, conf.TLSCert, conf.TLSKey)
		} else {
			err = server.Serve(ln)
		}

		if err != nil && !b.closed() {
			log.WithError(err).WithField("endpoint", name).Fatal("backend/basicstation: server error")
		}
	}()
}

// SetUplinkFrameFunc sets the function called for every received uplink.
func (b *Backend) SetUplinkFrameFunc(f func(*gw.UplinkFrame)) {
	b.Lock()
	defer b.Unlock()
	b.uplinkFrameFunc = f
}

// SetDownlinkTxAckFunc sets the function called for every received dntxed.
func (b *Backend) SetDownlinkTxAckFunc(f func(*gw.DownlinkTxAck)) {
	b.Lock()
	defer b.Unlock()
	b.downlinkTxAckFunc = f
}

// SetConnectionEventFunc sets the function called when a gateway connects
// or disconnects.
func (b *Backend) SetConnectionEventFunc(f func(events.Connection)) {
	b.gateways.Lock()
	defer b.gateways.Unlock()
	b.gateways.connectionEventFunc = f
}

// GatewaySessionState returns the session state of the connected gateway.
func (b *Backend) GatewaySessionState(gatewayID lorawan.EUI64) (SessionState, error) {
	s, err := b.gateways.get(gatewayID)
	if err != nil {
		return Closed, err
	}
	return s.State(), nil
}

// InfoAddr returns the address of the Info listener.
func (b *Backend) InfoAddr() net.Addr {
	return b.infoLn.Addr()
}

// MuxAddr returns the address of the Mux listener.
func (b *Backend) MuxAddr() net.Addr {
	return b.muxLn.Addr()
}

// Close closes the listeners and all sessions.
func (b *Backend) Close() error {
	b.Lock()
	b.isClosed = true
	b.Unlock()

	b.cancel()

	// hijacked websocket connections are not closed by the http servers
	for _, s := range b.gateways.all() {
		if err := s.conn.Close(); err != nil {
			log.WithError(err).WithField("gateway_id", s.gatewayID).Error("backend/basicstation: close websocket error")
		}
	}

	if err := b.infoServer.Close(); err != nil {
		return errors.Wrap(err, "close info server error")
	}
	if err := b.muxServer.Close(); err != nil {
		return errors.Wrap(err, "close mux server error")
	}
	return nil
}

func (b *Backend) closed() bool {
	b.RLock()
	defer b.RUnlock()
	return b.isClosed
}

func (b *Backend) publishUplinkFrame(pl *gw.UplinkFrame) {
	b.RLock()
	f := b.uplinkFrameFunc
	b.RUnlock()

	if f != nil {
		f(pl)
	}
}

func (b *Backend) publishDownlinkTxAck(pl *gw.DownlinkTxAck) {
	b.RLock()
	f := b.downlinkTxAckFunc
	b.RUnlock()

	if f != nil {
		f(pl)
	}
}

// routerURI returns the Mux URI for the given router. Unless configured, it
// is derived from the host the Info request was sent to.
func (b *Backend) routerURI(r *http.Request, router structs.EUI64) string {
	if b.muxURI != "" {
		return b.muxURI
	}

	host := r.Host
	if h, _, err := net.SplitHostPort(r.Host); err == nil {
		host = h
	}

	_, port, _ := net.SplitHostPort(b.muxLn.Addr().String())
	return fmt.Sprintf("%s://%s/router-%s", b.scheme, net.JoinHostPort(host, port), router.ID6())
}

// parseRouterPath returns the router id from a /router-<id> path. The
// plain /router path returns a zero id.
func parseRouterPath(path string) (structs.EUI64, bool) {
	var id structs.EUI64
	path = strings.TrimSuffix(path, "/")

	if path == "/router" {
		return id, true
	}

	if !strings.HasPrefix(path, "/router-") {
		return id, false
	}

	if err := id.UnmarshalText([]byte(strings.TrimPrefix(path, "/router-"))); err != nil {
		return id, false
	}
	return id, true
}

func certificateCommonName(r *http.Request) (string, bool) {
	if r.TLS == nil || len(r.TLS.PeerCertificates) == 0 {
		return "", false
	}
	return r.TLS.PeerCertificates[0].Subject.CommonName, true
}

func (b *Backend) handleRouterInfo(r *http.Request, c *websocket.Conn, claims *token.Claims) {
	for {
		var req structs.RouterInfoRequest
		if err := c.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !b.closed() {
				log.WithError(err).Error("backend/basicstation: read router-info message error")
			}
			return
		}

		routerInfoCounter().Inc()
		websocketReceiveCounter("router_info", structs.TextualEncoding.String()).Inc()

		resp := structs.RouterInfoResponse{
			Router: req.Router,
			Muxs:   b.muxsID,
			URI:    b.routerURI(r, req.Router),
		}

		if cn, ok := certificateCommonName(r); ok {
			var id structs.EUI64
			if err := id.UnmarshalText([]byte(cn)); err != nil || id != req.Router {
				resp.URI = ""
				resp.Error = fmt.Sprintf("certificate CommonName %s does not match router %s", cn, req.Router)
			}
		}

		if err := claims.Check(req.Router); err != nil {
			resp.URI = ""
			resp.Error = err.Error()
		}

		c.SetWriteDeadline(deadline(b.writeTimeout))
		if err := c.WriteJSON(resp); err != nil {
			log.WithError(err).Error("backend/basicstation: websocket send message error")
			return
		}
		websocketSendCounter("router_info", structs.TextualEncoding.String()).Inc()

		log.WithFields(log.Fields{
			"gateway_id":  lorawan.EUI64(req.Router),
			"remote_addr": r.RemoteAddr,
			"router_uri":  resp.URI,
			"error":       resp.Error,
		}).Info("backend/basicstation: router-info request received")
	}
}

func (b *Backend) handleGateway(r *http.Request, c *websocket.Conn, claims *token.Claims) {
	router, ok := parseRouterPath(r.URL.Path)
	if !ok {
		log.WithFields(log.Fields{
			"path":        r.URL.Path,
			"remote_addr": r.RemoteAddr,
		}).Error("backend/basicstation: unable to read router id from url")
		closeWithCode(c, CloseCodeUnknownRouter, "unknown router", b.writeTimeout)
		return
	}
	gatewayID := lorawan.EUI64(router)
	anonymous := r.URL.Path == "/router" || r.URL.Path == "/router/"

	if cn, ok := certificateCommonName(r); ok && !anonymous {
		var id structs.EUI64
		if err := id.UnmarshalText([]byte(cn)); err != nil || id != router {
			log.WithFields(log.Fields{
				"gateway_id":  gatewayID,
				"common_name": cn,
			}).Error("backend/basicstation: CommonName verification failed")
			closeWithCode(c, websocket.ClosePolicyViolation, "certificate mismatch", b.writeTimeout)
			return
		}
	}

	if !anonymous {
		if err := claims.Check(router); err != nil {
			log.WithError(err).WithField("gateway_id", gatewayID).Error("backend/basicstation: token verification failed")
			closeWithCode(c, websocket.ClosePolicyViolation, "token mismatch", b.writeTimeout)
			return
		}
	}

	s := newSession(b, c, gatewayID, r.RemoteAddr)

	// sessions on the plain /router path are not registered as the router
	// is unknown
	if !anonymous {
		if err := b.gateways.set(gatewayID, s); err != nil {
			log.WithError(err).WithField("gateway_id", gatewayID).Error("backend/basicstation: set gateway error")
			closeWithCode(c, websocket.ClosePolicyViolation, "already connected", b.writeTimeout)
			s.close()
			return
		}
		defer b.gateways.remove(gatewayID, s)
	}

	log.WithFields(log.Fields{
		"gateway_id":  gatewayID,
		"remote_addr": r.RemoteAddr,
	}).Info("backend/basicstation: gateway connected")

	defer func() {
		log.WithFields(log.Fields{
			"gateway_id":  gatewayID,
			"remote_addr": r.RemoteAddr,
		}).Info("backend/basicstation: gateway disconnected")
	}()

	s.start()
	defer s.close()

	s.run()
}

// deadline returns the deadline for the given timeout. A zero timeout
// disables the deadline.
func deadline(timeout time.Duration) time.Time {
	if timeout == 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

func closeWithCode(c *websocket.Conn, code int, text string, timeout time.Duration) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := c.WriteControl(websocket.CloseMessage, msg, deadline(timeout)); err != nil {
		log.WithError(err).Error("backend/basicstation: send close message error")
	}
}

func (b *Backend) websocketWrap(handler func(*http.Request, *websocket.Conn, *token.Claims), w http.ResponseWriter, r *http.Request) {
	var claims *token.Claims
	if b.tokenSecret != "" {
		var err error
		claims, err = token.Authenticate(b.tokenSecret, r)
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"remote_addr": r.RemoteAddr,
				"path":        r.URL.Path,
			}).Error("backend/basicstation: authentication error")
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Error("backend/basicstation: websocket upgrade error")
		return
	}
	defer conn.Close()

	// hijacked connections are not closed by http.Server.Close
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-b.ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	conn.SetReadDeadline(deadline(b.readTimeout))
	conn.SetPongHandler(func(string) error {
		websocketPingPongCounter("pong").Inc()
		conn.SetReadDeadline(deadline(b.readTimeout))
		return nil
	})

	handler(r, conn, claims)
}
