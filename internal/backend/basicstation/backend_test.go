package basicstation

import (
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/chirpstack/chirpstack/api/go/v4/gw"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
	"github.com/brocaar/basicstation-testserver/internal/backend/events"
	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/gpstime"
	"github.com/brocaar/basicstation-testserver/internal/regions"
	"github.com/brocaar/basicstation-testserver/internal/token"
)

var testRouter = structs.EUI64{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

func testConfig() config.Config {
	var conf config.Config
	conf.Backend.BasicStation.InfoBind = "127.0.0.1:0"
	conf.Backend.BasicStation.MuxBind = "127.0.0.1:0"
	conf.Backend.BasicStation.MuxsID = "muxs-::0"
	conf.Backend.BasicStation.Region = "EU868"
	conf.Backend.BasicStation.PingInterval = time.Minute
	conf.Backend.BasicStation.ReadTimeout = 2 * time.Minute
	conf.Backend.BasicStation.WriteTimeout = time.Second
	conf.Backend.BasicStation.TimesyncInterval = 10 * time.Second
	conf.Backend.BasicStation.DownlinkTTL = time.Minute
	return conf
}

type BackendTestSuite struct {
	suite.Suite

	conf     config.Config
	backend  *Backend
	wsClient *websocket.Conn

	uplinkFrames chan *gw.UplinkFrame
	txAcks       chan *gw.DownlinkTxAck
	connections  chan events.Connection
}

func (ts *BackendTestSuite) SetupSuite() {
	log.SetLevel(log.ErrorLevel)
}

func (ts *BackendTestSuite) SetupTest() {
	ts.setup(testConfig())
}

func (ts *BackendTestSuite) TearDownTest() {
	assert := require.New(ts.T())
	assert.NoError(ts.wsClient.Close())

	ev := ts.nextConnection()
	assert.Equal(lorawan.EUI64(testRouter), ev.GatewayID)
	assert.False(ev.Connected)

	assert.NoError(ts.backend.Close())
}

func (ts *BackendTestSuite) setup(conf config.Config) {
	assert := require.New(ts.T())

	catalog, err := regions.Default()
	assert.NoError(err)

	ts.conf = conf
	ts.backend, err = NewBackend(conf, catalog)
	assert.NoError(err)

	ts.uplinkFrames = make(chan *gw.UplinkFrame, 10)
	ts.txAcks = make(chan *gw.DownlinkTxAck, 10)
	ts.connections = make(chan events.Connection, 10)

	ts.backend.SetUplinkFrameFunc(func(pl *gw.UplinkFrame) { ts.uplinkFrames <- pl })
	ts.backend.SetDownlinkTxAckFunc(func(pl *gw.DownlinkTxAck) { ts.txAcks <- pl })
	ts.backend.SetConnectionEventFunc(func(pl events.Connection) { ts.connections <- pl })

	ts.wsClient, _, err = websocket.DefaultDialer.Dial(ts.muxURL(), ts.authHeader())
	assert.NoError(err)

	ev := ts.nextConnection()
	assert.Equal(lorawan.EUI64(testRouter), ev.GatewayID)
	assert.True(ev.Connected)
	assert.NotEmpty(ev.RemoteAddr)
}

// restart replaces the backend and connection by one using the modified
// configuration.
func (ts *BackendTestSuite) restart(f func(*config.BasicStation)) {
	ts.TearDownTest()

	conf := testConfig()
	f(&conf.Backend.BasicStation)
	ts.setup(conf)
}

func (ts *BackendTestSuite) muxURL() string {
	return fmt.Sprintf("ws://%s/router-%s", ts.backend.MuxAddr(), testRouter.ID6())
}

func (ts *BackendTestSuite) authHeader() http.Header {
	secret := ts.conf.Backend.BasicStation.Auth.TokenSecret
	if secret == "" {
		return nil
	}

	tok, err := token.New(secret, testRouter, time.Hour)
	require.NoError(ts.T(), err)

	return http.Header{"Authorization": []string{"Bearer " + tok}}
}

func (ts *BackendTestSuite) nextConnection() events.Connection {
	select {
	case ev := <-ts.connections:
		return ev
	case <-time.After(time.Second):
		ts.T().Fatal("timeout waiting for connection event")
	}
	return events.Connection{}
}

func (ts *BackendTestSuite) send(enc structs.Encoding, msg structs.Message) {
	assert := require.New(ts.T())

	b, err := structs.Encode(enc, msg)
	assert.NoError(err)

	mt := websocket.TextMessage
	if enc == structs.BinaryEncoding {
		mt = websocket.BinaryMessage
	}
	assert.NoError(ts.wsClient.WriteMessage(mt, b))
}

func (ts *BackendTestSuite) receive() (structs.Encoding, structs.Message) {
	assert := require.New(ts.T())

	assert.NoError(ts.wsClient.SetReadDeadline(time.Now().Add(time.Second)))
	mt, b, err := ts.wsClient.ReadMessage()
	assert.NoError(err)

	enc := structs.TextualEncoding
	if mt == websocket.BinaryMessage {
		enc = structs.BinaryEncoding
	}

	msg, err := structs.Decode(enc, b)
	assert.NoError(err)
	return enc, msg
}

// handshake sends the version message and returns the router_config.
func (ts *BackendTestSuite) handshake(features string) structs.RouterConfig {
	assert := require.New(ts.T())

	ts.send(structs.TextualEncoding, structs.Version{
		Station:  "2.0.6(rpi/std)",
		Firmware: "2.0.6",
		Package:  "2.0.6",
		Model:    "rpi",
		Protocol: 2,
		Features: features,
	})

	enc, msg := ts.receive()
	assert.Equal(structs.TextualEncoding, enc)

	rc, ok := msg.(structs.RouterConfig)
	assert.True(ok, "expected router_config, got %T", msg)
	return rc
}

func (ts *BackendTestSuite) TestRouterInfo() {
	assert := require.New(ts.T())

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/router-info", ts.backend.InfoAddr()), nil)
	assert.NoError(err)
	defer ws.Close()

	// the connection serves repeated requests
	for i := 0; i < 2; i++ {
		assert.NoError(ws.WriteJSON(structs.RouterInfoRequest{Router: testRouter}))

		var resp structs.RouterInfoResponse
		assert.NoError(ws.ReadJSON(&resp))

		assert.Equal(structs.RouterInfoResponse{
			Router: testRouter,
			Muxs:   "muxs-::0",
			URI:    fmt.Sprintf("ws://%s/router-0102:0304:0506:0708", ts.backend.MuxAddr()),
		}, resp)
	}
}

func (ts *BackendTestSuite) TestUnknownRouterPath() {
	assert := require.New(ts.T())

	ws, _, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/gateway/0102030405060708", ts.backend.MuxAddr()), nil)
	assert.NoError(err)
	defer ws.Close()

	assert.NoError(ws.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(websocket.IsCloseError(err, CloseCodeUnknownRouter), "unexpected error: %v", err)
}

func (ts *BackendTestSuite) TestAlreadyConnected() {
	assert := require.New(ts.T())

	ws, _, err := websocket.DefaultDialer.Dial(ts.muxURL(), nil)
	assert.NoError(err)
	defer ws.Close()

	assert.NoError(ws.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = ws.ReadMessage()
	assert.True(websocket.IsCloseError(err, websocket.ClosePolicyViolation), "unexpected error: %v", err)
}

func (ts *BackendTestSuite) TestVersion() {
	assert := require.New(ts.T())

	rc := ts.handshake("rmtsh")
	assert.Equal("EU868", rc.Region)
	assert.Equal("sx1301/1", rc.HWSpec)
	assert.Empty(rc.ProtocolFormat)
	assert.NotZero(rc.MuxTime)
	assert.Len(rc.UpChannels, 6)

	assert.Eventually(func() bool {
		state, err := ts.backend.GatewaySessionState(lorawan.EUI64(testRouter))
		return err == nil && state == Configured
	}, time.Second, 10*time.Millisecond)

	_, err := ts.backend.GatewaySessionState(lorawan.EUI64{8, 7, 6, 5, 4, 3, 2, 1})
	assert.Equal(errGatewayDoesNotExist, err)
}

func (ts *BackendTestSuite) TestMessageBeforeVersion() {
	assert := require.New(ts.T())

	ts.send(structs.TextualEncoding, structs.TimeSyncRequest{TxTime: 1.5})

	// the timesync is dropped, the first reply is the router_config
	rc := ts.handshake("")
	assert.Equal("EU868", rc.Region)
}

func (ts *BackendTestSuite) TestBinaryNotSupportedByStation() {
	ts.restart(func(c *config.BasicStation) {
		c.BinaryProtocol = true
	})
	assert := require.New(ts.T())

	rc := ts.handshake("rmtsh")
	assert.Empty(rc.ProtocolFormat)

	// binary frames are dropped when binary was not negotiated
	ts.send(structs.BinaryEncoding, structs.TimeSyncRequest{TxTime: 1.5})
	ts.send(structs.TextualEncoding, structs.TimeSyncRequest{TxTime: 2.5})

	enc, msg := ts.receive()
	assert.Equal(structs.TextualEncoding, enc)
	resp, ok := msg.(structs.TimeSyncResponse)
	assert.True(ok)
	assert.Equal(2.5, resp.TxTime)
}

func (ts *BackendTestSuite) TestBinaryNegotiated() {
	ts.restart(func(c *config.BasicStation) {
		c.BinaryProtocol = true
	})
	assert := require.New(ts.T())

	rc := ts.handshake("rmtsh protobuf")
	assert.Equal(structs.ProtocolFormatProtobuf, rc.ProtocolFormat)

	ts.send(structs.BinaryEncoding, structs.TimeSyncRequest{TxTime: 1.5})

	enc, msg := ts.receive()
	assert.Equal(structs.BinaryEncoding, enc)
	resp, ok := msg.(structs.TimeSyncResponse)
	assert.True(ok)
	assert.Equal(1.5, resp.TxTime)
	assert.NotZero(resp.GPSTime)
}

func (ts *BackendTestSuite) TestTimeSync() {
	assert := require.New(ts.T())
	ts.handshake("")

	before := gpstime.Now()
	ts.send(structs.TextualEncoding, structs.TimeSyncRequest{TxTime: 12.5})

	_, msg := ts.receive()
	resp, ok := msg.(structs.TimeSyncResponse)
	assert.True(ok)
	assert.Equal(12.5, resp.TxTime)
	assert.GreaterOrEqual(resp.GPSTime, before)
	assert.LessOrEqual(resp.GPSTime, gpstime.Now())
}

func (ts *BackendTestSuite) TestUplinkDataFrame() {
	assert := require.New(ts.T())
	ts.handshake("")

	updf := structs.UplinkDataFrame{
		RadioMetaData: structs.RadioMetaData{
			DR:        5,
			Frequency: 868100000,
			UpInfo: structs.RadioMetaDataUpInfo{
				RCtx:  1,
				XTime: 2,
				RSSI:  -120,
				SNR:   5.5,
			},
		},
		MHDR:       0x40,
		DevAddr:    0x01020304,
		FCtrl:      0x80,
		FCnt:       10,
		FPort:      1,
		FRMPayload: structs.HEXBytes{0x01, 0x02},
		MIC:        0x0a0b0c0d,
	}
	ts.send(structs.TextualEncoding, updf)

	select {
	case pl := <-ts.uplinkFrames:
		assert.Equal(updf.PHYPayload(), pl.PhyPayload)
		assert.Equal("0102030405060708", pl.RxInfo.GatewayId)
		assert.EqualValues(-120, pl.RxInfo.Rssi)
		assert.EqualValues(5.5, pl.RxInfo.Snr)
		assert.EqualValues(868100000, pl.TxInfo.Frequency)
		assert.EqualValues(7, pl.TxInfo.GetModulation().GetLora().SpreadingFactor)
	case <-time.After(time.Second):
		ts.T().Fatal("timeout waiting for uplink")
	}
}

func (ts *BackendTestSuite) TestPDUOnlyJoinRequest() {
	ts.restart(func(c *config.BasicStation) {
		c.PDUOnly = true
	})
	assert := require.New(ts.T())

	rc := ts.handshake("")
	assert.True(rc.PDUOnly)

	pdu := structs.JoinRequest{
		JoinEUI:  structs.EUI64{1, 1, 1, 1, 1, 1, 1, 1},
		DevEUI:   structs.EUI64{2, 2, 2, 2, 2, 2, 2, 2},
		DevNonce: 258,
		MIC:      -1,
	}.PHYPayload()

	ts.send(structs.TextualEncoding, structs.UplinkDataFrame{
		RadioMetaData: structs.RadioMetaData{DR: 0, Frequency: 868300000},
		PDU:           pdu,
	})

	select {
	case pl := <-ts.uplinkFrames:
		assert.Equal(pdu, pl.PhyPayload)
	case <-time.After(time.Second):
		ts.T().Fatal("timeout waiting for uplink")
	}
}

func (ts *BackendTestSuite) TestAutoDownlink() {
	ts.restart(func(c *config.BasicStation) {
		c.AutoDownlink = true
	})
	assert := require.New(ts.T())
	ts.handshake("")

	// join-requests are not answered, the first dnmsg belongs to the updf
	ts.send(structs.TextualEncoding, structs.JoinRequest{
		RadioMetaData: structs.RadioMetaData{
			DR:        5,
			Frequency: 868100000,
			UpInfo: structs.RadioMetaDataUpInfo{
				RCtx:  7,
				XTime: 654321,
			},
		},
		MHDR:    0x00,
		JoinEUI: structs.EUI64{1, 1, 1, 1, 1, 1, 1, 1},
		DevEUI:  structs.EUI64{2, 2, 2, 2, 2, 2, 2, 2},
	})

	ts.send(structs.TextualEncoding, structs.UplinkDataFrame{
		RadioMetaData: structs.RadioMetaData{
			DR:        5,
			Frequency: 868100000,
			UpInfo: structs.RadioMetaDataUpInfo{
				RCtx:  3,
				XTime: 123456,
			},
		},
		MHDR:       0x40,
		DevAddr:    0x01020304,
		FCnt:       1,
		FPort:      1,
		FRMPayload: structs.HEXBytes{0x01},
	})

	_, msg := ts.receive()
	dn, ok := msg.(structs.DownlinkFrame)
	assert.True(ok, "expected dnmsg, got %T", msg)

	assert.Equal(structs.EUI64{}, dn.DevEUI)
	assert.Equal(structs.ClassA, dn.DC)
	assert.Equal(structs.HEXBytes(testDownlinkPDU), dn.PDU)
	assert.Equal(1, *dn.RxDelay)
	assert.Equal(5, *dn.RX1DR)
	assert.EqualValues(868100000, *dn.RX1Freq)
	assert.Equal(0, *dn.RX2DR)
	assert.EqualValues(869525000, *dn.RX2Freq)
	assert.EqualValues(123456, *dn.XTime)
	assert.EqualValues(3, *dn.RCtx)
	assert.True(dn.DIID < maxDIID)

	ts.send(structs.TextualEncoding, structs.DownlinkTransmitted{
		DIID:   dn.DIID,
		RCtx:   3,
		XTime:  1123456,
	})

	select {
	case ack := <-ts.txAcks:
		assert.Equal("0102030405060708", ack.GatewayId)
		assert.Equal(uint32(dn.DIID), ack.DownlinkId)
		assert.Equal(gw.TxAckStatus_OK, ack.Items[0].Status)
	case <-time.After(time.Second):
		ts.T().Fatal("timeout waiting for tx ack")
	}

	_, found := ts.backend.diidCache.Get(diidKey(dn.DIID))
	assert.False(found)
}

func (ts *BackendTestSuite) TestTimeTransfer() {
	ts.restart(func(c *config.BasicStation) {
		c.TimesyncPush = true
	})
	assert := require.New(ts.T())
	ts.handshake("")

	ts.send(structs.TextualEncoding, structs.UplinkProprietaryFrame{
		RadioMetaData: structs.RadioMetaData{
			DR:        0,
			Frequency: 868100000,
			UpInfo: structs.RadioMetaDataUpInfo{
				XTime: 1000000,
			},
		},
		FRMPayload: structs.HEXBytes{0xe0, 0x01},
	})

	_, msg := ts.receive()
	tt, ok := msg.(structs.TimeSyncGPSTimeTransfer)
	assert.True(ok, "expected timesync transfer, got %T", msg)
	assert.GreaterOrEqual(tt.XTime, int64(1000000))
	assert.Less(tt.XTime, int64(1000000+time.Second/time.Microsecond))
	assert.NotZero(tt.GPSTime)
}

func (ts *BackendTestSuite) TestFeatureToggle() {
	ts.restart(func(c *config.BasicStation) {
		c.FeatureToggle.Feature = FeatureLBT
		c.FeatureToggle.Interval = 50 * time.Millisecond
	})
	assert := require.New(ts.T())

	rc := ts.handshake("")
	assert.Nil(rc.LBTEnabled)

	for _, expected := range []bool{true, false} {
		_, msg := ts.receive()
		rc, ok := msg.(structs.RouterConfig)
		assert.True(ok)
		assert.NotNil(rc.LBTEnabled)
		assert.Equal(expected, *rc.LBTEnabled)
	}
}

func (ts *BackendTestSuite) TestTokenAuth() {
	ts.restart(func(c *config.BasicStation) {
		c.Auth.TokenSecret = "secret"
	})
	assert := require.New(ts.T())

	ts.handshake("")

	_, resp, err := websocket.DefaultDialer.Dial(fmt.Sprintf("ws://%s/router-info", ts.backend.InfoAddr()), nil)
	assert.Error(err)
	assert.Equal(http.StatusUnauthorized, resp.StatusCode)
}

func TestBackend(t *testing.T) {
	suite.Run(t, new(BackendTestSuite))
}

func TestParseRouterPath(t *testing.T) {
	tests := []struct {
		Path   string
		Router structs.EUI64
		OK     bool
	}{
		{"/router", structs.EUI64{}, true},
		{"/router-102:304:506:708", testRouter, true},
		{"/router-0102030405060708", testRouter, true},
		{"/router-01-02-03-04-05-06-07-08/", testRouter, true},
		{"/router-info", structs.EUI64{}, false},
		{"/gateway/0102030405060708", structs.EUI64{}, false},
	}

	for _, tst := range tests {
		t.Run(tst.Path, func(t *testing.T) {
			assert := require.New(t)
			router, ok := parseRouterPath(tst.Path)
			assert.Equal(tst.OK, ok)
			if ok {
				assert.Equal(tst.Router, router)
			}
		})
	}
}
