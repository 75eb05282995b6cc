package basicstation

import (
	"strconv"
	"time"

	"github.com/chirpstack/chirpstack/api/go/v4/gw"
	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
	"github.com/brocaar/basicstation-testserver/internal/gpstime"
	"github.com/brocaar/basicstation-testserver/internal/regions"
)

// testDownlinkPDU is an unconfirmed data-down to DevAddr 00000000 on FPort 1
// with payload "test" and a zero MIC.
var testDownlinkPDU = []byte{
	0x60,
	0x00, 0x00, 0x00, 0x00,
	0x00,
	0x00, 0x00,
	0x01,
	0x74, 0x65, 0x73, 0x74,
	0x00, 0x00, 0x00, 0x00,
}

const maxDIID = 0x7FFFFFFF

// pendingDownlink is stored per diid until the dntxed is received.
type pendingDownlink struct {
	GatewayID lorawan.EUI64
	SentAt    time.Time
}

// newTestDownlink returns the class A downlink answering an uplink received
// with the given radio meta-data.
func newTestDownlink(p regions.Profile, devEUI structs.EUI64, rmd structs.RadioMetaData, now time.Time) structs.DownlinkFrame {
	params := p.DownlinkParams(rmd.DR, rmd.Frequency)
	rxDelay := 1
	xtime := rmd.UpInfo.XTime
	rctx := rmd.UpInfo.RCtx

	return structs.DownlinkFrame{
		MessageType: structs.DownlinkMessage,
		DevEUI:      devEUI,
		DC:          structs.ClassA,
		DIID:        now.UnixMilli() % maxDIID,
		PDU:         append(structs.HEXBytes(nil), testDownlinkPDU...),
		Priority:    0,
		RxDelay:     &rxDelay,
		RX1DR:       &params.RX1DR,
		RX1Freq:     &params.RX1Freq,
		RX2DR:       &params.RX2DR,
		RX2Freq:     &params.RX2Freq,
		XTime:       &xtime,
		RCtx:        &rctx,
		MuxTime:     gpstime.MuxTime(now),
	}
}

func diidKey(diid int64) string {
	return strconv.FormatInt(diid, 10)
}

// handleUplink handles the updf, jreq and propdf messages. Uplinks received
// in pdu-only mode are classified first. Only updf is answered with the test
// downlink.
func (s *session) handleUplink(msg structs.Message) {
	receivedAt := time.Now()

	if updf, ok := msg.(structs.UplinkDataFrame); ok && len(updf.PDU) != 0 {
		msg = structs.ClassifyFrame(updf.PDU, updf.RadioMetaData)
	}

	var (
		rmd          structs.RadioMetaData
		autoDownlink bool
		uplinkFrame  *gw.UplinkFrame
		err          error
	)

	b := s.backend

	switch v := msg.(type) {
	case structs.UplinkDataFrame:
		rmd = v.RadioMetaData
		autoDownlink = true
		uplinkFrame, err = structs.UplinkDataFrameToProto(b.band, s.gatewayID, v)
	case structs.JoinRequest:
		rmd = v.RadioMetaData
		uplinkFrame, err = structs.JoinRequestToProto(b.band, s.gatewayID, v)
	case structs.UplinkProprietaryFrame:
		rmd = v.RadioMetaData
		uplinkFrame, err = structs.UplinkProprietaryFrameToProto(b.band, s.gatewayID, v)
	default:
		return
	}

	s.updateAnchor(rmd, receivedAt)

	uplinkID := uuid.New()
	logger := log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"uplink_id":  uplinkID,
		"kind":       msg.Kind(),
		"dr":         rmd.DR,
		"freq":       rmd.Frequency,
		"xtime":      rmd.UpInfo.XTime,
	})

	if err != nil {
		logger.WithError(err).Error("backend/basicstation: error converting uplink to protobuf message")
	} else {
		uplinkFrame.RxInfo.UplinkId = uplinkID.ID()
		logger.Info("backend/basicstation: uplink frame received")
		b.publishUplinkFrame(uplinkFrame)
	}

	if b.timesyncPush {
		s.sendTimeTransfer()
	}

	if b.autoDownlink && autoDownlink {
		s.sendTestDownlink(rmd)
	}
}

// sendTestDownlink answers a data uplink. Data frames carry no DevEUI, the
// downlink is addressed by the echoed rctx and xtime.
func (s *session) sendTestDownlink(rmd structs.RadioMetaData) {
	s.Lock()
	profile := s.opts.Profile
	s.Unlock()

	now := time.Now()
	dn := newTestDownlink(profile, structs.EUI64{}, rmd, now)

	s.backend.diidCache.SetDefault(diidKey(dn.DIID), pendingDownlink{
		GatewayID: s.gatewayID,
		SentAt:    now,
	})

	if err := s.send(dn); err != nil {
		log.WithError(err).WithField("gateway_id", s.gatewayID).Error("backend/basicstation: send downlink error")
		s.backend.diidCache.Delete(diidKey(dn.DIID))
		return
	}

	log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"diid":       dn.DIID,
		"rx1_dr":     *dn.RX1DR,
		"rx1_freq":   *dn.RX1Freq,
	}).Info("backend/basicstation: downlink-frame message sent to gateway")
}

func (s *session) handleDownlinkTransmitted(dt structs.DownlinkTransmitted) {
	logger := log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"diid":       dt.DIID,
		"xtime":      dt.XTime,
	})

	if v, ok := s.backend.diidCache.Get(diidKey(dt.DIID)); ok {
		s.backend.diidCache.Delete(diidKey(dt.DIID))
		pending := v.(pendingDownlink)
		logger = logger.WithField("latency", time.Since(pending.SentAt))
	} else {
		logger.Warning("backend/basicstation: dntxed received for unknown diid")
	}

	logger.Info("backend/basicstation: downlink transmitted message received")
	s.backend.publishDownlinkTxAck(structs.DownlinkTransmittedToProto(s.gatewayID, dt))
}

func newDIIDCache(ttl time.Duration) *cache.Cache {
	return cache.New(ttl, 2*ttl)
}
