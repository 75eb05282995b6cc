package basicstation

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
	"github.com/brocaar/basicstation-testserver/internal/gpstime"
)

// handleTimeSyncRequest replies to a station-initiated timesync. The reply
// echoes the txtime of the request and never carries an xtime.
func (s *session) handleTimeSyncRequest(req structs.TimeSyncRequest) {
	now := time.Now()
	resp := structs.TimeSyncResponse{
		MessageType: structs.TimeSyncMessage,
		TxTime:      req.TxTime,
		GPSTime:     gpstime.FromTime(now),
		MuxTime:     gpstime.MuxTime(now),
	}

	if err := s.send(resp); err != nil {
		log.WithError(err).WithField("gateway_id", s.gatewayID).Error("backend/basicstation: send timesync response error")
		return
	}

	log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"txtime":     req.TxTime,
		"gpstime":    resp.GPSTime,
	}).Debug("backend/basicstation: timesync response sent to gateway")
}

// updateAnchor stores the xtime / gpstime pair of an uplink. The receive
// wall-clock time is used as reference for the xtime.
func (s *session) updateAnchor(rmd structs.RadioMetaData, at time.Time) {
	if rmd.UpInfo.XTime == 0 {
		return
	}

	s.Lock()
	s.anchor = gpstime.Anchor{
		XTime:   rmd.UpInfo.XTime,
		GPSTime: rmd.UpInfo.GPSTime,
		At:      at,
	}
	s.Unlock()
}

// timesyncSlack is the divisor of the interval subtracted from the transfer
// throttle.
const timesyncSlack = 10

// newTimeTransfer returns the server-initiated time transfer for the given
// time, or false when no transfer is due. A transfer is due once an anchor
// is known and the previous transfer was about one interval ago. A late
// ticker run must not skip the next one, so the throttle is a tenth of the
// interval shorter.
func (s *session) newTimeTransfer(now time.Time) (structs.TimeSyncGPSTimeTransfer, bool) {
	s.Lock()
	defer s.Unlock()

	if !s.anchor.Valid() {
		return structs.TimeSyncGPSTimeTransfer{}, false
	}

	minGap := s.backend.timesyncInterval - s.backend.timesyncInterval/timesyncSlack
	if !s.lastTimesync.IsZero() && now.Sub(s.lastTimesync) < minGap {
		return structs.TimeSyncGPSTimeTransfer{}, false
	}
	s.lastTimesync = now

	return structs.TimeSyncGPSTimeTransfer{
		MessageType: structs.TimeSyncMessage,
		XTime:       s.anchor.Extrapolate(now),
		GPSTime:     gpstime.FromTime(now),
		MuxTime:     gpstime.MuxTime(now),
	}, true
}

func (s *session) sendTimeTransfer() {
	if state := s.State(); state != Configured && state != Active {
		return
	}

	tt, ok := s.newTimeTransfer(time.Now())
	if !ok {
		return
	}

	if err := s.send(tt); err != nil {
		log.WithError(err).WithField("gateway_id", s.gatewayID).Error("backend/basicstation: send timesync transfer error")
		return
	}

	log.WithFields(log.Fields{
		"gateway_id": s.gatewayID,
		"xtime":      tt.XTime,
		"gpstime":    tt.GPSTime,
	}).Debug("backend/basicstation: timesync transfer sent to gateway")
}

func (s *session) timeTransferLoop() {
	ticker := time.NewTicker(s.backend.timesyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sendTimeTransfer()
		}
	}
}
