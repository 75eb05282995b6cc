package structs

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"time"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/brocaar/lorawan/gps"
	"github.com/chirpstack/chirpstack/api/go/v4/gw"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/durationpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// RadioMetaData contains the radio meta-data.
type RadioMetaData struct {
	DR        int                 `json:"DR"`
	Frequency uint32              `json:"Freq"`
	UpInfo    RadioMetaDataUpInfo `json:"upinfo"`
}

// RadioMetaDataUpInfo contains the radio meta-data uplink info.
//
// In the textual encoding the SNR is transmitted in tenths of a dB as an
// integer, e.g. 12.3 dB is encoded as 123.
type RadioMetaDataUpInfo struct {
	RCtx    int64   `json:"rctx"`
	XTime   int64   `json:"xtime"`
	GPSTime int64   `json:"gpstime"`
	RSSI    int     `json:"rssi"`
	SNR     float32 `json:"snr"`
	FTS     int     `json:"fts"`
	RxTime  float64 `json:"rxtime"`
}

type radioMetaDataUpInfo struct {
	RCtx    int64   `json:"rctx"`
	XTime   int64   `json:"xtime"`
	GPSTime int64   `json:"gpstime"`
	RSSI    int     `json:"rssi"`
	SNR     float64 `json:"snr"`
	FTS     int     `json:"fts"`
	RxTime  float64 `json:"rxtime"`
}

// MarshalJSON implements json.Marshaler.
func (u RadioMetaDataUpInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(radioMetaDataUpInfo{
		RCtx:    u.RCtx,
		XTime:   u.XTime,
		GPSTime: u.GPSTime,
		RSSI:    u.RSSI,
		SNR:     math.Round(float64(u.SNR) * 10),
		FTS:     u.FTS,
		RxTime:  u.RxTime,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (u *RadioMetaDataUpInfo) UnmarshalJSON(b []byte) error {
	var v radioMetaDataUpInfo
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	*u = RadioMetaDataUpInfo{
		RCtx:    v.RCtx,
		XTime:   v.XTime,
		GPSTime: v.GPSTime,
		RSSI:    v.RSSI,
		SNR:     float32(v.SNR) / 10,
		FTS:     v.FTS,
		RxTime:  v.RxTime,
	}
	return nil
}

// SetRadioMetaDataToProto sets the given parameters to the given protobuf struct.
func SetRadioMetaDataToProto(loraBand band.Band, gatewayID lorawan.EUI64, rmd RadioMetaData, pb *gw.UplinkFrame) error {
	//
	// TxInfo
	//
	dr, err := loraBand.GetDataRate(rmd.DR)
	if err != nil {
		return errors.Wrap(err, "get data-rate error")
	}

	pb.TxInfo = &gw.UplinkTxInfo{
		Frequency: rmd.Frequency,
	}

	switch dr.Modulation {
	case band.LoRaModulation:
		pb.TxInfo.Modulation = &gw.Modulation{
			Parameters: &gw.Modulation_Lora{
				Lora: &gw.LoraModulationInfo{
					Bandwidth:             uint32(dr.Bandwidth) * 1000,
					SpreadingFactor:       uint32(dr.SpreadFactor),
					CodeRate:              gw.CodeRate_CR_4_5,
					PolarizationInversion: false,
				},
			},
		}
	case band.FSKModulation:
		pb.TxInfo.Modulation = &gw.Modulation{
			Parameters: &gw.Modulation_Fsk{
				Fsk: &gw.FskModulationInfo{
					Datarate: uint32(dr.BitRate),
				},
			},
		}
	}

	//
	// RxInfo
	//
	pb.RxInfo = &gw.UplinkRxInfo{
		GatewayId: gatewayID.String(),
		Rssi:      int32(rmd.UpInfo.RSSI),
		Snr:       rmd.UpInfo.SNR,
		CrcStatus: gw.CRCStatus_CRC_OK,
	}

	if rxTime := rmd.UpInfo.RxTime; rxTime != 0 {
		sec, nsec := math.Modf(rxTime)
		if sec != 0 {
			val := time.Unix(int64(sec), int64(nsec*1e9))
			pb.RxInfo.GwTime = timestamppb.New(val)
		}
	}

	if gpsTime := rmd.UpInfo.GPSTime; gpsTime != 0 {
		gpsTimeDur := time.Duration(gpsTime) * time.Microsecond
		gpsTimeTime := time.Time(gps.NewTimeFromTimeSinceGPSEpoch(gpsTimeDur))

		pb.RxInfo.TimeSinceGpsEpoch = durationpb.New(gpsTimeDur)
		pb.RxInfo.GwTime = timestamppb.New(gpsTimeTime)
	}

	// the fine timestamp is the nanosecond offset within the GPS second
	if fts, gpsTime := rmd.UpInfo.FTS, rmd.UpInfo.GPSTime; fts > 0 && gpsTime != 0 {
		fine := time.Duration(gpsTime/1000000)*time.Second + time.Duration(fts)
		pb.RxInfo.FineTimeSinceGpsEpoch = durationpb.New(fine)
	}

	// Context
	pb.RxInfo.Context = make([]byte, 16)
	binary.BigEndian.PutUint64(pb.RxInfo.Context[0:8], uint64(rmd.UpInfo.RCtx))
	binary.BigEndian.PutUint64(pb.RxInfo.Context[8:16], uint64(rmd.UpInfo.XTime))

	return nil
}
