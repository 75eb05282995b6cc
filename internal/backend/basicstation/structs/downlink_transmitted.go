package structs

import (
	"github.com/brocaar/lorawan"
	"github.com/chirpstack/chirpstack/api/go/v4/gw"
)

// DownlinkTransmitted implements the downlink transmitted message.
type DownlinkTransmitted struct {
	MessageType MessageType `json:"msgtype"`

	DIID    int64   `json:"diid"`
	DevEUI  EUI64   `json:"DevEui"`
	RCtx    int64   `json:"rctx"`
	XTime   int64   `json:"xtime"`
	TxTime  float64 `json:"txtime"`
	GPSTime int64   `json:"gpstime"`
}

// Kind implements Message.
func (DownlinkTransmitted) Kind() Kind { return DownlinkTransmittedKind }

// DownlinkTransmittedToProto converts the DownlinkTransmitted to the protobuf struct.
func DownlinkTransmittedToProto(gatewayID lorawan.EUI64, dt DownlinkTransmitted) *gw.DownlinkTxAck {
	return &gw.DownlinkTxAck{
		GatewayId:  gatewayID.String(),
		DownlinkId: uint32(dt.DIID),
		Items: []*gw.DownlinkTxAckItem{
			{
				Status: gw.TxAckStatus_OK,
			},
		},
	}
}
