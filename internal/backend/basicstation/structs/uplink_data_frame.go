package structs

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/chirpstack/chirpstack/api/go/v4/gw"
)

// UplinkDataFrame implements the uplink data-frame message.
//
// When the station operates in pdu-only mode, only PDU and the radio
// meta-data are set.
type UplinkDataFrame struct {
	RadioMetaData

	MessageType MessageType `json:"msgtype"`
	MHDR        uint8       `json:"MHdr"`
	DevAddr     int32       `json:"DevAddr"`
	FCtrl       uint8       `json:"FCtrl"`
	FCnt        uint16      `json:"FCnt"`
	FOpts       HEXBytes    `json:"FOpts"`
	FPort       int         `json:"FPort"`
	FRMPayload  HEXBytes    `json:"FRMPayload"`
	MIC         int32       `json:"MIC"`
	RefTime     float64     `json:"RefTime"`
	PDU         HEXBytes    `json:"pdu,omitempty"`
}

// Kind implements Message.
func (UplinkDataFrame) Kind() Kind { return UplinkDataFrameKind }

// PHYPayload returns the PHYPayload bytes. In pdu-only mode this is the
// PDU as received, else the frame is re-assembled from its fields.
func (updf UplinkDataFrame) PHYPayload() []byte {
	if len(updf.PDU) != 0 {
		return append([]byte(nil), updf.PDU...)
	}

	b := make([]byte, 0, 12+len(updf.FOpts)+len(updf.FRMPayload))

	// MHDR
	b = append(b, updf.MHDR)

	// DevAddr
	b = binary.LittleEndian.AppendUint32(b, uint32(updf.DevAddr))

	// FCtrl
	b = append(b, updf.FCtrl)

	// FCnt
	b = binary.LittleEndian.AppendUint16(b, updf.FCnt)

	// FOpts
	b = append(b, updf.FOpts...)

	// FPort
	if updf.FPort != -1 {
		b = append(b, uint8(updf.FPort))

		// FRMPayload
		b = append(b, updf.FRMPayload...)
	}

	// MIC
	b = binary.LittleEndian.AppendUint32(b, uint32(updf.MIC))

	return b
}

// UplinkDataFrameToProto converts the UplinkDataFrame to the protobuf struct.
func UplinkDataFrameToProto(loraBand band.Band, gatewayID lorawan.EUI64, updf UplinkDataFrame) (*gw.UplinkFrame, error) {
	var pb gw.UplinkFrame
	if err := SetRadioMetaDataToProto(loraBand, gatewayID, updf.RadioMetaData, &pb); err != nil {
		return nil, errors.Wrap(err, "set radio meta-data error")
	}
	pb.PhyPayload = updf.PHYPayload()

	return &pb, nil
}
