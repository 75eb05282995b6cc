package structs

import (
	"encoding/binary"

	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/chirpstack/chirpstack/api/go/v4/gw"
)

// JoinRequest implements the join-request message.
type JoinRequest struct {
	RadioMetaData

	MessageType MessageType `json:"msgtype"`
	MHDR        uint8       `json:"MHdr"`
	JoinEUI     EUI64       `json:"JoinEui"`
	DevEUI      EUI64       `json:"DevEui"`
	DevNonce    uint16      `json:"DevNonce"`
	MIC         int32       `json:"MIC"`
	RefTime     float64     `json:"RefTime"`
}

// Kind implements Message.
func (JoinRequest) Kind() Kind { return JoinRequestKind }

// PHYPayload returns the join-request PHYPayload bytes.
func (jr JoinRequest) PHYPayload() []byte {
	b := make([]byte, 0, 23)

	// MHDR
	b = append(b, jr.MHDR)

	// JoinEUI and DevEUI (little endian)
	b = binary.LittleEndian.AppendUint64(b, jr.JoinEUI.Uint64())
	b = binary.LittleEndian.AppendUint64(b, jr.DevEUI.Uint64())

	// DevNonce
	b = binary.LittleEndian.AppendUint16(b, jr.DevNonce)

	// MIC
	b = binary.LittleEndian.AppendUint32(b, uint32(jr.MIC))

	return b
}

// JoinRequestToProto converts the JoinRequest to the protobuf struct.
func JoinRequestToProto(loraBand band.Band, gatewayID lorawan.EUI64, jr JoinRequest) (*gw.UplinkFrame, error) {
	var pb gw.UplinkFrame
	if err := SetRadioMetaDataToProto(loraBand, gatewayID, jr.RadioMetaData, &pb); err != nil {
		return nil, errors.Wrap(err, "set radio meta-data error")
	}
	pb.PhyPayload = jr.PHYPayload()

	return &pb, nil
}
