package structs

import (
	"github.com/pkg/errors"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
	"github.com/chirpstack/chirpstack/api/go/v4/gw"
)

// UplinkProprietaryFrame implements the uplink proprietary frame.
// FRMPayload holds the complete PHYPayload.
type UplinkProprietaryFrame struct {
	RadioMetaData

	MessageType MessageType `json:"msgtype"`
	FRMPayload  HEXBytes    `json:"FRMPayload"`
	RefTime     float64     `json:"RefTime"`
}

// Kind implements Message.
func (UplinkProprietaryFrame) Kind() Kind { return ProprietaryDataFrameKind }

// UplinkProprietaryFrameToProto converts the UplinkProprietaryFrame to the protobuf struct.
func UplinkProprietaryFrameToProto(loraBand band.Band, gatewayID lorawan.EUI64, uppf UplinkProprietaryFrame) (*gw.UplinkFrame, error) {
	var pb gw.UplinkFrame
	if err := SetRadioMetaDataToProto(loraBand, gatewayID, uppf.RadioMetaData, &pb); err != nil {
		return nil, errors.Wrap(err, "set radio meta-data error")
	}
	pb.PhyPayload = append([]byte(nil), uppf.FRMPayload...)

	return &pb, nil
}
