package structs

import (
	"encoding/binary"
)

const (
	mhdrFTypeMask         = 0xe0
	mhdrJoinRequest       = 0x00
	mhdrUnconfirmedDataUp = 0x40
	mhdrConfirmedDataUp   = 0x80

	joinRequestLen = 23
	minDataUpLen   = 12
)

// ClassifyFrame parses the raw PHYPayload (as received in pdu-only mode)
// into the message it would have been reported as by the station.
// Data-up frames become an UplinkDataFrame, join-requests a JoinRequest.
// Everything else, including frames which are too short, is reported as
// UplinkProprietaryFrame carrying the complete PHYPayload.
func ClassifyFrame(pdu []byte, rmd RadioMetaData) Message {
	if len(pdu) == 0 {
		return proprietaryFrame(pdu, rmd)
	}

	mhdr := pdu[0]

	switch mhdr & mhdrFTypeMask {
	case mhdrJoinRequest:
		if len(pdu) < joinRequestLen {
			return proprietaryFrame(pdu, rmd)
		}
		return JoinRequest{
			RadioMetaData: rmd,
			MessageType:   JoinRequestMessage,
			MHDR:          mhdr,
			JoinEUI:       EUI64FromUint64(binary.LittleEndian.Uint64(pdu[1:9])),
			DevEUI:        EUI64FromUint64(binary.LittleEndian.Uint64(pdu[9:17])),
			DevNonce:      binary.LittleEndian.Uint16(pdu[17:19]),
			MIC:           int32(binary.LittleEndian.Uint32(pdu[19:23])),
		}
	case mhdrUnconfirmedDataUp, mhdrConfirmedDataUp:
		if len(pdu) < minDataUpLen {
			return proprietaryFrame(pdu, rmd)
		}
		return dataUpFrame(pdu, rmd)
	default:
		// proprietary, join-accept and downlink frames
		return proprietaryFrame(pdu, rmd)
	}
}

func dataUpFrame(pdu []byte, rmd RadioMetaData) Message {
	fctrl := pdu[5]
	foptsLen := int(fctrl & 0x0f)
	end := len(pdu) - 4

	if 8+foptsLen > end {
		return proprietaryFrame(pdu, rmd)
	}

	out := UplinkDataFrame{
		RadioMetaData: rmd,
		MessageType:   UplinkDataFrameMessage,
		MHDR:          pdu[0],
		DevAddr:       int32(binary.LittleEndian.Uint32(pdu[1:5])),
		FCtrl:         fctrl,
		FCnt:          binary.LittleEndian.Uint16(pdu[6:8]),
		FOpts:         copyBytes(pdu[8 : 8+foptsLen]),
		FPort:         -1,
		MIC:           int32(binary.LittleEndian.Uint32(pdu[end:])),
	}

	if i := 8 + foptsLen; i < end {
		out.FPort = int(pdu[i])
		out.FRMPayload = copyBytes(pdu[i+1 : end])
	}

	return out
}

func proprietaryFrame(pdu []byte, rmd RadioMetaData) Message {
	return UplinkProprietaryFrame{
		RadioMetaData: rmd,
		MessageType:   ProprietaryDataFrameMessage,
		FRMPayload:    copyBytes(pdu),
	}
}
