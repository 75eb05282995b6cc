package structs

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Codec errors.
var (
	ErrMalformedMessage   = errors.New("malformed message")
	ErrUnrecognizedKind   = errors.New("unrecognized message kind")
	ErrBinaryNotSupported = errors.New("message has no binary encoding")
)

// Encoding defines the wire encoding of a session.
type Encoding int

// Encodings.
const (
	TextualEncoding Encoding = iota
	BinaryEncoding
)

func (e Encoding) String() string {
	if e == BinaryEncoding {
		return "binary"
	}
	return "textual"
}

// Encode encodes the message using the given encoding.
func Encode(enc Encoding, m Message) ([]byte, error) {
	if enc == BinaryEncoding {
		return EncodeBinary(m)
	}
	return EncodeTextual(m)
}

// Decode decodes the message using the given encoding.
func Decode(enc Encoding, b []byte) (Message, error) {
	if enc == BinaryEncoding {
		return DecodeBinary(b)
	}
	return DecodeTextual(b)
}

// EncodeTextual encodes the message as JSON. The msgtype field is always set
// according to the message kind.
func EncodeTextual(m Message) ([]byte, error) {
	var v interface{}

	switch msg := m.(type) {
	case Version:
		msg.MessageType = VersionMessage
		v = msg
	case RouterConfig:
		msg.MessageType = RouterConfigMessage
		v = msg
	case UplinkDataFrame:
		msg.MessageType = UplinkDataFrameMessage
		v = msg
	case JoinRequest:
		msg.MessageType = JoinRequestMessage
		v = msg
	case UplinkProprietaryFrame:
		msg.MessageType = ProprietaryDataFrameMessage
		v = msg
	case DownlinkTransmitted:
		msg.MessageType = DownlinkTransmittedMessage
		v = msg
	case TimeSyncRequest:
		msg.MessageType = TimeSyncMessage
		v = msg
	case TimeSyncResponse:
		msg.MessageType = TimeSyncMessage
		v = msg
	case TimeSyncGPSTimeTransfer:
		msg.MessageType = TimeSyncMessage
		v = msg
	case DownlinkFrame:
		msg.MessageType = DownlinkMessage
		v = msg
	default:
		return nil, errors.Wrapf(ErrUnrecognizedKind, "%T", m)
	}

	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal json error")
	}
	return b, nil
}

// timeSyncPayload is used to tell the timesync variants apart by the fields
// that are present.
type timeSyncPayload struct {
	TxTime  *float64 `json:"txtime"`
	XTime   *int64   `json:"xtime"`
	GPSTime *int64   `json:"gpstime"`
	MuxTime float64  `json:"MuxTime"`
}

// DecodeTextual decodes a JSON message.
func DecodeTextual(b []byte) (Message, error) {
	mt, err := GetMessageType(b)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}

	var out Message

	switch mt {
	case VersionMessage:
		var v Version
		err = json.Unmarshal(b, &v)
		out = v
	case RouterConfigMessage:
		var v RouterConfig
		err = json.Unmarshal(b, &v)
		out = v
	case UplinkDataFrameMessage:
		var v UplinkDataFrame
		err = json.Unmarshal(b, &v)
		out = v
	case JoinRequestMessage:
		var v JoinRequest
		err = json.Unmarshal(b, &v)
		out = v
	case ProprietaryDataFrameMessage:
		var v UplinkProprietaryFrame
		err = json.Unmarshal(b, &v)
		out = v
	case DownlinkTransmittedMessage:
		var v DownlinkTransmitted
		err = json.Unmarshal(b, &v)
		out = v
	case DownlinkMessage:
		var v DownlinkFrame
		err = json.Unmarshal(b, &v)
		out = v
	case TimeSyncMessage:
		var v timeSyncPayload
		if err = json.Unmarshal(b, &v); err != nil {
			break
		}
		out = timeSyncFromPayload(v)
	default:
		return nil, errors.Wrapf(ErrUnrecognizedKind, "msgtype: %s", mt)
	}

	if err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}

	return out, nil
}

func timeSyncFromPayload(v timeSyncPayload) Message {
	switch {
	case v.XTime != nil && v.GPSTime != nil:
		return TimeSyncGPSTimeTransfer{
			MessageType: TimeSyncMessage,
			XTime:       *v.XTime,
			GPSTime:     *v.GPSTime,
			MuxTime:     v.MuxTime,
		}
	case v.GPSTime != nil:
		out := TimeSyncResponse{
			MessageType: TimeSyncMessage,
			GPSTime:     *v.GPSTime,
			MuxTime:     v.MuxTime,
		}
		if v.TxTime != nil {
			out.TxTime = *v.TxTime
		}
		return out
	default:
		out := TimeSyncRequest{
			MessageType: TimeSyncMessage,
		}
		if v.TxTime != nil {
			out.TxTime = *v.TxTime
		}
		return out
	}
}
