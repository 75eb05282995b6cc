package structs

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// MessageType defines the message type.
type MessageType string

// Message types.
const (
	VersionMessage              MessageType = "version"
	RouterConfigMessage         MessageType = "router_config"
	JoinRequestMessage          MessageType = "jreq"
	UplinkDataFrameMessage      MessageType = "updf"
	ProprietaryDataFrameMessage MessageType = "propdf"
	DownlinkMessage             MessageType = "dnmsg"
	DownlinkTransmittedMessage  MessageType = "dntxed"
	TimeSyncMessage             MessageType = "timesync"
)

// Kind identifies a message variant. Several kinds can share the same
// MessageType (e.g. the timesync request, response and GPS time transfer).
type Kind int

// Message kinds.
const (
	UnknownKind Kind = iota
	VersionKind
	RouterConfigKind
	UplinkDataFrameKind
	JoinRequestKind
	ProprietaryDataFrameKind
	DownlinkTransmittedKind
	TimeSyncRequestKind
	TimeSyncResponseKind
	TimeSyncGPSTimeTransferKind
	DownlinkMessageKind
)

var kindNames = map[Kind]string{
	VersionKind:                 "version",
	RouterConfigKind:            "router_config",
	UplinkDataFrameKind:         "updf",
	JoinRequestKind:             "jreq",
	ProprietaryDataFrameKind:    "propdf",
	DownlinkTransmittedKind:     "dntxed",
	TimeSyncRequestKind:         "timesync_request",
	TimeSyncResponseKind:        "timesync_response",
	TimeSyncGPSTimeTransferKind: "timesync_transfer",
	DownlinkMessageKind:         "dnmsg",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown"
}

// Message is implemented by all protocol messages.
type Message interface {
	Kind() Kind
}

type messageTypePayload struct {
	MessageType MessageType `json:"msgtype"`
}

// GetMessageType returns the message type for the given paylaod.
func GetMessageType(b []byte) (MessageType, error) {
	var pl messageTypePayload
	if err := json.Unmarshal(b, &pl); err != nil {
		return "", errors.Wrap(err, "unmarshal message-type error")
	}

	return pl.MessageType, nil
}
