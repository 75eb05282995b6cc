package structs

// TimeSyncRequest implements the timesync request sent by the station.
type TimeSyncRequest struct {
	MessageType MessageType `json:"msgtype"`
	TxTime      float64     `json:"txtime"`
}

// Kind implements Message.
func (TimeSyncRequest) Kind() Kind { return TimeSyncRequestKind }

// TimeSyncResponse implements the response to a TimeSyncRequest. It echoes
// the txtime of the request.
type TimeSyncResponse struct {
	MessageType MessageType `json:"msgtype"`
	TxTime      float64     `json:"txtime"`
	GPSTime     int64       `json:"gpstime"`
	MuxTime     float64     `json:"MuxTime,omitempty"`
}

// Kind implements Message.
func (TimeSyncResponse) Kind() Kind { return TimeSyncResponseKind }

// TimeSyncGPSTimeTransfer implements the GPS time transfer
// that is initiated by the NS.
type TimeSyncGPSTimeTransfer struct {
	MessageType MessageType `json:"msgtype"`
	XTime       int64       `json:"xtime"`
	GPSTime     int64       `json:"gpstime"`
	MuxTime     float64     `json:"MuxTime,omitempty"`
}

// Kind implements Message.
func (TimeSyncGPSTimeTransfer) Kind() Kind { return TimeSyncGPSTimeTransferKind }
