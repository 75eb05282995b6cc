package structs

// Device classes.
const (
	ClassA = 0
	ClassB = 1
	ClassC = 2
)

// DownlinkFrame implements the downlink message. Optional fields are only
// present when set.
type DownlinkFrame struct {
	MessageType MessageType `json:"msgtype"`

	DevEUI   EUI64    `json:"DevEui"`
	DC       int      `json:"dC"`
	DIID     int64    `json:"diid"`
	PDU      HEXBytes `json:"pdu"`
	Priority int      `json:"priority"`
	RxDelay  *int     `json:"RxDelay,omitempty"`
	RX1DR    *int     `json:"RX1DR,omitempty"`
	RX1Freq  *uint32  `json:"RX1Freq,omitempty"`
	RX2DR    *int     `json:"RX2DR,omitempty"`
	RX2Freq  *uint32  `json:"RX2Freq,omitempty"`
	DR       *int     `json:"DR,omitempty"`
	Freq     *uint32  `json:"Freq,omitempty"`
	GPSTime  *int64   `json:"gpstime,omitempty"`
	XTime    *int64   `json:"xtime,omitempty"`
	RCtx     *int64   `json:"rctx,omitempty"`
	MuxTime  float64  `json:"MuxTime,omitempty"`
}

// Kind implements Message.
func (DownlinkFrame) Kind() Kind { return DownlinkMessageKind }
