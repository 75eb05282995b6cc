package structs

import (
	"github.com/brocaar/basicstation-testserver/internal/regions"
)

// Single-radio modes.
const (
	SingleRadioGood = "good"
	SingleRadioBad  = "bad"
)

// ProtocolFormatProtobuf is the protocol_format value enabling the binary
// encoding.
const ProtocolFormatProtobuf = "protobuf"

// RouterConfig implements the router-config message.
type RouterConfig struct {
	MessageType MessageType        `json:"msgtype"`
	NetID       []uint32           `json:"NetID"`
	JoinEui     [][]uint64         `json:"JoinEui"`
	Region      string             `json:"region"`
	HWSpec      string             `json:"hwspec"`
	FreqRange   []uint32           `json:"freq_range"`
	DRs         []regions.DataRate `json:"DRs,omitempty"`
	DRsUp       []regions.DataRate `json:"DRs_up,omitempty"`
	DRsDn       []regions.DataRate `json:"DRs_dn,omitempty"`
	MaxEIRP     float64            `json:"max_eirp"`
	Protocol    int                `json:"protocol,omitempty"`

	SX1301Conf []regions.RadioConf `json:"sx1301_conf,omitempty"`
	SX1302Conf []regions.RadioConf `json:"sx1302_conf,omitempty"`
	RadioConf  []regions.RadioConf `json:"radio_conf,omitempty"`
	UpChannels []regions.UpChannel `json:"upchannels,omitempty"`

	MuxTime        float64 `json:"MuxTime"`
	PDUOnly        bool    `json:"pdu_only,omitempty"`
	PDUEncoding    string  `json:"pdu_encoding,omitempty"`
	ProtocolFormat string  `json:"protocol_format,omitempty"`

	DutyCycleEnabled       *bool          `json:"duty_cycle_enabled,omitempty"`
	DCMode                 string         `json:"dc_mode,omitempty"`
	DCWindowSecs           int            `json:"dc_window_secs,omitempty"`
	DCBandLimitsPermille   map[string]int `json:"dc_band_limits_permille,omitempty"`
	DCChannelLimitPermille int            `json:"dc_channel_limit_permille,omitempty"`

	LBTEnabled    *bool                `json:"lbt_enabled,omitempty"`
	LBTRSSITarget *int                 `json:"lbt_rssi_target,omitempty"`
	LBTScanTimeUS int                  `json:"lbt_scan_time_us,omitempty"`
	LBTChannels   []regions.LBTChannel `json:"lbt_channels,omitempty"`
}

// Kind implements Message.
func (RouterConfig) Kind() Kind { return RouterConfigKind }

// NewRouterConfig returns the router-config for the given template and its
// base region.
func NewRouterConfig(rc regions.RouterConfigTemplate, r regions.Region) RouterConfig {
	return RouterConfig{
		MessageType: RouterConfigMessage,
		Region:      r.Region,
		HWSpec:      rc.HWSpec,
		FreqRange:   r.FreqRange,
		DRs:         r.DRs,
		DRsUp:       r.DRsUp,
		DRsDn:       r.DRsDn,
		MaxEIRP:     r.MaxEIRP,
		Protocol:    r.Protocol,
		SX1301Conf:  rc.SX1301Conf,
		SX1302Conf:  rc.SX1302Conf,
		RadioConf:   rc.RadioConf,
		UpChannels:  rc.UpChannels,
	}
}

// concentrators returns the radio configuration list in use, in order of
// precedence sx1301_conf, sx1302_conf, radio_conf.
func (c *RouterConfig) concentrators() []regions.RadioConf {
	switch {
	case len(c.SX1301Conf) != 0:
		return c.SX1301Conf
	case len(c.SX1302Conf) != 0:
		return c.SX1302Conf
	default:
		return c.RadioConf
	}
}

// ApplySingleRadio restricts the configuration to a single radio. Both modes
// disable radio_1 of the first concentrator and truncate the upchannels to
// three entries. The "good" mode also disables the channels that are no
// longer backed by a radio. The "bad" mode leaves these channels enabled and
// pointing at the disabled radio.
func (c *RouterConfig) ApplySingleRadio(mode string) {
	if mode != SingleRadioGood && mode != SingleRadioBad {
		return
	}

	confs := c.concentrators()
	if len(confs) == 0 {
		return
	}

	// confs may be shared with the caller
	conf := confs[0]
	conf.Radio1 = regions.Radio{}

	if mode == SingleRadioGood {
		for i := 3; i < 8; i++ {
			ch, _ := conf.MultiSF(i)
			*ch = regions.Channel{}
		}
		conf.ChanLoRaStd = regions.Channel{}
		conf.ChanFSK = regions.Channel{}
	}

	out := append([]regions.RadioConf{conf}, confs[1:]...)
	switch {
	case len(c.SX1301Conf) != 0:
		c.SX1301Conf = out
	case len(c.SX1302Conf) != 0:
		c.SX1302Conf = out
	default:
		c.RadioConf = out
	}

	if len(c.UpChannels) > 3 {
		c.UpChannels = append([]regions.UpChannel(nil), c.UpChannels[:3]...)
	}
}
