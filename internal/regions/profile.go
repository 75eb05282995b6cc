package regions

import (
	"math"

	"github.com/brocaar/lorawan"
	"github.com/brocaar/lorawan/band"
)

// RX1 mapping modes.
const (
	RX1Same  = "same"
	RX1US915 = "us915"
)

// DefaultLBTRSSITarget is used when the profile does not define an RSSI
// target.
const DefaultLBTRSSITarget = -80

// Profile defines the per region identifier (e.g. EU868) selection of
// router_config templates, downlink windows and regulatory settings.
type Profile struct {
	Name             string    `yaml:"-"`
	RouterConfig     string    `yaml:"router_config"`
	AsymRouterConfig string    `yaml:"asym_router_config"`
	RX1Mode          string    `yaml:"rx1"`
	RX2DR            int       `yaml:"rx2_dr"`
	RX2Freq          uint32    `yaml:"rx2_freq"`
	LBT              LBT       `yaml:"lbt"`
	DutyCycle        DutyCycle `yaml:"duty_cycle"`
}

// LBT holds the listen-before-talk settings of a profile.
type LBT struct {
	RSSITarget *int         `yaml:"rssi_target"`
	Channels   []LBTChannel `yaml:"channels"`
}

// LBTChannel is a single channel that must be sensed before transmitting.
type LBTChannel struct {
	FreqHz     uint32 `json:"freq_hz" yaml:"freq_hz"`
	ScanTimeUS int    `json:"scan_time_us" yaml:"scan_time_us"`
	Bandwidth  uint32 `json:"bandwidth" yaml:"bandwidth"`
}

// DutyCycle holds the duty-cycle settings of a profile. Limits are expressed
// in permille of the window.
type DutyCycle struct {
	Mode                 string         `yaml:"mode"`
	WindowSecs           int            `yaml:"window_secs"`
	BandLimitsPermille   map[string]int `yaml:"band_limits_permille"`
	ChannelLimitPermille int            `yaml:"channel_limit_permille"`
}

// RSSITarget returns the LBT RSSI target of the profile.
func (p Profile) RSSITarget() int {
	if p.LBT.RSSITarget == nil {
		return DefaultLBTRSSITarget
	}
	return *p.LBT.RSSITarget
}

// SelectRouterConfig returns the name of the router_config template to use.
func (p Profile) SelectRouterConfig(asym bool) string {
	if asym && p.AsymRouterConfig != "" {
		return p.AsymRouterConfig
	}
	return p.RouterConfig
}

// DownlinkParams contains the RX1 and RX2 parameters of a class-A downlink.
type DownlinkParams struct {
	RX1DR   int
	RX1Freq uint32
	RX2DR   int
	RX2Freq uint32
}

// DownlinkParams returns the downlink window parameters for an uplink
// received with the given data-rate and frequency.
func (p Profile) DownlinkParams(upDR int, upFreq uint32) DownlinkParams {
	out := DownlinkParams{
		RX1DR:   upDR,
		RX1Freq: upFreq,
		RX2DR:   p.RX2DR,
		RX2Freq: p.RX2Freq,
	}

	if p.RX1Mode == RX1US915 {
		out.RX1DR = us915RX1DR(upDR)
		out.RX1Freq = us915RX1Freq(upFreq)
	}

	return out
}

var us915Band band.Band

func init() {
	var err error
	us915Band, err = band.GetConfig(band.US915, false, lorawan.DwellTimeNoLimit)
	if err != nil {
		panic(err)
	}
}

func us915RX1DR(upDR int) int {
	if upDR >= 0 && upDR <= 4 {
		if dr, err := us915Band.GetRX1DataRateIndex(upDR, 0); err == nil {
			return dr
		}
	}
	return 10
}

// us915RX1Freq maps the uplink channel to one of the eight 500 kHz downlink
// channels starting at 923.3 MHz. Uplinks on the 200 kHz grid starting at
// 902.3 MHz are 125 kHz channels 0-63, everything else is mapped onto the
// 1.6 MHz grid of the 500 kHz channels 64-71 starting at 903.0 MHz.
func us915RX1Freq(upFreq uint32) uint32 {
	var ch int
	switch {
	case upFreq >= 902300000 && upFreq <= 914900000 && (upFreq-902300000)%200000 == 0:
		ch = int((upFreq - 902300000) / 200000)
	case upFreq >= 903000000:
		ch = int(math.Round(float64(upFreq-903000000) / 1600000))
	}
	return 923300000 + uint32(ch%8)*600000
}
