package basicstation

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/brocaar/basicstation-testserver/internal/backend/basicstation/structs"
	"github.com/brocaar/basicstation-testserver/internal/gpstime"
	"github.com/brocaar/basicstation-testserver/internal/regions"
)

// Explicit on / off switches. An empty value leaves the setting out of the
// router_config, so that the station default applies.
const (
	SwitchOn  = "on"
	SwitchOff = "off"
)

// Duty-cycle modes.
const (
	DCModeLegacy  = "legacy"
	DCModeBand    = "band"
	DCModeChannel = "channel"
)

const (
	defaultDCWindowSecs = 3600
	lbtScanTimeUS       = 5000
)

// RouterConfigOptions holds the settings used to synthesize the
// router_config message.
type RouterConfigOptions struct {
	Catalog *regions.Catalog
	Profile regions.Profile

	// RouterConfig overrides the template selected by the profile.
	RouterConfig string
	AsymDR       bool

	PDUOnly     bool
	PDUEncoding string

	DutyCycle string
	DCMode    string
	DCLimits  bool

	LBT         string
	LBTChannels bool

	SingleRadio string
}

// BuildRouterConfig returns the router_config message. The binary argument
// must be true only when the binary encoding was negotiated with the station.
func BuildRouterConfig(opts RouterConfigOptions, binary bool) (structs.RouterConfig, error) {
	if opts.Catalog == nil {
		return structs.RouterConfig{}, errors.New("catalog is not set")
	}

	name := opts.RouterConfig
	if name == "" {
		name = opts.Profile.SelectRouterConfig(opts.AsymDR)
	}

	rc, r, err := opts.Catalog.RouterConfig(name)
	if err != nil {
		return structs.RouterConfig{}, errors.Wrap(err, "get router_config template error")
	}

	out := structs.NewRouterConfig(rc, r)
	out.MuxTime = gpstime.MuxTime(time.Now())

	if opts.PDUOnly {
		out.PDUOnly = true
		out.PDUEncoding = opts.PDUEncoding
	}

	if binary {
		out.ProtocolFormat = structs.ProtocolFormatProtobuf
	}

	if v, ok := switchValue(opts.DutyCycle); ok {
		out.DutyCycleEnabled = &v
	}
	out.DCMode = opts.DCMode

	if opts.DCLimits {
		setDCLimits(&out, opts.Profile)
	}

	if v, ok := switchValue(opts.LBT); ok {
		out.LBTEnabled = &v
		if v {
			target := opts.Profile.RSSITarget()
			out.LBTRSSITarget = &target
			out.LBTScanTimeUS = lbtScanTimeUS
		}
	}

	if opts.LBTChannels {
		if len(opts.Profile.LBT.Channels) != 0 {
			out.LBTChannels = opts.Profile.LBT.Channels
		} else {
			log.WithField("region", opts.Profile.Name).Warning("backend/basicstation: no lbt channels defined for region")
		}
	}

	out.ApplySingleRadio(opts.SingleRadio)

	return out, nil
}

func setDCLimits(out *structs.RouterConfig, p regions.Profile) {
	dc := p.DutyCycle
	if dc.Mode == "" {
		log.WithField("region", p.Name).Warning("backend/basicstation: no duty-cycle limits defined for region")
		return
	}

	out.DCWindowSecs = dc.WindowSecs
	if out.DCWindowSecs == 0 {
		out.DCWindowSecs = defaultDCWindowSecs
	}

	if dc.Mode == DCModeBand && len(dc.BandLimitsPermille) != 0 {
		out.DCBandLimitsPermille = dc.BandLimitsPermille
	} else if dc.ChannelLimitPermille != 0 {
		out.DCChannelLimitPermille = dc.ChannelLimitPermille
	}
}

func switchValue(s string) (bool, bool) {
	switch s {
	case SwitchOn:
		return true, true
	case SwitchOff:
		return false, true
	default:
		return false, false
	}
}

// toggleSwitch flips an on / off setting. An unset value is turned on.
func toggleSwitch(s string) string {
	if s == SwitchOn {
		return SwitchOff
	}
	return SwitchOn
}
