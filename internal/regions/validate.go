package regions

import (
	"fmt"

	"github.com/pkg/errors"
)

// radioBandwidthPerChannelBandwidth defines the bandwidth that a single radio
// can cover per channel bandwidth
var radioBandwidthPerChannelBandwidth = map[uint32]uint32{
	500000: 1100000, // 500kHz channel
	250000: 1000000, // 250kHz channel
	125000: 925000,  // 125kHz channel
}

// defaultRadioBandwidth defines the radio bandwidth in case the channel
// bandwidth does not match any of the above values.
const defaultRadioBandwidth uint32 = 925000

// defaultChannelBandwidth is assumed for channels without an explicit
// bandwidth (multi-SF channels are always 125kHz).
const defaultChannelBandwidth uint32 = 125000

// Validate checks the radio layout of the template: every enabled channel
// must be assigned to an enabled radio and must fit within the bandwidth
// of that radio.
func (t RouterConfigTemplate) Validate() error {
	for _, confs := range [][]RadioConf{t.SX1301Conf, t.SX1302Conf, t.RadioConf} {
		for i := range confs {
			if err := confs[i].Validate(); err != nil {
				return errors.Wrapf(err, "concentrator %d", i)
			}
		}
	}
	return nil
}

// Validate checks the channels of a single concentrator.
func (c RadioConf) Validate() error {
	radios := [2]Radio{c.Radio0, c.Radio1}

	check := func(name string, ch Channel) error {
		if !ch.Enable {
			return nil
		}
		if ch.Radio < 0 || ch.Radio >= len(radios) {
			return fmt.Errorf("%s: invalid radio %d", name, ch.Radio)
		}
		if !radios[ch.Radio].Enable {
			return fmt.Errorf("%s: radio_%d is disabled", name, ch.Radio)
		}
		if !channelFitsRadio(ch) {
			return fmt.Errorf("%s: channel %d does not fit in radio bandwidth", name, ChannelFrequency(radios[ch.Radio], ch))
		}
		return nil
	}

	if err := check("chan_FSK", c.ChanFSK); err != nil {
		return err
	}
	if err := check("chan_Lora_std", c.ChanLoRaStd); err != nil {
		return err
	}
	for i := 0; i < 8; i++ {
		ch, _ := c.MultiSF(i)
		if err := check(fmt.Sprintf("chan_multiSF_%d", i), *ch); err != nil {
			return err
		}
	}

	return nil
}

// ChannelFrequency returns the center frequency of the channel.
func ChannelFrequency(r Radio, ch Channel) uint32 {
	return uint32(int64(r.Freq) + int64(ch.IF))
}

func channelFitsRadio(ch Channel) bool {
	channelBandwidth := ch.Bandwidth
	if channelBandwidth == 0 {
		channelBandwidth = defaultChannelBandwidth
	}
	radioBandwidth, ok := radioBandwidthPerChannelBandwidth[channelBandwidth]
	if !ok {
		radioBandwidth = defaultRadioBandwidth
	}

	offset := ch.IF
	if offset < 0 {
		offset = -offset
	}
	return uint32(offset)+channelBandwidth/2 <= radioBandwidth/2
}
