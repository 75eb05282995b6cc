package regions

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	assert := require.New(t)

	c, err := Default()
	assert.NoError(err)
	assert.NoError(c.Validate())

	for _, name := range []string{"EU868", "US915", "AU915", "AS923", "KR920", "IN865"} {
		p, err := c.Profile(name)
		assert.NoError(err, name)
		assert.Equal(name, p.Name)

		for _, asym := range []bool{false, true} {
			_, _, err := c.RouterConfig(p.SelectRouterConfig(asym))
			assert.NoError(err, name)
		}
	}
}

func TestRouterConfig(t *testing.T) {
	assert := require.New(t)

	c, err := Default()
	assert.NoError(err)

	t.Run("EU863_6ch", func(t *testing.T) {
		assert := require.New(t)

		rc, r, err := c.RouterConfig("EU863_6ch")
		assert.NoError(err)
		assert.Equal("EU868", r.Region)
		assert.False(r.Asymmetric())
		assert.Len(r.DRs, 16)
		assert.Equal(DataRate{SpreadingFactor: 12, Bandwidth: 125}, r.DRs[0])
		assert.Equal(SFUndefined, r.DRs[8].SpreadingFactor)
		assert.Equal("sx1301/1", rc.HWSpec)
		assert.Len(rc.SX1301Conf, 1)
		assert.Len(rc.UpChannels, 6)
		assert.Equal(UpChannel{Frequency: 868100000, MinDR: 0, MaxDR: 5}, rc.UpChannels[0])
		assert.Equal(Radio{Enable: true, Freq: 868475000}, rc.SX1301Conf[0].Radio0)
	})

	t.Run("asymmetric base", func(t *testing.T) {
		assert := require.New(t)

		_, r, err := c.RouterConfig("US902_8ch_RP2")
		assert.NoError(err)
		assert.True(r.Asymmetric())
		assert.NotEmpty(r.DRsUp)
		assert.NotEmpty(r.DRsDn)
	})

	t.Run("returns copies", func(t *testing.T) {
		assert := require.New(t)

		rc, _, err := c.RouterConfig("EU863_6ch")
		assert.NoError(err)
		rc.UpChannels[0].Frequency = 1
		rc.SX1301Conf[0].Radio1.Enable = false

		rc, _, err = c.RouterConfig("EU863_6ch")
		assert.NoError(err)
		assert.EqualValues(868100000, rc.UpChannels[0].Frequency)
		assert.True(rc.SX1301Conf[0].Radio1.Enable)
	})

	t.Run("unknown", func(t *testing.T) {
		assert := require.New(t)

		_, _, err := c.RouterConfig("XX123")
		assert.Equal(ErrUnknownRouterConfig, errors.Cause(err))

		_, err = c.Profile("XX123")
		assert.Equal(ErrUnknownProfile, errors.Cause(err))
	})
}

func TestChannelJSON(t *testing.T) {
	assert := require.New(t)

	conf := RadioConf{
		Radio0:       Radio{Enable: true, Freq: 868475000},
		ChanMultiSF0: Channel{Enable: true, Radio: 0, IF: -375000},
	}

	b, err := json.Marshal(conf)
	assert.NoError(err)

	var out map[string]json.RawMessage
	assert.NoError(json.Unmarshal(b, &out))
	assert.JSONEq(`{"enable":false}`, string(out["chan_FSK"]))
	assert.JSONEq(`{"enable":false,"freq":0}`, string(out["radio_1"]))
	assert.JSONEq(`{"enable":true,"radio":0,"if":-375000}`, string(out["chan_multiSF_0"]))

	b, err = json.Marshal([]UpChannel{{Frequency: 868100000, MinDR: 0, MaxDR: 5}})
	assert.NoError(err)
	assert.Equal(`[[868100000,0,5]]`, string(b))

	b, err = json.Marshal([]DataRate{{SpreadingFactor: 12, Bandwidth: 125}})
	assert.NoError(err)
	assert.Equal(`[[12,125,0]]`, string(b))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		Name  string
		Conf  RadioConf
		Error string
	}{
		{
			Name: "valid",
			Conf: RadioConf{
				Radio0:       Radio{Enable: true, Freq: 868475000},
				ChanMultiSF0: Channel{Enable: true, Radio: 0, IF: -375000},
			},
		},
		{
			Name: "disabled radio",
			Conf: RadioConf{
				Radio0:       Radio{Enable: true, Freq: 868475000},
				ChanMultiSF4: Channel{Enable: true, Radio: 1, IF: -237500},
			},
			Error: "chan_multiSF_4: radio_1 is disabled",
		},
		{
			Name: "outside radio bandwidth",
			Conf: RadioConf{
				Radio0:       Radio{Enable: true, Freq: 868475000},
				ChanMultiSF0: Channel{Enable: true, Radio: 0, IF: -425000},
			},
			Error: "chan_multiSF_0: channel 868050000 does not fit in radio bandwidth",
		},
		{
			Name: "500kHz channel",
			Conf: RadioConf{
				Radio0:      Radio{Enable: true, Freq: 902700000},
				ChanLoRaStd: Channel{Enable: true, Radio: 0, IF: 300000, Bandwidth: 500000},
			},
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			err := tst.Conf.Validate()
			if tst.Error == "" {
				assert.NoError(err)
			} else {
				assert.EqualError(err, tst.Error)
			}
		})
	}
}

func TestDownlinkParams(t *testing.T) {
	c, err := Default()
	require.NoError(t, err)

	tests := []struct {
		Name     string
		Profile  string
		DR       int
		Freq     uint32
		Expected DownlinkParams
	}{
		{
			Name:     "EU868 same as uplink",
			Profile:  "EU868",
			DR:       5,
			Freq:     868100000,
			Expected: DownlinkParams{RX1DR: 5, RX1Freq: 868100000, RX2DR: 0, RX2Freq: 869525000},
		},
		{
			Name:     "US915 DR0 channel 0",
			Profile:  "US915",
			DR:       0,
			Freq:     902300000,
			Expected: DownlinkParams{RX1DR: 10, RX1Freq: 923300000, RX2DR: 8, RX2Freq: 923300000},
		},
		{
			Name:     "US915 DR3 channel 9",
			Profile:  "US915",
			DR:       3,
			Freq:     904100000,
			Expected: DownlinkParams{RX1DR: 13, RX1Freq: 923900000, RX2DR: 8, RX2Freq: 923300000},
		},
		{
			Name:     "US915 DR4 500kHz channel 65",
			Profile:  "US915",
			DR:       4,
			Freq:     904600000,
			Expected: DownlinkParams{RX1DR: 13, RX1Freq: 923900000, RX2DR: 8, RX2Freq: 923300000},
		},
		{
			Name:     "AU915 uses US915 mapping",
			Profile:  "AU915",
			DR:       6,
			Freq:     903500000,
			Expected: DownlinkParams{RX1DR: 10, RX1Freq: 926900000, RX2DR: 8, RX2Freq: 923300000},
		},
		{
			Name:     "AS923",
			Profile:  "AS923",
			DR:       2,
			Freq:     923200000,
			Expected: DownlinkParams{RX1DR: 2, RX1Freq: 923200000, RX2DR: 2, RX2Freq: 923200000},
		},
		{
			Name:     "IN865",
			Profile:  "IN865",
			DR:       0,
			Freq:     865062500,
			Expected: DownlinkParams{RX1DR: 0, RX1Freq: 865062500, RX2DR: 2, RX2Freq: 866550000},
		},
	}

	for _, tst := range tests {
		t.Run(tst.Name, func(t *testing.T) {
			assert := require.New(t)

			p, err := c.Profile(tst.Profile)
			assert.NoError(err)
			assert.Equal(tst.Expected, p.DownlinkParams(tst.DR, tst.Freq))
		})
	}
}

func TestProfileDefaults(t *testing.T) {
	assert := require.New(t)

	c, err := Default()
	assert.NoError(err)

	p, err := c.Profile("EU868")
	assert.NoError(err)
	assert.Equal(DefaultLBTRSSITarget, p.RSSITarget())
	assert.Equal("EU863_6ch", p.SelectRouterConfig(false))
	assert.Equal("EU868_6ch_RP2_sf5sf6", p.SelectRouterConfig(true))
	assert.Equal(10, p.DutyCycle.BandLimitsPermille["L"])

	p, err = c.Profile("KR920")
	assert.NoError(err)
	assert.Equal(-67, p.RSSITarget())
	assert.Len(p.LBT.Channels, 3)
	assert.Equal(LBTChannel{FreqHz: 922100000, ScanTimeUS: 5000, Bandwidth: 125000}, p.LBT.Channels[0])
}

func TestLoadFile(t *testing.T) {
	assert := require.New(t)
	dir := t.TempDir()

	t.Run("empty path", func(t *testing.T) {
		assert := require.New(t)

		c, err := LoadFile("")
		assert.NoError(err)
		def, _ := Default()
		assert.Equal(def, c)
	})

	t.Run("extension", func(t *testing.T) {
		assert := require.New(t)

		path := filepath.Join(dir, "catalog.yaml")
		assert.NoError(os.WriteFile(path, []byte(`
router_configs:
  EU863_3ch:
    base: EU863
    sx1301_conf:
      - radio_0: {enable: true, freq: 868500000}
        chan_multiSF_0: {enable: true, radio: 0, if: -400000}
        chan_multiSF_1: {enable: true, radio: 0, if: -200000}
        chan_multiSF_2: {enable: true, radio: 0, if: 0}
    upchannels:
      - [868100000, 0, 5]
      - [868300000, 0, 5]
      - [868500000, 0, 5]
profiles:
  EU868:
    router_config: EU863_3ch
    rx1: same
    rx2_dr: 3
    rx2_freq: 869525000
`), 0644))

		c, err := LoadFile(path)
		assert.NoError(err)

		p, err := c.Profile("EU868")
		assert.NoError(err)
		assert.Equal(3, p.RX2DR)

		rc, r, err := c.RouterConfig(p.SelectRouterConfig(false))
		assert.NoError(err)
		assert.Equal("EU868", r.Region)
		assert.Len(rc.UpChannels, 3)

		// embedded entries are still present
		_, err = c.Profile("US915")
		assert.NoError(err)
	})

	t.Run("invalid reference", func(t *testing.T) {
		assert := require.New(t)

		path := filepath.Join(dir, "invalid.yaml")
		assert.NoError(os.WriteFile(path, []byte(`
router_configs:
  broken:
    base: XX000
`), 0644))

		_, err := LoadFile(path)
		assert.Error(err)
	})

	_, err := LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(err)
}
