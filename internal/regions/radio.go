package regions

import (
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// DataRate implements a single datarate table entry. It is encoded as
// [sf, bw, dnonly] in both the catalog and the router_config message.
type DataRate struct {
	SpreadingFactor int
	Bandwidth       int
	DownlinkOnly    int
}

// MarshalJSON implements json.Marshaler.
func (d DataRate) MarshalJSON() ([]byte, error) {
	return json.Marshal([3]int{d.SpreadingFactor, d.Bandwidth, d.DownlinkOnly})
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *DataRate) UnmarshalJSON(b []byte) error {
	var v []int
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return d.fromSlice(v)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *DataRate) UnmarshalYAML(value *yaml.Node) error {
	var v []int
	if err := value.Decode(&v); err != nil {
		return err
	}
	return d.fromSlice(v)
}

func (d *DataRate) fromSlice(v []int) error {
	if len(v) != 3 {
		return fmt.Errorf("datarate must have 3 elements, got %d", len(v))
	}
	d.SpreadingFactor, d.Bandwidth, d.DownlinkOnly = v[0], v[1], v[2]
	return nil
}

// UpChannel implements an upchannels entry, encoded as [freq, mindr, maxdr].
type UpChannel struct {
	Frequency uint32
	MinDR     int
	MaxDR     int
}

// MarshalJSON implements json.Marshaler.
func (c UpChannel) MarshalJSON() ([]byte, error) {
	return json.Marshal([]int64{int64(c.Frequency), int64(c.MinDR), int64(c.MaxDR)})
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *UpChannel) UnmarshalJSON(b []byte) error {
	var v []int64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	return c.fromSlice(v)
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (c *UpChannel) UnmarshalYAML(value *yaml.Node) error {
	var v []int64
	if err := value.Decode(&v); err != nil {
		return err
	}
	return c.fromSlice(v)
}

func (c *UpChannel) fromSlice(v []int64) error {
	if len(v) != 3 {
		return fmt.Errorf("upchannel must have 3 elements, got %d", len(v))
	}
	c.Frequency, c.MinDR, c.MaxDR = uint32(v[0]), int(v[1]), int(v[2])
	return nil
}

// RadioConf implements the configuration of a single concentrator.
type RadioConf struct {
	Radio0       Radio   `json:"radio_0" yaml:"radio_0"`
	Radio1       Radio   `json:"radio_1" yaml:"radio_1"`
	ChanFSK      Channel `json:"chan_FSK" yaml:"chan_FSK"`
	ChanLoRaStd  Channel `json:"chan_Lora_std" yaml:"chan_Lora_std"`
	ChanMultiSF0 Channel `json:"chan_multiSF_0" yaml:"chan_multiSF_0"`
	ChanMultiSF1 Channel `json:"chan_multiSF_1" yaml:"chan_multiSF_1"`
	ChanMultiSF2 Channel `json:"chan_multiSF_2" yaml:"chan_multiSF_2"`
	ChanMultiSF3 Channel `json:"chan_multiSF_3" yaml:"chan_multiSF_3"`
	ChanMultiSF4 Channel `json:"chan_multiSF_4" yaml:"chan_multiSF_4"`
	ChanMultiSF5 Channel `json:"chan_multiSF_5" yaml:"chan_multiSF_5"`
	ChanMultiSF6 Channel `json:"chan_multiSF_6" yaml:"chan_multiSF_6"`
	ChanMultiSF7 Channel `json:"chan_multiSF_7" yaml:"chan_multiSF_7"`
}

// MultiSF returns a pointer to the multi-SF channel with the given index.
func (c *RadioConf) MultiSF(i int) (*Channel, error) {
	switch i {
	case 0:
		return &c.ChanMultiSF0, nil
	case 1:
		return &c.ChanMultiSF1, nil
	case 2:
		return &c.ChanMultiSF2, nil
	case 3:
		return &c.ChanMultiSF3, nil
	case 4:
		return &c.ChanMultiSF4, nil
	case 5:
		return &c.ChanMultiSF5, nil
	case 6:
		return &c.ChanMultiSF6, nil
	case 7:
		return &c.ChanMultiSF7, nil
	default:
		return nil, errors.Errorf("invalid multi-SF channel index: %d", i)
	}
}

// Radio implements a radio configuration.
type Radio struct {
	Enable bool   `json:"enable" yaml:"enable"`
	Freq   uint32 `json:"freq" yaml:"freq"`
}

// Channel implements a (multi-SF, LoRa standard or FSK) channel configuration.
type Channel struct {
	Enable       bool   `json:"enable" yaml:"enable"`
	Radio        int    `json:"radio" yaml:"radio"`
	IF           int    `json:"if" yaml:"if"`
	Bandwidth    uint32 `json:"bandwidth,omitempty" yaml:"bandwidth"`
	SpreadFactor uint32 `json:"spread_factor,omitempty" yaml:"spread_factor"`
	Datarate     uint32 `json:"datarate,omitempty" yaml:"datarate"`
}

type channel Channel

// MarshalJSON implements json.Marshaler. A disabled channel without any
// settings is encoded as {"enable": false}.
func (c Channel) MarshalJSON() ([]byte, error) {
	if c == (Channel{}) {
		return []byte(`{"enable":false}`), nil
	}
	return json.Marshal(channel(c))
}
