// Package regions implements the regional configuration catalog: datarate
// tables, radio layouts and channel plans that are sent to a gateway as part
// of the router_config message.
package regions

import (
	_ "embed"
	"fmt"
	"sync"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Catalog errors.
var (
	ErrUnknownRegion       = errors.New("unknown region")
	ErrUnknownRouterConfig = errors.New("unknown router_config")
	ErrUnknownProfile      = errors.New("unknown region profile")
)

// Datarate spreading-factor codes with a special meaning.
const (
	SFUndefined = -1
	SFLRFHSS    = -2
)

// Catalog holds the regional configuration tables. A Catalog is never
// modified after it has been loaded, lookups return copies.
type Catalog struct {
	Regions       map[string]Region               `yaml:"regions"`
	RouterConfigs map[string]RouterConfigTemplate `yaml:"router_configs"`
	Profiles      map[string]Profile              `yaml:"profiles"`
}

// Region contains the datarate table, max EIRP and frequency range of a
// region. Regions with asymmetric datarates use DRsUp and DRsDn instead of DRs.
type Region struct {
	Region    string     `yaml:"region"`
	DRs       []DataRate `yaml:"drs"`
	DRsUp     []DataRate `yaml:"drs_up"`
	DRsDn     []DataRate `yaml:"drs_dn"`
	MaxEIRP   float64    `yaml:"max_eirp"`
	Protocol  int        `yaml:"protocol"`
	FreqRange []uint32   `yaml:"freq_range"`
}

// Asymmetric returns true when the region defines separate uplink and
// downlink datarate tables.
func (r Region) Asymmetric() bool {
	return len(r.DRsUp) != 0 || len(r.DRsDn) != 0
}

// RouterConfigTemplate contains the radio layout and channel plan of a
// router_config.
type RouterConfigTemplate struct {
	Base       string      `yaml:"base"`
	Region     string      `yaml:"region"`
	HWSpec     string      `yaml:"hwspec"`
	SX1301Conf []RadioConf `yaml:"sx1301_conf"`
	SX1302Conf []RadioConf `yaml:"sx1302_conf"`
	RadioConf  []RadioConf `yaml:"radio_conf"`
	UpChannels []UpChannel `yaml:"upchannels"`
}

var (
	defaultOnce    sync.Once
	defaultCatalog *Catalog
	defaultErr     error
)

// Default returns the embedded catalog. It is parsed once.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(catalogYAML)
	})
	return defaultCatalog, defaultErr
}

// Parse parses a YAML encoded catalog.
func Parse(b []byte) (*Catalog, error) {
	c, err := unmarshal(b)
	if err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func unmarshal(b []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, errors.Wrap(err, "unmarshal catalog error")
	}
	return &c, nil
}

// Validate validates the references between the catalog entries and the
// radio layout of every router_config.
func (c *Catalog) Validate() error {
	for name, rc := range c.RouterConfigs {
		if _, ok := c.Regions[rc.Base]; !ok {
			return fmt.Errorf("router_config %s: unknown base region %s", name, rc.Base)
		}
		if err := rc.Validate(); err != nil {
			return errors.Wrapf(err, "router_config %s", name)
		}
	}

	for name, p := range c.Profiles {
		for _, rc := range []string{p.RouterConfig, p.AsymRouterConfig} {
			if rc == "" {
				continue
			}
			if _, ok := c.RouterConfigs[rc]; !ok {
				return fmt.Errorf("profile %s: unknown router_config %s", name, rc)
			}
		}
		if p.RX1Mode != RX1Same && p.RX1Mode != RX1US915 {
			return fmt.Errorf("profile %s: invalid rx1 mode %q", name, p.RX1Mode)
		}
	}

	return nil
}

// Merge returns a new catalog containing the entries of c, overridden or
// extended by the entries of o.
func (c *Catalog) Merge(o *Catalog) *Catalog {
	out := Catalog{
		Regions:       make(map[string]Region),
		RouterConfigs: make(map[string]RouterConfigTemplate),
		Profiles:      make(map[string]Profile),
	}

	for _, cat := range []*Catalog{c, o} {
		if cat == nil {
			continue
		}
		for k, v := range cat.Regions {
			out.Regions[k] = v
		}
		for k, v := range cat.RouterConfigs {
			out.RouterConfigs[k] = v
		}
		for k, v := range cat.Profiles {
			out.Profiles[k] = v
		}
	}

	return &out
}

// Region returns the region with the given name.
func (c *Catalog) Region(name string) (Region, error) {
	r, ok := c.Regions[name]
	if !ok {
		return Region{}, errors.Wrap(ErrUnknownRegion, name)
	}

	r.DRs = append([]DataRate(nil), r.DRs...)
	r.DRsUp = append([]DataRate(nil), r.DRsUp...)
	r.DRsDn = append([]DataRate(nil), r.DRsDn...)
	r.FreqRange = append([]uint32(nil), r.FreqRange...)

	return r, nil
}

// RouterConfig returns the router_config template with the given name,
// together with its base region.
func (c *Catalog) RouterConfig(name string) (RouterConfigTemplate, Region, error) {
	rc, ok := c.RouterConfigs[name]
	if !ok {
		return RouterConfigTemplate{}, Region{}, errors.Wrap(ErrUnknownRouterConfig, name)
	}

	r, err := c.Region(rc.Base)
	if err != nil {
		return RouterConfigTemplate{}, Region{}, errors.Wrap(err, "get base region error")
	}
	if rc.Region != "" {
		r.Region = rc.Region
	}

	rc.SX1301Conf = append([]RadioConf(nil), rc.SX1301Conf...)
	rc.SX1302Conf = append([]RadioConf(nil), rc.SX1302Conf...)
	rc.RadioConf = append([]RadioConf(nil), rc.RadioConf...)
	rc.UpChannels = append([]UpChannel(nil), rc.UpChannels...)

	return rc, r, nil
}

// Profile returns the profile for the given region identifier (e.g. EU868).
func (c *Catalog) Profile(name string) (Profile, error) {
	p, ok := c.Profiles[name]
	if !ok {
		return Profile{}, errors.Wrap(ErrUnknownProfile, name)
	}
	p.Name = name
	p.LBT.Channels = append([]LBTChannel(nil), p.LBT.Channels...)

	limits := make(map[string]int, len(p.DutyCycle.BandLimitsPermille))
	for k, v := range p.DutyCycle.BandLimitsPermille {
		limits[k] = v
	}
	p.DutyCycle.BandLimitsPermille = limits

	return p, nil
}
