package config

import (
	"time"
)

// Config defines the configuration structure.
type Config struct {
	General struct {
		LogLevel int `mapstructure:"log_level"`
	} `mapstructure:"general"`

	Backend struct {
		BasicStation BasicStation `mapstructure:"basic_station"`
	} `mapstructure:"backend"`

	Update struct {
		Enabled bool   `mapstructure:"enabled"`
		Bind    string `mapstructure:"bind"`
		HomeDir string `mapstructure:"home_dir"`
		TCDir   string `mapstructure:"tc_dir"`
		TLSCert string `mapstructure:"tls_cert"`
		TLSKey  string `mapstructure:"tls_key"`
		CACert  string `mapstructure:"ca_cert"`
	} `mapstructure:"update"`

	Regions struct {
		CatalogFile string `mapstructure:"catalog_file"`
	} `mapstructure:"regions"`

	Integration struct {
		Enabled   bool   `mapstructure:"enabled"`
		Marshaler string `mapstructure:"marshaler"`

		MQTT struct {
			EventTopicTemplate   string        `mapstructure:"event_topic_template"`
			StateTopicTemplate   string        `mapstructure:"state_topic_template"`
			StateRetained        bool          `mapstructure:"state_retained"`
			KeepAlive            time.Duration `mapstructure:"keep_alive"`
			MaxReconnectInterval time.Duration `mapstructure:"max_reconnect_interval"`
			MaxTokenWait         time.Duration `mapstructure:"max_token_wait"`

			Auth struct {
				Generic struct {
					Servers      []string `mapstructure:"servers"`
					Username     string   `mapstructure:"username"`
					Password     string   `mapstructure:"password"`
					CACert       string   `mapstructure:"ca_cert"`
					TLSCert      string   `mapstructure:"tls_cert"`
					TLSKey       string   `mapstructure:"tls_key"`
					QOS          uint8    `mapstructure:"qos"`
					CleanSession bool     `mapstructure:"clean_session"`
					ClientID     string   `mapstructure:"client_id"`
				} `mapstructure:"generic"`
			} `mapstructure:"auth"`
		} `mapstructure:"mqtt"`
	} `mapstructure:"integration"`

	Metrics struct {
		Prometheus struct {
			EndpointEnabled bool   `mapstructure:"endpoint_enabled"`
			Bind            string `mapstructure:"bind"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"metrics"`
}

// BasicStation holds the Info / Mux endpoint configuration.
type BasicStation struct {
	InfoBind string `mapstructure:"info_bind"`
	MuxBind  string `mapstructure:"mux_bind"`
	MuxURI   string `mapstructure:"mux_uri"`
	MuxsID   string `mapstructure:"muxs_id"`
	TLSCert  string `mapstructure:"tls_cert"`
	TLSKey   string `mapstructure:"tls_key"`
	CACert   string `mapstructure:"ca_cert"`

	PingInterval time.Duration `mapstructure:"ping_interval"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	Region       string `mapstructure:"region"`
	AsymDR       bool   `mapstructure:"asym_dr"`
	RouterConfig string `mapstructure:"router_config"`

	BinaryProtocol   bool   `mapstructure:"binary_protocol"`
	BinaryCapability string `mapstructure:"binary_capability"`

	PDUOnly     bool   `mapstructure:"pdu_only"`
	PDUEncoding string `mapstructure:"pdu_encoding"`

	DutyCycle string `mapstructure:"duty_cycle"`
	DCMode    string `mapstructure:"dc_mode"`
	DCLimits  bool   `mapstructure:"dc_limits"`

	LBT         string `mapstructure:"lbt"`
	LBTChannels bool   `mapstructure:"lbt_channels"`

	SingleRadio string `mapstructure:"single_radio"`

	TimesyncPush     bool          `mapstructure:"timesync_push"`
	TimesyncInterval time.Duration `mapstructure:"timesync_interval"`

	AutoDownlink bool          `mapstructure:"auto_downlink"`
	DownlinkTTL  time.Duration `mapstructure:"downlink_ttl"`

	FeatureToggle struct {
		Feature  string        `mapstructure:"feature"`
		Interval time.Duration `mapstructure:"interval"`
	} `mapstructure:"feature_toggle"`

	Auth struct {
		TokenSecret string `mapstructure:"token_secret"`
	} `mapstructure:"auth"`
}

// C holds the global configuration.
var C Config
