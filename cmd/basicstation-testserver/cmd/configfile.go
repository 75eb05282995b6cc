package cmd

import (
	"os"
	"text/template"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/brocaar/basicstation-testserver/internal/config"
)

const configTemplate = `[general]
# debug=5, info=4, warning=3, error=2, fatal=1, panic=0
log_level={{ .General.LogLevel }}


# Basic Station LNS configuration.
[backend]

  [backend.basic_station]

  # ip:port to bind the router-info (Info) websocket listener to.
  info_bind="{{ .Backend.BasicStation.InfoBind }}"

  # ip:port to bind the router (Mux) websocket listener to.
  mux_bind="{{ .Backend.BasicStation.MuxBind }}"

  # Mux URI returned in router-info responses.
  #
  # When left blank, the URI is derived from the host of the router-info
  # request and the mux_bind port: ws[s]://<host>:<port>/router-<id6>.
  mux_uri="{{ .Backend.BasicStation.MuxURI }}"

  # Mux identifier returned in router-info responses.
  muxs_id="{{ .Backend.BasicStation.MuxsID }}"

  # TLS certificate and key files.
  #
  # When set, the Info and Mux listeners use TLS (wss://).
  tls_cert="{{ .Backend.BasicStation.TLSCert }}"
  tls_key="{{ .Backend.BasicStation.TLSKey }}"

  # TLS CA certificate.
  #
  # When set, client certificates are required and the certificate
  # CommonName must match the router id.
  ca_cert="{{ .Backend.BasicStation.CACert }}"

  # Ping interval.
  ping_interval="{{ .Backend.BasicStation.PingInterval }}"

  # Read timeout.
  #
  # This interval must be greater than the configured ping interval.
  read_timeout="{{ .Backend.BasicStation.ReadTimeout }}"

  # Write timeout.
  write_timeout="{{ .Backend.BasicStation.WriteTimeout }}"

  # Region.
  #
  # Valid options are the profiles of the region catalog, e.g. EU868,
  # US915, AU915, AS923, KR920 and IN865. Unknown regions fall back
  # to US915.
  region="{{ .Backend.BasicStation.Region }}"

  # Use the asymmetric datarate variant of the region.
  asym_dr={{ .Backend.BasicStation.AsymDR }}

  # Router config name.
  #
  # Overrides the router_config template selected by the region.
  router_config="{{ .Backend.BasicStation.RouterConfig }}"

  # Negotiate the binary protocol with stations announcing the
  # binary_capability feature.
  binary_protocol={{ .Backend.BasicStation.BinaryProtocol }}
  binary_capability="{{ .Backend.BasicStation.BinaryCapability }}"

  # Request uplinks as raw frames (pdu only).
  pdu_only={{ .Backend.BasicStation.PDUOnly }}
  pdu_encoding="{{ .Backend.BasicStation.PDUEncoding }}"

  # Duty-cycle configuration.
  #
  # duty_cycle is one of "", "on" or "off". When blank, the setting is not
  # sent. dc_limits sends the duty-cycle limits of the region profile.
  duty_cycle="{{ .Backend.BasicStation.DutyCycle }}"
  dc_mode="{{ .Backend.BasicStation.DCMode }}"
  dc_limits={{ .Backend.BasicStation.DCLimits }}

  # Listen-before-talk configuration.
  #
  # lbt is one of "", "on" or "off". lbt_channels sends the LBT channels of
  # the region profile.
  lbt="{{ .Backend.BasicStation.LBT }}"
  lbt_channels={{ .Backend.BasicStation.LBTChannels }}

  # Single radio transform of the sx1301 configuration ("", "good" or "bad").
  single_radio="{{ .Backend.BasicStation.SingleRadio }}"

  # Server initiated GPS time transfers.
  timesync_push={{ .Backend.BasicStation.TimesyncPush }}
  timesync_interval="{{ .Backend.BasicStation.TimesyncInterval }}"

  # Reply to every uplink with a test downlink.
  auto_downlink={{ .Backend.BasicStation.AutoDownlink }}

  # Time the test downlinks are kept for correlating dntxed messages.
  downlink_ttl="{{ .Backend.BasicStation.DownlinkTTL }}"

    # Periodically toggle a feature and re-send the router_config.
    [backend.basic_station.feature_toggle]

    # Feature ("", "duty_cycle" or "lbt").
    feature="{{ .Backend.BasicStation.FeatureToggle.Feature }}"

    # Interval (0 disables the toggle).
    interval="{{ .Backend.BasicStation.FeatureToggle.Interval }}"

    # Token authentication.
    [backend.basic_station.auth]

    # HS256 secret.
    #
    # When set, the Info, Mux and update-info requests must carry a bearer
    # token signed with this secret. Use the token command to create the
    # tc.key and cups.key files.
    token_secret="{{ .Backend.BasicStation.Auth.TokenSecret }}"


# Update server (CUPS) configuration.
[update]

# Enable the update-info endpoint.
enabled={{ .Update.Enabled }}

# ip:port to bind the update-info listener to.
bind="{{ .Update.Bind }}"

# Directory holding the cups-router-<id>.cfg files, the CUPS credentials,
# firmware files and signing keys.
home_dir="{{ .Update.HomeDir }}"

# Directory holding the LNS (tc) credentials.
tc_dir="{{ .Update.TCDir }}"

# TLS certificate, key and CA certificate files.
tls_cert="{{ .Update.TLSCert }}"
tls_key="{{ .Update.TLSKey }}"
ca_cert="{{ .Update.CACert }}"


# Region catalog.
[regions]

# YAML file merged over the embedded catalog (optional).
catalog_file="{{ .Regions.CatalogFile }}"


# Event integration.
[integration]

# Publish uplinks, tx acknowledgements and connection states.
enabled={{ .Integration.Enabled }}

# Payload marshaler (json or protobuf).
marshaler="{{ .Integration.Marshaler }}"

  # MQTT integration.
  [integration.mqtt]

  # Event and state topic templates.
  event_topic_template="{{ .Integration.MQTT.EventTopicTemplate }}"
  state_topic_template="{{ .Integration.MQTT.StateTopicTemplate }}"

  # Publish the conn state as retained message.
  state_retained={{ .Integration.MQTT.StateRetained }}

  # MQTT keep-alive interval.
  keep_alive="{{ .Integration.MQTT.KeepAlive }}"

  # Maximum interval between reconnect attempts.
  max_reconnect_interval="{{ .Integration.MQTT.MaxReconnectInterval }}"

  # Maximum time to wait for a MQTT token.
  max_token_wait="{{ .Integration.MQTT.MaxTokenWait }}"

    [integration.mqtt.auth.generic]

    # MQTT servers.
    servers=[{{ range $index, $elm := .Integration.MQTT.Auth.Generic.Servers }}
      "{{ $elm }}",{{ end }}
    ]

    # Connect with the given username (optional)
    username="{{ .Integration.MQTT.Auth.Generic.Username }}"

    # Connect with the given password (optional)
    password="{{ .Integration.MQTT.Auth.Generic.Password }}"

    # Quality of service level
    qos={{ .Integration.MQTT.Auth.Generic.QOS }}

    # Clean session
    clean_session={{ .Integration.MQTT.Auth.Generic.CleanSession }}

    # Client ID
    client_id="{{ .Integration.MQTT.Auth.Generic.ClientID }}"

    # CA certificate, TLS certificate and TLS key files (optional).
    ca_cert="{{ .Integration.MQTT.Auth.Generic.CACert }}"
    tls_cert="{{ .Integration.MQTT.Auth.Generic.TLSCert }}"
    tls_key="{{ .Integration.MQTT.Auth.Generic.TLSKey }}"


# Metrics configuration.
[metrics]

  # Metrics stored in Prometheus.
  [metrics.prometheus]

  # Enable the Prometheus metrics endpoint.
  endpoint_enabled={{ .Metrics.Prometheus.EndpointEnabled }}

  # ip:port to bind the metrics endpoint to.
  bind="{{ .Metrics.Prometheus.Bind }}"
`

var configCmd = &cobra.Command{
	Use:   "configfile",
	Short: "Print the Basic Station test server configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		t := template.Must(template.New("config").Parse(configTemplate))
		err := t.Execute(os.Stdout, config.C)
		if err != nil {
			return errors.Wrap(err, "execute config template error")
		}
		return nil
	},
}
