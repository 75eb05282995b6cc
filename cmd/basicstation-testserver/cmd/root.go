package cmd

import (
	"bytes"
	"os"
	"reflect"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/brocaar/basicstation-testserver/internal/config"
)

var cfgFiles *[]string // config file
var version string

var rootCmd = &cobra.Command{
	Use:   "basicstation-testserver",
	Short: "LoRa Basics Station test network server",
	Long: `Basic Station test server emulates the LNS and CUPS endpoints of a LoRaWAN network
server, for exercising LoRa Basics Station gateways in test setups.`,
	RunE: run,
}

func init() {
	cobra.OnInitialize(initConfig)

	cfgFiles = rootCmd.PersistentFlags().StringSliceP("config", "c", []string{}, "path to configuration file (optional)")
	rootCmd.PersistentFlags().Int("log-level", 4, "debug=5, info=4, error=2, fatal=1, panic=0")

	viper.BindPFlag("general.log_level", rootCmd.PersistentFlags().Lookup("log-level"))

	// default values
	viper.SetDefault("general.log_level", 4)

	viper.SetDefault("backend.basic_station.info_bind", ":6038")
	viper.SetDefault("backend.basic_station.mux_bind", ":6039")
	viper.SetDefault("backend.basic_station.muxs_id", "muxs-::0")
	viper.SetDefault("backend.basic_station.ping_interval", time.Minute)
	viper.SetDefault("backend.basic_station.read_timeout", time.Minute+(5*time.Second))
	viper.SetDefault("backend.basic_station.write_timeout", time.Second)
	viper.SetDefault("backend.basic_station.region", "EU868")
	viper.SetDefault("backend.basic_station.binary_capability", "protobuf")
	viper.SetDefault("backend.basic_station.timesync_interval", 10*time.Second)
	viper.SetDefault("backend.basic_station.downlink_ttl", time.Minute)

	viper.SetDefault("update.enabled", true)
	viper.SetDefault("update.bind", ":6040")
	viper.SetDefault("update.home_dir", ".")
	viper.SetDefault("update.tc_dir", ".")

	viper.SetDefault("integration.marshaler", "json")
	viper.SetDefault("integration.mqtt.event_topic_template", "gateway/{{ .GatewayID }}/event/{{ .EventType }}")
	viper.SetDefault("integration.mqtt.state_topic_template", "gateway/{{ .GatewayID }}/state/{{ .StateType }}")
	viper.SetDefault("integration.mqtt.state_retained", true)
	viper.SetDefault("integration.mqtt.keep_alive", 30*time.Second)
	viper.SetDefault("integration.mqtt.max_reconnect_interval", time.Minute)
	viper.SetDefault("integration.mqtt.max_token_wait", time.Second)
	viper.SetDefault("integration.mqtt.auth.generic.servers", []string{"tcp://127.0.0.1:1883"})
	viper.SetDefault("integration.mqtt.auth.generic.clean_session", true)

	viper.SetDefault("metrics.prometheus.bind", ":9100")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tokenCmd)
}

// Execute executes the root command.
func Execute(v string) {
	version = v
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}

func initConfig() {
	if cfgFiles != nil && len(*cfgFiles) != 0 {
		var filesMerged []byte
		for _, cfgFile := range *cfgFiles {
			cfgFileContent, err := os.ReadFile(cfgFile)
			if err != nil {
				log.WithError(err).WithField("config", cfgFile).Fatal("error loading config file")
			}
			filesMerged = bytes.Join([][]byte{
				filesMerged,
				cfgFileContent,
			}, []byte("\n"))
		}

		viper.SetConfigType("toml")
		if err := viper.ReadConfig(bytes.NewBuffer(filesMerged)); err != nil {
			log.WithError(err).WithField("config", cfgFiles).Fatal("error loading config file")
		}
	} else {
		viper.SetConfigName("basicstation-testserver")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/basicstation-testserver")
		viper.AddConfigPath("/etc/basicstation-testserver/")
		if err := viper.ReadInConfig(); err != nil {
			switch err.(type) {
			case viper.ConfigFileNotFoundError:
			default:
				log.WithError(err).Fatal("read configuration file error")
			}
		}
	}

	viperBindEnvs(config.C)

	if err := viper.Unmarshal(&config.C); err != nil {
		log.WithError(err).Fatal("unmarshal config error")
	}
}

func viperBindEnvs(iface interface{}, parts ...string) {
	ifv := reflect.ValueOf(iface)
	ift := reflect.TypeOf(iface)
	for i := 0; i < ift.NumField(); i++ {
		v := ifv.Field(i)
		t := ift.Field(i)
		tv, ok := t.Tag.Lookup("mapstructure")
		if !ok {
			tv = strings.ToLower(t.Name)
		}
		if tv == "-" {
			continue
		}

		switch v.Kind() {
		case reflect.Struct:
			viperBindEnvs(v.Interface(), append(parts, tv)...)
		default:
			// Bash doesn't allow env variable names with a dot so
			// bind the double underscore version.
			keyDot := strings.Join(append(parts, tv), ".")
			keyUnderscore := strings.Join(append(parts, tv), "__")
			viper.BindEnv(keyDot, strings.ToUpper(keyUnderscore))
		}
	}
}
