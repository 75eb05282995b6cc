package integration

import (
	"testing"

	"github.com/chirpstack/chirpstack/api/go/v4/gw"
	"github.com/stretchr/testify/require"

	"github.com/brocaar/lorawan"

	"github.com/brocaar/basicstation-testserver/internal/config"
	"github.com/brocaar/basicstation-testserver/internal/integration/mqtt"
)

func TestSetup(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		assert := require.New(t)

		var conf config.Config
		i, err := Setup(conf)
		assert.NoError(err)
		assert.Equal(nopIntegration{}, i)

		assert.NoError(i.Start())
		assert.NoError(i.SetGatewaySubscription(true, lorawan.EUI64{1}))
		assert.NoError(i.PublishEvent(lorawan.EUI64{1}, EventUp, 1, &gw.UplinkFrame{}))
		assert.NoError(i.Stop())
	})

	t.Run("mqtt", func(t *testing.T) {
		assert := require.New(t)

		var conf config.Config
		conf.Integration.Enabled = true
		conf.Integration.Marshaler = "protobuf"
		conf.Integration.MQTT.EventTopicTemplate = "gateway/{{ .GatewayID }}/event/{{ .EventType }}"
		conf.Integration.MQTT.Auth.Generic.Servers = []string{"tcp://127.0.0.1:1883"}

		i, err := Setup(conf)
		assert.NoError(err)
		assert.IsType(&mqtt.Backend{}, i)
	})

	t.Run("mqtt without servers", func(t *testing.T) {
		var conf config.Config
		conf.Integration.Enabled = true
		conf.Integration.Marshaler = "json"

		_, err := Setup(conf)
		require.Error(t, err)
	})
}
