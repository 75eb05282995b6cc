package auth

import (
	"crypto/tls"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"

	"github.com/brocaar/basicstation-testserver/internal/config"
)

// GenericAuthentication implements a generic MQTT authentication.
type GenericAuthentication struct {
	servers      []string
	username     string
	password     string
	cleanSession bool
	clientID     string

	tlsConfig *tls.Config
}

// NewGenericAuthentication creates a GenericAuthentication.
func NewGenericAuthentication(conf config.Config) (Authentication, error) {
	generic := conf.Integration.MQTT.Auth.Generic

	tlsConfig, err := newTLSConfig(generic.CACert, generic.TLSCert, generic.TLSKey)
	if err != nil {
		return nil, errors.Wrap(err, "mqtt/auth: new tls config error")
	}

	if len(generic.Servers) == 0 {
		return nil, errors.New("mqtt/auth: at least one server must be configured")
	}

	return &GenericAuthentication{
		tlsConfig:    tlsConfig,
		servers:      generic.Servers,
		username:     generic.Username,
		password:     generic.Password,
		cleanSession: generic.CleanSession,
		clientID:     generic.ClientID,
	}, nil
}

// Init applies the initial configuration.
func (a *GenericAuthentication) Init(opts *mqtt.ClientOptions) error {
	for _, server := range a.servers {
		opts.AddBroker(server)
	}
	opts.SetUsername(a.username)
	opts.SetPassword(a.password)
	opts.SetCleanSession(a.cleanSession)
	opts.SetClientID(a.clientID)

	if a.tlsConfig != nil {
		opts.SetTLSConfig(a.tlsConfig)
	}

	return nil
}
