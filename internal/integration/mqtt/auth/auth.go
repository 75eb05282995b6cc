// Package auth implements the authentication of the MQTT integration
// against the broker.
package auth

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
)

// Authentication defines the authentication interface.
type Authentication interface {
	// Init applies the initial configuration.
	Init(*mqtt.ClientOptions) error
}

func newTLSConfig(cafile, certFile, certKeyFile string) (*tls.Config, error) {
	if cafile == "" && certFile == "" && certKeyFile == "" {
		return nil, nil
	}

	tlsConfig := &tls.Config{}

	if cafile != "" {
		cacert, err := os.ReadFile(cafile)
		if err != nil {
			return nil, errors.Wrap(err, "load ca-cert error")
		}
		certpool := x509.NewCertPool()
		if !certpool.AppendCertsFromPEM(cacert) {
			return nil, errors.New("append ca-cert error")
		}

		tlsConfig.RootCAs = certpool // RootCAs = certs used to verify server cert.
	}

	if certFile != "" && certKeyFile != "" {
		kp, err := tls.LoadX509KeyPair(certFile, certKeyFile)
		if err != nil {
			return nil, errors.Wrap(err, "load tls key-pair error")
		}
		tlsConfig.Certificates = []tls.Certificate{kp}
	}

	return tlsConfig, nil
}
