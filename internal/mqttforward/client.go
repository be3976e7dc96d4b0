package mqttforward

import (
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

// ClientFactory builds an mqtt.Client from options. Tests substitute a
// factory that returns a fake implementing mqtt.Client instead of dialing a
// real broker.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// DefaultClientFactory is paho's own client constructor.
func DefaultClientFactory(opts *mqtt.ClientOptions) mqtt.Client {
	return mqtt.NewClient(opts)
}

// Config holds everything needed to dial the broker, shared by the
// retained-message probe and the main forwarder connection.
type Config struct {
	Host                        string
	Port                        int
	Topic                       string
	QoS                         byte
	ClientID                    string
	Transport                   string
	CACertsPath                 string
	Username                    string
	Password                    string
	RetainedMessageWaitDuration time.Duration
}

func (c Config) brokerURL() string {
	scheme := c.Transport
	if scheme == "" {
		scheme = "tcp"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, c.Host, c.Port)
}

func baseClientOptions(cfg Config, clientID string) (*mqtt.ClientOptions, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.brokerURL()).
		SetClientID(clientID)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.CACertsPath != "" {
		tlsConfig, err := loadCACertPool(cfg.CACertsPath)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}
	return opts, nil
}
