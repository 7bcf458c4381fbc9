package mqtt

import (
	"crypto/tls"
	"net"
	"net/url"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-av/internal/infrastructure/config"
)

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultOperationTimeout = 5 * time.Second
	keepAlive               = 60 * time.Second

	disconnectQuiesceMillis = 1000

	maxQoS        = 2
	tlsMinVersion = tls.VersionTLS12
)

// Message is a full publication; used for the Last Will.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool
}

// brokerURL renders the broker address, ssl:// when TLS is on.
func brokerURL(b config.MQTTBrokerConfig) string {
	u := url.URL{Scheme: "tcp", Host: net.JoinHostPort(b.Host, strconv.Itoa(b.Port))}
	if b.TLS {
		u.Scheme = "ssl"
	}
	return u.String()
}

func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions().
		AddBroker(brokerURL(cfg.Broker)).
		SetClientID(cfg.Broker.ClientID).
		// Nothing is worth replaying after a restart: commands are
		// fire-and-ack and state is republished on the first poll.
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(keepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username).SetPassword(cfg.Auth.Password)
	}
	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}
	return opts
}

// configureWill sets the broker-side Last Will; a nil or topicless will is ignored.
func configureWill(opts *pahomqtt.ClientOptions, will *Message) {
	if will != nil && will.Topic != "" {
		opts.SetBinaryWill(will.Topic, will.Payload, will.QoS, will.Retained)
	}
}
