package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-av/internal/infrastructure/config"
)

// Logger receives reconnect notices and handler panics.
// *logging.Logger satisfies it.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// MessageHandler is called once per received message on a paho goroutine.
type MessageHandler func(topic string, payload []byte)

type route struct {
	qos     byte
	handler MessageHandler
}

// Client is a paho connection that remembers its subscriptions and
// replays them after every reconnect. The zero value is a disconnected
// client whose operations fail with ErrNotConnected.
type Client struct {
	paho pahomqtt.Client
	cfg  config.MQTTConfig

	up atomic.Bool

	routesMu sync.RWMutex
	routes   map[string]route

	hooksMu      sync.RWMutex
	log          Logger
	onConnect    func()
	onDisconnect func(err error)
}

// Connect dials the broker described by cfg. will, when non-nil, becomes
// the Last Will the broker publishes if the process dies without Close.
func Connect(cfg config.MQTTConfig, will *Message) (*Client, error) {
	c := &Client{cfg: cfg, routes: make(map[string]route)}

	opts := buildClientOptions(cfg)
	configureWill(opts, will)
	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.connected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.lost(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if l := c.logger(); l != nil {
			l.Info("MQTT reconnecting", "broker", cfg.Broker.Host)
		}
	})

	c.paho = pahomqtt.NewClient(opts)
	if err := await(c.paho.Connect(), defaultConnectTimeout, ErrConnectionFailed); err != nil {
		return nil, err
	}

	// paho runs the OnConnect handler on its own goroutine; callers may
	// subscribe before it fires.
	c.up.Store(true)
	return c, nil
}

// await waits for tok and wraps a timeout or failure in sentinel.
func await(tok pahomqtt.Token, timeout time.Duration, sentinel error) error {
	if !tok.WaitTimeout(timeout) {
		return fmt.Errorf("%w: timeout after %v", sentinel, timeout)
	}
	if err := tok.Error(); err != nil {
		return fmt.Errorf("%w: %w", sentinel, err)
	}
	return nil
}

func (c *Client) connected() {
	c.up.Store(true)
	c.replay()

	c.hooksMu.RLock()
	fn := c.onConnect
	c.hooksMu.RUnlock()
	if fn != nil {
		fn()
	}
}

func (c *Client) lost(err error) {
	c.up.Store(false)

	c.hooksMu.RLock()
	fn := c.onDisconnect
	c.hooksMu.RUnlock()
	if fn != nil {
		fn(err)
	}
}

// replay resubscribes every remembered topic; clean sessions drop them on
// the broker side.
func (c *Client) replay() {
	c.routesMu.RLock()
	defer c.routesMu.RUnlock()

	for topic, r := range c.routes {
		err := await(c.paho.Subscribe(topic, r.qos, c.deliver(r.handler)), defaultOperationTimeout, ErrSubscribeFailed)
		if err != nil {
			if l := c.logger(); l != nil {
				l.Warn("MQTT resubscribe failed", "topic", topic, "error", err)
			}
		}
	}
}

// deliver adapts h to paho and keeps a panicking handler from taking down
// paho's router goroutine.
func (c *Client) deliver(h MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			r := recover()
			if r == nil {
				return
			}
			if l := c.logger(); l != nil {
				l.Error("MQTT handler panicked", "topic", msg.Topic(), "panic", r)
			}
		}()
		h(msg.Topic(), msg.Payload())
	}
}

// IsConnected reports whether the session is currently up.
func (c *Client) IsConnected() bool {
	return c.paho != nil && c.up.Load() && c.paho.IsConnected()
}

// HealthCheck fails with ErrNotConnected while the broker is unreachable.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close disconnects cleanly, so the broker does not publish the Last Will.
func (c *Client) Close() error {
	if c.paho == nil {
		return nil
	}
	c.up.Store(false)
	c.paho.Disconnect(disconnectQuiesceMillis)
	return nil
}

// SetOnConnect registers fn to run after the first connect and every reconnect.
func (c *Client) SetOnConnect(fn func()) {
	c.hooksMu.Lock()
	c.onConnect = fn
	c.hooksMu.Unlock()
}

// SetOnDisconnect registers fn to run when the connection drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hooksMu.Lock()
	c.onDisconnect = fn
	c.hooksMu.Unlock()
}

// SetLogger sets where reconnects and handler panics are reported.
func (c *Client) SetLogger(l Logger) {
	c.hooksMu.Lock()
	c.log = l
	c.hooksMu.Unlock()
}

func (c *Client) logger() Logger {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.log
}
