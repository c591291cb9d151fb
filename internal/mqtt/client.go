package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/logger"
	"github.com/tphakala/livecaption/internal/telemetry"
)

// broker is the part of the paho client this package uses
type broker interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload any) paho.Token
	IsConnected() bool
	Disconnect(quiesce uint)
}

// client implements the Client interface.
type client struct {
	config    Config
	mu        sync.Mutex
	internal  broker
	metrics   *telemetry.Metrics
	newBroker func(*paho.ClientOptions) broker
}

// NewClient creates a new MQTT client. metrics may be nil.
func NewClient(config Config, metrics *telemetry.Metrics) (Client, error) {
	if _, err := url.Parse(config.Broker); err != nil || config.Broker == "" {
		return nil, errors.Newf("invalid broker URL %q", config.Broker).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &client{
		config:  config,
		metrics: metrics,
		newBroker: func(opts *paho.ClientOptions) broker {
			return paho.NewClient(opts)
		},
	}, nil
}

// Connect resolves the broker host and connects. Paho reconnects on its own
// once the first connection has succeeded.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return connectError(err, c.config.Broker)
	}

	if host := u.Hostname(); net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return connectError(err, c.config.Broker)
		}
	}

	opts := paho.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(paho.Client) { c.onConnect() })
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) { c.onConnectionLost(err) })

	c.internal = c.newBroker(opts)

	token := c.internal.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return connectError(errors.NewStd("connection timeout"), c.config.Broker)
	}
	if err := token.Error(); err != nil {
		return connectError(err, c.config.Broker)
	}

	c.metrics.SetMQTTConnected(true)
	return nil
}

// Publish sends payload to topic, or to the configured topic when topic is empty.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if topic == "" {
		topic = c.config.Topic
	}
	if c.internal == nil || !c.internal.IsConnected() {
		return publishError(errors.NewStd("not connected to MQTT broker"), topic)
	}

	start := time.Now()
	token := c.internal.Publish(topic, 0, c.config.Retain, payload)

	timeout := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		c.metrics.IncMQTTErrors()
		return publishError(errors.NewStd("publish timeout"), topic)
	}
	if err := token.Error(); err != nil {
		c.metrics.IncMQTTErrors()
		return publishError(err, topic)
	}

	c.metrics.ObserveMQTTPublish(time.Since(start), len(payload))
	GetLogger().Debug("published message",
		logger.String("topic", topic),
		logger.Int("bytes", len(payload)))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.internal != nil && c.internal.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.internal != nil && c.internal.IsConnected() {
		c.internal.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
		c.metrics.SetMQTTConnected(false)
	}
}

func (c *client) onConnect() {
	GetLogger().Info("connected to MQTT broker", logger.String("broker", c.config.Broker))
	c.metrics.SetMQTTConnected(true)
}

func (c *client) onConnectionLost(err error) {
	GetLogger().Warn("connection to MQTT broker lost",
		logger.String("broker", c.config.Broker),
		logger.Error(err))
	c.metrics.SetMQTTConnected(false)
	c.metrics.IncMQTTErrors()
}

func connectError(err error, brokerURL string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTConnect).
		Context("operation", "connect").
		Context("broker", brokerURL).
		Build()
}

func publishError(err error, topic string) error {
	return errors.New(err).
		Component("mqtt").
		Category(errors.CategoryMQTTPublish).
		Context("operation", "publish").
		Context("topic", topic).
		Build()
}
