package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/livecaption/internal/conf"
	"github.com/tphakala/livecaption/internal/datastore"
	"github.com/tphakala/livecaption/internal/errors"
	"github.com/tphakala/livecaption/internal/telemetry"
)

// fakeToken completes immediately unless stall is set
type fakeToken struct {
	err   error
	stall bool
}

func (t *fakeToken) Wait() bool                     { return !t.stall }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return !t.stall }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.stall {
		close(ch)
	}
	return ch
}

type published struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	mu           sync.Mutex
	opts         *paho.ClientOptions
	connected    bool
	connectErr   error
	publishErr   error
	stall        bool
	messages     []published
	disconnected bool
}

func (b *fakeBroker) Connect() paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.connectErr == nil && !b.stall {
		b.connected = true
	}
	return &fakeToken{err: b.connectErr, stall: b.stall}
}

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload any) paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, _ := payload.([]byte)
	if b.publishErr == nil {
		b.messages = append(b.messages, published{topic: topic, retained: retained, payload: data})
	}
	return &fakeToken{err: b.publishErr}
}

func (b *fakeBroker) IsConnected() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connected
}

func (b *fakeBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
	b.disconnected = true
}

func newTestClient(t *testing.T, fake *fakeBroker) *client {
	t.Helper()

	config := DefaultConfig()
	config.Broker = "tcp://127.0.0.1:1883"
	config.ClientID = "livecaption-test"
	config.Username = "user"
	config.Topic = "livecaption/utterances"
	config.Retain = true

	metrics, err := telemetry.NewMetrics()
	require.NoError(t, err)

	c, err := NewClient(config, metrics)
	require.NoError(t, err)

	impl := c.(*client)
	impl.newBroker = func(opts *paho.ClientOptions) broker {
		fake.opts = opts
		return fake
	}
	return impl
}

func TestConnectAndPublish(t *testing.T) {
	t.Parallel()

	fake := &fakeBroker{}
	c := newTestClient(t, fake)

	require.NoError(t, c.Connect(t.Context()))
	assert.True(t, c.IsConnected())
	assert.Equal(t, "livecaption-test", fake.opts.ClientID)
	assert.Equal(t, "user", fake.opts.Username)
	require.Len(t, fake.opts.Servers, 1)
	assert.Equal(t, "127.0.0.1:1883", fake.opts.Servers[0].Host)

	require.NoError(t, c.Publish(t.Context(), "", []byte(`{"text":"Hello."}`)))
	require.NoError(t, c.Publish(t.Context(), "other/topic", []byte("x")))

	require.Len(t, fake.messages, 2)
	assert.Equal(t, "livecaption/utterances", fake.messages[0].topic)
	assert.True(t, fake.messages[0].retained)
	assert.JSONEq(t, `{"text":"Hello."}`, string(fake.messages[0].payload))
	assert.Equal(t, "other/topic", fake.messages[1].topic)

	c.Disconnect()
	assert.True(t, fake.disconnected)
	assert.False(t, c.IsConnected())
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c := newTestClient(t, &fakeBroker{})
	err := c.Publish(t.Context(), "", []byte("x"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
}

func TestConnectFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fake *fakeBroker
	}{
		{"broker refuses", &fakeBroker{connectErr: fmt.Errorf("not authorized")}},
		{"timeout", &fakeBroker{stall: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c := newTestClient(t, tt.fake)
			err := c.Connect(t.Context())
			require.Error(t, err)
			assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnect))
			assert.False(t, c.IsConnected())
		})
	}
}

func TestPublishError(t *testing.T) {
	t.Parallel()

	fake := &fakeBroker{}
	c := newTestClient(t, fake)
	require.NoError(t, c.Connect(t.Context()))

	fake.mu.Lock()
	fake.publishErr = fmt.Errorf("broker gone")
	fake.mu.Unlock()

	err := c.Publish(t.Context(), "", []byte("x"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker gone")
}

func TestNewClientRejectsEmptyBroker(t *testing.T) {
	t.Parallel()

	_, err := NewClient(DefaultConfig(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.MQTT = conf.MQTTSettings{
		Enabled: true, Broker: "tcp://broker:1883", Topic: "t",
		Username: "u", Password: "p", Retain: true,
	}

	config := ConfigFromSettings(settings, "id-1")
	assert.Equal(t, "tcp://broker:1883", config.Broker)
	assert.Equal(t, "id-1", config.ClientID)
	assert.Equal(t, "p", config.Password)
	assert.True(t, config.Retain)
	assert.Equal(t, 10*time.Second, config.PublishTimeout)
}

func TestPublishUtterance(t *testing.T) {
	t.Parallel()

	fake := &fakeBroker{}
	c := newTestClient(t, fake)
	require.NoError(t, c.Connect(context.Background()))

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	u := &datastore.Utterance{
		UUID: "u-1", SessionID: "s-1", Sequence: 2,
		Text: "Hello there.", Translation: "Hei siellä.", Language: "fi",
		StartedAt: start, FinalizedAt: start.Add(16 * time.Second),
	}
	require.NoError(t, PublishUtterance(t.Context(), c, u))

	require.Len(t, fake.messages, 1)
	var msg UtteranceMessage
	require.NoError(t, json.Unmarshal(fake.messages[0].payload, &msg))
	assert.Equal(t, "u-1", msg.ID)
	assert.Equal(t, "Hei siellä.", msg.Translation)
	assert.Equal(t, int64(16000), msg.DurationMs)
}
