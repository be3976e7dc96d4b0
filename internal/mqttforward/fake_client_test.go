package mqttforward

import (
	"errors"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

var errConnectFailed = errors.New("fake: connect failed")

// fakeToken is a Token that is already resolved.
type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	done := make(chan struct{})
	close(done)
	return &fakeToken{err: err, done: done}
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool  { return true }
func (t *fakeToken) Done() <-chan struct{}           { return t.done }
func (t *fakeToken) Error() error                    { return t.err }

// fakeMessage is a minimal mqtt.Message used to drive a subscribe callback
// in tests.
type fakeMessage struct {
	topic    string
	payload  []byte
	retained bool
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 0 }
func (m *fakeMessage) Retained() bool    { return m.retained }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// fakeClient is a minimal mqtt.Client whose Connect/Subscribe immediately
// invoke the handlers registered on ClientOptions, so tests don't need a
// real broker.
type fakeClient struct {
	opts           *mqtt.ClientOptions
	connectErr     error
	retainedOnSub  *fakeMessage // delivered to the Subscribe callback, if any
	published      []publishedMessage
	disconnected   bool
}

type publishedMessage struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

func newFakeClientFactory(connectErr error, retainedOnSub *fakeMessage) (ClientFactory, *[]*fakeClient) {
	var clients []*fakeClient
	factory := func(opts *mqtt.ClientOptions) mqtt.Client {
		c := &fakeClient{opts: opts, connectErr: connectErr, retainedOnSub: retainedOnSub}
		clients = append(clients, c)
		return c
	}
	return factory, &clients
}

func (c *fakeClient) IsConnected() bool       { return !c.disconnected }
func (c *fakeClient) IsConnectionOpen() bool  { return !c.disconnected }

func (c *fakeClient) Connect() mqtt.Token {
	if c.connectErr != nil {
		return newFakeToken(c.connectErr)
	}
	if h := c.opts.OnConnect; h != nil {
		h(c)
	}
	return newFakeToken(nil)
}

func (c *fakeClient) Disconnect(quiesce uint) {
	c.disconnected = true
}

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	var b []byte
	switch p := payload.(type) {
	case []byte:
		b = p
	case string:
		b = []byte(p)
	}
	c.published = append(c.published, publishedMessage{topic: topic, qos: qos, retained: retained, payload: b})
	return newFakeToken(nil)
}

func (c *fakeClient) Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token {
	if c.retainedOnSub != nil && callback != nil {
		c.retainedOnSub.topic = topic
		callback(c, c.retainedOnSub)
	}
	return newFakeToken(nil)
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, callback mqtt.MessageHandler) mqtt.Token {
	return newFakeToken(nil)
}

func (c *fakeClient) Unsubscribe(topics ...string) mqtt.Token {
	return newFakeToken(nil)
}

func (c *fakeClient) AddRoute(topic string, callback mqtt.MessageHandler) {}

func (c *fakeClient) OptionsReader() mqtt.ClientOptionsReader {
	return mqtt.ClientOptionsReader{}
}
