// Package mqtt bridges the session to a native shell over MQTT: remote
// media elements and a remote-control topic.
package mqtt

import (
	"log"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

const opTimeout = 10 * time.Second

// Bus is the part of the client the bridge components need.
type Bus interface {
	Subscribe(topic string, handler paho.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte) error
}

// Options configures a Client.
type Options struct {
	Broker   string
	ClientID string
	// OnConnect runs after every successful (re)connect.
	OnConnect func()
	// OnConnectionLost runs when the broker connection drops.
	OnConnectionLost func(err error)
}

// Client wraps the Paho MQTT client.
type Client struct {
	client paho.Client
	broker string
	mu     sync.Mutex
}

// BrokerURL returns the broker from MQTT_URL, then fallback, then the
// local default.
func BrokerURL(fallback string) string {
	if url := os.Getenv("MQTT_URL"); url != "" {
		return url
	}
	if fallback != "" {
		return fallback
	}
	return "tcp://localhost:1883"
}

// NewClient creates a new MQTT client but does not connect.
func NewClient(o Options) *Client {
	broker := BrokerURL(o.Broker)
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second)
	if o.OnConnect != nil {
		opts.SetOnConnectHandler(func(paho.Client) { o.OnConnect() })
	}
	if o.OnConnectionLost != nil {
		opts.SetConnectionLostHandler(func(_ paho.Client, err error) { o.OnConnectionLost(err) })
	}

	return &Client{
		client: paho.NewClient(opts),
		broker: broker,
	}
}

// Broker returns the broker URL the client was built for.
func (c *Client) Broker() string { return c.broker }

// Connect attempts to connect to the broker.
// Returns an error if connection fails, but does not block indefinitely.
func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Connect()
	if !token.WaitTimeout(opTimeout) {
		return &ConnectTimeoutError{}
	}
	return token.Error()
}

// Subscribe subscribes to a topic with the given handler.
func (c *Client) Subscribe(topic string, handler paho.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Subscribe(topic, 1, handler)
	if !token.WaitTimeout(opTimeout) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Unsubscribe drops a subscription.
func (c *Client) Unsubscribe(topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := c.client.Unsubscribe(topic)
	if !token.WaitTimeout(opTimeout) {
		return &SubscribeTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Publish sends payload at QoS 1, not retained.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.client.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(opTimeout) {
		return &PublishTimeoutError{Topic: topic}
	}
	return token.Error()
}

// Disconnect cleanly disconnects from the broker.
func (c *Client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.client.Disconnect(1000)
}

// IsConnected returns true if the client is connected.
func (c *Client) IsConnected() bool {
	return c.client.IsConnected()
}

// ConnectTimeoutError indicates connection timed out.
type ConnectTimeoutError struct{}

func (e *ConnectTimeoutError) Error() string {
	return "mqtt connect timeout"
}

// SubscribeTimeoutError indicates subscription timed out.
type SubscribeTimeoutError struct {
	Topic string
}

func (e *SubscribeTimeoutError) Error() string {
	return "mqtt subscribe timeout: " + e.Topic
}

// PublishTimeoutError indicates a publish was not acknowledged in time.
type PublishTimeoutError struct {
	Topic string
}

func (e *PublishTimeoutError) Error() string {
	return "mqtt publish timeout: " + e.Topic
}

// Start connects, logging instead of failing hard.
// Returns true if connected, false otherwise.
func (c *Client) Start() bool {
	if err := c.Connect(); err != nil {
		log.Printf("[mqtt] failed to connect to %s: %v", c.broker, err)
		return false
	}
	log.Printf("[mqtt] connected to %s", c.broker)
	return true
}
