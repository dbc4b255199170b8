package pubsub

import (
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/farmgate-io/farmgate/core/logger"
)

// SubscribeQoS is the MQTT Quality of Service level for subscriptions.
// 1: the broker delivers each message at least once, with confirmation required.
var SubscribeQoS byte = 0x01

// MQTTConfiguration contains the connection settings for the MQTT broker
type MQTTConfiguration struct {
	// Protocol is the broker URL scheme, e.g. "tcp" or "ssl"
	Protocol string
	Host     string
	Port     int
	Username string
	Password string
	// ClientID identifies this gateway towards the broker
	ClientID string
}

// MQTT is the MQTT implementation of the Conn interface
type MQTT struct {
	client paho.Client
}

// NewMQTT connects to the configured broker. Connection lifecycle events
// are logged only; there is no reconnection policy beyond what the client
// library provides.
func NewMQTT(config MQTTConfiguration) (*MQTT, error) {
	broker := fmt.Sprintf("%s://%s:%d", config.Protocol, config.Host, config.Port)
	rlog := logger.Default().WithField("broker", broker)

	opts := paho.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(config.ClientID)
	opts.SetUsername(config.Username)
	opts.SetPassword(config.Password)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(func(paho.Client) {
		rlog.Info("connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		rlog.WithError(err).Warn("connection to MQTT broker lost")
	})
	opts.SetDefaultPublishHandler(func(_ paho.Client, msg paho.Message) {
		rlog.WithField("topic", msg.Topic()).Warn("received unhandled MQTT message")
	})

	client := paho.NewClient(opts)
	token := client.Connect()
	if token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("cannot connect to MQTT broker %s: %w", broker, token.Error())
	}
	return &MQTT{client: client}, nil
}

// Subscribe attaches h to topic and waits for the broker's acknowledgment.
func (c *MQTT) Subscribe(topic string, h Handler) error {
	token := c.client.Subscribe(topic, SubscribeQoS, func(_ paho.Client, msg paho.Message) {
		h(msg.Topic(), msg.Payload())
	})
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("cannot subscribe to topic %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the broker.
func (c *MQTT) Close() error {
	c.client.Disconnect(250)
	return nil
}
