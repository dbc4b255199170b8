// Package pubsub connects the gateway to the publish/subscribe transport
// the devices push their telemetry on. There are currently two possible
// transports: an MQTT broker and a Kafka cluster.
package pubsub

import "fmt"

// Handler receives a single inbound message from the transport.
type Handler func(topic string, payload []byte)

// Conn is a client connection to the pub/sub transport.
type Conn interface {
	// Subscribe attaches h to topic. It returns an error when the
	// subscription was not acknowledged by the transport.
	Subscribe(topic string, h Handler) error
	Close() error
}

// DriverType represents the different types of pub/sub transports
type DriverType string

// DriverTypeMQTT is the MQTT implementation of the transport
const DriverTypeMQTT DriverType = "MQTT"

// DriverTypeKafka is the Kafka implementation of the transport
const DriverTypeKafka DriverType = "Kafka"

// Configuration contains the configuration for the pub/sub transport
type Configuration struct {
	DriverType         DriverType
	MQTTConfiguration  *MQTTConfiguration
	KafkaConfiguration *KafkaConfiguration
}

// NewConn creates a transport connection for the configured driver.
func NewConn(config Configuration) (Conn, error) {
	switch config.DriverType {
	case DriverTypeMQTT:
		if config.MQTTConfiguration == nil {
			return nil, fmt.Errorf("MQTT configuration is missing")
		}
		return NewMQTT(*config.MQTTConfiguration)
	case DriverTypeKafka:
		if config.KafkaConfiguration == nil {
			return nil, fmt.Errorf("kafka configuration is missing")
		}
		return NewKafka(*config.KafkaConfiguration), nil
	}
	return nil, fmt.Errorf("unknown pub/sub driver '%s'", config.DriverType)
}
