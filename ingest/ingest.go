// Package ingest subscribes to the telemetry topic and routes inbound
// device messages into the persistence layer.
package ingest

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/farmgate-io/farmgate/core/logger"
	"github.com/farmgate-io/farmgate/core/schema"
	"github.com/farmgate-io/farmgate/pubsub"
	"github.com/farmgate-io/farmgate/store"
)

// State is the subscription state of the dispatcher.
type State string

// StateUnsubscribed is the initial state, and the state after a failed
// subscription.
const StateUnsubscribed State = "Unsubscribed"

// StateSubscribed is entered when the transport acknowledged the topic
// subscription.
const StateSubscribed State = "Subscribed"

const telemetrySchemaID = "farmgate:telemetry"

// telemetrySchema describes the payload of "data" messages. Devices do not
// report a fan state.
const telemetrySchema = `{
	"$id": "farmgate:telemetry",
	"type": "object",
	"properties": {
		"messageType": { "const": "data" },
		"temperature": { "type": "number" },
		"humidity":    { "type": "number" },
		"heaterState": { "type": "string" },
		"deviceID":    { "type": "string" },
		"version":     { "type": "string" }
	},
	"required": ["messageType", "temperature", "humidity", "deviceID"]
}`

// Broadcaster receives every successfully stored reading, e.g. for live
// streaming to websocket clients.
type Broadcaster interface {
	Broadcast(store.Reading)
}

// Builder is a builder helper for the Dispatcher
type Builder struct {
	// Conn is the pub/sub transport connection. This is mandatory.
	Conn pubsub.Conn
	// Topic is the single telemetry topic. This is mandatory.
	Topic string
	// Store is the gateway persistence layer. This is mandatory.
	Store *store.Store
	// Live is an optional broadcaster for stored readings.
	Live Broadcaster
}

// Dispatcher parses inbound payloads, classifies them by message type and
// routes them to the persistence layer.
type Dispatcher struct {
	conn      pubsub.Conn
	topic     string
	store     *store.Store
	live      Broadcaster
	validator *schema.Validator
	state     State
}

// NewDispatcher returns a new dispatcher in the unsubscribed state.
func NewDispatcher(b *Builder) *Dispatcher {
	if b.Conn == nil {
		panic("Conn is missing")
	}
	if len(b.Topic) == 0 {
		panic("Topic is missing")
	}
	if b.Store == nil {
		panic("Store is missing")
	}

	validator, err := schema.NewValidator([]string{telemetrySchema}, nil)
	if err != nil {
		panic(err)
	}

	return &Dispatcher{
		conn:      b.Conn,
		topic:     b.Topic,
		store:     b.Store,
		live:      b.Live,
		validator: validator,
		state:     StateUnsubscribed,
	}
}

// Subscribe attaches the dispatcher to its topic. On failure the dispatcher
// stays unsubscribed; there is no automatic retry.
func (d *Dispatcher) Subscribe() error {
	err := d.conn.Subscribe(d.topic, d.dispatch)
	if err != nil {
		logger.Default().WithError(err).WithField("topic", d.topic).
			Error("cannot subscribe to telemetry topic")
		return err
	}
	d.state = StateSubscribed
	logger.Default().WithField("topic", d.topic).Info("subscribed to telemetry topic")
	return nil
}

// State returns the current subscription state.
func (d *Dispatcher) State() State {
	return d.state
}

type envelope struct {
	MessageType   string  `json:"messageType"`
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	HeaterState   string  `json:"heaterState"`
	DeviceID      string  `json:"deviceID"`
	Version       string  `json:"version"`
	SerialMessage string  `json:"serialMessage"`
}

// dispatch handles a single inbound message. Malformed payloads are logged
// and discarded; processing errors never propagate back to the transport.
func (d *Dispatcher) dispatch(topic string, payload []byte) {
	rlog := logger.Default().WithField("topic", topic)

	var msg envelope
	if err := json.Unmarshal(payload, &msg); err != nil {
		rlog.WithError(err).Warn("discarding unparsable payload")
		return
	}

	switch msg.MessageType {
	case "data":
		if err := d.validator.ValidateBytes(payload, telemetrySchemaID); err != nil {
			rlog.WithError(err).Warn("discarding invalid data payload")
			return
		}
		heaterState := msg.HeaterState == "ON"
		// the inbound schema has no fan field, the fan state is stored as off
		if err := d.store.Readings.Insert(
			msg.Temperature, msg.Humidity, false, heaterState, msg.DeviceID, msg.Version); err != nil {
			return
		}
		if d.live != nil {
			d.live.Broadcast(store.Reading{
				Temperature:     msg.Temperature,
				Humidity:        msg.Humidity,
				FanState:        false,
				HeaterState:     heaterState,
				DeviceID:        msg.DeviceID,
				FirmwareVersion: msg.Version,
				Timestamp:       time.Now().UTC(),
			})
		}
	case "serial":
		if err := d.store.SerialLog.Insert(msg.SerialMessage); err != nil {
			rlog.WithError(err).Warn("cannot store serial message")
		}
	default:
		rlog.WithField("messageType", msg.MessageType).Warn("discarding message of unknown type")
	}
}
