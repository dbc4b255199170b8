package ingest

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/farmgate-io/farmgate/core/csql"
	"github.com/farmgate-io/farmgate/pubsub"
	"github.com/farmgate-io/farmgate/store"
)

// fakeConn records the subscription and exposes the handler so tests can
// push payloads through it.
type fakeConn struct {
	topic   string
	handler pubsub.Handler
	err     error
}

func (c *fakeConn) Subscribe(topic string, h pubsub.Handler) error {
	if c.err != nil {
		return c.err
	}
	c.topic = topic
	c.handler = h
	return nil
}

func (c *fakeConn) Close() error { return nil }

func newTestDispatcher(t *testing.T, conn pubsub.Conn) (*Dispatcher, *store.Store) {
	t.Helper()
	db := csql.OpenMemory()
	t.Cleanup(func() { db.Close() })
	s := store.New(db)
	return NewDispatcher(&Builder{Conn: conn, Topic: "devices/telemetry", Store: s}), s
}

func TestSubscribeStateMachine(t *testing.T) {
	conn := &fakeConn{}
	d, _ := newTestDispatcher(t, conn)

	assert.Equal(t, StateUnsubscribed, d.State())
	require.NoError(t, d.Subscribe())
	assert.Equal(t, StateSubscribed, d.State())
	assert.Equal(t, "devices/telemetry", conn.topic)
}

func TestSubscribeFailureStaysUnsubscribed(t *testing.T) {
	conn := &fakeConn{err: errors.New("broker unavailable")}
	d, _ := newTestDispatcher(t, conn)

	assert.Error(t, d.Subscribe())
	assert.Equal(t, StateUnsubscribed, d.State())
}

func TestDispatchDataMessage(t *testing.T) {
	conn := &fakeConn{}
	d, s := newTestDispatcher(t, conn)
	require.NoError(t, d.Subscribe())

	conn.handler("devices/telemetry",
		[]byte(`{"messageType":"data","temperature":21.5,"humidity":40,"heaterState":"ON","deviceID":"d1","version":"1.0.0"}`))

	rec, err := s.Readings.Last()
	require.NoError(t, err)
	assert.Equal(t, 21.5, rec.Temperature)
	assert.Equal(t, 40.0, rec.Humidity)
	assert.True(t, rec.HeaterState)
	assert.False(t, rec.FanState, "devices do not report a fan state, it is stored as off")
	assert.Equal(t, "d1", rec.DeviceID)
	assert.Equal(t, "1.0.0", rec.FirmwareVersion)
}

func TestDispatchSerialMessage(t *testing.T) {
	conn := &fakeConn{}
	d, s := newTestDispatcher(t, conn)
	require.NoError(t, d.Subscribe())

	conn.handler("devices/telemetry", []byte(`{"messageType":"serial","serialMessage":"boot ok"}`))

	messages, err := s.SerialLog.Latest(0)
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, "boot ok", messages[0].Message)
}

func TestDispatchDiscardsUnknownAndMalformed(t *testing.T) {
	conn := &fakeConn{}
	d, s := newTestDispatcher(t, conn)
	require.NoError(t, d.Subscribe())

	conn.handler("devices/telemetry", []byte(`{"messageType":"unknown"}`))
	conn.handler("devices/telemetry", []byte(`this is not json`))
	conn.handler("devices/telemetry", []byte(`{"messageType":"data","temperature":"hot"}`))

	_, err := s.Readings.Last()
	assert.ErrorIs(t, err, store.ErrNotFound)
	messages, err := s.SerialLog.Latest(0)
	require.NoError(t, err)
	assert.Empty(t, messages)
}

func TestDispatchBroadcastsStoredReadings(t *testing.T) {
	conn := &fakeConn{}
	db := csql.OpenMemory()
	t.Cleanup(func() { db.Close() })
	s := store.New(db)

	var seen []store.Reading
	d := NewDispatcher(&Builder{
		Conn:  conn,
		Topic: "devices/telemetry",
		Store: s,
		Live:  broadcasterFunc(func(r store.Reading) { seen = append(seen, r) }),
	})
	require.NoError(t, d.Subscribe())

	conn.handler("devices/telemetry",
		[]byte(`{"messageType":"data","temperature":19,"humidity":55,"heaterState":"OFF","deviceID":"d2","version":"2.0.0"}`))
	conn.handler("devices/telemetry", []byte(`{"messageType":"unknown"}`))

	require.Len(t, seen, 1)
	assert.Equal(t, "d2", seen[0].DeviceID)
	assert.False(t, seen[0].HeaterState)
}

type broadcasterFunc func(store.Reading)

func (f broadcasterFunc) Broadcast(r store.Reading) { f(r) }
