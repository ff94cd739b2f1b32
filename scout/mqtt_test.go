package scout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batchRecorder struct {
	mu      sync.Mutex
	topics  []string
	batches []*ResultBatch
	errs    []error
}

func (r *batchRecorder) handle(topic string, batch *ResultBatch, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.topics = append(r.topics, topic)
	r.batches = append(r.batches, batch)
	r.errs = append(r.errs, err)
}

func TestInitMQTT_Disabled(t *testing.T) {
	t.Setenv("MQTT_BROKER", "")

	client, err := InitMQTT(context.Background(), MQTTConfig{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, client)
}

func TestMQTTClient_OnConnectSubscribes(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	rec := &batchRecorder{}

	c := newMQTTClientWithMock(mock, MQTTConfig{ResultsTopic: "fieldscout/results"}, rec.handle)
	assert.False(t, c.IsConnected())

	c.onConnect(mock)
	assert.True(t, c.IsConnected())

	mock.SimulateMessage("fieldscout/results", []byte(sampleBatch))

	require.Len(t, rec.batches, 1)
	assert.Equal(t, "fieldscout/results", rec.topics[0])
	require.NoError(t, rec.errs[0])
	assert.Len(t, rec.batches[0].Results, 2)
	assert.Equal(t, "Blight detected in the north-east corner.", rec.batches[0].Insights)
}

func TestMQTTClient_BadPayload(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	rec := &batchRecorder{}

	c := newMQTTClientWithMock(mock, MQTTConfig{ResultsTopic: "results"}, rec.handle)
	c.onConnect(mock)

	mock.SimulateMessage("results", []byte("{broken"))

	require.Len(t, rec.errs, 1)
	assert.Error(t, rec.errs[0])
	assert.Nil(t, rec.batches[0])
}

func TestMQTTClient_NoResultsTopic(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnected(true)
	rec := &batchRecorder{}

	c := newMQTTClientWithMock(mock, MQTTConfig{}, rec.handle)
	c.onConnect(mock)
	assert.True(t, c.IsConnected())

	mock.SimulateMessage("", []byte(sampleBatch))
	mock.SimulateMessage("fieldscout/results", []byte(sampleBatch))
	assert.Empty(t, rec.batches)
}

func TestMQTTClient_ConnectionLifecycle(t *testing.T) {
	mock := NewMockClient()
	c := newMQTTClientWithMock(mock, MQTTConfig{}, nil)

	c.connectWithRetry(context.Background())
	assert.True(t, c.IsConnected())
	assert.True(t, mock.IsConnected())

	c.onConnectionLost(mock, errors.New("broker went away"))
	assert.False(t, c.IsConnected())

	mock.SetConnected(true)
	c.setConnected(true)
	c.Disconnect()
	assert.False(t, c.IsConnected())
	assert.False(t, mock.IsConnected())
	assert.Same(t, mock, c.GetClient())
}

func TestMQTTClient_ConnectRetryStopsOnCancel(t *testing.T) {
	mock := NewMockClient()
	mock.SetConnectError(errors.New("connection refused"))
	c := newMQTTClientWithMock(mock, MQTTConfig{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c.connectWithRetry(ctx)
	assert.False(t, c.IsConnected())
}
