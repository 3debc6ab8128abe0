package natsclient

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SUNET/ais-data-relay/errors"
)

func TestClient_Enabled(t *testing.T) {
	assert.False(t, NewClient(Config{}).Enabled())
	assert.True(t, NewClient(Config{URL: "nats://localhost:4222"}).Enabled())
}

func TestClient_PublishWithoutConnection(t *testing.T) {
	client := NewClient(Config{URL: "nats://localhost:4222"})

	assert.False(t, client.IsConnected())

	err := client.Publish("ais.reports", []byte(`{"mmsi":1}`))
	assert.ErrorIs(t, err, errors.ErrNotConnected)
	assert.True(t, errors.IsTransient(err))
}

func TestClient_CloseWithoutConnection(t *testing.T) {
	client := NewClient(Config{URL: "nats://localhost:4222"})
	client.Close()
}
