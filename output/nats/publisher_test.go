package nats

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/SUNET/ais-data-relay/natsclient"
	"github.com/SUNET/ais-data-relay/normalize"
)

func TestNewPublisher_DefaultSubject(t *testing.T) {
	client := natsclient.NewClient(natsclient.Config{URL: "nats://localhost:4222"})

	p := NewPublisher(client, "", nil)
	assert.Equal(t, DefaultSubject, p.subject)

	p = NewPublisher(client, "ais.custom", nil)
	assert.Equal(t, "ais.custom", p.subject)
}

func TestPublish_DisconnectedClientIsBestEffort(t *testing.T) {
	client := natsclient.NewClient(natsclient.Config{URL: "nats://localhost:4222"})
	p := NewPublisher(client, "", nil)

	// The publish fails without a connection and must not panic.
	p.Publish(normalize.Report{MsgType: 1, MMSI: 265547250})
}
