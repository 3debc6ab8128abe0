package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/ais-data-relay/errors"
)

func TestReadLineLimited(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_, _ = client.Write([]byte("admin\n"))
	}()

	line, err := readLineLimited(server, 64, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, "admin\n", string(line))
}

func TestReadLineLimited_TooLong(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	go func() {
		_, _ = client.Write([]byte("aaaaaaaaaaaaaaaaaaaaa\n"))
	}()

	_, err := readLineLimited(server, 8, 2*time.Second)
	assert.ErrorIs(t, err, errors.ErrLineTooLong)
}

func TestReadLineLimited_Timeout(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	_, err := readLineLimited(server, 64, 100*time.Millisecond)
	assert.ErrorIs(t, err, errors.ErrAuthTimeout)
}

func TestReadLineLimited_PeerClosed(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	client.Close()

	_, err := readLineLimited(server, 64, 2*time.Second)
	assert.ErrorIs(t, err, errors.ErrConnectionLost)
}
