package relay

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pipeReader drains one end of a net.Pipe so synchronous hub writes on
// the other end can complete
func pipeReader(t *testing.T, conn net.Conn) <-chan []byte {
	t.Helper()
	out := make(chan []byte, 16)
	go func() {
		buf := make([]byte, 512)
		for {
			n, err := conn.Read(buf)
			if err != nil {
				close(out)
				return
			}
			data := make([]byte, n)
			copy(data, buf[:n])
			out <- data
		}
	}()
	return out
}

func recv(t *testing.T, ch <-chan []byte) []byte {
	t.Helper()
	select {
	case data := <-ch:
		return data
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for broadcast")
		return nil
	}
}

func TestHub_BroadcastRaw(t *testing.T) {
	hub := NewHub(nil, nil)

	serverSide, clientSide := net.Pipe()
	defer clientSide.Close()
	received := pipeReader(t, clientSide)

	hub.AddRaw(serverSide)
	tcp, ws := hub.Counts()
	require.Equal(t, 1, tcp)
	require.Equal(t, 0, ws)

	hub.BroadcastRaw([]byte("!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C"))

	assert.Equal(t, "!AIVDM,1,1,,B,177KQJ5000G?tO`K>RA1wUbN0TKH,0*5C\r\n", string(recv(t, received)))
}

func TestHub_BroadcastRaw_PrunesDeadSubscriber(t *testing.T) {
	hub := NewHub(nil, nil)

	deadServer, deadClient := net.Pipe()
	liveServer, liveClient := net.Pipe()
	defer liveClient.Close()
	received := pipeReader(t, liveClient)

	hub.AddRaw(deadServer)
	hub.AddRaw(liveServer)

	// Closing the client end makes the next write to deadServer fail.
	deadClient.Close()

	hub.BroadcastRaw([]byte("line"))

	assert.Equal(t, "line\r\n", string(recv(t, received)))
	tcp, _ := hub.Counts()
	assert.Equal(t, 1, tcp, "dead subscriber pruned")
}

func TestHub_RemoveRaw_ClosesConnection(t *testing.T) {
	hub := NewHub(nil, nil)

	serverSide, clientSide := net.Pipe()
	hub.AddRaw(serverSide)
	hub.RemoveRaw(serverSide)

	tcp, _ := hub.Counts()
	assert.Equal(t, 0, tcp)

	// The peer observes the close as EOF.
	buf := make([]byte, 1)
	_ = clientSide.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, err := clientSide.Read(buf)
	assert.Error(t, err)

	// Removing an unknown connection is a no-op.
	hub.RemoveRaw(serverSide)
}
