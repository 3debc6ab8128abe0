package relay

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/ais-data-relay/ais"
	"github.com/SUNET/ais-data-relay/config"
	"github.com/SUNET/ais-data-relay/normalize"
)

func basicAuthHeader(username, password string) http.Header {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return http.Header{"Authorization": {"Basic " + token}}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// wsClientOf returns the hub's single structured subscriber once the
// handshake has registered it
func wsClientOf(t *testing.T, hub *Hub) *WSClient {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		hub.mu.Lock()
		for c := range hub.ws {
			hub.mu.Unlock()
			return c
		}
		hub.mu.Unlock()
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("no WebSocket client registered")
	return nil
}

func locatedReport(mmsi int64, lat, lon float64) normalize.Report {
	return normalize.Report{
		MsgType: 1,
		MMSI:    mmsi,
		Location: &normalize.Location{
			Type:        "Point",
			Coordinates: [2]float64{lon, lat},
		},
	}
}

func TestWSHandler_RejectsUnauthenticated(t *testing.T) {
	gate := NewCredentialGate(true, "admin", "1234")
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewWSHandler(gate, hub, nil))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.Error(t, err)
	require.Nil(t, conn)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "Basic", resp.Header.Get("WWW-Authenticate"))
}

func TestWSHandler_BroadcastReachesSubscriber(t *testing.T) {
	gate := NewCredentialGate(true, "admin", "1234")
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewWSHandler(gate, hub, nil))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), basicAuthHeader("admin", "1234"))
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	wsClientOf(t, hub)
	hub.BroadcastReport(locatedReport(265547250, 58.25, 18.5))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got normalize.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(265547250), got.MMSI)
	require.NotNil(t, got.Location)
	assert.Equal(t, [2]float64{18.5, 58.25}, got.Location.Coordinates)
}

func TestWSHandler_FilterMessage(t *testing.T) {
	gate := NewCredentialGate(false, "", "")
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewWSHandler(gate, hub, nil))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	client := wsClientOf(t, hub)

	filter := `{"type":"filter","bbox":{"min_lat":57.6,"max_lat":59.1,"min_lon":17.6,"max_lon":19.4}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(filter)))

	require.Eventually(t, func() bool {
		return client.Bounds() != nil
	}, 2*time.Second, 10*time.Millisecond, "filter applied by read loop")

	// Outside the box, then inside. Only the second arrives.
	hub.BroadcastReport(locatedReport(111111111, 10.0, 10.0))
	hub.BroadcastReport(locatedReport(222222222, 58.25, 18.5))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got normalize.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(222222222), got.MMSI)
}

func TestWSHandler_FilteredClientSkipsPositionless(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewWSHandler(NewCredentialGate(false, "", ""), hub, nil))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	client := wsClientOf(t, hub)
	client.SetBounds(config.Bounds{MinLat: 57.6, MaxLat: 59.1, MinLon: 17.6, MaxLon: 19.4})

	shipname := "EVER DIADEM"
	hub.BroadcastReport(normalize.Report{MsgType: 5, MMSI: 351759000, ShipName: &shipname})
	hub.BroadcastReport(locatedReport(333333333, 58.0, 18.0))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got normalize.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(333333333), got.MMSI, "positionless report not delivered to filtered client")
}

func TestWSHandler_FilteredClientSkipsOutOfRangePosition(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewWSHandler(NewCredentialGate(false, "", ""), hub, nil))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	defer conn.Close()

	client := wsClientOf(t, hub)
	client.SetBounds(config.Bounds{MinLat: 0, MaxLat: 120, MinLon: 0, MaxLon: 120})

	// lat 111.8 is inside the generous box but not a valid position, so
	// normalization never produces a location it could match on.
	badLat, lon := 111.8, 19.0
	hub.BroadcastReport(normalize.Normalize(ais.Fields{MsgType: 1, MMSI: 999999999, Lat: &badLat, Lon: &lon}))
	hub.BroadcastReport(locatedReport(444444444, 58.0, 18.0))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got normalize.Report
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, int64(444444444), got.MMSI)
}

func TestWSHandler_DisconnectPrunesClient(t *testing.T) {
	hub := NewHub(nil, nil)
	srv := httptest.NewServer(NewWSHandler(NewCredentialGate(false, "", ""), hub, nil))
	defer srv.Close()

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), nil)
	require.NoError(t, err)
	defer resp.Body.Close()

	wsClientOf(t, hub)
	conn.Close()

	require.Eventually(t, func() bool {
		_, ws := hub.Counts()
		return ws == 0
	}, 2*time.Second, 10*time.Millisecond)
}
