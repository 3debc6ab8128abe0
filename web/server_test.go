package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/ais-data-relay/ais"
	"github.com/SUNET/ais-data-relay/relay"
	"github.com/SUNET/ais-data-relay/storage"
)

func newTestServer(t *testing.T) (*Server, *storage.Rotator) {
	t.Helper()

	rotator, err := storage.NewRotator(context.Background(), storage.RotatorConfig{
		Dir:  t.TempDir(),
		Mode: storage.ModeSnapshot,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rotator.Close() })

	pipeline := relay.NewPipeline(relay.PipelineConfig{
		Upstream:  relay.UpstreamConfig{Host: "127.0.0.1", Port: 1},
		Decoder:   ais.NewNMEADecoder(),
		QueueSize: 16,
		Workers:   1,
		Rotator:   rotator,
	})

	srv := NewServer(ServerConfig{
		Port:     8000,
		Pipeline: pipeline,
		Rotator:  rotator,
		Gate:     relay.NewCredentialGate(true, "admin", "1234"),
	})
	return srv, rotator
}

func TestHandleHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	resp := rec.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var health healthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&health))
	assert.Equal(t, 0, health.TCPClients)
	assert.Equal(t, 0, health.WSClients)
	assert.False(t, health.AISConnected)
	assert.Equal(t, 16, health.QueueSize)
	assert.Equal(t, 0, health.QueueDepth)
}

func TestRequireAuth(t *testing.T) {
	srv, _ := newTestServer(t)

	called := false
	handler := srv.requireAuth(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/db/files", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)

	rec = httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/db/files", nil)
	r.SetBasicAuth("admin", "1234")
	handler(rec, r)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, called)
}

func TestHandleSnapshot(t *testing.T) {
	srv, rotator := newTestServer(t)

	rec := httptest.NewRecorder()
	srv.handleSnapshot(rec, httptest.NewRequest(http.MethodGet, "/db/snapshot", nil))

	resp := rec.Result()
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "ais_snapshot.db")

	// The copy lives at the fixed snapshot path, separate from the live file.
	_, err := os.Stat(rotator.SnapshotPath())
	require.NoError(t, err)
}

func TestHandleFiles(t *testing.T) {
	srv, rotator := newTestServer(t)

	dir := filepath.Dir(rotator.LivePath())
	rotated := filepath.Join(dir, "2026-01-01_deadbeef_ais_db.db")
	require.NoError(t, os.WriteFile(rotated, []byte("old"), 0o644))

	rec := httptest.NewRecorder()
	srv.handleFiles(rec, httptest.NewRequest(http.MethodGet, "/db/files", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var files []dbFileInfo
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &files))
	require.Len(t, files, 2)

	names := []string{files[0].Name, files[1].Name}
	assert.Contains(t, names, filepath.Base(rotator.LivePath()))
	assert.Contains(t, names, "2026-01-01_deadbeef_ais_db.db")
	assert.True(t, files[0].Modified.After(files[1].Modified) || files[0].Modified.Equal(files[1].Modified))
}

func downloadRequest(name string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, "/db/download/x", nil)
	r.SetPathValue("name", name)
	return r
}

func TestHandleDownload(t *testing.T) {
	srv, rotator := newTestServer(t)

	dir := filepath.Dir(rotator.LivePath())
	rotated := "2026-01-01_deadbeef_ais_db.db"
	require.NoError(t, os.WriteFile(filepath.Join(dir, rotated), []byte("rotated data"), 0o644))

	rec := httptest.NewRecorder()
	srv.handleDownload(rec, downloadRequest(rotated))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "rotated data", rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), rotated)
}

func TestHandleDownload_Rejections(t *testing.T) {
	srv, rotator := newTestServer(t)

	tests := []struct {
		name     string
		fileName string
		status   int
	}{
		{"empty", "", http.StatusBadRequest},
		{"path traversal", "../secrets.db", http.StatusBadRequest},
		{"slash", "sub/file.db", http.StatusBadRequest},
		{"wrong extension", "notes.txt", http.StatusBadRequest},
		{"live database", filepath.Base(rotator.LivePath()), http.StatusForbidden},
		{"missing file", "2020-01-01_cafebabe_ais_db.db", http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			srv.handleDownload(rec, downloadRequest(tc.fileName))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestServer_StopBeforeStart(t *testing.T) {
	srv, _ := newTestServer(t)
	assert.Error(t, srv.Stop(time.Second))
}
