package export

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SUNET/ais-data-relay/storage"
)

func newTestExporter(t *testing.T, interval time.Duration) (*CSVExporter, *storage.Rotator, string) {
	t.Helper()

	rotator, err := storage.NewRotator(context.Background(), storage.RotatorConfig{
		Dir:  t.TempDir(),
		Mode: storage.ModeSnapshot,
	})
	require.NoError(t, err)
	t.Cleanup(func() { rotator.Close() })

	path := filepath.Join(t.TempDir(), "vessels.csv")
	exporter := NewCSVExporter(rotator, Config{Path: path, Interval: interval})
	return exporter, rotator, path
}

func seedVessel(t *testing.T, rotator *storage.Rotator) {
	t.Helper()

	ctx := context.Background()
	gw := rotator.Gateway()

	name := "ESTELLE"
	lat, lon, speed := 58.5, 18.2, 10.0
	require.NoError(t, gw.CreateVessel(ctx, storage.Vessel{MMSI: "265547250", ShipName: &name}))
	require.NoError(t, gw.CreateVesselState(ctx, storage.VesselState{
		VesselMMSI: "265547250",
		Latitude:   &lat,
		Longitude:  &lon,
		Speed:      &speed,
	}))
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return records
}

func TestExport_WritesHeaderAndRows(t *testing.T) {
	exporter, rotator, path := newTestExporter(t, 0)
	seedVessel(t, rotator)

	require.NoError(t, exporter.Export(context.Background()))

	records := readCSV(t, path)
	require.Len(t, records, 2)

	header := records[0]
	row := records[1]
	require.Equal(t, len(header), len(row))

	byCol := make(map[string]string, len(header))
	for i, col := range header {
		byCol[col] = row[i]
	}
	assert.Equal(t, "265547250", byCol["MMSI"])
	assert.Equal(t, "ESTELLE", byCol["SHIPNAME"])
	assert.Equal(t, "58.5", byCol["LAT"])
	assert.Equal(t, "18.2", byCol["LON"])
	assert.Equal(t, "10.0", byCol["SPEED"])
}

func TestExport_EmptyDatabaseStillWritesHeader(t *testing.T) {
	exporter, _, path := newTestExporter(t, 0)

	require.NoError(t, exporter.Export(context.Background()))

	records := readCSV(t, path)
	require.Len(t, records, 1)
	assert.Contains(t, records[0], "MMSI")
	assert.Contains(t, records[0], "TIMESTAMP")
}

func TestExport_ReplacesPreviousFile(t *testing.T) {
	exporter, rotator, path := newTestExporter(t, 0)

	require.NoError(t, os.WriteFile(path, []byte("stale content"), 0o644))
	seedVessel(t, rotator)

	require.NoError(t, exporter.Export(context.Background()))

	records := readCSV(t, path)
	require.Len(t, records, 2)

	// The temp file used for the atomic write is gone.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(path), entries[0].Name())
}

func TestExporter_DisabledLifecycle(t *testing.T) {
	exporter, _, _ := newTestExporter(t, 0)

	assert.False(t, exporter.Enabled())
	assert.NoError(t, exporter.Start(context.Background()))
	assert.NoError(t, exporter.Stop(time.Second))
}

func TestExporter_PeriodicExport(t *testing.T) {
	exporter, rotator, path := newTestExporter(t, 50*time.Millisecond)
	seedVessel(t, rotator)

	require.True(t, exporter.Enabled())
	require.NoError(t, exporter.Start(context.Background()))
	defer exporter.Stop(time.Second)

	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return err == nil
	}, 2*time.Second, 20*time.Millisecond, "exporter wrote the file on its own")
}
