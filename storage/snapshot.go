package storage

import (
	"context"
	"time"
)

// snapshotStore keeps a single flattened vessels table holding the latest
// known identity and state per MMSI, updated in place.
type snapshotStore struct {
	sqliteStore
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS vessels (
    mmsi TEXT PRIMARY KEY,
    imo TEXT,
    ship_name TEXT,
    ship_type TEXT,
    latitude REAL,
    longitude REAL,
    speed REAL,
    heading REAL,
    course REAL,
    draught REAL,
    status TEXT,
    call_sign TEXT,
    destination TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    CONSTRAINT imo_mmsi_uniq UNIQUE (mmsi, imo)
);

CREATE INDEX IF NOT EXISTS idx_states_mmsi
    ON vessels(mmsi);
`

func (s *snapshotStore) Init(ctx context.Context) error {
	return s.initSchema(ctx, snapshotSchema)
}

func (s *snapshotStore) CreateVessel(ctx context.Context, v Vessel) error {
	const query = `
INSERT INTO vessels (mmsi, imo, ship_name, ship_type)
VALUES (?, ?, ?, ?)
ON CONFLICT(mmsi) DO UPDATE SET
    imo        = COALESCE(excluded.imo, imo),
    ship_name  = COALESCE(excluded.ship_name, ship_name),
    ship_type  = COALESCE(excluded.ship_type, ship_type),
    updated_at = datetime('now')`
	return s.exec(ctx, "snapshotStore", "CreateVessel", query,
		[]any{v.MMSI, textArg(v.IMO), textArg(v.ShipName), textArg(v.ShipType)})
}

// CreateVesselState folds the dynamic fields into the vessel's single row,
// keeping the latest non-nil value per column
func (s *snapshotStore) CreateVesselState(ctx context.Context, st VesselState) error {
	const query = `
INSERT INTO vessels
    (mmsi, latitude, longitude, speed, heading, course,
     draught, status, call_sign, destination)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(mmsi) DO UPDATE SET
    latitude    = COALESCE(excluded.latitude, latitude),
    longitude   = COALESCE(excluded.longitude, longitude),
    speed       = COALESCE(excluded.speed, speed),
    heading     = COALESCE(excluded.heading, heading),
    course      = COALESCE(excluded.course, course),
    draught     = COALESCE(excluded.draught, draught),
    status      = COALESCE(excluded.status, status),
    call_sign   = COALESCE(excluded.call_sign, call_sign),
    destination = COALESCE(excluded.destination, destination),
    updated_at  = datetime('now')`
	return s.exec(ctx, "snapshotStore", "CreateVesselState", query, []any{
		st.VesselMMSI,
		realArg(st.Latitude), realArg(st.Longitude),
		realArg(st.Speed), realArg(st.Heading), realArg(st.Course), realArg(st.Draught),
		textArg(st.Status), textArg(st.CallSign), textArg(st.Destination),
	})
}

func (s *snapshotStore) RecentRows(ctx context.Context, maxAge time.Duration) ([]string, [][]string, error) {
	const query = `
SELECT
    mmsi AS MMSI,
    imo AS IMO,
    latitude AS LAT,
    longitude AS LON,
    speed AS SPEED,
    heading AS HEADING,
    course AS COURSE,
    status AS STATUS,
    strftime('%Y-%m-%dT%H:%M:%f', 'now') || '+00:00' AS TIMESTAMP,
    ship_name AS SHIPNAME,
    ship_type AS TYPE_NAME,
    call_sign AS CALLSIGN,
    draught AS DRAUGHT,
    destination AS DESTINATION
FROM vessels
WHERE updated_at >= datetime('now', ?)
  AND latitude IS NOT NULL
  AND longitude IS NOT NULL
ORDER BY updated_at`
	return s.queryRows(ctx, query, []any{ageInterval(maxAge)})
}
