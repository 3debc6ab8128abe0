package storage

import (
	"context"
	"time"
)

// historyStore keeps vessel identity in a vessels table and appends every
// dynamic fix to vessel_states, preserving the full movement history.
type historyStore struct {
	sqliteStore
}

const historySchema = `
CREATE TABLE IF NOT EXISTS vessels (
    mmsi TEXT PRIMARY KEY,
    imo TEXT,
    ship_name TEXT,
    ship_type TEXT,
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),
    CONSTRAINT imo_mmsi_uniq UNIQUE (mmsi, imo)
);

CREATE TABLE IF NOT EXISTS vessel_states (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    vessel_mmsi TEXT,
    latitude REAL,
    longitude REAL,
    speed REAL,
    heading REAL,
    course REAL,
    draught REAL,
    status TEXT,
    call_sign TEXT,
    destination TEXT,
    received_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now')),

    FOREIGN KEY (vessel_mmsi)
        REFERENCES vessels (mmsi)
        ON DELETE SET NULL
        ON UPDATE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_states_mmsi
    ON vessel_states(vessel_mmsi);
`

func (h *historyStore) Init(ctx context.Context) error {
	return h.initSchema(ctx, historySchema)
}

// CreateVessel upserts the identity row. Absent fields never overwrite
// previously known values.
func (h *historyStore) CreateVessel(ctx context.Context, v Vessel) error {
	const query = `
INSERT INTO vessels (mmsi, imo, ship_name, ship_type)
VALUES (?, ?, ?, ?)
ON CONFLICT(mmsi) DO UPDATE SET
    imo        = COALESCE(excluded.imo, imo),
    ship_name  = COALESCE(excluded.ship_name, ship_name),
    ship_type  = COALESCE(excluded.ship_type, ship_type),
    updated_at = datetime('now')`
	return h.exec(ctx, "historyStore", "CreateVessel", query,
		[]any{v.MMSI, textArg(v.IMO), textArg(v.ShipName), textArg(v.ShipType)})
}

// CreateVesselState appends one dynamic fix, creating a bare identity row
// first if the vessel has never been seen
func (h *historyStore) CreateVesselState(ctx context.Context, s VesselState) error {
	if err := h.exec(ctx, "historyStore", "CreateVesselState",
		"INSERT OR IGNORE INTO vessels (mmsi) VALUES (?)",
		[]any{s.VesselMMSI}); err != nil {
		return err
	}

	const query = `
INSERT INTO vessel_states
    (vessel_mmsi, latitude, longitude, speed, heading, course,
     draught, status, call_sign, destination, received_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))`
	return h.exec(ctx, "historyStore", "CreateVesselState", query, []any{
		s.VesselMMSI,
		realArg(s.Latitude), realArg(s.Longitude),
		realArg(s.Speed), realArg(s.Heading), realArg(s.Course), realArg(s.Draught),
		textArg(s.Status), textArg(s.CallSign), textArg(s.Destination),
	})
}

func (h *historyStore) RecentRows(ctx context.Context, maxAge time.Duration) ([]string, [][]string, error) {
	const query = `
SELECT
    vessels.mmsi AS MMSI,
    vessels.imo AS IMO,
    states.latitude AS LAT,
    states.longitude AS LON,
    states.speed AS SPEED,
    states.heading AS HEADING,
    states.course AS COURSE,
    states.status AS STATUS,
    strftime('%Y-%m-%dT%H:%M:%f', 'now') || '+00:00' AS TIMESTAMP,
    vessels.ship_name AS SHIPNAME,
    vessels.ship_type AS TYPE_NAME,
    states.call_sign AS CALLSIGN,
    states.draught AS DRAUGHT,
    states.destination AS DESTINATION
FROM vessels
JOIN vessel_states AS states
    ON vessels.mmsi = states.vessel_mmsi
WHERE states.updated_at >= datetime('now', ?)
  AND states.latitude IS NOT NULL
  AND states.longitude IS NOT NULL
ORDER BY states.updated_at`
	return h.queryRows(ctx, query, []any{ageInterval(maxAge)})
}
