// Package storage persists vessel reports to SQLite. The pipeline talks
// to the narrow Gateway interface; two implementations exist, one keeping
// a full state history and one keeping only the latest snapshot per
// vessel. The Rotator swaps the live database on a schedule.
package storage

import (
	"context"
	"strconv"
	"time"

	"github.com/SUNET/ais-data-relay/normalize"
)

// Vessel is the static identity row, keyed by MMSI
type Vessel struct {
	MMSI     string
	IMO      *string
	ShipName *string
	ShipType *string
}

// VesselState is one dynamic fix for a vessel
type VesselState struct {
	VesselMMSI  string
	Latitude    *float64
	Longitude   *float64
	Speed       *float64
	Heading     *float64
	Course      *float64
	Draught     *float64
	Status      *string
	CallSign    *string
	Destination *string
}

// Gateway is the persistence contract the pipeline consumes. CreateVessel
// upserts identity (last-write-wins on non-nil fields); CreateVesselState
// records dynamic state, either appended or folded in place depending on
// the implementation. RecentRows returns the flattened recent-vessel view
// used by the CSV exporter.
type Gateway interface {
	Init(ctx context.Context) error
	CreateVessel(ctx context.Context, v Vessel) error
	CreateVesselState(ctx context.Context, s VesselState) error
	RecentRows(ctx context.Context, maxAge time.Duration) (cols []string, rows [][]string, err error)
	Path() string
	Close() error
}

// VesselFromReport extracts the static identity fields from a report
func VesselFromReport(r normalize.Report) Vessel {
	v := Vessel{
		MMSI:     strconv.FormatInt(r.MMSI, 10),
		ShipName: r.ShipName,
		ShipType: r.ShipType,
	}
	if r.IMO != nil {
		imo := strconv.FormatInt(*r.IMO, 10)
		v.IMO = &imo
	}
	return v
}

// StateFromReport extracts the dynamic state fields from a report. The
// coordinates come from the already-validated extraction result rather
// than the report's location field.
func StateFromReport(r normalize.Report, coords normalize.CoordResult) VesselState {
	s := VesselState{
		VesselMMSI:  strconv.FormatInt(r.MMSI, 10),
		Speed:       r.Speed,
		Heading:     r.Heading,
		Course:      r.Course,
		Draught:     r.Draught,
		Status:      r.Status,
		CallSign:    r.CallSign,
		Destination: r.Destination,
	}
	if coords.Kind == normalize.CoordOK {
		lat, lon := coords.Lat, coords.Lon
		s.Latitude = &lat
		s.Longitude = &lon
	}
	return s
}
