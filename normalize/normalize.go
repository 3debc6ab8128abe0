// Package normalize transforms decoded AIS fields into the wire and
// persistence representation used downstream. Normalize is a pure
// function; it never mutates its input and has no failure path.
package normalize

import (
	"encoding/binary"
	"fmt"

	"github.com/SUNET/ais-data-relay/ais"
)

// Location is a GeoJSON-style point. Coordinates are [longitude, latitude].
type Location struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// Report is one normalized vessel report. A present latitude/longitude
// pair is folded into Location; there are no separate lat/lon fields.
type Report struct {
	MsgType     int       `json:"msg_type"`
	MMSI        int64     `json:"mmsi"`
	IMO         *int64    `json:"imo,omitempty"`
	ShipName    *string   `json:"shipname,omitempty"`
	ShipType    *string   `json:"ship_type,omitempty"`
	CallSign    *string   `json:"callsign,omitempty"`
	Destination *string   `json:"destination,omitempty"`
	Location    *Location `json:"location,omitempty"`
	Speed       *float64  `json:"speed,omitempty"`
	Heading     *float64  `json:"heading,omitempty"`
	Course      *float64  `json:"course,omitempty"`
	Draught     *float64  `json:"draught,omitempty"`
	Status      *string   `json:"status,omitempty"`
	Maneuver    *string   `json:"maneuver,omitempty"`
	Spare1      *uint64   `json:"spare_1,omitempty"`
	Spare2      *uint64   `json:"spare_2,omitempty"`
	Data        *string   `json:"data,omitempty"`

	// Raw coordinate halves, kept off the wire. ExtractCoordinates
	// needs them to tell an incomplete pair from an absent position.
	lat *float64
	lon *float64
}

// Normalize flattens decoded fields into a Report. Enum fields become
// their symbolic names, the coordinate pair becomes a single GeoJSON
// point when both halves are numeric and inside the WGS84 range, and
// the two designated spare fields are rendered as big-endian unsigned
// integers with all other binary payloads falling back to a string
// rendering. An out-of-range pair never reaches Location, so downstream
// geo filters cannot match it; the raw halves stay on the report for
// ExtractCoordinates to reject.
func Normalize(f ais.Fields) Report {
	r := Report{
		MsgType:     f.MsgType,
		MMSI:        f.MMSI,
		IMO:         f.IMO,
		ShipName:    f.ShipName,
		CallSign:    f.CallSign,
		Destination: f.Destination,
		Speed:       f.Speed,
		Heading:     f.Heading,
		Course:      f.Course,
		Draught:     f.Draught,
	}

	if f.ShipType != nil {
		name := f.ShipType.Name
		r.ShipType = &name
	}
	if f.Status != nil {
		name := f.Status.Name
		r.Status = &name
	}
	if f.Maneuver != nil {
		name := f.Maneuver.Name
		r.Maneuver = &name
	}

	if f.Lat != nil {
		lat := *f.Lat
		r.lat = &lat
	}
	if f.Lon != nil {
		lon := *f.Lon
		r.lon = &lon
	}
	if r.lat != nil && r.lon != nil && inRange(*r.lat, *r.lon) {
		r.Location = &Location{
			Type:        "Point",
			Coordinates: [2]float64{*r.lon, *r.lat},
		}
	}

	if f.Spare1 != nil {
		v := bytesToUint(f.Spare1)
		r.Spare1 = &v
	}
	if f.Spare2 != nil {
		v := bytesToUint(f.Spare2)
		r.Spare2 = &v
	}
	if f.Data != nil {
		s := fmt.Sprintf("%v", f.Data)
		r.Data = &s
	}

	return r
}

// bytesToUint interprets up to eight bytes as a big-endian unsigned int
func bytesToUint(b []byte) uint64 {
	if len(b) > 8 {
		b = b[len(b)-8:]
	}
	var padded [8]byte
	copy(padded[8-len(b):], b)
	return binary.BigEndian.Uint64(padded[:])
}
