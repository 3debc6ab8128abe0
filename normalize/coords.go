package normalize

import "fmt"

// CoordKind discriminates the outcome of coordinate extraction
type CoordKind int

const (
	// CoordNone means the report carries no position
	CoordNone CoordKind = iota
	// CoordOK means a valid position was extracted
	CoordOK
	// CoordRejected means a position was present but out of range
	CoordRejected
)

// CoordResult is the outcome of extracting coordinates from a report.
// Callers branch on Kind instead of catching an error.
type CoordResult struct {
	Kind   CoordKind
	Lon    float64
	Lat    float64
	Reason string
}

// ExtractCoordinates pulls the position out of a report and validates
// it against the WGS84 range. A report carrying only one half of the
// coordinate pair is rejected, not treated as positionless.
func ExtractCoordinates(r Report) CoordResult {
	var lon, lat float64
	switch {
	case r.lat != nil && r.lon != nil:
		lon, lat = *r.lon, *r.lat
	case r.lat != nil || r.lon != nil:
		return CoordResult{Kind: CoordRejected, Reason: "incomplete coordinate pair"}
	case r.Location != nil:
		lon = r.Location.Coordinates[0]
		lat = r.Location.Coordinates[1]
	default:
		return CoordResult{Kind: CoordNone}
	}

	if !inRange(lat, lon) {
		return CoordResult{
			Kind:   CoordRejected,
			Reason: fmt.Sprintf("coordinates out of range [%v, %v]", lon, lat),
		}
	}

	return CoordResult{Kind: CoordOK, Lon: lon, Lat: lat}
}

// inRange reports whether the pair is a valid WGS84 position
func inRange(lat, lon float64) bool {
	return lat >= -90 && lat <= 90 && lon >= -180 && lon <= 180
}
