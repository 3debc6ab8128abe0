package ais

// navigationStatus maps the 4-bit navigational status codes of the
// position reports to their symbolic names
var navigationStatus = map[int]string{
	0:  "Under way using engine",
	1:  "At anchor",
	2:  "Not under command",
	3:  "Restricted manoeuvrability",
	4:  "Constrained by her draught",
	5:  "Moored",
	6:  "Aground",
	7:  "Engaged in fishing",
	8:  "Under way sailing",
	9:  "Reserved for HSC",
	10: "Reserved for WIG",
	11: "Power-driven vessel towing astern",
	12: "Power-driven vessel pushing ahead",
	13: "Reserved",
	14: "AIS-SART active",
	15: "Not defined",
}

var maneuverIndicator = map[int]string{
	0: "Not available",
	1: "No special maneuver",
	2: "Special maneuver",
}

func statusEnum(code int) *Enum {
	name, ok := navigationStatus[code]
	if !ok {
		name = "Unknown"
	}
	return &Enum{Value: code, Name: name}
}

func maneuverEnum(code int) *Enum {
	name, ok := maneuverIndicator[code]
	if !ok {
		name = "Unknown"
	}
	return &Enum{Value: code, Name: name}
}

func shipTypeEnum(code int) *Enum {
	if code == 0 {
		return nil
	}
	return &Enum{Value: code, Name: shipTypeName(code)}
}

// shipTypeName renders the 8-bit ship and cargo type code. The second
// digit of the 20..90 ranges selects a cargo category the relay does
// not distinguish beyond the base class.
func shipTypeName(code int) string {
	switch {
	case code >= 20 && code <= 29:
		return "Wing in ground"
	case code == 30:
		return "Fishing"
	case code == 31 || code == 32:
		return "Towing"
	case code == 33:
		return "Dredging or underwater ops"
	case code == 34:
		return "Diving ops"
	case code == 35:
		return "Military ops"
	case code == 36:
		return "Sailing"
	case code == 37:
		return "Pleasure craft"
	case code >= 40 && code <= 49:
		return "High speed craft"
	case code == 50:
		return "Pilot vessel"
	case code == 51:
		return "Search and rescue vessel"
	case code == 52:
		return "Tug"
	case code == 53:
		return "Port tender"
	case code == 54:
		return "Anti-pollution equipment"
	case code == 55:
		return "Law enforcement"
	case code == 58:
		return "Medical transport"
	case code >= 60 && code <= 69:
		return "Passenger"
	case code >= 70 && code <= 79:
		return "Cargo"
	case code >= 80 && code <= 89:
		return "Tanker"
	case code >= 90 && code <= 99:
		return "Other type"
	default:
		return "Not available"
	}
}
