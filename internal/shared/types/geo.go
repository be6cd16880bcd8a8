package types

import (
	"fmt"
	"math"
	"regexp"
)

// GeoPoint is a WGS84 coordinate pair.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

const earthRadiusKm = 6371

// DistanceKm returns the great-circle distance to other in kilometers
// using the haversine formula.
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	lat1 := p.Lat * math.Pi / 180
	lat2 := other.Lat * math.Pi / 180
	dLat := (other.Lat - p.Lat) * math.Pi / 180
	dLon := (other.Lon - p.Lon) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Asin(math.Sqrt(a))

	return earthRadiusKm * c
}

// IsZero reports whether the point is the unset zero value.
func (p GeoPoint) IsZero() bool {
	return p.Lat == 0 && p.Lon == 0
}

// Pincode is a 6-digit Indian postal code.
type Pincode string

var pincodeRegex = regexp.MustCompile(`^\d{6}$`)

// ParsePincode validates a pincode string. Non-digit characters are not
// stripped here; callers sanitize first (see SanitizePincode).
func ParsePincode(s string) (Pincode, error) {
	if !pincodeRegex.MatchString(s) {
		return "", fmt.Errorf("pincode must be exactly 6 digits")
	}
	return Pincode(s), nil
}

var nonDigitRegex = regexp.MustCompile(`\D`)

// SanitizePincode strips non-digit characters and validates the result.
// Returns the empty Pincode when the input does not contain a 6-digit code.
func SanitizePincode(s string) Pincode {
	digits := nonDigitRegex.ReplaceAllString(s, "")
	if pc, err := ParsePincode(digits); err == nil {
		return pc
	}
	return ""
}

// String returns the string representation.
func (p Pincode) String() string {
	return string(p)
}

// IsZero checks if the pincode is empty.
func (p Pincode) IsZero() bool {
	return p == ""
}
