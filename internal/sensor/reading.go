// v1
// internal/sensor/reading.go
package sensor

import (
	"strconv"
)

// Value is a measurement serialized with exactly one decimal place,
// matching the precision the generator stores between ticks.
type Value float64

// MarshalJSON renders the value in fixed-point form so 27 appears on
// the wire as 27.0 rather than an integer literal.
func (v Value) MarshalJSON() ([]byte, error) {
	return strconv.AppendFloat(nil, float64(v), 'f', 1, 64), nil
}

// Reading is one telemetry sample for a site. DeviceID carries the
// stable site key and Location the operator-facing name. Timestamp is
// RFC 3339 in UTC.
type Reading struct {
	DeviceID            string `json:"deviceId"`
	Location            string `json:"location"`
	Timestamp           string `json:"timestamp"`
	IceThickness        Value  `json:"iceThickness"`
	SurfaceTemperature  Value  `json:"surfaceTemperature"`
	SnowAccumulation    Value  `json:"snowAccumulation"`
	ExternalTemperature Value  `json:"externalTemperature"`
}
