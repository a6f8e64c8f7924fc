// v1
// internal/sensor/generator.go
package sensor

import (
	"math"
	"math/rand"
	"time"
)

// Generator produces the reading series for one site. The first call
// seeds every channel from its seed band and emits those values as-is;
// later calls drift from the previous value, clamp to the channel
// bounds, and round to one decimal before storing and emitting. A
// Generator is owned by a single goroutine and performs no locking.
type Generator struct {
	deviceID string
	location string
	rng      *rand.Rand
	values   map[string]float64
	seeded   bool
	now      func() time.Time
}

// NewGenerator builds a generator for the given site identity. The
// rand source is injected so tests can fix the series.
func NewGenerator(deviceID, location string, rng *rand.Rand) *Generator {
	return &Generator{
		deviceID: deviceID,
		location: location,
		rng:      rng,
		values:   make(map[string]float64, len(Channels)),
		now:      time.Now,
	}
}

// Next advances every channel one step and returns the resulting
// reading stamped with the current UTC time.
func (g *Generator) Next() Reading {
	if !g.seeded {
		g.seed()
	} else {
		g.drift()
	}
	return Reading{
		DeviceID:            g.deviceID,
		Location:            g.location,
		Timestamp:           g.now().UTC().Format(time.RFC3339),
		IceThickness:        Value(g.values[IceThickness]),
		SurfaceTemperature:  Value(g.values[SurfaceTemperature]),
		SnowAccumulation:    Value(g.values[SnowAccumulation]),
		ExternalTemperature: Value(g.values[ExternalTemperature]),
	}
}

func (g *Generator) seed() {
	for _, spec := range Channels {
		v := spec.SeedMin + g.rng.Float64()*(spec.SeedMax-spec.SeedMin)
		g.values[spec.Name] = round1(v)
	}
	g.seeded = true
}

func (g *Generator) drift() {
	for _, spec := range Channels {
		change := (g.rng.Float64()*2 - 1) * spec.Variation
		if spec.Asymmetric {
			// The symmetric draw only decides the direction.
			if change > 0 {
				change = g.rng.Float64() * spec.Variation * 1.5
			} else {
				change = -g.rng.Float64() * spec.Variation * 0.5
			}
		}
		next := g.values[spec.Name] + change
		next = math.Max(spec.Min, math.Min(spec.Max, next))
		g.values[spec.Name] = round1(next)
	}
}

// round1 quantizes to one decimal. Bounds are whole numbers, so
// rounding a clamped value can never push it back outside the range.
func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
