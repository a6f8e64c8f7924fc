// v1
// internal/sensor/generator_test.go
package sensor

import (
	"math"
	"math/rand"
	"testing"
)

// constSource pins every draw so drift direction can be forced.
type constSource struct {
	v int64
}

func (s constSource) Int63() int64 { return s.v }
func (s constSource) Seed(int64)   {}

// maxDraw is the largest Int63 value whose Float64 projection stays
// strictly below 1, keeping rand.Float64 from re-drawing forever.
const maxDraw = math.MaxInt64 - 1023

func channelValues(r Reading) map[string]float64 {
	return map[string]float64{
		IceThickness:        float64(r.IceThickness),
		SurfaceTemperature:  float64(r.SurfaceTemperature),
		SnowAccumulation:    float64(r.SnowAccumulation),
		ExternalTemperature: float64(r.ExternalTemperature),
	}
}

func TestFirstReadingSeedsInsideSeedBands(t *testing.T) {
	gen := NewGenerator("nac", "NAC", rand.New(rand.NewSource(1)))
	values := channelValues(gen.Next())
	for _, spec := range Channels {
		v := values[spec.Name]
		if v < spec.SeedMin || v > spec.SeedMax {
			t.Fatalf("%s seeded at %v outside [%v, %v]", spec.Name, v, spec.SeedMin, spec.SeedMax)
		}
	}
}

func TestFreshGeneratorsSeedIndependently(t *testing.T) {
	first := channelValues(NewGenerator("nac", "NAC", rand.New(rand.NewSource(1))).Next())
	second := channelValues(NewGenerator("nac", "NAC", rand.New(rand.NewSource(2))).Next())

	differs := false
	for _, spec := range Channels {
		if first[spec.Name] != second[spec.Name] {
			differs = true
		}
		for _, v := range []float64{first[spec.Name], second[spec.Name]} {
			if v < spec.SeedMin || v > spec.SeedMax {
				t.Fatalf("%s value %v outside seed band [%v, %v]", spec.Name, v, spec.SeedMin, spec.SeedMax)
			}
		}
	}
	if !differs {
		t.Fatalf("independent seeds produced identical readings: %v", first)
	}
}

func TestValuesStayWithinBoundsAndQuantized(t *testing.T) {
	gen := NewGenerator("dows-lake", "Dow's Lake", rand.New(rand.NewSource(42)))
	for i := 0; i < 5000; i++ {
		values := channelValues(gen.Next())
		for _, spec := range Channels {
			v := values[spec.Name]
			if v < spec.Min || v > spec.Max {
				t.Fatalf("tick %d: %s value %v outside [%v, %v]", i, spec.Name, v, spec.Min, spec.Max)
			}
			if math.Abs(v*10-math.Round(v*10)) > 1e-9 {
				t.Fatalf("tick %d: %s value %v not quantized to one decimal", i, spec.Name, v)
			}
		}
	}
}

func TestRelentlessUpwardDriftClampsAtMax(t *testing.T) {
	gen := NewGenerator("nac", "NAC", rand.New(constSource{v: maxDraw}))
	var values map[string]float64
	for i := 0; i < 20; i++ {
		values = channelValues(gen.Next())
	}
	for _, spec := range Channels {
		if values[spec.Name] != spec.Max {
			t.Fatalf("%s expected to pin at %v, got %v", spec.Name, spec.Max, values[spec.Name])
		}
	}
}

func TestRelentlessDownwardDriftClampsAtMin(t *testing.T) {
	gen := NewGenerator("nac", "NAC", rand.New(constSource{v: 0}))
	var values map[string]float64
	for i := 0; i < 20; i++ {
		values = channelValues(gen.Next())
	}
	for _, spec := range Channels {
		if values[spec.Name] != spec.Min {
			t.Fatalf("%s expected to pin at %v, got %v", spec.Name, spec.Min, values[spec.Name])
		}
	}
}

func TestSnowAccumulationStepBounds(t *testing.T) {
	gen := NewGenerator("fifth-avenue", "Fifth Avenue", rand.New(rand.NewSource(99)))
	prev := float64(gen.Next().SnowAccumulation)

	var spec ChannelSpec
	for _, s := range Channels {
		if s.Name == SnowAccumulation {
			spec = s
		}
	}

	for i := 0; i < 2000; i++ {
		cur := float64(gen.Next().SnowAccumulation)
		delta := cur - prev
		// Rounding of the stored value can widen a step by at most 0.05
		// on each side.
		if delta > spec.Variation*1.5+0.1 {
			t.Fatalf("tick %d: snow grew by %v, cap is %v", i, delta, spec.Variation*1.5)
		}
		if delta < -(spec.Variation*0.5 + 0.1) {
			t.Fatalf("tick %d: snow shrank by %v, cap is %v", i, -delta, spec.Variation*0.5)
		}
		prev = cur
	}
}

func TestReadingCarriesSiteIdentity(t *testing.T) {
	gen := NewGenerator("nac", "NAC", rand.New(rand.NewSource(3)))
	r := gen.Next()
	if r.DeviceID != "nac" {
		t.Fatalf("unexpected deviceId: %q", r.DeviceID)
	}
	if r.Location != "NAC" {
		t.Fatalf("unexpected location: %q", r.Location)
	}
	if r.Timestamp == "" {
		t.Fatalf("timestamp missing")
	}
}
