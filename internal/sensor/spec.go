// v0
// internal/sensor/spec.go

// Package sensor generates the synthetic telemetry series published for
// each skateway site.
package sensor

// Channel names match the JSON field names carried on the wire so log
// lines and payload keys stay greppable end to end.
const (
	IceThickness        = "iceThickness"
	SurfaceTemperature  = "surfaceTemperature"
	SnowAccumulation    = "snowAccumulation"
	ExternalTemperature = "externalTemperature"
)

// ChannelSpec bounds one measurement channel. Generated values never
// leave [Min, Max] and per-tick movement never exceeds Variation on
// symmetric channels. Asymmetric channels draw growth from
// [0, 1.5*Variation] and decay from [0, 0.5*Variation].
type ChannelSpec struct {
	Name      string
	Min       float64
	Max       float64
	Variation float64
	// SeedMin and SeedMax bound the initial value so a fresh site
	// starts inside the band typical for mid-season conditions.
	SeedMin    float64
	SeedMax    float64
	Asymmetric bool
}

// Channels is the fixed channel table shared by every site. The order
// here is the order channels appear in logs.
var Channels = []ChannelSpec{
	{Name: IceThickness, Min: 20, Max: 40, Variation: 2, SeedMin: 25, SeedMax: 35},
	{Name: SurfaceTemperature, Min: -10, Max: 0, Variation: 1, SeedMin: -5, SeedMax: -2},
	{Name: SnowAccumulation, Min: 0, Max: 15, Variation: 1, SeedMin: 0, SeedMax: 10, Asymmetric: true},
	{Name: ExternalTemperature, Min: -15, Max: 5, Variation: 2, SeedMin: -10, SeedMax: -2},
}
