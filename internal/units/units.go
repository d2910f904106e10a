// Package units defines the physical unit system used throughout the
// reconstruction pipeline. All quantities are expressed in nanoseconds
// and millimeters; velocities are therefore mm/ns, which puts the speed
// of light at roughly 300 mm/ns.
package units

const (
	// Time is one nanosecond, the base time unit.
	Time = 1.0

	// Length is one millimeter, the base length unit.
	Length = 1.0

	// Velocity is the base velocity unit (mm/ns).
	Velocity = Length / Time

	// SpeedOfLight in mm/ns.
	SpeedOfLight = 299.792458 * Velocity
)
