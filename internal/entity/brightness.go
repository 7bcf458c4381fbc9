package entity

import "math"

// Brightness scales.
const (
	NativeMax   = 100 // device scale, 0-100
	PlatformMax = 255 // host scale, 0-255
)

// ToPlatform converts a device brightness (0-100) to the host scale (0-255).
// The clamp only keeps the result on scale; it is not input validation, and
// callers pass requests through unchecked.
func ToPlatform(native int) int {
	native = clamp(native, 0, NativeMax)
	return int(math.Round(float64(native) / NativeMax * PlatformMax))
}

// ToNative converts a host brightness (0-255) to the device scale (0-100).
// Like ToPlatform it clamps for safety rather than rejecting anything.
// Converting back with ToPlatform lands within ±1 of the input.
func ToNative(platform int) int {
	platform = clamp(platform, 0, PlatformMax)
	return int(math.Round(float64(platform) / PlatformMax * NativeMax))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
