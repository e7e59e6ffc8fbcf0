package sample

import "math"

// ToPCM16 scales a normalized sample to the signed 16-bit range for the
// recorded tracks, truncating toward zero and clamping anything outside
// [-1.0, 1.0]. +1.0 and -1.0 land on MaxInt16 and MinInt16.
func ToPCM16(x float32) int16 {
	if x != x {
		return 0
	}
	var scaled float64
	if x >= 0 {
		scaled = float64(x) * math.MaxInt16
	} else {
		scaled = float64(x) * -math.MinInt16
	}
	scaled = math.Trunc(scaled)
	if scaled > math.MaxInt16 {
		return math.MaxInt16
	}
	if scaled < math.MinInt16 {
		return math.MinInt16
	}
	return int16(scaled)
}

// FromPCM16 is the inverse of ToPCM16
func FromPCM16(v int16) float32 {
	return intToFloat(int32(v), math.MinInt16, math.MaxInt16)
}
