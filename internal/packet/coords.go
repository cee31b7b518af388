package packet

// Fixed-point scales used for angular fields. The wire format carries no
// marker saying which one a packet uses.
const (
	ScaleCenti         = 100
	ScaleTenThousandth = 10000
)

// ToDegrees converts a scaled integer angle into decimal degrees.
func ToDegrees(value, scale int64) float64 {
	return float64(value) / float64(scale)
}

// InferScale guesses the fixed-point scale of a packet's angular fields from
// the raw RA and Dec slots. Values that cannot be centi-degrees (RA outside
// [0, 36000] or |Dec| above 9000) imply the 10^-4 degree scale.
//
// This is a heuristic, not a guarantee: a position encoded at 10^-4 degrees
// close to RA 0 and Dec 0 is indistinguishable from centi-degrees. The
// thresholds match the legacy network's consumers and must not be tuned
// per packet type.
func InferScale(ra, dec int32) int64 {
	d := int64(dec)
	if d < 0 {
		d = -d
	}
	if ra > 36000 || ra < 0 || d > 9000 {
		return ScaleTenThousandth
	}
	return ScaleCenti
}
