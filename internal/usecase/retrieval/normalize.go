package retrieval

// NormalizeMinMax maps raw scores linearly onto [0,1] using the list's own
// min-max bounds. A constant list maps to all ones so a single-hit source
// still carries full weight into fusion.
func NormalizeMinMax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make([]float64, len(scores))
	if hi == lo {
		for i := range out {
			out[i] = 1.0
		}
		return out
	}
	span := hi - lo
	for i, s := range scores {
		out[i] = (s - lo) / span
	}
	return out
}
