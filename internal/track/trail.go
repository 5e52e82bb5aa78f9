package track

// SampleTrail reduces a history to at most maxPoints evenly spaced samples.
// The newest sample is always kept. The input is not modified.
func SampleTrail(history []PositionSample, maxPoints int) []PositionSample {
	if maxPoints <= 0 || len(history) == 0 {
		return nil
	}

	if len(history) <= maxPoints {
		out := make([]PositionSample, len(history))
		copy(out, history)
		return out
	}

	stride := max(1, len(history)/maxPoints)
	picked := make([]PositionSample, 0, len(history)/stride+1)
	for i := 0; i < len(history); i += stride {
		picked = append(picked, history[i])
	}
	// The stride can step over the newest sample
	if (len(history)-1)%stride != 0 {
		picked = append(picked, history[len(history)-1])
	}

	if len(picked) > maxPoints {
		picked = picked[len(picked)-maxPoints:]
	}
	return picked
}

// TrailPoints converts samples to rendering points
func TrailPoints(samples []PositionSample) []TrailPoint {
	if len(samples) == 0 {
		return nil
	}
	points := make([]TrailPoint, len(samples))
	for i, s := range samples {
		points[i] = TrailPoint{Lat: s.Lat, Lon: s.Lon}
	}
	return points
}
