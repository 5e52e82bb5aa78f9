package track

import (
	"math"

	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/geo"
)

const (
	// Reported tracks further than this from the movement heading are replaced by it
	headingOverrideDeg = 45.0
	// Weight of the reported track when blending it with the movement heading
	headingBlendAlpha = 0.7
)

// HeadingResolver reconciles reported tracks with movement-derived headings
type HeadingResolver struct {
	cfg config.TrackingConfig
}

// NewHeadingResolver creates a resolver using the tracking configuration
func NewHeadingResolver(cfg config.TrackingConfig) *HeadingResolver {
	return &HeadingResolver{cfg: cfg}
}

// Resolve returns the track to display. previous is the value resolved for the
// same aircraft on the last cycle, nil if none. corrected reports that the
// reported track was overridden by the movement heading.
func (r *HeadingResolver) Resolve(movementHeading, reported, previous *float64) (resolved *float64, corrected bool) {
	resolved = copyPtr(reported)

	if r.cfg.UseMovementHeading && movementHeading != nil {
		switch {
		case reported == nil:
			resolved = copyPtr(movementHeading)
		case math.Abs(geo.AngleDiff(*movementHeading, *reported)) > headingOverrideDeg:
			resolved = copyPtr(movementHeading)
			corrected = true
		default:
			resolved = geo.SmoothAngle(movementHeading, reported, headingBlendAlpha, 0)
		}
	}

	if previous != nil {
		resolved = geo.SmoothAngle(previous, resolved, r.cfg.TrackSmoothAlpha, r.cfg.MinTrackChange)
	}

	return copyPtr(resolved), corrected
}
