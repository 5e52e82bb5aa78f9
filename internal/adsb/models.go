package adsb

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yegors/adsb-tracker/internal/track"
)

// RawAircraftData represents the raw JSON snapshot from a dump1090/tar1090 feed
type RawAircraftData struct {
	Now      float64      `json:"now"`
	Messages int          `json:"messages"`
	Aircraft []ADSBTarget `json:"aircraft"`
}

// ADSBTarget represents a single aircraft in the raw ADS-B data. Every
// optional field is a pointer so a missing value is never read as zero.
type ADSBTarget struct {
	Hex          string    `json:"hex"`
	Type         string    `json:"type,omitempty"`
	Flight       string    `json:"flight,omitempty"`
	Registration string    `json:"r,omitempty"`
	AircraftType string    `json:"t,omitempty"`
	Altitude     *Altitude `json:"altitude,omitempty"` // Older dump1090 builds
	AltBaro      *Altitude `json:"alt_baro,omitempty"`
	AltGeom      *float64  `json:"alt_geom,omitempty"`
	GS           *float64  `json:"gs,omitempty"`
	Speed        *float64  `json:"speed,omitempty"` // Older dump1090 builds
	Track        *float64  `json:"track,omitempty"`
	Squawk       string    `json:"squawk,omitempty"`
	Category     string    `json:"category,omitempty"`
	Lat          *float64  `json:"lat,omitempty"`
	Lon          *float64  `json:"lon,omitempty"`
	SeenPos      *float64  `json:"seen_pos,omitempty"`
	Seen         *float64  `json:"seen,omitempty"`
	Messages     int       `json:"messages,omitempty"`
	RSSI         *float64  `json:"rssi,omitempty"`
}

// Altitude is a barometric altitude in feet. Feeds report "ground" instead
// of a number for aircraft on the surface. Valid is false for any other
// string so one odd field does not discard the whole snapshot.
type Altitude struct {
	Feet     float64
	OnGround bool
	Valid    bool
}

// UnmarshalJSON accepts a number or a string
func (a *Altitude) UnmarshalJSON(data []byte) error {
	if bytes.HasPrefix(data, []byte(`"`)) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		onGround := strings.EqualFold(s, "ground")
		*a = Altitude{OnGround: onGround, Valid: onGround}
		return nil
	}

	var feet float64
	if err := json.Unmarshal(data, &feet); err != nil {
		return fmt.Errorf("invalid altitude %s: %w", data, err)
	}
	*a = Altitude{Feet: feet, Valid: true}
	return nil
}

// MarshalJSON writes the same shape UnmarshalJSON reads
func (a Altitude) MarshalJSON() ([]byte, error) {
	switch {
	case a.OnGround:
		return []byte(`"ground"`), nil
	case !a.Valid:
		return []byte("null"), nil
	default:
		return json.Marshal(a.Feet)
	}
}

// Normalize converts a raw snapshot into reports for the tracker. Entries
// without a position or identifier are dropped.
func Normalize(raw *RawAircraftData) []track.Report {
	if raw == nil {
		return nil
	}

	reports := make([]track.Report, 0, len(raw.Aircraft))
	for _, target := range raw.Aircraft {
		if target.Lat == nil || target.Lon == nil {
			continue
		}
		hex := strings.ToLower(strings.TrimSpace(target.Hex))
		if hex == "" {
			continue
		}

		reports = append(reports, track.Report{
			Hex:          hex,
			Lat:          *target.Lat,
			Lon:          *target.Lon,
			PositionAge:  positionAge(target),
			Track:        target.Track,
			Speed:        firstNonNil(target.Speed, target.GS),
			Flight:       strings.TrimSpace(target.Flight),
			Registration: target.Registration,
			AircraftType: target.AircraftType,
			Squawk:       target.Squawk,
			Category:     target.Category,
			Altitude:     altitude(target),
		})
	}
	return reports
}

func positionAge(target ADSBTarget) float64 {
	switch {
	case target.SeenPos != nil:
		return *target.SeenPos
	case target.Seen != nil:
		return *target.Seen
	default:
		return 0
	}
}

func altitude(target ADSBTarget) *float64 {
	for _, alt := range []*Altitude{target.Altitude, target.AltBaro} {
		if alt != nil && alt.Valid {
			feet := alt.Feet
			return &feet
		}
	}
	return target.AltGeom
}

func firstNonNil(values ...*float64) *float64 {
	for _, v := range values {
		if v != nil {
			return v
		}
	}
	return nil
}
