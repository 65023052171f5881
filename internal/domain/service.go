package domain

import (
	"math"
)

// VolumeService provides pure domain logic for volume values.
// Backends speak percentages or fixed-point scales; the engine speaks [0.0, 1.0].
type VolumeService struct{}

// NewVolumeService creates a new volume service.
func NewVolumeService() *VolumeService {
	return &VolumeService{}
}

// Validate rejects values outside [0.0, 1.0] and NaN. Writes are never clamped.
func (s *VolumeService) Validate(volume float64) error {
	if math.IsNaN(volume) || volume < 0 || volume > 1 {
		return ErrInvalidVolume
	}
	return nil
}

// Normalize clamps a value read from a backend into [0.0, 1.0].
// Some subsystems report amplified levels above 100%.
func (s *VolumeService) Normalize(volume float64) float64 {
	switch {
	case math.IsNaN(volume), volume < 0:
		return 0
	case volume > 1:
		return 1
	default:
		return volume
	}
}

// FromPercent converts a 0-100 reading to the unit scale.
func (s *VolumeService) FromPercent(percent int) float64 {
	return s.Normalize(float64(percent) / 100)
}

// ToPercent converts a unit-scale volume to the nearest whole percent.
func (s *VolumeService) ToPercent(volume float64) int {
	return int(math.Round(s.Normalize(volume) * 100))
}

// FromFixed converts channel volumes on a fixed-point scale (norm = 100%) to the unit
// scale by averaging the channels.
func (s *VolumeService) FromFixed(channels []uint32, norm uint32) float64 {
	if len(channels) == 0 || norm == 0 {
		return 0
	}
	var sum float64
	for _, c := range channels {
		sum += float64(c)
	}
	return s.Normalize(sum / float64(len(channels)) / float64(norm))
}

// ToFixed spreads a unit-scale volume over n channels on a fixed-point scale.
func (s *VolumeService) ToFixed(volume float64, n int, norm uint32) []uint32 {
	if n <= 0 {
		n = 1
	}
	v := uint32(math.Round(s.Normalize(volume) * float64(norm)))
	out := make([]uint32, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// Converged reports whether two volumes are equal within platform rounding.
func (s *VolumeService) Converged(a, b float64) bool {
	return math.Abs(a-b) <= 0.005
}
