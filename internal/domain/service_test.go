package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVolumeServiceValidate(t *testing.T) {
	s := NewVolumeService()

	for _, v := range []float64{0, 0.25, 0.5, 1} {
		assert.NoError(t, s.Validate(v), "volume %v should be accepted", v)
	}
	for _, v := range []float64{-0.01, 1.01, 2, math.NaN(), math.Inf(1)} {
		assert.ErrorIs(t, s.Validate(v), ErrInvalidVolume, "volume %v should be rejected", v)
	}
}

func TestVolumeServiceNormalize(t *testing.T) {
	s := NewVolumeService()

	assert.Equal(t, 0.0, s.Normalize(-0.5))
	assert.Equal(t, 0.0, s.Normalize(math.NaN()))
	assert.Equal(t, 1.0, s.Normalize(1.5))
	assert.Equal(t, 0.3, s.Normalize(0.3))
}

func TestVolumeServicePercent(t *testing.T) {
	s := NewVolumeService()

	assert.Equal(t, 0.7, s.FromPercent(70))
	assert.Equal(t, 1.0, s.FromPercent(150))
	assert.Equal(t, 70, s.ToPercent(0.7))
	assert.Equal(t, 33, s.ToPercent(0.334))
	assert.Equal(t, 0, s.ToPercent(-1))
}

func TestVolumeServiceFixed(t *testing.T) {
	s := NewVolumeService()
	const norm = 0x10000

	assert.Equal(t, 0.5, s.FromFixed([]uint32{norm / 2, norm / 2}, norm))
	assert.Equal(t, 0.75, s.FromFixed([]uint32{norm, norm / 2}, norm))
	assert.Equal(t, 1.0, s.FromFixed([]uint32{norm * 2}, norm), "amplified levels are clamped")
	assert.Equal(t, 0.0, s.FromFixed(nil, norm))
	assert.Equal(t, 0.0, s.FromFixed([]uint32{10}, 0))

	channels := s.ToFixed(0.5, 2, norm)
	require.Len(t, channels, 2)
	assert.Equal(t, uint32(norm/2), channels[0])
	assert.Equal(t, channels[0], channels[1])

	assert.Len(t, s.ToFixed(1, 0, norm), 1)
}

func TestVolumeServiceConverged(t *testing.T) {
	s := NewVolumeService()

	assert.True(t, s.Converged(0.5, 0.5))
	assert.True(t, s.Converged(0.5, 0.504))
	assert.False(t, s.Converged(0.5, 0.51))
}
