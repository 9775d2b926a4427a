package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"volspike/internal/types"
)

func TestRenderVolumeHistory(t *testing.T) {
	points := make([]types.VolumePoint, 0, 48)
	start := time.Date(2024, 5, 14, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 48; i++ {
		points = append(points, types.VolumePoint{
			Time:   start.Add(time.Duration(i) * time.Hour),
			Volume: 1_000_000 + float64(i)*250_000,
		})
	}

	png, err := RenderVolumeHistory("BTC", points)

	require.NoError(t, err)
	require.NotEmpty(t, png)
	assert.Equal(t, []byte("\x89PNG"), png[:4])
}

func TestRenderVolumeHistoryNeedsTwoPoints(t *testing.T) {
	_, err := RenderVolumeHistory("BTC", nil)
	assert.Error(t, err)

	_, err = RenderVolumeHistory("BTC", []types.VolumePoint{{Time: time.Now(), Volume: 1}})
	assert.Error(t, err)
}
