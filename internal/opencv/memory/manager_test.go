package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"polaroid-extractor/internal/logger"
)

func TestCloseReleasesTracking(t *testing.T) {
	m := NewManager(logger.Nop())

	mat, err := m.GetMat(4, 6, gocv.MatTypeCV8UC3, "working")
	require.NoError(t, err)
	assert.Equal(t, []string{"working"}, m.ActiveTags())

	mat.Close()
	mat.Close()

	stats := m.GetStats()
	assert.EqualValues(t, 0, stats.ActiveMats)
	assert.EqualValues(t, 1, stats.Allocations)
	assert.EqualValues(t, 4*6*3, stats.TotalAllocated)
	assert.Equal(t, stats.TotalAllocated, stats.TotalReleased)
	assert.Zero(t, m.Cleanup())
}

func TestCleanupClosesLeftovers(t *testing.T) {
	m := NewManager(logger.Nop())

	kept, err := m.GetMat(2, 2, gocv.MatTypeCV8UC1, "gray")
	require.NoError(t, err)
	adopted, err := m.Adopt(gocv.NewMatWithSize(3, 3, gocv.MatTypeCV32SC1), "markers")
	require.NoError(t, err)
	clone, err := adopted.Clone("overlay")
	require.NoError(t, err)
	m.Register(clone)

	assert.Equal(t, []string{"gray", "markers", "overlay"}, m.ActiveTags())
	assert.Equal(t, 3, m.Cleanup())

	assert.False(t, kept.IsValid())
	assert.False(t, adopted.IsValid())
	assert.False(t, clone.IsValid())
	assert.Empty(t, m.ActiveTags())
	assert.EqualValues(t, 3, m.GetStats().Leaked)
}

func TestAdoptRejectsEmptyMat(t *testing.T) {
	m := NewManager(logger.Nop())

	_, err := m.Adopt(gocv.NewMat(), "empty")

	assert.Error(t, err)
	assert.EqualValues(t, 0, m.GetStats().Allocations)
}

func TestGetMatRejectsBadSize(t *testing.T) {
	m := NewManager(logger.Nop())

	_, err := m.GetMat(0, 10, gocv.MatTypeCV8UC1, "zero")

	assert.Error(t, err)
	assert.Empty(t, m.ActiveTags())
}
