package model

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummaryZeroIsFoldIdentity(t *testing.T) {
	z := Zero()
	s := Zero()
	s.Add(10, 2.0)
	s.AddItem()

	folded := s
	folded.Fold(z)
	assert.Equal(t, s, folded)
}

func TestSummaryAddAccumulates(t *testing.T) {
	s := Zero()
	s.Add(5, 2.0)
	s.Add(5, 4.0)
	assert.Equal(t, uint64(10), s.BasesCovered)
	assert.Equal(t, 30.0, s.Sum)
	assert.Equal(t, 2.0, s.Min)
	assert.Equal(t, 4.0, s.Max)
}

func TestSummaryAddZeroSpanIsNoop(t *testing.T) {
	s := Zero()
	s.Add(0, 100.0)
	assert.Equal(t, uint64(0), s.BasesCovered)
	assert.Equal(t, math.MaxFloat64, s.Min)
}

func TestSummaryFoldMergesMinMax(t *testing.T) {
	a := Zero()
	a.Add(1, 5.0)
	b := Zero()
	b.Add(1, -5.0)
	a.Fold(b)
	assert.Equal(t, -5.0, a.Min)
	assert.Equal(t, 5.0, a.Max)
	assert.Equal(t, uint64(2), a.BasesCovered)
}

func TestZoomResolutionsLadder(t *testing.T) {
	c := Config{InitialZoomSize: 10, MaxZooms: 4}
	got := c.ZoomResolutions()
	assert.Equal(t, []uint32{10, 40, 160, 640}, got)
}

func TestDefaultConfig(t *testing.T) {
	c := DefaultConfig()
	assert.True(t, c.Compress)
	assert.Equal(t, uint32(1024), c.ItemsPerSlot)
	assert.Equal(t, uint32(256), c.BlockSize)
	assert.False(t, c.AllowOutOfOrderChroms)
}

func TestRecordSpan(t *testing.T) {
	r := Record{Start: 10, End: 25}
	assert.Equal(t, uint32(15), r.Span())
}
