// Package model holds the value types shared by every stage of the bigWig
// write pipeline: records, running summaries, chromosome metadata and the
// writer configuration. None of these types carry behavior beyond small
// arithmetic helpers; the stages that consume them live in sibling packages.
package model

import "math"

// Record is one bedGraph-derived interval: start <= end, value is the
// per-base signal over [start, end).
type Record struct {
	Start uint32
	End   uint32
	Value float32
}

// Span returns the number of bases covered by the record.
func (r Record) Span() uint32 { return r.End - r.Start }

// Chrom describes one chromosome: its assigned id, its name and its
// length as supplied by the chrom.sizes input. Id is assigned in order
// of first appearance in the record stream, not in chrom.sizes order.
type Chrom struct {
	Name   string
	ID     uint32
	Length uint32
}

// Summary is the aggregate statistics bigWig stores at the file level and
// per zoom record: bases covered, min/max value, sum and sum of squares.
// The zero value is not a valid empty summary (Min/Max need sentinel
// values) -- use Zero().
type Summary struct {
	BasesCovered uint64
	Min          float64
	Max          float64
	Sum          float64
	SumSquares   float64
	TotalItems   uint64
}

// Zero returns the identity element for Fold: folding any Summary with
// Zero() returns that Summary unchanged.
func Zero() Summary {
	return Summary{
		Min: math.MaxFloat64,
		Max: -math.MaxFloat64,
	}
}

// Add folds one record's contribution (added bases at value v) into s.
func (s *Summary) Add(added uint32, v float64) {
	if added == 0 {
		return
	}
	s.BasesCovered += uint64(added)
	s.Sum += float64(added) * v
	s.SumSquares += float64(added) * v * v
	if v < s.Min {
		s.Min = v
	}
	if v > s.Max {
		s.Max = v
	}
}

// AddItem records that one more raw item (not zoom-step) was folded in.
func (s *Summary) AddItem() { s.TotalItems++ }

// Fold merges other into s in place. Used both to fold a chromosome's
// summary into the global summary, and to fold zoom-window summaries.
func (s *Summary) Fold(other Summary) {
	if other.BasesCovered == 0 && other.TotalItems == 0 {
		return
	}
	s.BasesCovered += other.BasesCovered
	s.Sum += other.Sum
	s.SumSquares += other.SumSquares
	s.TotalItems += other.TotalItems
	if other.Min < s.Min {
		s.Min = other.Min
	}
	if other.Max > s.Max {
		s.Max = other.Max
	}
}

// ZoomRecord is a fixed-resolution aggregate over [Start, End) of one
// chromosome. End-Start <= the zoom level's resolution.
type ZoomRecord struct {
	ChromID uint32
	Start   uint32
	End     uint32
	Summary Summary
}

// Config carries the writer's tunables; all fields have the defaults
// spec.md assigns them. Construct via DefaultConfig and the With*
// functional options in the root package.
type Config struct {
	Compress              bool
	ItemsPerSlot          uint32
	BlockSize             uint32
	InitialZoomSize       uint32
	MaxZooms              uint16
	AllowOutOfOrderChroms bool
	Concurrency           int
}

// DefaultConfig returns spec.md §3's default Configuration.
func DefaultConfig() Config {
	return Config{
		Compress:              true,
		ItemsPerSlot:          1024,
		BlockSize:             256,
		InitialZoomSize:       10,
		MaxZooms:              10,
		AllowOutOfOrderChroms: false,
		Concurrency:           0, // 0 means runtime.GOMAXPROCS(-1); resolved by the coordinator.
	}
}

// ZoomResolutions returns the zoom ladder: max_zooms entries, each one
// 4x the previous, starting at InitialZoomSize. Taken from configuration
// rather than hardcoded, per spec.md §9's open question about the
// source's 11-entry hardcoded ladder vs MaxZooms.
func (c Config) ZoomResolutions() []uint32 {
	out := make([]uint32, c.MaxZooms)
	r := c.InitialZoomSize
	for i := range out {
		out[i] = r
		r *= 4
	}
	return out
}
