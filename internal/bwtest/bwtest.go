// Package bwtest holds small golden-data helpers shared by this
// module's tests: a fixed-chromosome-order in-memory record source and
// a deterministic record generator.
//
// Grounded on the teacher's internal/test_util.go, which generates
// pseudorandom decompression test data from a fixed seed
// (GenPredictableRandomData) so failures reproduce; GenRecords follows
// the same fixed-seed convention for record streams instead of raw
// bytes.
package bwtest

import (
	"io"
	"math/rand"

	"github.com/genomekit/bigwig/internal/model"
)

// fixedSeed mirrors the teacher's fixdRandSeed: a constant so
// GenRecords is reproducible across runs and machines.
const fixedSeed = 0x1234

// chromRecords is one chromosome's tag plus its records, in the order
// they should be fed to the demultiplexer.
type chromRecords struct {
	chrom   string
	records []model.Record
}

// SliceSource implements both internal/demux.Source and
// github.com/genomekit/bigwig.Source over an in-memory list of
// (chromosome, records) groups, replayed in order.
type SliceSource struct {
	groups []chromRecords
	gi, ri int
}

// NewSliceSource builds a SliceSource. byChrom maps chromosome name to
// its ordered records; order is preserved as given (callers must supply
// chromosomes in the order they should appear in the output).
func NewSliceSource(order []string, byChrom map[string][]model.Record) *SliceSource {
	s := &SliceSource{}
	for _, c := range order {
		s.groups = append(s.groups, chromRecords{chrom: c, records: byChrom[c]})
	}
	return s
}

// Next implements demux.Source / bigwig.Source.
func (s *SliceSource) Next() (string, model.Record, error) {
	for s.gi < len(s.groups) {
		g := s.groups[s.gi]
		if s.ri < len(g.records) {
			rec := g.records[s.ri]
			s.ri++
			return g.chrom, rec, nil
		}
		s.gi++
		s.ri = 0
	}
	return "", model.Record{}, io.EOF
}

// GenRecords generates up to n non-overlapping, sorted records covering
// a chromosome of the given length; it stops early, with fewer than n,
// once the next record would start at or past length. It starts from a
// fixed seed so the same (n, length) pair always produces the same
// stream -- useful for
// the round-trip-sum property test, which needs large record counts
// without committing them to the repo as literal test data.
func GenRecords(n int, length uint32) []model.Record {
	gen := rand.New(rand.NewSource(fixedSeed))
	out := make([]model.Record, 0, n)
	pos := uint32(0)
	avgStep := length / uint32(n+1)
	if avgStep == 0 {
		avgStep = 1
	}
	for i := 0; i < n && pos < length; i++ {
		gap := uint32(gen.Intn(int(avgStep) + 1))
		start := pos + gap
		if start >= length {
			break
		}
		span := uint32(gen.Intn(int(avgStep)+1)) + 1
		end := start + span
		if end > length {
			end = length
		}
		if end <= start {
			continue
		}
		value := float32(gen.Intn(2001)-1000) / 10.0
		out = append(out, model.Record{Start: start, End: end, Value: value})
		pos = end
	}
	return out
}
