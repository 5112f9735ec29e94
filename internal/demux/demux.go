// Package demux turns a single ordered stream of (chromosome, record)
// pairs into a sequence of per-chromosome sub-iterators, enforcing that
// at most one such sub-iterator is live at a time and that chromosome
// names appear in sorted order (unless configured otherwise).
//
// This is spec.md §4.1's streaming line demultiplexer: a three-state
// machine (Idle, Same, Diff) built around one record of lookahead.
package demux

import (
	"io"

	"github.com/genomekit/bigwig/internal/bwerr"
	"github.com/genomekit/bigwig/internal/model"
)

// Source is the upstream collaborator -- typically a bedGraph scanner --
// that yields records tagged with their chromosome name. Next returns
// io.EOF (via the err return) once the stream is exhausted; no other
// sentinel is used.
type Source interface {
	Next() (chrom string, rec model.Record, err error)
}

type state int

const (
	stateIdle state = iota
	stateSame
	stateDiff
)

// Demux wraps a Source and hands out one GroupIter per chromosome, in
// the order chromosomes first appear in the underlying stream.
type Demux struct {
	src                   Source
	allowOutOfOrderChroms bool

	st       state
	bufChrom string
	bufRec   model.Record

	lastChrom string
	haveLast  bool

	active bool
	err    error
}

// New constructs a Demux over src. allowOutOfOrderChroms disables the
// sort-order check on chromosome names (spec.md §4.1).
func New(src Source, allowOutOfOrderChroms bool) *Demux {
	return &Demux{src: src, allowOutOfOrderChroms: allowOutOfOrderChroms}
}

// NextChromosome returns the next chromosome name and a GroupIter over
// its records, or ("", nil, nil) once the underlying stream is
// exhausted. It is a programmer error to call NextChromosome again
// before the previous GroupIter has been drained to exhaustion -- doing
// so panics, per spec.md §4.1's fail-fast contract. A GroupIter counts
// as drained only once its Next has returned ok=false; one that is
// simply dropped before that still counts as live, and the next call
// panics.
func (d *Demux) NextChromosome() (string, *GroupIter, error) {
	if d.active {
		panic("demux: NextChromosome called while the previous GroupIter is still live")
	}
	if d.err != nil {
		return "", nil, d.err
	}

	switch d.st {
	case stateDiff:
		d.st = stateSame // promote Diff(chrom', v) -> Same(chrom', v)
	case stateIdle:
		chrom, rec, err := d.src.Next()
		if err != nil {
			if err == io.EOF {
				return "", nil, nil
			}
			d.err = err
			return "", nil, err
		}
		d.bufChrom, d.bufRec = chrom, rec
		d.st = stateSame
	case stateSame:
		// Unreachable given the active-guard above: Same only persists
		// while a GroupIter is live.
		panic("demux: internal state is Same with no live GroupIter")
	}

	if d.haveLast && !d.allowOutOfOrderChroms && d.bufChrom <= d.lastChrom {
		err := bwerr.Invalidf(
			"chromosomes must be sorted ascending by name; got %q after %q",
			d.bufChrom, d.lastChrom)
		d.err = err
		return "", nil, err
	}
	d.lastChrom = d.bufChrom
	d.haveLast = true
	d.active = true
	return d.bufChrom, &GroupIter{d: d, chrom: d.bufChrom}, nil
}

// GroupIter yields successive records for a single chromosome.
type GroupIter struct {
	d     *Demux
	chrom string
}

// Next returns the next record for this chromosome, or ok=false once
// the chromosome's records are exhausted.
func (g *GroupIter) Next() (rec model.Record, ok bool, err error) {
	d := g.d
	switch d.st {
	case stateSame:
		rec = d.bufRec
		chrom, next, nerr := d.src.Next()
		switch {
		case nerr != nil && nerr != io.EOF:
			d.err = nerr
			return model.Record{}, false, nerr
		case nerr == io.EOF:
			d.st = stateIdle
		case chrom == g.chrom:
			d.bufChrom, d.bufRec, d.st = chrom, next, stateSame
		default:
			d.bufChrom, d.bufRec, d.st = chrom, next, stateDiff
		}
		return rec, true, nil
	case stateDiff, stateIdle:
		d.active = false
		return model.Record{}, false, nil
	default:
		panic("demux: GroupIter.Next in unreachable state")
	}
}

// Peek exposes the buffered lookahead record without advancing. ok is
// false if there is no further record for this chromosome (the next
// record, if any, belongs to a different chromosome or the stream is
// exhausted).
func (g *GroupIter) Peek() (rec model.Record, ok bool) {
	d := g.d
	if d.st == stateSame {
		return d.bufRec, true
	}
	return model.Record{}, false
}
