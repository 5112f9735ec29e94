// Package bigwig is the write pipeline described by this module: it turns
// a sorted stream of (chromosome, start, end, value) records into a
// bigWig file -- a self-indexed, chromosome-partitioned, optionally
// zlib-compressed container built for random-range queries over very
// large genomes.
//
// Write is the sole entry point. It demultiplexes the input into
// per-chromosome groups (internal/demux), processes each group
// concurrently into primary and zoom sections (internal/chromproc,
// internal/section), funnels those sections through temp-file buffers
// that can be switched to write straight into the destination file
// (internal/tempbuf), indexes committed sections with an R-tree
// (internal/rtree), and back-patches the file header once every offset
// is known (internal/bptree for the chromosome lookup structure).
//
// Reading bigWig files, bedGraph text parsing and the CLI driver are
// separate concerns; see internal/bedgraph and cmd/bigwigwrite.
package bigwig

import (
	"github.com/genomekit/bigwig/internal/model"
)

// Record is one bedGraph-derived interval: Start <= End, Value is the
// per-base signal over [Start, End).
type Record = model.Record

// Summary is the aggregate statistics bigWig stores at the file level
// and per zoom record.
type Summary = model.Summary

// Source is the upstream collaborator that hands records to Write,
// tagged with the chromosome they belong to. Implementations must
// present records in an order where, for a fixed chromosome, Start
// never decreases and consecutive records never overlap -- Write
// detects and rejects violations per-chromosome, but relies on the
// Source to keep chromosomes from interleaving (a Source that emits
// chr1, chr2, chr1 in that order will be rejected as out-of-order by
// Write's demultiplexer, not silently reordered).
//
// internal/bedgraph.Scanner is the reference implementation, reading
// bedGraph text. Next returns io.EOF once the stream is exhausted.
type Source interface {
	Next() (chrom string, rec Record, err error)
}

// Option configures a Write call. Write starts from model.DefaultConfig,
// whose values match spec-level defaults: compression on, 1024 items per
// section, 256-way B+-tree/R-tree fan-out, a zoom ladder starting at 10
// bases and growing 4x per level for 10 levels, strict chromosome
// ordering.
type Option func(*model.Config)

// WithCompress toggles zlib compression of section payloads.
func WithCompress(v bool) Option { return func(c *model.Config) { c.Compress = v } }

// WithItemsPerSlot sets the maximum record count per section (primary
// or zoom).
func WithItemsPerSlot(n uint32) Option { return func(c *model.Config) { c.ItemsPerSlot = n } }

// WithBlockSize sets the maximum fan-out of the chromosome B+-tree and
// the section R-tree.
func WithBlockSize(n uint32) Option { return func(c *model.Config) { c.BlockSize = n } }

// WithInitialZoomSize sets the finest zoom resolution; each subsequent
// level is 4x coarser.
func WithInitialZoomSize(n uint32) Option { return func(c *model.Config) { c.InitialZoomSize = n } }

// WithMaxZooms sets how many zoom levels are computed (some may later
// be skipped from the file if their serialized size exceeds half the
// primary data size).
func WithMaxZooms(n uint16) Option { return func(c *model.Config) { c.MaxZooms = n } }

// WithAllowOutOfOrderChroms disables the chromosome sort-order check
// performed by the streaming demultiplexer.
func WithAllowOutOfOrderChroms(v bool) Option {
	return func(c *model.Config) { c.AllowOutOfOrderChroms = v }
}

// WithConcurrency sets the section-encoder worker pool size. n <= 0
// resolves to runtime.GOMAXPROCS(-1).
func WithConcurrency(n int) Option { return func(c *model.Config) { c.Concurrency = n } }
