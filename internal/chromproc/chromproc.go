// Package chromproc implements spec.md §4.2's chromosome-group
// processor: for one chromosome, it validates the input, maintains the
// running per-chromosome summary and the zoom ladder, and emits
// encoded primary and zoom sections onto independent ordered channels.
package chromproc

import (
	"context"
	"sync"

	"github.com/grailbio/base/errors"

	"github.com/genomekit/bigwig/internal/bwerr"
	"github.com/genomekit/bigwig/internal/demux"
	"github.com/genomekit/bigwig/internal/model"
	"github.com/genomekit/bigwig/internal/section"
	"github.com/genomekit/bigwig/internal/workpool"
)

// Output holds the channels a Process call emits on: one primary
// stream and one stream per zoom level, in the same order as
// cfg.ZoomResolutions(). Channels are closed once the chromosome is
// fully drained (spec.md §4.2's Streaming -> Flushing -> Done states).
type Output struct {
	Primary <-chan section.Encoded
	Zoom    []<-chan section.Encoded
}

// encResult is a completed (or failed) encode future.
type encResult struct {
	enc section.Encoded
	err error
}

// stream bundles the plumbing for one encoded byte stream (the primary
// stream, or one zoom level's stream): a channel of in-flight futures
// dispatched in order, a forwarder goroutine that drains them in that
// same order onto the public output channel, and the output channel
// itself.
type stream struct {
	futures chan chan encResult
	out     chan section.Encoded
}

func newStream(capacity int) *stream {
	return &stream{
		futures: make(chan chan encResult, capacity),
		out:     make(chan section.Encoded, capacity),
	}
}

// forward drains futures in dispatch order onto out, stopping (and
// reporting the first error) if any future failed or ctx is canceled.
func (s *stream) forward(ctx context.Context, setErr func(error)) {
	defer close(s.out)
	for {
		select {
		case fut, ok := <-s.futures:
			if !ok {
				return
			}
			select {
			case r := <-fut:
				if r.err != nil {
					setErr(r.err)
					return
				}
				select {
				case s.out <- r.enc:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// dispatch submits fn to pool and enqueues its future for in-order
// forwarding.
func (s *stream) dispatch(pool *workpool.Pool, fn func() (section.Encoded, error)) {
	fut := make(chan encResult, 1)
	s.futures <- fut
	pool.Submit(func() {
		enc, err := fn()
		fut <- encResult{enc: enc, err: err}
	})
}

func (s *stream) closeFutures() { close(s.futures) }

// zoomLevel tracks one resolution's in-flight window (live) and the
// batch of completed windows awaiting dispatch (records).
type zoomLevel struct {
	resolution uint32
	live       *model.ZoomRecord
	records    []model.ZoomRecord
	stream     *stream
}

// Process runs the chromosome-group processor for one chromosome. It
// returns immediately with the output channels; the Summary (or error)
// arrives on the returned channel once the chromosome is fully
// processed, after which every Output channel is guaranteed closed.
func Process(ctx context.Context, pool *workpool.Pool, chrom model.Chrom, it *demux.GroupIter, cfg model.Config) (Output, <-chan error, <-chan model.Summary) {
	chanCap := 100 // spec.md §5: bounded channels, suggested capacity >= 100
	primary := newStream(chanCap)

	resolutions := cfg.ZoomResolutions()
	levels := make([]*zoomLevel, len(resolutions))
	zoomOut := make([]<-chan section.Encoded, len(resolutions))
	for i, r := range resolutions {
		s := newStream(chanCap)
		levels[i] = &zoomLevel{resolution: r, stream: s}
		zoomOut[i] = s.out
	}

	errCh := make(chan error, 1)
	sumCh := make(chan model.Summary, 1)

	// once accumulates the first error seen across run() and every
	// forwarder goroutine, grailbio/base/errors.Once style (spec.md §7:
	// "the writer surfaces the first error seen").
	once := &errors.Once{}

	var fwdWG sync.WaitGroup
	fwdWG.Add(1 + len(levels))
	go func() {
		defer fwdWG.Done()
		primary.forward(ctx, once.Set)
	}()
	for _, lvl := range levels {
		lvl := lvl
		go func() {
			defer fwdWG.Done()
			lvl.stream.forward(ctx, once.Set)
		}()
	}

	go func() {
		summary, err := run(ctx, pool, chrom, it, cfg, primary, levels)
		once.Set(err)
		fwdWG.Wait()
		if final := once.Err(); final != nil {
			errCh <- final
		}
		close(errCh)
		sumCh <- summary
		close(sumCh)
	}()

	return Output{Primary: primary.out, Zoom: zoomOut}, errCh, sumCh
}

// run drives validation, summary accumulation, zoom-ladder maintenance
// and primary batching over the chromosome's records.
func run(ctx context.Context, pool *workpool.Pool, chrom model.Chrom, it *demux.GroupIter, cfg model.Config,
	primary *stream, levels []*zoomLevel) (summary model.Summary, err error) {

	summary = model.Zero()

	defer func() {
		primary.closeFutures()
		for _, lvl := range levels {
			lvl.stream.closeFutures()
		}
	}()

	var primaryBatch []model.Record

	flushPrimary := func() {
		if len(primaryBatch) == 0 {
			return
		}
		batch := primaryBatch
		primaryBatch = nil
		primary.dispatch(pool, func() (section.Encoded, error) {
			return section.EncodePrimary(chrom.ID, batch, cfg.Compress)
		})
	}

	flushZoom := func(lvl *zoomLevel) {
		if len(lvl.records) == 0 {
			return
		}
		batch := lvl.records
		lvl.records = nil
		lvl.stream.dispatch(pool, func() (section.Encoded, error) {
			return section.EncodeZoom(chrom.ID, batch, cfg.Compress)
		})
	}

	for {
		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		rec, ok, rerr := it.Next()
		if rerr != nil {
			return summary, rerr
		}
		if !ok {
			break
		}

		if err := validate(chrom, it, rec); err != nil {
			return summary, err
		}

		summary.Add(rec.Span(), float64(rec.Value))
		summary.AddItem()

		for _, lvl := range levels {
			addStart := rec.Start
			for addStart < rec.End {
				if lvl.live == nil {
					lvl.live = &model.ZoomRecord{
						ChromID: chrom.ID,
						Start:   addStart,
						End:     addStart,
						Summary: model.Summary{Min: float64(rec.Value), Max: float64(rec.Value)},
					}
				}
				windowEnd := lvl.live.Start + lvl.resolution
				addEnd := windowEnd
				if rec.End < addEnd {
					addEnd = rec.End
				}
				added := addEnd - addStart
				lvl.live.End = addEnd
				lvl.live.Summary.Add(added, float64(rec.Value))
				lvl.live.Summary.AddItem()
				addStart = addEnd
				if addEnd == windowEnd {
					lvl.records = append(lvl.records, *lvl.live)
					lvl.live = nil
				}
				if uint32(len(lvl.records)) == cfg.ItemsPerSlot {
					flushZoom(lvl)
				}
			}
		}

		primaryBatch = append(primaryBatch, rec)
		if uint32(len(primaryBatch)) == cfg.ItemsPerSlot {
			flushPrimary()
		}
	}

	flushPrimary()
	for _, lvl := range levels {
		if lvl.live != nil {
			lvl.records = append(lvl.records, *lvl.live)
			lvl.live = nil
		}
		flushZoom(lvl)
	}

	if summary.TotalItems == 0 {
		// Matches the original implementation's empty-chromosome
		// convention: reset the sentinel min/max rather than leaving
		// them at +/-math.MaxFloat64.
		summary.Min = 0
		summary.Max = 0
	}
	return summary, nil
}

// validate checks spec.md §4.2's three per-record invariants: bounds,
// chromosome-length, and no overlap with the next record.
func validate(chrom model.Chrom, it *demux.GroupIter, rec model.Record) error {
	if rec.Start > rec.End {
		return bwerr.Invalidf("chromosome %s: record start %d > end %d", chrom.Name, rec.Start, rec.End)
	}
	if rec.End > chrom.Length {
		return bwerr.Invalidf("chromosome %s: record end %d exceeds chromosome length %d", chrom.Name, rec.End, chrom.Length)
	}
	if next, ok := it.Peek(); ok {
		if rec.End > next.Start {
			return bwerr.Invalidf("chromosome %s: overlapping records %d-%d and %d-%d", chrom.Name, rec.Start, rec.End, next.Start, next.End)
		}
	}
	return nil
}
