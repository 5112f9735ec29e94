package bigwig

import (
	"context"
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/genomekit/bigwig/internal/bptree"
	"github.com/genomekit/bigwig/internal/bwerr"
	"github.com/genomekit/bigwig/internal/chromproc"
	"github.com/genomekit/bigwig/internal/demux"
	"github.com/genomekit/bigwig/internal/model"
	"github.com/genomekit/bigwig/internal/rtree"
	"github.com/genomekit/bigwig/internal/section"
	"github.com/genomekit/bigwig/internal/sectionidx"
	"github.com/genomekit/bigwig/internal/tempbuf"
	"github.com/genomekit/bigwig/internal/workpool"
)

// On-disk layout constants, spec.md §6.
const (
	fileMagic     uint32 = 0x888FFC26
	fileVersion   uint16 = 4
	headerSize           = 64
	zoomEntrySize         = 24
	summarySize           = 40
	// primaryShellSize is the fixed part of a primary section's payload
	// (chrom_id, start, end, 2 reserved u32, type, reserved, item_count)
	// -- the floor spec.md §9 notes the original applies to
	// uncompress_buf_size even for an empty file.
	primaryShellSize = 24
)

// countingWriter wraps dest, tracking the current write position so the
// coordinator can record offsets without querying the OS, and supports
// absolute seeks for the header back-patch (spec.md §4.6 step 10).
type countingWriter struct {
	w   io.WriteSeeker
	pos int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.pos += int64(n)
	if err != nil {
		return n, bwerr.Wrap(bwerr.IoError, err, "bigwig: write")
	}
	return n, nil
}

func (cw *countingWriter) seekAbs(offset int64) error {
	pos, err := cw.w.Seek(offset, io.SeekStart)
	if err != nil {
		return bwerr.Wrap(bwerr.IoError, err, "bigwig: seek", "offset", offset)
	}
	cw.pos = pos
	return nil
}

func writeZeros(w io.Writer, n int64) error {
	const chunk = 32 * 1024
	buf := make([]byte, chunk)
	for n > 0 {
		s := int64(chunk)
		if s > n {
			s = n
		}
		if _, err := w.Write(buf[:s]); err != nil {
			return err
		}
		n -= s
	}
	return nil
}

// localEntry is a section-index entry whose Offset is still local to a
// tempbuf.Buffer that has not been (or was not yet, at record time)
// attached to the destination file. The coordinator corrects it to a
// file-absolute offset once the buffer's attach base is known.
type localEntry struct {
	chromID     uint32
	start, end  uint32
	localOffset uint64
	size        uint64
}

// zoomLevelState accumulates one zoom resolution's section bytes (in a
// temp-file buffer shared across every chromosome, never attached to
// the destination until spec.md §4.6 step 9) and the section-index
// entries describing them.
type zoomLevelState struct {
	resolution uint32
	buf        *tempbuf.Buffer
	entries    []localEntry
}

// readyChrom is one chromosome's primary-section buffer, fully drained
// and awaiting commit (Switch + fold) by the coordinator's main loop.
// Producing this struct is the "begin producing while the previous
// chromosome is still draining" half of spec.md §4.4's temp-file-buffer
// handoff; consuming it is the other half.
type readyChrom struct {
	chrom        model.Chrom
	buf          *tempbuf.Buffer
	localPrimary []localEntry
	errCh        <-chan error
	sumCh        <-chan model.Summary
}

// maxTracker is a concurrency-safe running maximum, used to compute
// uncompress_buf_size (spec.md §4.3) across every section's goroutine.
type maxTracker struct {
	mu sync.Mutex
	v  int
}

func (m *maxTracker) observe(n int) {
	if n <= 0 {
		return
	}
	m.mu.Lock()
	if n > m.v {
		m.v = n
	}
	m.mu.Unlock()
}

func (m *maxTracker) get() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.v
}

// Write runs the write pipeline to completion, producing a bigWig file
// at dest from the records src yields, using chromSizes to resolve each
// chromosome's length (spec.md §3: "Length comes from an externally
// supplied chrom_sizes mapping"). dest must support Seek because the
// file's header, zoom-level table, summary and section count are all
// back-patched once their values are known (spec.md §4.6 step 10; see
// internal/tempbuf for why the body itself never needs random-access
// rewriting).
//
// Write surfaces the first fatal error it encounters (spec.md §7);
// on error, dest is left in an unspecified, partial state.
func Write(ctx context.Context, dest io.WriteSeeker, chromSizes map[string]uint32, src Source, opts ...Option) (Summary, error) {
	cfg := model.DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := workpool.New(cfg.Concurrency)
	defer pool.Close()

	cw := &countingWriter{w: dest}

	resolutions := cfg.ZoomResolutions()

	// Step 1: reserve the header and the zoom-level entry table.
	if err := writeZeros(cw, headerSize+zoomEntrySize*int64(len(resolutions))); err != nil {
		return Summary{}, bwerr.Wrap(bwerr.IoError, err, "bigwig: reserve header")
	}

	// Step 2: reserve the total summary.
	summaryOffset := cw.pos
	if err := writeZeros(cw, summarySize); err != nil {
		return Summary{}, bwerr.Wrap(bwerr.IoError, err, "bigwig: reserve summary")
	}

	// Step 3+4: reserve the total-section-count slot; per spec.md §6 this
	// slot IS full_data_offset (the count sits at that offset, followed
	// immediately by section payloads).
	dataCountOffset := cw.pos
	if err := writeZeros(cw, 8); err != nil {
		return Summary{}, bwerr.Wrap(bwerr.IoError, err, "bigwig: reserve section count")
	}
	fullDataOffset := uint64(dataCountOffset)
	sectionsStart := cw.pos

	secRecorder, err := sectionidx.NewRecorder()
	if err != nil {
		return Summary{}, err
	}
	defer secRecorder.Close()

	levels := make([]*zoomLevelState, len(resolutions))
	for i, r := range resolutions {
		buf, err := tempbuf.New()
		if err != nil {
			return Summary{}, err
		}
		levels[i] = &zoomLevelState{resolution: r, buf: buf}
	}
	defer func() {
		for _, lvl := range levels {
			lvl.buf.Close()
		}
	}()

	dm := demux.New(src, cfg.AllowOutOfOrderChroms)

	readyCh := make(chan readyChrom, 2)
	producerErrCh := make(chan error, 1)

	var (
		chroms          []model.Chrom
		maxUncompressed maxTracker
	)

	go runProducer(ctx, cancel, pool, dm, chromSizes, cfg, levels, readyCh, producerErrCh, &chroms, &maxUncompressed)

	global := model.Zero()
	var totalSectionCount uint64

	for rc := range readyCh {
		attachBase := cw.pos
		if _, err := rc.buf.Switch(cw); err != nil {
			cancel()
			return Summary{}, err
		}
		if err := rc.buf.Close(); err != nil {
			cancel()
			return Summary{}, err
		}
		for _, le := range rc.localPrimary {
			if err := secRecorder.Append(sectionidx.Entry{
				ChromID: le.chromID, Start: le.start, End: le.end,
				Offset: uint64(attachBase) + le.localOffset, Size: le.size,
			}); err != nil {
				cancel()
				return Summary{}, err
			}
			totalSectionCount++
		}
		if perr := <-rc.errCh; perr != nil {
			cancel()
			return Summary{}, perr
		}
		global.Fold(<-rc.sumCh)
	}
	if perr := <-producerErrCh; perr != nil {
		return Summary{}, perr
	}

	// Step 7: chromosome B+-tree.
	chromTreeOffset := cw.pos
	if err := bptree.Write(cw, chroms); err != nil {
		return Summary{}, err
	}

	primaryDataSize := chromTreeOffset - sectionsStart

	// Step 8: primary R-tree, built from the committed section index.
	idxIt, err := secRecorder.Iterator()
	if err != nil {
		return Summary{}, err
	}
	primaryTree, err := rtree.Build(idxIt, cfg.BlockSize)
	if err != nil {
		return Summary{}, err
	}
	fullIndexOffset := cw.pos
	if err := primaryTree.Write(cw, uint64(fullIndexOffset), cfg.ItemsPerSlot); err != nil {
		return Summary{}, err
	}

	// Step 9: kept zoom levels, in order from finest to coarsest.
	type zoomHeaderEntry struct {
		reductionLevel uint32
		dataOffset     uint64
		indexOffset    uint64
	}
	var keptZoom []zoomHeaderEntry
	for _, lvl := range levels {
		size := lvl.buf.Written()
		if primaryDataSize > 0 && size > primaryDataSize/2 {
			// spec.md §3/§4.6 step 9: drop zoom levels that would cost
			// more than half the primary data size.
			continue
		}
		if len(lvl.entries) == 0 {
			continue
		}

		dataOffset := cw.pos
		if _, err := lvl.buf.Switch(cw); err != nil {
			return Summary{}, err
		}
		if err := lvl.buf.Close(); err != nil {
			return Summary{}, err
		}

		zRecorder, err := sectionidx.NewRecorder()
		if err != nil {
			return Summary{}, err
		}
		for _, le := range lvl.entries {
			if err := zRecorder.Append(sectionidx.Entry{
				ChromID: le.chromID, Start: le.start, End: le.end,
				Offset: uint64(dataOffset) + le.localOffset, Size: le.size,
			}); err != nil {
				zRecorder.Close()
				return Summary{}, err
			}
		}
		zIt, err := zRecorder.Iterator()
		if err != nil {
			zRecorder.Close()
			return Summary{}, err
		}
		zTree, err := rtree.Build(zIt, cfg.BlockSize)
		if err != nil {
			zRecorder.Close()
			return Summary{}, err
		}
		indexOffset := cw.pos
		if err := zTree.Write(cw, uint64(indexOffset), cfg.ItemsPerSlot); err != nil {
			zRecorder.Close()
			return Summary{}, err
		}
		zRecorder.Close()

		keptZoom = append(keptZoom, zoomHeaderEntry{
			reductionLevel: lvl.resolution,
			dataOffset:     uint64(dataOffset),
			indexOffset:    uint64(indexOffset),
		})
	}

	fileEnd := cw.pos

	// uncompress_buf_size is only meaningful to a reader as the signal to
	// zlib-decompress a section (spec.md §6); with compression disabled it
	// must stay 0, matching the original's "if compress {...} else {0}"
	// split, not a floor applied regardless of cfg.Compress.
	var uncompressBufSize int
	if cfg.Compress {
		uncompressBufSize = maxUncompressed.get()
		if uncompressBufSize < primaryShellSize {
			uncompressBufSize = primaryShellSize
		}
	}

	// Step 10: back-patch header, zoom table, summary and section count;
	// finally write the trailing magic at the true end of file.
	if err := cw.seekAbs(0); err != nil {
		return Summary{}, err
	}
	var hdr [headerSize]byte
	binary.LittleEndian.PutUint32(hdr[0:4], fileMagic)
	binary.LittleEndian.PutUint16(hdr[4:6], fileVersion)
	binary.LittleEndian.PutUint16(hdr[6:8], uint16(len(keptZoom)))
	binary.LittleEndian.PutUint64(hdr[8:16], uint64(chromTreeOffset))
	binary.LittleEndian.PutUint64(hdr[16:24], fullDataOffset)
	binary.LittleEndian.PutUint64(hdr[24:32], uint64(fullIndexOffset))
	// hdr[32:36] field_count/defined_field_count, hdr[36:44] autoSQL_offset: 0
	binary.LittleEndian.PutUint64(hdr[44:52], uint64(summaryOffset))
	binary.LittleEndian.PutUint32(hdr[52:56], uint32(uncompressBufSize))
	// hdr[56:64] reserved: 0
	if _, err := cw.Write(hdr[:]); err != nil {
		return Summary{}, err
	}
	for _, z := range keptZoom {
		var e [zoomEntrySize]byte
		binary.LittleEndian.PutUint32(e[0:4], z.reductionLevel)
		binary.LittleEndian.PutUint64(e[8:16], z.dataOffset)
		binary.LittleEndian.PutUint64(e[16:24], z.indexOffset)
		if _, err := cw.Write(e[:]); err != nil {
			return Summary{}, err
		}
	}

	if err := cw.seekAbs(summaryOffset); err != nil {
		return Summary{}, err
	}
	var s [summarySize]byte
	binary.LittleEndian.PutUint64(s[0:8], global.BasesCovered)
	binary.LittleEndian.PutUint64(s[8:16], math.Float64bits(global.Min))
	binary.LittleEndian.PutUint64(s[16:24], math.Float64bits(global.Max))
	binary.LittleEndian.PutUint64(s[24:32], math.Float64bits(global.Sum))
	binary.LittleEndian.PutUint64(s[32:40], math.Float64bits(global.SumSquares))
	if _, err := cw.Write(s[:]); err != nil {
		return Summary{}, err
	}

	if err := cw.seekAbs(dataCountOffset); err != nil {
		return Summary{}, err
	}
	var c [8]byte
	binary.LittleEndian.PutUint64(c[:], totalSectionCount)
	if _, err := cw.Write(c[:]); err != nil {
		return Summary{}, err
	}

	if err := cw.seekAbs(fileEnd); err != nil {
		return Summary{}, err
	}
	var m [4]byte
	binary.LittleEndian.PutUint32(m[:], fileMagic)
	if _, err := cw.Write(m[:]); err != nil {
		return Summary{}, err
	}

	return global, nil
}

// runProducer walks the demultiplexer one chromosome at a time,
// draining its chromosome-group processor's primary and zoom channels
// into temp-file buffers, then hands the fully-drained chromosome to
// readyCh for the coordinator to commit. Because commit (Switch + fold)
// happens on the coordinator's goroutine while this loop moves on to
// the next chromosome, a chromosome's sections can be produced while
// the previous one is still being copied into the destination file --
// spec.md §4.4's "begin producing while the previous chromosome is
// still being drained" -- without violating internal/demux's
// one-live-GroupIter-at-a-time contract, since this function fully
// drains each GroupIter (via chromproc, synchronously within the
// per-chromosome iteration) before asking for the next one.
func runProducer(ctx context.Context, cancel context.CancelFunc, pool *workpool.Pool, dm *demux.Demux, chromSizes map[string]uint32,
	cfg model.Config, levels []*zoomLevelState, readyCh chan<- readyChrom, doneErrCh chan<- error,
	chroms *[]model.Chrom, maxUncompressed *maxTracker) {

	defer close(readyCh)
	defer close(doneErrCh)

	var nextID uint32
	for {
		select {
		case <-ctx.Done():
			doneErrCh <- ctx.Err()
			return
		default:
		}

		name, it, err := dm.NextChromosome()
		if err != nil {
			cancel()
			doneErrCh <- err
			return
		}
		if it == nil {
			doneErrCh <- nil
			return
		}

		length, ok := chromSizes[name]
		if !ok {
			err := bwerr.Invalidf("bigwig: chromosome %q has no entry in chrom.sizes", name)
			cancel()
			doneErrCh <- err
			return
		}

		chrom := model.Chrom{Name: name, ID: nextID, Length: length}
		nextID++
		*chroms = append(*chroms, chrom)

		buf, err := tempbuf.New()
		if err != nil {
			cancel()
			doneErrCh <- err
			return
		}

		out, errCh, sumCh := chromproc.Process(ctx, pool, chrom, it, cfg)

		var (
			wg           sync.WaitGroup
			localPrimary []localEntry
		)
		wg.Add(1 + len(out.Zoom))

		go func() {
			defer wg.Done()
			drainPrimary(buf, out.Primary, &localPrimary, maxUncompressed, cancel)
		}()
		for i, zch := range out.Zoom {
			lvl := levels[i]
			zch := zch
			go func() {
				defer wg.Done()
				drainZoom(lvl, zch, maxUncompressed, cancel)
			}()
		}
		wg.Wait()

		select {
		case readyCh <- readyChrom{chrom: chrom, buf: buf, localPrimary: localPrimary, errCh: errCh, sumCh: sumCh}:
		case <-ctx.Done():
			doneErrCh <- ctx.Err()
			return
		}
	}
}

func drainPrimary(buf *tempbuf.Buffer, ch <-chan section.Encoded, out *[]localEntry, maxUncompressed *maxTracker, cancel context.CancelFunc) {
	for enc := range ch {
		localOff := buf.Written()
		if _, err := buf.Write(enc.Bytes); err != nil {
			cancel()
			continue
		}
		*out = append(*out, localEntry{
			chromID: enc.ChromID, start: enc.Start, end: enc.End,
			localOffset: uint64(localOff), size: uint64(len(enc.Bytes)),
		})
		maxUncompressed.observe(enc.UncompressedSize)
	}
}

func drainZoom(lvl *zoomLevelState, ch <-chan section.Encoded, maxUncompressed *maxTracker, cancel context.CancelFunc) {
	for enc := range ch {
		localOff := lvl.buf.Written()
		if _, err := lvl.buf.Write(enc.Bytes); err != nil {
			cancel()
			continue
		}
		lvl.entries = append(lvl.entries, localEntry{
			chromID: enc.ChromID, start: enc.Start, end: enc.End,
			localOffset: uint64(localOff), size: uint64(len(enc.Bytes)),
		})
		maxUncompressed.observe(enc.UncompressedSize)
	}
}
