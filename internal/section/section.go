// Package section implements spec.md §4.3's section encoder: a pure
// function from a batch of records (or zoom records) to a serialized,
// optionally zlib-compressed section payload.
//
// Compression uses github.com/klauspost/compress/zlib rather than the
// standard library's compress/zlib -- the retrieval pack consistently
// reaches for klauspost's drop-in implementation wherever compression
// sits on a hot path (grailbio/bio's bam/pam encoders do the same).
package section

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zlib"

	"github.com/genomekit/bigwig/internal/bwerr"
	"github.com/genomekit/bigwig/internal/model"
)

// primaryRecordType is the on-disk "type" byte for a primary (bedGraph)
// section, per spec.md §6.
const primaryRecordType = 1

// Encoded is one section ready to be written to the output file: its
// final bytes (compressed if configured) and the spatial extent those
// bytes cover, which the writer coordinator threads into the
// section-index recorder and, eventually, the R-tree.
type Encoded struct {
	ChromID          uint32
	Start            uint32
	End              uint32
	ItemCount        int
	Bytes            []byte
	UncompressedSize int // 0 when compress is disabled; spec.md §4.3.
}

// EncodePrimary serializes a batch of primary records belonging to one
// chromosome into a single section payload (spec.md §6's primary
// section layout), compressing it if compress is set.
func EncodePrimary(chromID uint32, batch []model.Record, compress bool) (Encoded, error) {
	if len(batch) == 0 {
		return Encoded{}, bwerr.Internalf("section: EncodePrimary called with an empty batch")
	}
	if len(batch) > 0xFFFF {
		return Encoded{}, bwerr.Internalf("section: primary batch of %d exceeds item_count's uint16 range", len(batch))
	}

	start := batch[0].Start
	end := batch[len(batch)-1].End

	var buf bytes.Buffer
	buf.Grow(24 + len(batch)*12)
	_ = binary.Write(&buf, binary.LittleEndian, chromID)
	_ = binary.Write(&buf, binary.LittleEndian, start)
	_ = binary.Write(&buf, binary.LittleEndian, end)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0)) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint32(0)) // reserved
	buf.WriteByte(primaryRecordType)
	buf.WriteByte(0) // reserved
	_ = binary.Write(&buf, binary.LittleEndian, uint16(len(batch)))
	for _, r := range batch {
		_ = binary.Write(&buf, binary.LittleEndian, r.Start)
		_ = binary.Write(&buf, binary.LittleEndian, r.End)
		_ = binary.Write(&buf, binary.LittleEndian, r.Value)
	}

	out, uncompressedSize, err := finish(buf.Bytes(), compress)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{
		ChromID:          chromID,
		Start:            start,
		End:              end,
		ItemCount:        len(batch),
		Bytes:            out,
		UncompressedSize: uncompressedSize,
	}, nil
}

// EncodeZoom serializes a batch of zoom records (all belonging to one
// chromosome and one zoom level) into a zoom section payload (spec.md
// §6's zoom section layout).
func EncodeZoom(chromID uint32, batch []model.ZoomRecord, compress bool) (Encoded, error) {
	if len(batch) == 0 {
		return Encoded{}, bwerr.Internalf("section: EncodeZoom called with an empty batch")
	}

	start := batch[0].Start
	end := batch[len(batch)-1].End

	var buf bytes.Buffer
	buf.Grow(len(batch) * 32)
	for _, z := range batch {
		_ = binary.Write(&buf, binary.LittleEndian, z.ChromID)
		_ = binary.Write(&buf, binary.LittleEndian, z.Start)
		_ = binary.Write(&buf, binary.LittleEndian, z.End)
		_ = binary.Write(&buf, binary.LittleEndian, uint32(z.Summary.TotalItems))
		_ = binary.Write(&buf, binary.LittleEndian, float32(z.Summary.Min))
		_ = binary.Write(&buf, binary.LittleEndian, float32(z.Summary.Max))
		_ = binary.Write(&buf, binary.LittleEndian, float32(z.Summary.Sum))
		_ = binary.Write(&buf, binary.LittleEndian, float32(z.Summary.SumSquares))
	}

	out, uncompressedSize, err := finish(buf.Bytes(), compress)
	if err != nil {
		return Encoded{}, err
	}
	return Encoded{
		ChromID:          chromID,
		Start:            start,
		End:              end,
		ItemCount:        len(batch),
		Bytes:            out,
		UncompressedSize: uncompressedSize,
	}, nil
}

// finish applies optional zlib compression to buf, following spec.md
// §4.3's rule that uncompressedSize is 0 (not the buffer length) when
// compression is disabled -- the header's uncompress_buf_size is only
// meaningful to readers when sections are actually compressed.
func finish(buf []byte, compress bool) (out []byte, uncompressedSize int, err error) {
	if !compress {
		return buf, 0, nil
	}
	var compressed bytes.Buffer
	zw := zlib.NewWriter(&compressed)
	if _, err := zw.Write(buf); err != nil {
		return nil, 0, bwerr.Wrap(bwerr.CompressionError, err, "section: zlib write")
	}
	if err := zw.Close(); err != nil {
		return nil, 0, bwerr.Wrap(bwerr.CompressionError, err, "section: zlib close")
	}
	return compressed.Bytes(), len(buf), nil
}
