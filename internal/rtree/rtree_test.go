package rtree

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomekit/bigwig/internal/sectionidx"
)

func recordEntries(t *testing.T, entries []sectionidx.Entry) *sectionidx.Iterator {
	t.Helper()
	rec, err := sectionidx.NewRecorder()
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	for _, e := range entries {
		require.NoError(t, rec.Append(e))
	}
	it, err := rec.Iterator()
	require.NoError(t, err)
	return it
}

func TestBuildEmpty(t *testing.T) {
	it := recordEntries(t, nil)
	tr, err := Build(it, 4)
	require.NoError(t, err)
	assert.True(t, tr.Empty())
	assert.Equal(t, uint64(0), tr.SectionCount())

	var buf bytes.Buffer
	require.NoError(t, tr.Write(&buf, 0, 1024))
	assert.Equal(t, headerSize, buf.Len())
	assert.Equal(t, Magic, binary.LittleEndian.Uint32(buf.Bytes()[0:4]))
}

func TestBuildSingleLeafBlock(t *testing.T) {
	entries := []sectionidx.Entry{
		{ChromID: 0, Start: 0, End: 100, Offset: 64, Size: 32},
		{ChromID: 0, Start: 100, End: 200, Offset: 96, Size: 32},
	}
	it := recordEntries(t, entries)
	tr, err := Build(it, 4)
	require.NoError(t, err)
	require.False(t, tr.Empty())
	assert.Equal(t, 0, tr.levels)
	assert.Equal(t, uint64(2), tr.SectionCount())

	var buf bytes.Buffer
	require.NoError(t, tr.Write(&buf, 1000, 64))
	body := buf.Bytes()[headerSize:]
	require.Equal(t, nodeHeaderSize+2*leafEntrySize, len(body))
	assert.Equal(t, byte(1), body[0]) // isLeaf
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(body[2:4]))
}

func TestBuildMultiLevel(t *testing.T) {
	// 10 leaves, block size 2: 10 leaves -> 5 parents (level 1) -> 3
	// (level 2: two full pairs plus the fifth node wrapped alone) -> 2
	// (level 3) -> a single root node (level 4), since grouping repeats
	// while a level still has at least blockSize nodes.
	var entries []sectionidx.Entry
	for i := 0; i < 10; i++ {
		entries = append(entries, sectionidx.Entry{
			ChromID: 0,
			Start:   uint32(i * 10),
			End:     uint32(i*10 + 10),
			Offset:  uint64(100 + i*20),
			Size:    20,
		})
	}
	it := recordEntries(t, entries)
	tr, err := Build(it, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(10), tr.SectionCount())
	assert.True(t, tr.levels >= 2)

	var buf bytes.Buffer
	require.NoError(t, tr.Write(&buf, 500, 16))
	assert.Equal(t, Magic, binary.LittleEndian.Uint32(buf.Bytes()[0:4]))
	assert.Equal(t, uint64(500), binary.LittleEndian.Uint64(buf.Bytes()[32:40]))

	// first/last aggregate span should cover the whole input range.
	startBase := binary.LittleEndian.Uint32(buf.Bytes()[20:24])
	endBase := binary.LittleEndian.Uint32(buf.Bytes()[28:32])
	assert.Equal(t, uint32(0), startBase)
	assert.Equal(t, uint32(100), endBase)
}

func TestBuildMixedChromAggregate(t *testing.T) {
	entries := []sectionidx.Entry{
		{ChromID: 0, Start: 0, End: 50, Offset: 64, Size: 16},
		{ChromID: 1, Start: 0, End: 30, Offset: 80, Size: 16},
		{ChromID: 1, Start: 30, End: 90, Offset: 96, Size: 16},
	}
	it := recordEntries(t, entries)
	tr, err := Build(it, 4)
	require.NoError(t, err)
	require.Len(t, tr.root, 3)

	var buf bytes.Buffer
	require.NoError(t, tr.Write(&buf, 0, 8))
	// the header's root aggregate spans both chromosomes: (chrom 0, 0)
	// through (chrom 1, 90).
	hdr := buf.Bytes()
	assert.Equal(t, uint32(0), binary.LittleEndian.Uint32(hdr[16:20]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(hdr[24:28]))
	assert.Equal(t, uint32(90), binary.LittleEndian.Uint32(hdr[28:32]))

	body := buf.Bytes()[headerSize+nodeHeaderSize:]
	// third (last) leaf entry's interval should be (chrom 1, 30-90).
	off := 2 * leafEntrySize
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(body[off:off+4]))
	assert.Equal(t, uint32(90), binary.LittleEndian.Uint32(body[off+12:off+16]))
}

func TestRejectsSmallBlockSize(t *testing.T) {
	it := recordEntries(t, nil)
	_, err := Build(it, 1)
	assert.Error(t, err)
}
