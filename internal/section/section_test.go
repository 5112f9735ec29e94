package section

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"testing"

	"github.com/klauspost/compress/zlib"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomekit/bigwig/internal/model"
)

func TestEncodePrimaryUncompressedLayout(t *testing.T) {
	batch := []model.Record{
		{Start: 1, End: 100, Value: 0.5},
		{Start: 101, End: 200, Value: 1.5},
	}
	enc, err := EncodePrimary(3, batch, false)
	require.NoError(t, err)

	assert.Equal(t, uint32(3), enc.ChromID)
	assert.Equal(t, uint32(1), enc.Start)
	assert.Equal(t, uint32(200), enc.End)
	assert.Equal(t, 2, enc.ItemCount)
	assert.Equal(t, 0, enc.UncompressedSize)

	b := enc.Bytes
	require.Len(t, b, 24+2*12)
	assert.Equal(t, uint32(3), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[4:8]))
	assert.Equal(t, uint32(200), binary.LittleEndian.Uint32(b[8:12]))
	assert.Equal(t, byte(1), b[16]) // type
	assert.Equal(t, uint16(2), binary.LittleEndian.Uint16(b[18:20]))

	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[20:24]))
	assert.Equal(t, uint32(100), binary.LittleEndian.Uint32(b[24:28]))
	v := math.Float32frombits(binary.LittleEndian.Uint32(b[28:32]))
	assert.Equal(t, float32(0.5), v)
}

func TestEncodePrimaryRejectsEmptyBatch(t *testing.T) {
	_, err := EncodePrimary(0, nil, false)
	assert.Error(t, err)
}

func TestEncodePrimaryCompressedRoundTrips(t *testing.T) {
	batch := []model.Record{{Start: 0, End: 10, Value: 2.0}}
	enc, err := EncodePrimary(0, batch, true)
	require.NoError(t, err)
	assert.NotZero(t, enc.UncompressedSize)

	zr, err := zlib.NewReader(bytes.NewReader(enc.Bytes))
	require.NoError(t, err)
	defer zr.Close()
	out, err := io.ReadAll(zr)
	require.NoError(t, err)
	assert.Equal(t, enc.UncompressedSize, len(out))
}

func TestEncodeZoomLayout(t *testing.T) {
	batch := []model.ZoomRecord{
		{ChromID: 1, Start: 0, End: 10, Summary: model.Summary{TotalItems: 4, Min: -1, Max: 2, Sum: 3, SumSquares: 9}},
	}
	enc, err := EncodeZoom(1, batch, false)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), enc.Start)
	assert.Equal(t, uint32(10), enc.End)
	require.Len(t, enc.Bytes, 32)

	b := enc.Bytes
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(b[0:4]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(b[12:16]))
	assert.Equal(t, float32(-1), math.Float32frombits(binary.LittleEndian.Uint32(b[16:20])))
}

func TestEncodeZoomRejectsEmptyBatch(t *testing.T) {
	_, err := EncodeZoom(0, nil, false)
	assert.Error(t, err)
}
