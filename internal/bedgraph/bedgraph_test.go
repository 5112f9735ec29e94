package bedgraph

import (
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genomekit/bigwig/internal/model"
)

func TestScannerBasic(t *testing.T) {
	sc := NewScanner(strings.NewReader("chr1 1 100 0.5\nchr1 101 200 1.5\nchr2 1 50 2.0\n"))

	chrom, rec, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr1", chrom)
	assert.Equal(t, model.Record{Start: 1, End: 100, Value: 0.5}, rec)

	chrom, rec, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr1", chrom)
	assert.Equal(t, model.Record{Start: 101, End: 200, Value: 1.5}, rec)

	chrom, rec, err = sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr2", chrom)
	assert.Equal(t, model.Record{Start: 1, End: 50, Value: 2.0}, rec)

	_, _, err = sc.Next()
	assert.Equal(t, io.EOF, err)
}

func TestScannerSkipsBlankAndCommentLines(t *testing.T) {
	sc := NewScanner(strings.NewReader("# comment\n\ntrack type=bedGraph\nchr1 0 10 1.0\n"))
	chrom, rec, err := sc.Next()
	require.NoError(t, err)
	assert.Equal(t, "chr1", chrom)
	assert.Equal(t, model.Record{Start: 0, End: 10, Value: 1.0}, rec)
}

func TestScannerMalformedLine(t *testing.T) {
	sc := NewScanner(strings.NewReader("chr1 0 10\n"))
	_, _, err := sc.Next()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want 4 fields")
}

func TestParseChromSizes(t *testing.T) {
	sizes, err := ParseChromSizes(strings.NewReader("chr17\t1000\nchr18 2000\n# comment\n\nchr19  3000\n"))
	require.NoError(t, err)
	assert.Equal(t, map[string]uint32{"chr17": 1000, "chr18": 2000, "chr19": 3000}, sizes)
}
