package sectionidx

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReplayPreservesOrder(t *testing.T) {
	rec, err := NewRecorder()
	require.NoError(t, err)
	defer rec.Close()

	entries := []Entry{
		{ChromID: 0, Start: 0, End: 100, Offset: 64, Size: 32},
		{ChromID: 0, Start: 100, End: 200, Offset: 96, Size: 40},
		{ChromID: 1, Start: 0, End: 50, Offset: 136, Size: 16},
	}
	for _, e := range entries {
		require.NoError(t, rec.Append(e))
	}
	assert.Equal(t, int64(3), rec.Count())

	it, err := rec.Iterator()
	require.NoError(t, err)

	var got []Entry
	for {
		e, ok, err := it.Next()
		require.NoError(t, err)
		if !ok {
			break
		}
		got = append(got, e)
	}
	assert.Equal(t, entries, got)
}

func TestIteratorOnEmptyRecorder(t *testing.T) {
	rec, err := NewRecorder()
	require.NoError(t, err)
	defer rec.Close()

	it, err := rec.Iterator()
	require.NoError(t, err)

	_, ok, err := it.Next()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCloseRemovesBackingFile(t *testing.T) {
	rec, err := NewRecorder()
	require.NoError(t, err)
	name := rec.f.Name()
	require.NoError(t, rec.Append(Entry{ChromID: 0, Start: 0, End: 1, Offset: 0, Size: 1}))
	require.NoError(t, rec.Close())
	_, statErr := os.Stat(name)
	assert.Error(t, statErr)
}
