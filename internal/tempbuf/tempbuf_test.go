package tempbuf

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteBeforeSwitchGoesToTempFile(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	n, err := b.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, int64(5), b.Written())

	info, err := b.tmp.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(5), info.Size())
}

func TestSwitchCopiesBufferedPrefixThenRoutesDirectly(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Write([]byte("abc"))
	require.NoError(t, err)

	var dest bytes.Buffer
	copied, err := b.Switch(&dest)
	require.NoError(t, err)
	assert.Equal(t, int64(3), copied)
	assert.Equal(t, "abc", dest.String())

	_, err = b.Write([]byte("def"))
	require.NoError(t, err)
	assert.Equal(t, "abcdef", dest.String())
	assert.Equal(t, int64(6), b.Written())
}

func TestSwitchTwiceIsInternalError(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	defer b.Close()

	var dest1, dest2 bytes.Buffer
	_, err = b.Switch(&dest1)
	require.NoError(t, err)
	_, err = b.Switch(&dest2)
	assert.Error(t, err)
}

func TestWriteAfterCloseIsInternalError(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = b.Write([]byte("x"))
	assert.Error(t, err)
}

func TestCloseWithoutSwitchRemovesTempFile(t *testing.T) {
	b, err := New()
	require.NoError(t, err)
	name := b.tmp.Name()
	_, err = b.Write([]byte("abc"))
	require.NoError(t, err)

	require.NoError(t, b.Close())
	_, statErr := os.Stat(name)
	assert.Error(t, statErr)
}

func TestCloseAfterSwitchIsNoop(t *testing.T) {
	b, err := New()
	require.NoError(t, err)

	var dest bytes.Buffer
	_, err = b.Switch(&dest)
	require.NoError(t, err)
	require.NoError(t, b.Close())
	require.NoError(t, b.Close())
}
