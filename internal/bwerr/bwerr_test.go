package bwerr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOfRoundTrips(t *testing.T) {
	err := Invalidf("bad thing: %d", 42)
	assert.Equal(t, InvalidInput, KindOf(err))
	assert.Contains(t, err.Error(), "bad thing: 42")
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(IoError, cause, "writing section", "offset", 128)
	assert.Equal(t, IoError, KindOf(err))
	assert.Contains(t, err.Error(), "disk full")
}

func TestKindOfUnknownForForeignError(t *testing.T) {
	assert.Equal(t, Unknown, KindOf(errors.New("not ours")))
}

func TestInternalf(t *testing.T) {
	err := Internalf("invariant violated: %s", "future never resolved")
	require.Error(t, err)
	assert.Equal(t, InternalError, KindOf(err))
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "invalid input", InvalidInput.String())
	assert.Equal(t, "io error", IoError.String())
	assert.Equal(t, "compression error", CompressionError.String())
	assert.Equal(t, "internal error", InternalError.String())
	assert.Equal(t, "unknown", Unknown.String())
}
