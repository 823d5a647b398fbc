package ocrerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorMessage(t *testing.T) {
	e := New(BadInput, "bad file")
	assert.Equal(t, "BAD_INPUT: bad file", e.Error())

	wrapped := Wrap(CacheIO, "admit failed", fmt.Errorf("disk full"))
	assert.Equal(t, "CACHE_IO: admit failed: disk full", wrapped.Error())
}

func TestUnwrap(t *testing.T) {
	cause := fmt.Errorf("underlying")
	e := Wrap(TransientIO, "gs failed", cause)
	assert.Equal(t, cause, errors.Unwrap(e))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, NotFound, KindOf(NewJobNotFoundError("abc")))
	assert.Equal(t, Internal, KindOf(fmt.Errorf("plain error")))

	wrapped := fmt.Errorf("context: %w", NewAlreadyTerminalError("abc"))
	assert.Equal(t, AlreadyTerminal, KindOf(wrapped))
}

func TestFactoryConstructors(t *testing.T) {
	var e *Error

	e = NewUnsupportedExtensionError("report.docx")
	require.Equal(t, BadInput, e.Kind)

	e = NewNoValidInputError()
	require.Equal(t, NoValidInput, e.Kind)

	e = NewJobNotFoundError("job-1")
	require.Equal(t, NotFound, e.Kind)

	e = NewAlreadyTerminalError("job-1")
	require.Equal(t, AlreadyTerminal, e.Kind)

	e = NewCacheIOError("admit", fmt.Errorf("rename failed"))
	require.Equal(t, CacheIO, e.Kind)
	require.Error(t, e.Cause)

	e = NewTransientIOError("optimise", fmt.Errorf("gs exit 1"))
	require.Equal(t, TransientIO, e.Kind)
}
