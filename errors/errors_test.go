package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorFormatting(t *testing.T) {
	err := New(ErrCodeParsing, "cannot parse %s", "broken.pdf")
	assert.Equal(t, "PARSING_ERROR: cannot parse broken.pdf", err.Error())

	wrapped := Wrap(ErrCodeRendering, err, "finalize failed")
	assert.Contains(t, wrapped.Error(), "RENDERING_ERROR: finalize failed")
	assert.Contains(t, wrapped.Error(), "PARSING_ERROR")
}

func TestIsWalksChain(t *testing.T) {
	root := New(ErrCodeEngineInit, "pdf backend unavailable")
	mid := Wrap(ErrCodeEngineNotFound, root, "no engine for request")
	outer := fmt.Errorf("batch item 3: %w", mid)

	assert.True(t, Is(outer, ErrCodeEngineNotFound))
	assert.True(t, Is(outer, ErrCodeEngineInit), "original error must stay discoverable")
	assert.False(t, Is(outer, ErrCodeValidation))
}

func TestUnwrap(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(ErrCodeRendering, cause, "write output")
	require.ErrorIs(t, err, cause)
}

func TestGetCode(t *testing.T) {
	assert.Equal(t, Code(""), GetCode(nil))
	assert.Equal(t, ErrCodeSchema, GetCode(New(ErrCodeSchema, "bad discriminator")))
	assert.Equal(t, ErrCodeInternal, GetCode(stderrors.New("plain")))
	assert.Equal(t, ErrCodeFontStore, GetCode(fmt.Errorf("ctx: %w", New(ErrCodeFontStore, "scan failed"))))
}
