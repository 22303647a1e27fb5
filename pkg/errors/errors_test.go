package errors

import (
	"fmt"
	"net/http"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("open: %w", ErrNotFound), http.StatusNotFound},
		{"document not found", ErrDocumentNotFound, http.StatusNotFound},
		{"invalid input", fmt.Errorf("%w: k", ErrInvalidInput), http.StatusBadRequest},
		{"closed", ErrReaderClosed, http.StatusServiceUnavailable},
		{"unavailable", Unavailable("read", os.ErrClosed), http.StatusServiceUnavailable},
		{"timeout", ErrTimeout, http.StatusServiceUnavailable},
		{"corrupt", Corruptf("bad magic %x", 1), http.StatusInternalServerError},
		{"app error", New(ErrInvalidInput, http.StatusTeapot, "x"), http.StatusTeapot},
		{"unknown", fmt.Errorf("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatusCode(tt.err))
		})
	}
}

func TestWrappingKeepsCause(t *testing.T) {
	err := Unavailable("reading seg-0", os.ErrClosed)
	assert.True(t, Is(err, ErrIndexUnavailable))
	assert.True(t, Is(err, os.ErrClosed))

	err = Corruptf("segment %s", "a")
	assert.True(t, Is(err, ErrCorruptIndex))
	assert.Contains(t, err.Error(), "segment a")

	appErr := Newf(ErrNotFound, http.StatusNotFound, "index %s", "x")
	var target *AppError
	assert.True(t, As(fmt.Errorf("wrap: %w", appErr), &target))
	assert.Equal(t, "index x", target.Message)
	assert.True(t, Is(appErr, ErrNotFound))
}
