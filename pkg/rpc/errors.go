package rpc

import (
	"fmt"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/shard-reader/pkg/errors"
)

// Error codes carried in Response.Code.
const (
	CodeNotFound         = "not_found"
	CodeCorruptIndex     = "corrupt_index"
	CodeUnavailable      = "unavailable"
	CodeReaderClosed     = "reader_closed"
	CodeDocumentNotFound = "document_not_found"
	CodeInvalidInput     = "invalid_input"
	CodeTimeout          = "timeout"
	CodeUnknownMethod    = "unknown_method"
	CodeInternal         = "internal"
)

var codes = []struct {
	code     string
	sentinel error
}{
	{CodeDocumentNotFound, pkgerrors.ErrDocumentNotFound},
	{CodeNotFound, pkgerrors.ErrNotFound},
	{CodeCorruptIndex, pkgerrors.ErrCorruptIndex},
	{CodeReaderClosed, pkgerrors.ErrReaderClosed},
	{CodeUnavailable, pkgerrors.ErrIndexUnavailable},
	{CodeInvalidInput, pkgerrors.ErrInvalidInput},
	{CodeTimeout, pkgerrors.ErrTimeout},
}

func codeOf(err error) string {
	for _, c := range codes {
		if pkgerrors.Is(err, c.sentinel) {
			return c.code
		}
	}
	return CodeInternal
}

func remoteError(method, code, msg string) error {
	for _, c := range codes {
		if c.code == code {
			return fmt.Errorf("rpc %s: %w: %s", method, c.sentinel, msg)
		}
	}
	return fmt.Errorf("rpc %s: %s", method, msg)
}
