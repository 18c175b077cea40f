package buffer

import (
	"errors"

	"github.com/chartly-labs/envbuffer/internal/relayerr"
)

// ErrStackEmpty is returned by EnvelopeStack.Pop when called on an empty
// stack. The EnvelopeBuffer scheduler never triggers this in practice
// (invariant I2), but implementations must still guard against misuse.
var ErrStackEmpty = errors.New("buffer: pop from empty stack")

// NewStoreError wraps cause as a relayerr StoreError.
func NewStoreError(cause error) error {
	return relayerr.New(relayerr.CodeStoreError, cause)
}

// NewStackError wraps cause as a relayerr StackError.
func NewStackError(cause error) error {
	return relayerr.New(relayerr.CodeStackError, cause)
}

// NewPushFailed wraps cause as a relayerr PushFailed error.
func NewPushFailed(cause error) error {
	return relayerr.New(relayerr.CodePushFailed, cause)
}
