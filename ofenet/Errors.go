package ofenet

import (
	"errors"

	"sfneuman.com/ofenet/network"
)

// Errors returned by this package. Construction problems are reported
// as ErrInvalidConfiguration and are never deferred to training time.
// Per-call failures wrap ErrSchemaMismatch (observation disagrees with
// the declared schema) or ErrShapeMismatch (a tensor width changed
// after parameters were materialized for it). All failures are
// recoverable at the call boundary; nothing here retries or aborts the
// process.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrSchemaMismatch       = errors.New("schema mismatch")
	ErrShapeMismatch        = network.ErrShapeMismatch
)
