// Package errs defines the error taxonomy shared across the indexer,
// account, and transaction-builder packages. Sentinel errors are wrapped
// with github.com/cockroachdb/errors at each call site so a failure deep
// inside the sync driver keeps its originating context when it surfaces.
package errs

import "github.com/cockroachdb/errors"

// Sentinel errors. Wrap with errors.Wrapf(ErrX, "...") at the call site;
// test with errors.Is.
var (
	// ErrTransportFatal is a non-range transport failure; propagated to
	// the caller of sync, not retried.
	ErrTransportFatal = errors.New("transport: fatal error")

	// ErrDecode marks a malformed log or unknown event; logged and
	// skipped, never fatal.
	ErrDecode = errors.New("decode: malformed or unrecognized log")

	// ErrBadReceiver indicates a receiver string starting with neither
	// "0x" nor "0zk".
	ErrBadReceiver = errors.New("account: receiver must start with 0x or 0zk")

	// ErrInsufficientFunds indicates the grand total across all trees
	// fell short of the requested value.
	ErrInsufficientFunds = errors.New("account: insufficient unspent note value")

	// ErrTreeIndexOutOfRange indicates a tree number beyond the forest's
	// current extent.
	ErrTreeIndexOutOfRange = errors.New("merkleforest: tree index out of range")

	// ErrNoTreesInitialized indicates an operation requiring at least
	// one tree was attempted on an empty forest.
	ErrNoTreesInitialized = errors.New("merkleforest: no trees initialized")

	// ErrProver surfaces a failure from the external prover collaborator.
	ErrProver = errors.New("txbuilder: prover error")

	// ErrSigner surfaces a failure from the external signer collaborator.
	ErrSigner = errors.New("txbuilder: signer error")

	// ErrSnapshotVersionMismatch indicates an account snapshot's endBlock
	// is ahead of the indexer snapshot it is paired with.
	ErrSnapshotVersionMismatch = errors.New("storage: account snapshot is ahead of indexer snapshot")

	// ErrSnapshotFormat indicates a persisted blob carries an
	// unrecognized format version byte.
	ErrSnapshotFormat = errors.New("storage: unrecognized snapshot format version")

	// ErrInvariantViolation marks a fatal internal consistency failure:
	// a leaf written twice at the same slot with a different value, or a
	// nullifier inserted against a tree that does not exist.
	ErrInvariantViolation = errors.New("invariant violation")

	// ErrLeafNotFound indicates proof() was asked for a leaf value absent
	// from level 0 of the requested tree.
	ErrLeafNotFound = errors.New("merkleforest: leaf not found")
)

// RangeError is the marker interface a transport error implements to
// signal the sync driver should retry with a smaller batch instead of
// treating the failure as fatal.
type RangeError interface {
	error
	RangeError() bool
}

// transportRangeError is the concrete RangeError the log-source adapter
// constructs when a provider refuses a block span (most commonly "query
// returned more than N results" or "block range too large").
type transportRangeError struct {
	inner error
}

// NewTransportRangeError wraps err as a retryable range error.
func NewTransportRangeError(err error) error {
	return &transportRangeError{inner: err}
}

func (e *transportRangeError) Error() string    { return "transport: range error: " + e.inner.Error() }
func (e *transportRangeError) Unwrap() error    { return e.inner }
func (e *transportRangeError) RangeError() bool { return true }

// IsRangeError reports whether err (or something it wraps) is a
// transport range error the sync driver should retry with a smaller batch.
func IsRangeError(err error) bool {
	var re RangeError
	if errors.As(err, &re) {
		return re.RangeError()
	}
	return false
}
