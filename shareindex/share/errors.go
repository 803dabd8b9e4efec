package share

import "errors"

// Sentinel error kinds, matched by callers with errors.Is. Wrapped with
// fmt.Errorf("...: %w", err) wherever additional context helps.
var (
	// ErrShareNotFound means a virtual or real path did not resolve to
	// anything currently in the index.
	ErrShareNotFound = errors.New("share: not found")

	// ErrShareDuplicate means a real path is already shared under a
	// different virtual name.
	ErrShareDuplicate = errors.New("share: real path already shared under a different name")

	// ErrShareInsideShare means a new real path is a subdirectory (or
	// ancestor) of an already-shared real path.
	ErrShareInsideShare = errors.New("share: path is inside an existing share")

	// ErrShareHidden means an attempt to share a hidden path was made
	// while hidden sharing is disallowed.
	ErrShareHidden = errors.New("share: path is hidden")

	// ErrIOUnavailable means the filesystem refused to enumerate a root;
	// the affected root is skipped for the current rescan.
	ErrIOUnavailable = errors.New("share: filesystem unavailable")

	// ErrHashPending means a file has no hash yet. Not treated as an
	// error by the event sink; it excludes the file from the current
	// rescan pass until the hasher delivers a result.
	ErrHashPending = errors.New("share: hash pending")
)

// RescanError records a rescan failure confined to a single root; it never
// aborts the overall rescan pass.
type RescanError struct {
	Root string
	Err  error
}

func (e *RescanError) Error() string {
	return "share: rescan of " + e.Root + ": " + e.Err.Error()
}

func (e *RescanError) Unwrap() error {
	return e.Err
}
