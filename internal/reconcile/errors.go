package reconcile

import "errors"

// ErrNotLocal is recorded for entries whose path would escape the
// workspace root.
var ErrNotLocal = errors.New("path is not local to the workspace")
