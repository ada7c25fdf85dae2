package core

import "errors"

// ErrNotSupported is returned by operations that exist as extension points
// but have no implemented behavior (pause/resume).
var ErrNotSupported = errors.New("operation not supported")
