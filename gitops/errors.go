package gitops

import "errors"

// ErrChildProcessFailed is fatal: any git invocation that exits
// non-zero aborts the publisher.
var ErrChildProcessFailed = errors.New("gitops: child process failed")
