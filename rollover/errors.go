package rollover

import "errors"

// ErrUnexpectedRepoState is fatal: after the soft reset, only "now"
// and possibly the previous open day's log file may appear in
// `git status --porcelain`. Anything else means the repository is in
// a state this engine doesn't understand.
var ErrUnexpectedRepoState = errors.New("rollover: unexpected repo state")
