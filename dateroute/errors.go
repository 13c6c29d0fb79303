package dateroute

import "errors"

// ErrInvalidRepoDateFilename is fatal: a malformed "YYYY/MM-DD.txt"
// name, or one that fails the roundtrip integrity check in
// RouteTimestamp,
// cannot be routed.
var ErrInvalidRepoDateFilename = errors.New("dateroute: invalid repo date filename")
