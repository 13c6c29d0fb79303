package watch

import "errors"

// ErrUnexpectedNotification is fatal: every inotify batch must match
// the registered watch descriptor and carry only IN_MOVED_TO bits.
var ErrUnexpectedNotification = errors.New("watch: unexpected filesystem notification")
