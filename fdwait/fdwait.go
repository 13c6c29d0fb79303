// Package fdwait implements the "block until a descriptor is readable
// or a timeout elapses" primitive the logger uses to interleave
// network reads with ping-liveness tracking.
//
// Built on unix.Poll over a single pollable fd with a caller-chosen
// timeout rather than a fixed tick; a poll interrupted by a signal
// (EINTR) is retried with the same timeout.
package fdwait

import "golang.org/x/sys/unix"

// Outcome reports why Wait returned.
type Outcome int

const (
	// Timeout means the deadline elapsed with no readability event.
	Timeout Outcome = iota
	// FdReady means the descriptor became readable.
	FdReady
)

// Wait blocks until fd is readable or timeoutMs milliseconds elapse,
// whichever comes first. A negative timeoutMs blocks indefinitely.
func Wait(fd int, timeoutMs int) (Outcome, error) {
	for {
		fds := []unix.PollFd{{Fd: int32(fd), Events: unix.POLLIN}}
		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return Timeout, err
		}
		if n == 0 {
			return Timeout, nil
		}
		return FdReady, nil
	}
}
