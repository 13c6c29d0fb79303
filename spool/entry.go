// Package spool implements the crash-safe, one-file-per-message
// handoff between the logger and the publisher: the Writer side used
// by the logger, the Drainer side used by the publisher, and the
// shared Entry wire format both agree on.
package spool

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Errors surfaced when an entry cannot be decoded.
var (
	ErrFileHasNoNewline        = errors.New("spool: file has no newline")
	ErrFileHasInvalidTimestamp = errors.New("spool: file has invalid timestamp")
)

// Entry is the decoded contents of one spool file: a timestamp, a
// sender prefix, and an opaque message body. Both the logger (encode)
// and the publisher (decode, for date routing) use this single
// implementation so the wire format has one source of truth.
type Entry struct {
	Timestamp uint64
	Sender    string
	Body      []byte
}

// Encode renders the entry as "<timestamp>\n<sender>\n<body>", with no
// trailing newline required after the body.
func (e Entry) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(strconv.FormatUint(e.Timestamp, 10))
	buf.WriteByte('\n')
	buf.WriteString(e.Sender)
	buf.WriteByte('\n')
	buf.Write(e.Body)
	return buf.Bytes()
}

// DecodeEntry parses raw spool-file bytes back into an Entry.
func DecodeEntry(raw []byte) (Entry, error) {
	i := bytes.IndexByte(raw, '\n')
	if i < 0 {
		return Entry{}, ErrFileHasNoNewline
	}
	tsField := raw[:i]
	rest := raw[i+1:]

	j := bytes.IndexByte(rest, '\n')
	if j < 0 {
		return Entry{}, ErrFileHasNoNewline
	}
	sender := string(rest[:j])
	body := rest[j+1:]

	ts, err := strconv.ParseUint(string(tsField), 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %v", ErrFileHasInvalidTimestamp, err)
	}

	return Entry{Timestamp: ts, Sender: sender, Body: body}, nil
}

// DecodeTimestampPrefix parses just the leading timestamp line from a
// bounded prefix of a spool file, for date routing, where the caller
// passes at most MaxDateRoutingPrefix bytes rather than the whole file.
func DecodeTimestampPrefix(prefix []byte) (uint64, error) {
	i := bytes.IndexByte(prefix, '\n')
	if i < 0 {
		return 0, ErrFileHasNoNewline
	}
	ts, err := strconv.ParseUint(string(prefix[:i]), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrFileHasInvalidTimestamp, err)
	}
	return ts, nil
}

// MaxDateRoutingPrefix bounds the read used to extract just the
// timestamp line.
const MaxDateRoutingPrefix = 8192
