package session

import "errors"

// Fatal conditions the state machine can raise.
var (
	ErrInvalidPassword    = errors.New("session: invalid password")
	ErrCannotJoinChannel  = errors.New("session: cannot join channel")
	ErrJoinedWrongChannel = errors.New("session: joined wrong channel")
	ErrNoPingResponse     = errors.New("session: no ping response")
)
