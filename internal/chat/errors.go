package chat

import (
	"errors"
	"fmt"
)

// User-facing errors. Each one is resolved into a single reply line for the
// session that caused it and never affects other sessions.
var (
	ErrNotInRoom       = errors.New("not in a room")
	ErrInvalidRoomName = errors.New("invalid room name")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUnknownCommand  = errors.New("unknown command")
	ErrAlreadyInRoom   = errors.New("already in room")
	ErrRateLimited     = errors.New("slow down")
	ErrSessionClosed   = errors.New("session closed")
)

// ErrDeliveryFailure is internal: a single recipient could not take a message.
var ErrDeliveryFailure = errors.New("delivery failure")

var (
	ErrOutboxClosed = fmt.Errorf("%w: outbox closed", ErrDeliveryFailure)
	ErrOutboxFull   = fmt.Errorf("%w: outbox full", ErrDeliveryFailure)
)
