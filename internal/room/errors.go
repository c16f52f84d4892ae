package room

import (
	"errors"
	"fmt"
)

// Kind classifies failures so transports can map them to status codes.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindAuthorization
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindAuthorization:
		return "authorization"
	case KindState:
		return "state"
	default:
		return "internal"
	}
}

// Error is the error type surfaced by every room operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches errors of the same kind and message so wrapped copies of a
// sentinel still satisfy errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

// KindOf returns the Kind of err, or KindInternal for foreign errors.
func KindOf(err error) Kind {
	var re *Error
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindInternal
}

// ユーザーに返すエラー
var (
	ErrInvalidCode     = &Error{Kind: KindValidation, Message: "invalid room code"}
	ErrInvalidName     = &Error{Kind: KindValidation, Message: "room name must be at most 100 characters"}
	ErrInvalidCapacity = &Error{Kind: KindValidation, Message: "max participants must be between 2 and 50"}

	ErrRoomNotFound        = &Error{Kind: KindNotFound, Message: "room not found"}
	ErrNotInRoom           = &Error{Kind: KindNotFound, Message: "you are not in this room"}
	ErrParticipantNotFound = &Error{Kind: KindNotFound, Message: "participant not found in room"}

	ErrHostHasRoom    = &Error{Kind: KindConflict, Message: "you already have an active room"}
	ErrCodeExhausted  = &Error{Kind: KindConflict, Message: "could not allocate a unique room code"}
	ErrRoomFull       = &Error{Kind: KindConflict, Message: "room is full"}
	ErrAlreadyInRoom  = &Error{Kind: KindConflict, Message: "already in room"}
	ErrAlreadyStarted = &Error{Kind: KindConflict, Message: "room has already started"}
	ErrAlreadyKicked  = &Error{Kind: KindConflict, Message: "participant was already removed"}
	ErrNotKicked      = &Error{Kind: KindConflict, Message: "participant was not removed"}

	ErrNotHost        = &Error{Kind: KindAuthorization, Message: "only the host can do this"}
	ErrCannotKickHost = &Error{Kind: KindAuthorization, Message: "cannot kick the host"}
	ErrKicked         = &Error{Kind: KindAuthorization, Message: "you were removed from this room"}
	ErrNotMember      = &Error{Kind: KindAuthorization, Message: "you must be in the room to do this"}

	ErrRoomEnded = &Error{Kind: KindState, Message: "room has ended"}
)

func internalError(msg string, err error) error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}
