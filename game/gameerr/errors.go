// Package gameerr defines the error taxonomy shared by the session engine,
// matchmaking and negotiation layers.
//
// Every externally visible failure is an *Error carrying a machine-readable
// Code, the session it concerns (when there is one) and a message that names
// the violated rule. Codes group into a small set of Kinds that transports map
// onto their own status space (see HTTPStatus).
package gameerr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the coarse classification callers branch on.
type Kind string

const (
	KindNotFound     Kind = "not_found"
	KindInvalidInput Kind = "invalid_input"
	KindConflict     Kind = "conflict"
	KindUnauthorized Kind = "unauthorized"
	KindUnavailable  Kind = "unavailable"
	KindInternal     Kind = "internal"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown Code = "UNKNOWN"

	// Lookup failures
	CodeSessionNotFound     Code = "SESSION_NOT_FOUND"
	CodeParticipantNotFound Code = "PARTICIPANT_NOT_FOUND"
	CodePresetNotFound      Code = "PRESET_NOT_FOUND"
	CodeUserNotFound        Code = "USER_NOT_FOUND"
	CodeOfferNotFound       Code = "OFFER_NOT_FOUND"

	// Validation failures
	CodeInvalidInput Code = "INVALID_INPUT"
	CodeInvalidMode  Code = "INVALID_MODE"
	CodeInvalidMark  Code = "INVALID_MARK"
	CodeInvalidSize  Code = "INVALID_SIZE"
	CodeOutOfRange   Code = "OUT_OF_RANGE"

	// State conflicts
	CodeGameOver             Code = "GAME_OVER"
	CodeWrongTurn            Code = "WRONG_TURN"
	CodeCellOccupied         Code = "CELL_OCCUPIED"
	CodeAlreadySearching     Code = "ALREADY_SEARCHING"
	CodeStaleWrite           Code = "STALE_WRITE"
	CodeInvitationPending    Code = "INVITATION_PENDING"
	CodeInvitationNotPending Code = "INVITATION_NOT_PENDING"
	CodeGameInProgress       Code = "GAME_IN_PROGRESS"
	CodeAlreadyExists        Code = "ALREADY_EXISTS"

	// Authorization failures
	CodeNotParticipant Code = "NOT_PARTICIPANT"
	CodeNotFriends     Code = "NOT_FRIENDS"
	CodeBotParticipant Code = "BOT_PARTICIPANT"

	// Infrastructure
	CodeStoreUnavailable Code = "STORE_UNAVAILABLE"
)

// Kind returns the classification of the code.
func (c Code) Kind() Kind {
	switch c {
	case CodeSessionNotFound, CodeParticipantNotFound, CodePresetNotFound,
		CodeUserNotFound, CodeOfferNotFound:
		return KindNotFound
	case CodeInvalidInput, CodeInvalidMode, CodeInvalidMark, CodeInvalidSize, CodeOutOfRange:
		return KindInvalidInput
	case CodeGameOver, CodeWrongTurn, CodeCellOccupied, CodeAlreadySearching,
		CodeStaleWrite, CodeInvitationPending, CodeInvitationNotPending,
		CodeGameInProgress, CodeAlreadyExists:
		return KindConflict
	case CodeNotParticipant, CodeNotFriends, CodeBotParticipant:
		return KindUnauthorized
	case CodeStoreUnavailable:
		return KindUnavailable
	default:
		return KindInternal
	}
}

// HTTPStatus maps a kind to the status code the REST transport answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusForbidden
	case KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Error is the domain error type.
type Error struct {
	Code      Code
	Message   string
	SessionID string
	Cause     error
}

func (e *Error) Error() string {
	if e.SessionID != "" {
		return fmt.Sprintf("session %s: %s", e.SessionID, e.Message)
	}
	return e.Message
}

// Unwrap returns the underlying cause for error chain traversal.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// Kind returns the classification of the error's code.
func (e *Error) Kind() Kind {
	return e.Code.Kind()
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause. The cause is
// kept for logs; it never appears in Error().
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// ForSession returns a copy of the error scoped to a session.
func (e *Error) ForSession(sessionID string) *Error {
	cp := *e
	cp.SessionID = sessionID
	return &cp
}

// Sentinels for errors.Is checks. They are never returned directly.
var (
	ErrSessionNotFound      = New(CodeSessionNotFound, "session not found")
	ErrParticipantNotFound  = New(CodeParticipantNotFound, "participant not found")
	ErrPresetNotFound       = New(CodePresetNotFound, "preset not found")
	ErrUserNotFound         = New(CodeUserNotFound, "user not found")
	ErrOfferNotFound        = New(CodeOfferNotFound, "rematch offer not found")
	ErrInvalidInput         = New(CodeInvalidInput, "invalid input")
	ErrInvalidMode          = New(CodeInvalidMode, "invalid mode")
	ErrInvalidMark          = New(CodeInvalidMark, "invalid mark")
	ErrInvalidSize          = New(CodeInvalidSize, "invalid board size")
	ErrOutOfRange           = New(CodeOutOfRange, "cell out of range")
	ErrGameOver             = New(CodeGameOver, "game is over")
	ErrWrongTurn            = New(CodeWrongTurn, "not your turn")
	ErrCellOccupied         = New(CodeCellOccupied, "cell occupied")
	ErrAlreadySearching     = New(CodeAlreadySearching, "already searching")
	ErrStaleWrite           = New(CodeStaleWrite, "stale write")
	ErrInvitationPending    = New(CodeInvitationPending, "invitation not accepted yet")
	ErrInvitationNotPending = New(CodeInvitationNotPending, "invitation is not pending")
	ErrGameInProgress       = New(CodeGameInProgress, "game still in progress")
	ErrAlreadyExists        = New(CodeAlreadyExists, "already exists")
	ErrNotParticipant       = New(CodeNotParticipant, "not a participant")
	ErrNotFriends           = New(CodeNotFriends, "users are not friends")
	ErrBotParticipant       = New(CodeBotParticipant, "bot participants cannot be driven externally")
	ErrStoreUnavailable     = New(CodeStoreUnavailable, "session store unavailable")
)

// CodeOf extracts the code of a domain error, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// KindOf classifies any error. Errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	return CodeOf(err).Kind()
}

// IsRetriable reports whether the caller may retry the operation unchanged.
func IsRetriable(err error) bool {
	return KindOf(err) == KindUnavailable
}
