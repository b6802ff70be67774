package domain

import "errors"

// Code is a machine-readable rejection reason. Codes double as message catalog keys.
type Code string

const (
	CodeAlreadyActive     Code = "ALREADY_ACTIVE"
	CodeSelfChallenge     Code = "SELF_CHALLENGE"
	CodeMissingTarget     Code = "MISSING_TARGET"
	CodeNotAddressedToYou Code = "NOT_ADDRESSED_TO_YOU"
	CodeStaleChallenge    Code = "STALE_CHALLENGE"
	CodeNoActiveGame      Code = "NO_ACTIVE_GAME"
	CodeNotYourTurn       Code = "NOT_YOUR_TURN"
	CodeIllegalMove       Code = "ILLEGAL_MOVE"
	CodeUnknownAction     Code = "UNKNOWN_ACTION"
)

// Error is a recoverable, user-facing rejection. Message is for logs; the text
// shown to users is looked up by Code.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches any *Error with the same code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates an error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates an error with a code that keeps cause in the chain.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

var (
	ErrAlreadyActive     = New(CodeAlreadyActive, "conversation already has a challenge or game")
	ErrSelfChallenge     = New(CodeSelfChallenge, "cannot challenge yourself")
	ErrMissingTarget     = New(CodeMissingTarget, "challenge needs a replied-to user")
	ErrNotAddressedToYou = New(CodeNotAddressedToYou, "action addressed to another user")
	ErrStaleChallenge    = New(CodeStaleChallenge, "challenge no longer pending")
	ErrNoActiveGame      = New(CodeNoActiveGame, "no active game")
	ErrNotYourTurn       = New(CodeNotYourTurn, "not your turn")
	ErrIllegalMove       = New(CodeIllegalMove, "illegal move")
	ErrUnknownAction     = New(CodeUnknownAction, "unknown action")
)

// CodeOf extracts the rejection code from err, if any.
func CodeOf(err error) (Code, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Code, true
	}
	return "", false
}
