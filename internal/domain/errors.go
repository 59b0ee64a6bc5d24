package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session does not exist or is
	// owned by a different user. The two cases are deliberately
	// indistinguishable to callers.
	ErrSessionNotFound = errors.New("chat session not found")

	// ErrMessageNotFound is returned when a message does not exist in the
	// given session.
	ErrMessageNotFound = errors.New("chat message not found")

	// ErrHistoryUnavailable is returned when the message history for a
	// session cannot be read. Fatal to the enclosing turn; an empty
	// history is never substituted.
	ErrHistoryUnavailable = errors.New("chat history unavailable")

	// ErrRoleUnsupported is returned when a message role cannot be
	// represented in the active schema, e.g. a system message under the
	// legacy layout.
	ErrRoleUnsupported = errors.New("message role not supported by active schema")

	// ErrCourseNotFound is returned when a session references a course
	// that no longer exists.
	ErrCourseNotFound = errors.New("course not found")

	// ErrEmailTaken is returned on registration with an email that is
	// already in use.
	ErrEmailTaken = errors.New("email already registered")

	// ErrInvalidCredentials is returned for a failed login or an invalid
	// refresh token.
	ErrInvalidCredentials = errors.New("invalid credentials")
)
