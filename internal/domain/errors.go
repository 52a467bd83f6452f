package domain

// ClientError is a non-fatal, client-facing error identified by a short
// machine-readable code. The transport layer translates it into a reply on
// the caller's connection instead of letting it propagate.
type ClientError struct {
	Code    string
	Message string
}

func (e *ClientError) Error() string { return e.Message }

var (
	// ErrUserNotAuthenticated is returned when the caller is not logged in.
	ErrUserNotAuthenticated = &ClientError{Code: "USER_HAS_TO_LOGIN", Message: "user has to log in"}
	// ErrRoomNotFound is returned when no room matches the requested id.
	ErrRoomNotFound = &ClientError{Code: "ROOM_INVALID", Message: "room not found"}
	// ErrRoomAccessDenied is returned for staff-only rooms and non-staff callers.
	ErrRoomAccessDenied = &ClientError{Code: "ROOM_ACCESS_DENIED", Message: "room access denied"}
	// ErrRecordNotFound is returned when an answer-key id cannot be resolved.
	ErrRecordNotFound = &ClientError{Code: "RECORD_INVALID", Message: "answer record not found"}
)
