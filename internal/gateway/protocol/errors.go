package protocol

// Error codes for protocol responses.
const (
	// ErrCodeInvalidRequest indicates the request was malformed.
	ErrCodeInvalidRequest = "INVALID_REQUEST"
	// ErrCodeInvalidCommand indicates an unknown command was sent. Its message is always MessageNotImplemented.
	ErrCodeInvalidCommand = "INVALID_COMMAND"
	// ErrCodeInvalidParams indicates the command parameters were invalid.
	ErrCodeInvalidParams = "INVALID_PARAMS"
	// ErrCodeInternalError indicates an unexpected internal error.
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// MessageNotImplemented is the error message returned for unknown commands.
const MessageNotImplemented = "not implemented"
