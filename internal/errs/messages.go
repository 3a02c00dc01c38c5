package errs

// messages.go maps technical errors to coded user-facing messages.
//
// Codes are grouped by category so support staff can triage from the code
// alone:
//
//	VAL001 - malformed or missing header row
//	VAL002 - column map missing or invalid
//	VAL003 - invalid rule definition
//	RUN001 - run (or related resource) not found
//	CAP001 - per-run row cap exceeded
//	DB001  - duplicate key / unique constraint
//	DB002  - connection failure
//	DB003  - transaction conflict (retryable at the adapter)
//	DB004  - operation timed out
//	ERR000 - fallback for unmatched errors
//
// Typed errors from this package are matched first; raw storage errors fall
// back to case-insensitive substring patterns, first match wins.

import (
	"errors"
	"strings"
)

// UserMessage is the client-safe rendering of an error.
type UserMessage struct {
	Message string // what happened
	Action  string // what to do about it
	Code    string // support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

// Specific patterns come before general ones; first match wins.
var errorPatterns = []errorPattern{
	{
		pattern: "duplicate key",
		msg: UserMessage{
			Message: "A record with this key already exists",
			Action:  "Check the file for duplicate rows",
			Code:    "DB001",
		},
	},
	{
		pattern: "unique constraint",
		msg: UserMessage{
			Message: "A duplicate value was found",
			Action:  "Check the file for duplicate rows",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach the database",
			Action:  "Please try again in a few moments",
			Code:    "DB002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "The database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
	{
		pattern: "deadlock",
		msg: UserMessage{
			Message: "The operation conflicted with another in progress",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "could not serialize",
		msg: UserMessage{
			Message: "The operation conflicted with another in progress",
			Action:  "Please try again",
			Code:    "DB003",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Split the file or try again later",
			Code:    "DB004",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "The operation timed out",
			Action:  "Split the file or try again later",
			Code:    "DB004",
		},
	},
}

// MapError converts any pipeline error into a UserMessage.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{Code: "ERR000"}
	}

	var ve *ValidationError
	if errors.As(err, &ve) {
		code := "VAL001"
		action := "Fix the reported problem in the uploaded file and retry"
		switch {
		case strings.Contains(ve.Msg, "column map"):
			code = "VAL002"
			action = "Save a column map for this run before staging"
		case strings.Contains(ve.Msg, "rule"):
			code = "VAL003"
			action = "Review the rule definition for this run"
		}
		return UserMessage{Message: ve.Msg, Action: action, Code: code}
	}

	var nf *NotFoundError
	if errors.As(err, &nf) {
		return UserMessage{
			Message: nf.Error(),
			Action:  "Verify the identifier and try again",
			Code:    "RUN001",
		}
	}

	var ce *CapacityError
	if errors.As(err, &ce) {
		return UserMessage{
			Message: "The run exceeds the maximum supported row count",
			Action:  "Split the dataset into smaller runs",
			Code:    "CAP001",
		}
	}

	var te *TransientStorageError
	if errors.As(err, &te) {
		return UserMessage{
			Message: "A temporary storage problem interrupted the operation",
			Action:  "Please try again",
			Code:    "DB003",
		}
	}

	lower := strings.ToLower(err.Error())
	for _, p := range errorPatterns {
		if strings.Contains(lower, p.pattern) {
			return p.msg
		}
	}

	return UserMessage{
		Message: "An unexpected error occurred",
		Action:  "Please try again or contact support",
		Code:    "ERR000",
	}
}
