package core

// error_messages.go maps technical errors to user-facing messages with a
// code for support reference.
//
// Codes by category:
//
//	FILE001  file exceeds the upload size limit
//	FILE002  file has no header row
//	FILE003  no file in the request
//	FILE004  request is not a readable multipart form
//	PARSE001 file is not well-formed CSV
//	COL001   target column missing from the header
//	KEY001   key or IV shorter than 16 bytes
//	RUN001   unknown mode
//	RUN002   too many runs in progress
//	RUN003   run result expired or never existed
//	RUN004   run or request cancelled
//	RUN005   run or request timed out
//	RATE001  per-client request limit hit
//	DB001    history database unreachable
//	DB002    history database connection dropped
//	ERR000   anything else; check the logs for the technical error
//
// Patterns are matched case-insensitively with strings.Contains. The first
// match wins, so more specific patterns come first.

import (
	"fmt"
	"strings"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// File errors. Size checks precede parse errors since an oversized body
	// surfaces as a read failure during parsing.
	{
		pattern: "request body too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "file too large",
		msg: UserMessage{
			Message: "File exceeds the maximum upload size",
			Action:  "Split the file into smaller chunks",
			Code:    "FILE001",
		},
	},
	{
		pattern: "empty file",
		msg: UserMessage{
			Message: "The uploaded file is empty",
			Action:  "Upload a CSV file with a header row",
			Code:    "FILE002",
		},
	},
	{
		pattern: "no file provided",
		msg: UserMessage{
			Message: "No file was selected",
			Action:  "Select a CSV file to process",
			Code:    "FILE003",
		},
	},
	{
		pattern: "invalid upload form",
		msg: UserMessage{
			Message: "The upload could not be read",
			Action:  "Submit the form again with a CSV file attached",
			Code:    "FILE004",
		},
	},
	{
		pattern: "error parsing csv",
		msg: UserMessage{
			Message: "File is not a valid CSV",
			Action:  "Check quoting around values that contain commas or quotes",
			Code:    "PARSE001",
		},
	},

	// Request errors.
	{
		pattern: "available columns:",
		msg: UserMessage{
			Message: "Target column not found in the file",
			Action:  "Enter one of the available column names",
			Code:    "COL001",
		},
	},
	{
		pattern: "must be at least 16 bytes",
		msg: UserMessage{
			Message: "Key and IV must each be at least 16 bytes",
			Action:  "Enter a longer key or IV",
			Code:    "KEY001",
		},
	},
	{
		pattern: "invalid mode",
		msg: UserMessage{
			Message: "Unknown transform mode",
			Action:  "Choose encrypt or decrypt",
			Code:    "RUN001",
		},
	},

	// Run errors.
	{
		pattern: "too many concurrent runs",
		msg: UserMessage{
			Message: "System is busy processing other files",
			Action:  "Please wait a moment and try again",
			Code:    "RUN002",
		},
	},
	{
		pattern: "run not found",
		msg: UserMessage{
			Message: "Result not found",
			Action:  "The result may have expired. Process the file again",
			Code:    "RUN003",
		},
	},
	{
		pattern: "run cancelled",
		msg: UserMessage{
			Message: "Processing was cancelled",
			Action:  "Process the file again when ready",
			Code:    "RUN004",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "RUN004",
		},
	},
	{
		pattern: "context deadline exceeded",
		msg: UserMessage{
			Message: "Processing timed out",
			Action:  "Try a smaller file or try again later",
			Code:    "RUN005",
		},
	},

	// Rate limiting.
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},

	// History database.
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to connect to database",
			Action:  "Please try again in a few moments",
			Code:    "DB001",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Database connection was interrupted",
			Action:  "Please try again",
			Code:    "DB002",
		},
	},
}

// defaultMessage is returned when no pattern matches.
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the ERR000 fallback if no pattern matches and a zero UserMessage
// for a nil error.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	errStr := strings.ToLower(err.Error())

	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError formats err as "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err matches a known pattern, i.e. is a
// problem with the request rather than with the server.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
