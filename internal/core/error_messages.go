package core

// # Error Codes Reference
//
// Failures returned by the operation facade carry a code that users can
// quote to support staff.
//
// # Classified Errors
//
// Errors carrying an apperr kind map directly:
//
//	SCH001  - Unknown entity type           (apperr.KindSchemaNotFound)
//	REC001  - Record not found              (apperr.KindNotFound)
//	DEC001  - Stored data could not be read (apperr.KindDecode)
//	AUTH001 - Sign-in required              (apperr.KindUnauthorized)
//	VAL001  - Invalid request               (apperr.KindInvalid)
//
// # Storage and Request Errors
//
// Storage-kind and unclassified errors are matched against patterns,
// case-insensitively, first match wins:
//
//	RATE001 - Too many requests              "rate limit"
//	RATE002 - Too many concurrent writes     "too many concurrent writes"
//	REQ001  - Request was cancelled          "context canceled"
//	REQ002  - Request timed out              "deadline exceeded", "timeout"
//	STO002  - Storage unreachable            "connection refused"
//	STO003  - Storage connection interrupted "connection reset"
//	STO004  - Table layout mismatch          "header does not match"
//	STO005  - Row width mismatch             "row width does not match"
//	STO006  - Table missing                  "table not found"
//
// Any other storage-kind error is STO001. Everything else is ERR000;
// support staff should check the server logs for the technical error.

import (
	"fmt"
	"strings"

	"github.com/JonMunkholm/credstore/internal/apperr"
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string // What happened (user-friendly)
	Action  string // What to do about it
	Code    string // Error code for support reference
}

var kindMessages = map[apperr.Kind]UserMessage{
	apperr.KindSchemaNotFound: {
		Message: "Unknown entity type",
		Action:  "List the available entities and check the name",
		Code:    "SCH001",
	},
	apperr.KindNotFound: {
		Message: "Record not found",
		Action:  "Verify the record ID; it may have been deleted",
		Code:    "REC001",
	},
	apperr.KindDecode: {
		Message: "Stored data could not be read",
		Action:  "A cell holds malformed JSON; correct it in the table",
		Code:    "DEC001",
	},
	apperr.KindUnauthorized: {
		Message: "Sign-in required",
		Action:  "Send the request with an acting user",
		Code:    "AUTH001",
	},
	apperr.KindInvalid: {
		Message: "Invalid request",
		Action:  "Correct the request and try again",
		Code:    "VAL001",
	},
}

// errorPattern defines a pattern to match and its corresponding user message.
type errorPattern struct {
	pattern string
	msg     UserMessage
}

// errorPatterns is ordered: specific patterns come before general ones.
var errorPatterns = []errorPattern{
	{
		pattern: "rate limit",
		msg: UserMessage{
			Message: "Too many requests",
			Action:  "Please wait a moment before trying again",
			Code:    "RATE001",
		},
	},
	{
		pattern: "too many concurrent writes",
		msg: UserMessage{
			Message: "System is busy processing other changes",
			Action:  "Please wait a moment and try again",
			Code:    "RATE002",
		},
	},
	{
		pattern: "context canceled",
		msg: UserMessage{
			Message: "Request was cancelled",
			Action:  "Please try again",
			Code:    "REQ001",
		},
	},
	{
		pattern: "deadline exceeded",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "timeout",
		msg: UserMessage{
			Message: "Request timed out",
			Action:  "Please try again later",
			Code:    "REQ002",
		},
	},
	{
		pattern: "connection refused",
		msg: UserMessage{
			Message: "Unable to reach storage",
			Action:  "Please try again in a few moments",
			Code:    "STO002",
		},
	},
	{
		pattern: "connection reset",
		msg: UserMessage{
			Message: "Storage connection was interrupted",
			Action:  "Please try again",
			Code:    "STO003",
		},
	},
	{
		pattern: "header does not match",
		msg: UserMessage{
			Message: "Table layout does not match its schema",
			Action:  "Migrate the table before changing its columns",
			Code:    "STO004",
		},
	},
	{
		pattern: "row width does not match",
		msg: UserMessage{
			Message: "Row width does not match the table",
			Action:  "Check the table for added or removed columns",
			Code:    "STO005",
		},
	},
	{
		pattern: "table not found",
		msg: UserMessage{
			Message: "Table does not exist",
			Action:  "Restart the service to create missing tables",
			Code:    "STO006",
		},
	},
}

var storageMessage = UserMessage{
	Message: "Storage operation failed",
	Action:  "Please try again or contact support",
	Code:    "STO001",
}

// defaultMessage is returned when no pattern matches (ERR000).
var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts an error to a user-friendly message. Invalid requests
// keep their own text since it names the offending input.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	kind := apperr.KindOf(err)
	if msg, ok := kindMessages[kind]; ok {
		if kind == apperr.KindInvalid {
			msg.Message = err.Error()
		}
		return msg
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	if kind == apperr.KindStorage {
		return storageMessage
	}
	return defaultMessage
}

// FormatUserError creates a formatted error string for display.
// The format is: "Message (Code: XXX). Action"
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}
