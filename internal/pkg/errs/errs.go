/*
Package errs defines the application error codes and the CustomError type
shared by the REST handlers and the WebSocket error events.

Codes are stable upper-case strings so that clients can map them to
human-readable guidance ("set your interests first", "no match found").
*/
package errs

import (
	"fmt"
	"net/http"
)

// Request handling.
const (
	CodeInvalidParams        = "INVALID_PARAMS"
	CodeUnsupportedMediaType = "UNSUPPORTED_MEDIA_TYPE"
	CodeInvalidJSON          = "INVALID_JSON"
	CodeRateLimited          = "RATE_LIMITED"
)

// Matchmaking and signaling.
const (
	CodeNoUsers              = "NO_USERS"
	CodeNoInterests          = "NO_INTERESTS"
	CodeNoMatch              = "NO_MATCH"
	CodeInvalidRoomAccess    = "INVALID_ROOM_ACCESS"
	CodePeerUnavailable      = "PEER_UNAVAILABLE"
	CodeEmbeddingUnavailable = "EMBEDDING_UNAVAILABLE"
	CodeAlreadyPaired        = "ALREADY_PAIRED"
)

// System.
const (
	CodeStoreUnavailable = "STORE_UNAVAILABLE"
	CodeInternal         = "INTERNAL"
)

// CustomError carries a code, a client-facing message and the HTTP status
// used when the error is returned from a REST handler.
type CustomError struct {
	Code    string
	Message string
	Status  int
}

func (e CustomError) Error() string {
	return fmt.Sprintf("%s (HTTP %d): %s", e.Code, e.Status, e.Message)
}

var errorMap = map[string]CustomError{
	CodeInvalidParams:        {Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	CodeUnsupportedMediaType: {Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	CodeInvalidJSON:          {Message: "Malformed JSON body.", Status: http.StatusBadRequest},
	CodeRateLimited:          {Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	CodeNoUsers:              {Message: "No users available for matching."},
	CodeNoInterests:          {Message: "Please set your interests first."},
	CodeNoMatch:              {Message: "No suitable match found. Try again."},
	CodeInvalidRoomAccess:    {Message: "You are not a member of this room.", Status: http.StatusForbidden},
	CodePeerUnavailable:      {Message: "Your peer is not connected."},
	CodeEmbeddingUnavailable: {Message: "Similarity service unavailable.", Status: http.StatusServiceUnavailable},
	CodeAlreadyPaired:        {Message: "You are already paired. Leave the current room first.", Status: http.StatusConflict},

	CodeStoreUnavailable: {Message: "Interest storage is not configured.", Status: http.StatusServiceUnavailable},
	CodeInternal:         {Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}

// NewError builds a CustomError from a known code. Unknown codes collapse to
// CodeInternal. A zero status in the table means 200, matching the response
// envelope where the business code carries the failure.
func NewError(code string) *CustomError {
	tmpl, ok := errorMap[code]
	if !ok {
		code = CodeInternal
		tmpl = errorMap[CodeInternal]
	}

	e := tmpl
	e.Code = code
	if e.Status == 0 {
		e.Status = http.StatusOK
	}
	return &e
}

// Message returns the client-facing message for code.
func Message(code string) string {
	return NewError(code).Message
}
