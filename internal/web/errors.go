package web

// errors.go provides unified error response handling for the web layer.
//
// Failures are:
//   - Logged with full technical details and the request ID (server-side)
//   - Returned to clients as ErrorResponse JSON with a support code
//   - Given an HTTP status derived from that code

import (
	"errors"
	"net/http"
	"strings"

	"github.com/JonMunkholm/credstore/internal/core"
	"github.com/JonMunkholm/credstore/internal/logging"
)

// ErrorResponse represents the JSON structure for API error responses.
// Includes both machine-readable (Code) and human-readable (Message, Action) fields.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// statusForCode maps a support code to an HTTP status.
func statusForCode(code string) int {
	switch {
	case code == "SCH001", code == "REC001":
		return http.StatusNotFound
	case code == "DEC001":
		return http.StatusUnprocessableEntity
	case code == "AUTH001":
		return http.StatusUnauthorized
	case code == "VAL001":
		return http.StatusBadRequest
	case strings.HasPrefix(code, "RATE"):
		return http.StatusTooManyRequests
	case code == "REQ001":
		return 499 // client closed request
	case code == "REQ002":
		return http.StatusGatewayTimeout
	case strings.HasPrefix(code, "STO"):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// respondResult writes an operation Result. Successes use okStatus; failures
// are logged and mapped from their code.
func respondResult(w http.ResponseWriter, r *http.Request, res core.Result, okStatus int) {
	if res.Success {
		writeJSON(w, okStatus, res)
		return
	}

	status := statusForCode(res.Code)
	logFailure(r, res.Err(), res.Code, status)
	if status == http.StatusTooManyRequests {
		w.Header().Set("Retry-After", "1")
	}
	respondErrorJSON(w, core.UserMessage{Message: res.Message, Action: res.Action, Code: res.Code}, status)
}

// respondError handles failures that never reached the operation facade,
// such as unreadable request bodies. The failure is still audited under op.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, op string, err error) {
	res := s.ops.Reject(r.Context(), op, entityParam(r), err)
	msg := core.UserMessage{Message: res.Message, Action: res.Action, Code: res.Code}
	status := statusForCode(msg.Code)

	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		status = http.StatusRequestEntityTooLarge
		msg = core.UserMessage{
			Message: "Request body too large",
			Action:  "Send a smaller request or split the import",
			Code:    "VAL001",
		}
	}

	logFailure(r, err, msg.Code, status)
	respondErrorJSON(w, msg, status)
}

func logFailure(r *http.Request, err error, code string, status int) {
	detail := ""
	if err != nil {
		detail = err.Error()
	}
	logger := logging.FromContext(r.Context())
	args := []any{
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", detail,
		"code", code,
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request error", args...)
		return
	}
	logger.Warn("request error", args...)
}

// respondErrorJSON writes a JSON error response.
func respondErrorJSON(w http.ResponseWriter, msg core.UserMessage, statusCode int) {
	writeJSON(w, statusCode, ErrorResponse{
		Success: false,
		Error:   msg.Message,
		Message: msg.Message,
		Action:  msg.Action,
		Code:    msg.Code,
	})
}
