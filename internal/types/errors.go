package types

import (
	"errors"
	"strconv"
)

// ErrUnknownCategory is returned for a category name outside the five
// ConfigObject sections.
var ErrUnknownCategory = errors.New("unknown category")

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorCode renders <AREA>_<status>, e.g. REGISTRY_404.
func ErrorCode(area string, status int) string {
	return area + "_" + strconv.Itoa(status)
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewAPIError is NewErrorResponse with the code derived from area and status.
func NewAPIError(area string, status int, message string, details any) ErrorResponse {
	return NewErrorResponse(ErrorCode(area, status), message, details)
}
