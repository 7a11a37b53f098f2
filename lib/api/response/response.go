// Package response provides helpers for the standard JSON envelope of the
// HTTP API. Using these keeps the response format uniform across handlers.
package response

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Response is the base structure of every JSON reply. Status is "OK" or
// "Error"; Error carries the message when something went wrong.
type Response struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

const (
	StatusOK    = "OK"
	StatusError = "Error"
)

// OK returns the standard success envelope.
func OK() Response {
	return Response{
		Status: StatusOK,
	}
}

// Error returns the standard error envelope with the given message.
func Error(msg string) Response {
	return Response{
		Status: StatusError,
		Error:  msg,
	}
}

// ValidationError formats go-playground/validator errors into a single
// user-readable message.
func ValidationError(errs validator.ValidationErrors) Response {
	var errMsgs []string

	for _, err := range errs {
		switch err.ActualTag() {
		case "required":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is a required field", err.Field()))
		case "gt":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must be greater than %s", err.Field(), err.Param()))
		case "min":
			errMsgs = append(errMsgs, fmt.Sprintf("field %s must have at least %s elements", err.Field(), err.Param()))
		default:
			errMsgs = append(errMsgs, fmt.Sprintf("field %s is not valid", err.Field()))
		}
	}

	return Response{
		Status: StatusError,
		Error:  strings.Join(errMsgs, ", "),
	}
}
