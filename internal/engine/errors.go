package engine

import (
	"errors"
	"fmt"
)

// Error codes. They stay inside the process; the wire format only carries
// the HTTP status and the message.
const (
	CodeInvalidIdentifier        = "INVALID_IDENTIFIER"
	CodeMissingTable             = "MISSING_TABLE"
	CodeEmptyPayload             = "EMPTY_PAYLOAD"
	CodeMissingMatchKey          = "MISSING_MATCH_KEY"
	CodeNoColumnsToUpdate        = "NO_COLUMNS_TO_UPDATE"
	CodeUnknownOperator          = "UNKNOWN_OPERATOR"
	CodeInvalidAggregateFunction = "INVALID_AGGREGATE_FUNCTION"
	CodeUnknownAction            = "UNKNOWN_ACTION"
	CodeInvalidPayload           = "INVALID_PAYLOAD"
	CodeForbiddenSQL             = "FORBIDDEN_SQL"
	CodeUnauthorized             = "UNAUTHORIZED"
	CodeForbidden                = "FORBIDDEN"
	CodeRateLimited              = "RATE_LIMITED"
	CodeNotFound                 = "NOT_FOUND"
	CodeInvalidState             = "INVALID_STATE"
)

type AppError struct {
	Code    string
	Status  int
	Message string
}

func (e *AppError) Error() string {
	return e.Message
}

// ErrorResponse is the only error shape clients ever see.
type ErrorResponse struct {
	Error string `json:"error"`
}

func NewAppError(code string, status int, msg string) *AppError {
	return &AppError{Code: code, Status: status, Message: msg}
}

// IsCode reports whether err is an *AppError carrying code.
func IsCode(err error, code string) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == code
}

func InvalidIdentifierError(name string) *AppError {
	return &AppError{
		Code:    CodeInvalidIdentifier,
		Status:  400,
		Message: fmt.Sprintf("Invalid identifier: %q", name),
	}
}

func MissingTableError() *AppError {
	return &AppError{Code: CodeMissingTable, Status: 400, Message: "Table name is required"}
}

func EmptyPayloadError(msg string) *AppError {
	return &AppError{Code: CodeEmptyPayload, Status: 400, Message: msg}
}

func MissingMatchKeyError(key string) *AppError {
	return &AppError{
		Code:    CodeMissingMatchKey,
		Status:  400,
		Message: fmt.Sprintf("Payload must include %s", key),
	}
}

func NoColumnsToUpdateError() *AppError {
	return &AppError{Code: CodeNoColumnsToUpdate, Status: 400, Message: "No valid columns to update"}
}

func UnknownOperatorError(op string) *AppError {
	return &AppError{
		Code:    CodeUnknownOperator,
		Status:  400,
		Message: fmt.Sprintf("Unknown operator: %s", op),
	}
}

func InvalidAggregateFunctionError(fn string) *AppError {
	return &AppError{
		Code:    CodeInvalidAggregateFunction,
		Status:  400,
		Message: fmt.Sprintf("Invalid aggregate function: %s", fn),
	}
}

func UnknownActionError(action string) *AppError {
	return &AppError{
		Code:    CodeUnknownAction,
		Status:  400,
		Message: fmt.Sprintf("Unknown action: %s", action),
	}
}

func InvalidPayloadError(msg string) *AppError {
	return &AppError{Code: CodeInvalidPayload, Status: 400, Message: msg}
}

func UnauthorizedError(msg string) *AppError {
	return &AppError{Code: CodeUnauthorized, Status: 401, Message: msg}
}

func ForbiddenError(msg string) *AppError {
	return &AppError{Code: CodeForbidden, Status: 403, Message: msg}
}

func RateLimitedError() *AppError {
	return &AppError{Code: CodeRateLimited, Status: 429, Message: "Too many requests, try again later"}
}

func NotFoundError(entity, id string) *AppError {
	return &AppError{
		Code:    CodeNotFound,
		Status:  400,
		Message: fmt.Sprintf("%s with id %s not found", entity, id),
	}
}

func InvalidStateError(msg string) *AppError {
	return &AppError{Code: CodeInvalidState, Status: 400, Message: msg}
}
