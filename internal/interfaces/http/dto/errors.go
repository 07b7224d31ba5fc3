package dto

import "net/http"

// Error code constants returned in ErrorInfo.Code.
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for well-formed but invalid input
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeNotFound is used when an order, record or artifact is unknown
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeConflict is used when the operation is already in progress
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeValidation is used when a request body fails its binding rules
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeRateLimited is used when a client polls faster than allowed
	ErrCodeRateLimited = "ERR_RATE_LIMITED"
)

// Label pipeline error codes
const (
	// ErrCodeTransientRemote is used when the carrier or renderer failed after retries
	ErrCodeTransientRemote = "ERR_TRANSIENT_REMOTE"
	// ErrCodeLabelFormat is used when a label payload cannot be handled
	ErrCodeLabelFormat = "ERR_LABEL_FORMAT"
	// ErrCodeConfiguration is used when a required upstream record is missing
	ErrCodeConfiguration = "ERR_CONFIGURATION"
	// ErrCodeIO is used when an artifact cannot be persisted
	ErrCodeIO = "ERR_IO"
)

// Print queue error codes
const (
	ErrCodeQueueEmpty     = "ERR_QUEUE_EMPTY"
	ErrCodeNothingToPrint = "ERR_NOTHING_TO_PRINT"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:     http.StatusInternalServerError,
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeNotFound:     http.StatusNotFound,
	ErrCodeConflict:     http.StatusConflict,
	ErrCodeValidation:   http.StatusBadRequest,
	ErrCodeRateLimited:  http.StatusTooManyRequests,

	// Upstream failures surface as a bad gateway
	ErrCodeTransientRemote: http.StatusBadGateway,
	ErrCodeLabelFormat:     http.StatusUnprocessableEntity,
	ErrCodeConfiguration:   http.StatusUnprocessableEntity,
	ErrCodeIO:              http.StatusInternalServerError,

	ErrCodeQueueEmpty:     http.StatusNoContent,
	ErrCodeNothingToPrint: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DomainErrorCodeMapping maps domain error codes to API error codes
var DomainErrorCodeMapping = map[string]string{
	"NOT_FOUND":              ErrCodeNotFound,
	"INVALID_INPUT":          ErrCodeInvalidInput,
	"INVALID_PAYLOAD":        ErrCodeBadRequest,
	"ORDER_IN_FLIGHT":        ErrCodeConflict,
	"RECONCILIATION_RUNNING": ErrCodeConflict,
	"TRANSIENT_REMOTE":       ErrCodeTransientRemote,
	"LABEL_FORMAT":           ErrCodeLabelFormat,
	"CONFIGURATION":          ErrCodeConfiguration,
	"IO":                     ErrCodeIO,
	"QUEUE_EMPTY":            ErrCodeQueueEmpty,
	"NOTHING_TO_PRINT":       ErrCodeNothingToPrint,
}

// NormalizeErrorCode converts a domain error code to the API format.
// Codes already in the API format, or unknown, are returned as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
