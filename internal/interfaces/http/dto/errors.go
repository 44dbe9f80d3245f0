package dto

import "net/http"

// Error code constants organized by category
// Format: ERR_<CATEGORY>_<DESCRIPTION>

// General error codes
const (
	// ErrCodeUnknown is used when the error type is unknown
	ErrCodeUnknown = "ERR_UNKNOWN"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "ERR_INTERNAL"
)

// Validation error codes
const (
	// ErrCodeValidation is the base code for validation errors
	ErrCodeValidation = "ERR_VALIDATION"
	// ErrCodeValidationRequired is used when a required field is missing
	ErrCodeValidationRequired = "ERR_VALIDATION_REQUIRED"
	// ErrCodeValidationFormat is used when a field has invalid format
	ErrCodeValidationFormat = "ERR_VALIDATION_FORMAT"
)

// Resource error codes
const (
	// ErrCodeNotFound is used when a resource is not found
	ErrCodeNotFound = "ERR_NOT_FOUND"
	// ErrCodeAlreadyExists is used when trying to create a duplicate resource
	ErrCodeAlreadyExists = "ERR_ALREADY_EXISTS"
	// ErrCodeConflict is used for general resource conflicts
	ErrCodeConflict = "ERR_CONFLICT"
	// ErrCodeConcurrencyConflict is used when optimistic locking fails
	ErrCodeConcurrencyConflict = "ERR_CONCURRENCY_CONFLICT"
)

// Business rule error codes
const (
	// ErrCodeInvalidState is used when an operation is invalid for current state
	ErrCodeInvalidState = "ERR_INVALID_STATE"
	// ErrCodeBusinessRule is used for generic business rule violations
	ErrCodeBusinessRule = "ERR_BUSINESS_RULE"
	// ErrCodeDuplicatePayment is used when a payment submission repeats an
	// already processed idempotency key
	ErrCodeDuplicatePayment = "ERR_DUPLICATE_PAYMENT"
	// ErrCodeInvoiceAlreadyPaid is used when a payment targets only
	// fully-paid invoices
	ErrCodeInvoiceAlreadyPaid = "ERR_INVOICE_ALREADY_PAID"
	// ErrCodeNoCredit is used when credit application finds no active credits
	ErrCodeNoCredit = "ERR_NO_CREDIT"
	// ErrCodeNoPrice is used when a line item has no resolvable price
	ErrCodeNoPrice = "ERR_NO_PRICE"
)

// Transient error codes
const (
	// ErrCodeTransientConflict is used when row locks or serialization
	// conflicts exhausted the retry budget; the client may resubmit
	ErrCodeTransientConflict = "ERR_TRANSIENT_CONFLICT"
)

// Input error codes
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "ERR_BAD_REQUEST"
	// ErrCodeInvalidInput is used for invalid input data
	ErrCodeInvalidInput = "ERR_INVALID_INPUT"
	// ErrCodeInvalidJSON is used when JSON parsing fails
	ErrCodeInvalidJSON = "ERR_INVALID_JSON"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	// General errors
	ErrCodeUnknown:  http.StatusInternalServerError,
	ErrCodeInternal: http.StatusInternalServerError,

	// Validation errors -> 400 Bad Request
	ErrCodeValidation:         http.StatusBadRequest,
	ErrCodeValidationRequired: http.StatusBadRequest,
	ErrCodeValidationFormat:   http.StatusBadRequest,

	// Resource errors
	ErrCodeNotFound:            http.StatusNotFound,
	ErrCodeAlreadyExists:       http.StatusConflict,
	ErrCodeConflict:            http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	// Business rule errors -> 422 Unprocessable Entity
	ErrCodeInvalidState:       http.StatusUnprocessableEntity,
	ErrCodeBusinessRule:       http.StatusUnprocessableEntity,
	ErrCodeInvoiceAlreadyPaid: http.StatusUnprocessableEntity,
	ErrCodeNoCredit:           http.StatusUnprocessableEntity,
	ErrCodeNoPrice:            http.StatusUnprocessableEntity,

	// Duplicate payment -> 409 Conflict
	ErrCodeDuplicatePayment: http.StatusConflict,

	// Transient conflicts -> 503 Service Unavailable (safe to retry)
	ErrCodeTransientConflict: http.StatusServiceUnavailable,

	// Input errors -> 400 Bad Request
	ErrCodeBadRequest:   http.StatusBadRequest,
	ErrCodeInvalidInput: http.StatusBadRequest,
	ErrCodeInvalidJSON:  http.StatusBadRequest,
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
	"NOT_FOUND":               ErrCodeNotFound,
	"INVALID_INPUT":           ErrCodeInvalidInput,
	"INVALID_AMOUNT":          ErrCodeInvalidInput,
	"INVALID_CLIENT":          ErrCodeInvalidInput,
	"INVALID_CLIENT_NAME":     ErrCodeInvalidInput,
	"INVALID_INVOICE_NUMBER":  ErrCodeInvalidInput,
	"INVALID_PAYMENT":         ErrCodeInvalidInput,
	"INVALID_PAYMENT_METHOD":  ErrCodeInvalidInput,
	"INVALID_STRATEGY":        ErrCodeInvalidInput,
	"INVALID_REASON":          ErrCodeInvalidInput,
	"INVALID_STATE":           ErrCodeInvalidState,
	"EXCEEDS_BALANCE":         ErrCodeBusinessRule,
	"EXCEEDS_PAYMENT":         ErrCodeBusinessRule,
	"HAS_PAYMENTS":            ErrCodeInvalidState,
	"NOT_DUE":                 ErrCodeInvalidState,
	"NOT_EXPIRED":             ErrCodeInvalidState,
	"NO_UNALLOCATED":          ErrCodeBusinessRule,
	"DUPLICATE_PAYMENT":       ErrCodeDuplicatePayment,
	"INVOICE_ALREADY_PAID":    ErrCodeInvoiceAlreadyPaid,
	"NO_CREDIT":               ErrCodeNoCredit,
	"NO_PRICE":                ErrCodeNoPrice,
	"CONCURRENT_MODIFICATION": ErrCodeConcurrencyConflict,
	"OPTIMISTIC_LOCK_ERROR":   ErrCodeConcurrencyConflict,
	"TRANSIENT_LOCK_TIMEOUT":  ErrCodeTransientConflict,
	"PERSISTENCE_FAILURE":     ErrCodeInternal,
	"VALIDATION_ERROR":        ErrCodeValidation,
	"BAD_REQUEST":             ErrCodeBadRequest,
	"INTERNAL_ERROR":          ErrCodeInternal,
}

// NormalizeErrorCode converts a domain error code to the API format.
// If the code is already in the API format or unknown, returns it as-is.
func NormalizeErrorCode(code string) string {
	if apiCode, ok := DomainErrorCodeMapping[code]; ok {
		return apiCode
	}
	return code
}
