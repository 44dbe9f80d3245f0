package shared

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrNotFound               = NewDomainError("NOT_FOUND", "Resource not found")
	ErrInvalidInput           = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInvalidState           = NewDomainError("INVALID_STATE", "Operation not allowed in current state")
	ErrDuplicatePayment       = NewDomainError("DUPLICATE_PAYMENT", "A payment with this idempotency key was already processed")
	ErrInvoiceAlreadyPaid     = NewDomainError("INVOICE_ALREADY_PAID", "Invoice has no outstanding balance")
	ErrConcurrentModification = NewDomainError("CONCURRENT_MODIFICATION", "Resource was modified by another transaction")
	ErrTransientLockTimeout   = NewDomainError("TRANSIENT_LOCK_TIMEOUT", "Could not acquire row lock in time")
	ErrPersistenceFailure     = NewDomainError("PERSISTENCE_FAILURE", "Underlying store rejected the operation")
)

// IsRetryable reports whether an operation that failed with err may be
// attempted again. Only transient lock/serialization conflicts qualify;
// business errors such as DUPLICATE_PAYMENT are terminal.
func IsRetryable(err error) bool {
	de, ok := err.(*DomainError)
	if !ok {
		return false
	}
	return de.Code == ErrTransientLockTimeout.Code
}
