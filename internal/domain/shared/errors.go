package shared

// DomainError is an error carrying a stable machine-readable code. The HTTP
// layer maps codes onto statuses; messages are written for API consumers.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string { return e.Message }

// NewDomainError creates a domain error with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// Sentinels for conditions raised across package boundaries. Call sites
// needing a more specific message construct their own error with the same
// code instead.
var (
	ErrAlreadyExists  = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrStorageFailure = NewDomainError("STORAGE_FAILURE", "Persistent storage is unavailable")
)
