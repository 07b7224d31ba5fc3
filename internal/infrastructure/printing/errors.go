package printing

import "github.com/erp/shipping/internal/domain/shipping"

// RenderError represents a failure while producing or storing a document.
// Kind is the pipeline taxonomy sentinel the failure belongs to.
type RenderError struct {
	Code    string
	Message string
	Kind    error
	Cause   error
}

func (e *RenderError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *RenderError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Kind != nil {
		errs = append(errs, e.Kind)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// Error codes for rendering and storage failures
const (
	ErrCodeRenderFailed  = "RENDER_FAILED"
	ErrCodeInvalidImage  = "INVALID_IMAGE"
	ErrCodeMergeFailed   = "MERGE_FAILED"
	ErrCodeStorageFailed = "STORAGE_FAILED"
	ErrCodeInvalidPath   = "INVALID_PATH"
	ErrCodeNotFound      = "ARTIFACT_NOT_FOUND"
)

// NewRenderError creates a new RenderError. The kind is derived from code.
func NewRenderError(code, message string, cause error) *RenderError {
	return &RenderError{
		Code:    code,
		Message: message,
		Kind:    kindOf(code),
		Cause:   cause,
	}
}

func kindOf(code string) error {
	switch code {
	case ErrCodeInvalidImage, ErrCodeMergeFailed, ErrCodeInvalidPath:
		return shipping.ErrFormat
	case ErrCodeStorageFailed:
		return shipping.ErrIO
	case ErrCodeNotFound:
		return shipping.ErrNotFound
	default:
		return nil
	}
}
