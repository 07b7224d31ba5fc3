package shipping

import (
	"errors"

	"github.com/erp/shipping/internal/domain/shared"
)

// Pipeline error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") so
// errors.Is classifies the failure while the detail stays in the message.
var (
	ErrTransientRemote = shared.NewDomainError("TRANSIENT_REMOTE", "Remote service is temporarily unavailable")
	ErrNotFound        = shared.ErrNotFound
	ErrFormat          = shared.NewDomainError("LABEL_FORMAT", "Label payload has an unsupported or invalid format")
	ErrConfiguration   = shared.NewDomainError("CONFIGURATION", "A required upstream record is missing")
	ErrIO              = shared.NewDomainError("IO", "Failed to persist label artifact")

	// ErrTransportFileMissing is returned by compose when the carrier label
	// has not been acquired yet.
	ErrTransportFileMissing = &wrapped{msg: "transport file missing", kind: ErrConfiguration}
	// ErrUnsupportedFormat is returned for label links that are neither PDF nor ZIP.
	ErrUnsupportedFormat = &wrapped{msg: "unsupported format", kind: ErrFormat}
)

type wrapped struct {
	msg  string
	kind *shared.DomainError
}

func (w *wrapped) Error() string { return w.msg }
func (w *wrapped) Unwrap() error { return w.kind }

// Kind returns a short, stable name for the taxonomy bucket of err, suitable
// as a metric attribute. Unclassified errors are reported as "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrTransientRemote):
		return "transient_remote"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFormat):
		return "format"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrIO):
		return "io"
	default:
		return "internal"
	}
}
