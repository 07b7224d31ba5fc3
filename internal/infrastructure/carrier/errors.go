package carrier

import (
	"fmt"

	"github.com/erp/shipping/internal/domain/shipping"
)

var (
	// ErrInvalidResponse is returned when the carrier API answers with an unexpected body.
	ErrInvalidResponse = fmt.Errorf("%w: carrier returned an invalid response", shipping.ErrFormat)
	// ErrNoLabel is returned when label issuance yields no link.
	ErrNoLabel = fmt.Errorf("%w: carrier returned no label link", shipping.ErrNotFound)
	// ErrStoreNotConfigured is returned for stores without an API token.
	ErrStoreNotConfigured = fmt.Errorf("%w: store has no carrier token", shipping.ErrConfiguration)
)
