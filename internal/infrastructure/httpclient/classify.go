package httpclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/erp/shipping/internal/domain/shipping"
)

// Classify maps a terminal client error onto the shipping error taxonomy.
// Errors that did not come from a Client are returned unchanged.
func Classify(err error) error {
	var re *ResponseError
	if err == nil || !errors.As(err, &re) {
		return err
	}

	switch {
	case errors.Is(err, ErrRetriesExhausted), re.StatusCode == 0, re.StatusCode >= 500:
		return fmt.Errorf("%w: %w", shipping.ErrTransientRemote, err)
	case re.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %w", shipping.ErrNotFound, err)
	case re.StatusCode == http.StatusUnauthorized, re.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", shipping.ErrConfiguration, err)
	default:
		return fmt.Errorf("%w: %w", shipping.ErrFormat, err)
	}
}
