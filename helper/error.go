package helper

import "fmt"

// NewError wraps an error with a short lowercase operation context.
// The wrapped error stays available for errors.Is/errors.As.
func NewError(context string, err error) error {
	return fmt.Errorf("error %s: %w", context, err)
}
