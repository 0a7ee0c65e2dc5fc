package market

import (
	"errors"
	"fmt"
)

// ErrNetwork wraps transport failures: the request never got an answer.
var ErrNetwork = errors.New("network error")

// APIError is a non-ok answer from the market backend. Code is the backend's
// error_code, shown to the user as is.
type APIError struct {
	Status int
	Code   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("market api %d: %s", e.Status, e.Code)
}

// ErrorCode returns the code to show for err: the backend error_code, "network
// error" for transport failures, err.Error() otherwise.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	if errors.Is(err, ErrNetwork) {
		return ErrNetwork.Error()
	}
	return err.Error()
}

// IsUnauthorized reports a rejected or expired token.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == 401
}
