package callcontrol

import (
	"errors"
	"fmt"
)

// Error is a non-2xx response from the call-control provider.
type Error struct {
	Action     string
	StatusCode int
	Code       string
	Detail     string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("callcontrol: %s failed (%d %s): %s", e.Action, e.StatusCode, e.Code, e.Detail)
	}
	return fmt.Sprintf("callcontrol: %s failed (%d): %s", e.Action, e.StatusCode, e.Detail)
}

// Temporary reports whether retrying the same action may succeed.
func (e *Error) Temporary() bool {
	return e.StatusCode == 429 || e.StatusCode >= 500
}

// ErrInvalidLeg is returned before any request when a leg id is empty.
var ErrInvalidLeg = errors.New("callcontrol: leg id required")
