package telegram

import (
	"errors"
	"fmt"
	"strings"
)

// CodeFlood is the protocol error code for throttled requests.
const CodeFlood = 429

var (
	// ErrNotAuthorized is returned when the stored session is missing or revoked.
	ErrNotAuthorized = errors.New("telegram: not authorized")
	// ErrNotFound is returned when a lookup yields nothing usable.
	ErrNotFound = errors.New("telegram: not found")
)

// Error is a protocol error carrying the server's numeric code.
type Error struct {
	Code    int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsFlood reports whether err signals the provider is throttling the
// connection. Wrapped errors are inspected too.
func IsFlood(err error) bool {
	if err == nil {
		return false
	}
	var te *Error
	if errors.As(err, &te) && te.Code == CodeFlood {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "FLOOD_WAIT") ||
		strings.Contains(msg, "Too Many Requests") ||
		strings.Contains(msg, "FLOOD_PREMIUM_WAIT")
}

// ErrorCode extracts the protocol code from err, or 0 when it has none.
func ErrorCode(err error) int {
	var te *Error
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}
