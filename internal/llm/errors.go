package llm

import (
	"context"
	"errors"
	"net"
	"net/url"
)

// classify maps a transport error to a failure class.
func classify(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return classTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return classTimeout
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		if urlErr.Timeout() {
			return classTimeout
		}
		return classConnection
	}
	return classConnection
}
