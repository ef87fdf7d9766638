package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNetworkUnavailable reports that the server could not be reached and
	// no cached response was available. Typed callers see it for writes.
	ErrNetworkUnavailable = errors.New("network unavailable")
	// ErrRemoteRejected matches every *RemoteError.
	ErrRemoteRejected = errors.New("request rejected by server")
)

// RemoteError is returned when the server answered with a non-2xx status or a
// body that is not JSON. Such failures are never cached or queued.
type RemoteError struct {
	Status  int
	Message string
	Detail  string
}

func (e *RemoteError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("server responded %d: %s (%s)", e.Status, e.Message, e.Detail)
	}
	return fmt.Sprintf("server responded %d: %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrRemoteRejected) match.
func (e *RemoteError) Is(target error) bool {
	return target == ErrRemoteRejected
}
