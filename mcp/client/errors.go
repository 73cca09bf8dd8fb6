package client

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrHandshakeTimeout is returned by Connect when no write endpoint is
	// discovered on the event stream within the handshake window.
	ErrHandshakeTimeout = errors.New("mcp: no write endpoint discovered during handshake")

	// ErrRPCTimeout is returned by Call when no correlated response arrives
	// on the event stream within the call's timeout.
	ErrRPCTimeout = errors.New("mcp: timed out waiting for response")

	// ErrNotConnected is returned by Call before Connect has discovered a
	// write endpoint.
	ErrNotConnected = errors.New("mcp: not connected or write endpoint not discovered")
)

// TransportError is returned when the write endpoint answers a request POST
// with a non-success HTTP status.
type TransportError struct {
	Status int
	Body   string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("mcp: HTTP %d: %s", e.Status, e.Body)
}

// RemoteError carries the error object of a JSON-RPC response.
type RemoteError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("mcp: remote error %d: %s", e.Code, e.Message)
}
