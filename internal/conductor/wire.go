package conductor

import (
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Frame kinds
const (
	KindRequest  = "request"
	KindResponse = "response"
	KindSignal   = "signal"
)

// ResponseError is the response type the conductor uses for failures
const ResponseError = "error"

var (
	// ErrConnectionClosed is returned for requests on a closed socket
	ErrConnectionClosed = errors.New("conductor: connection closed")
	// ErrAppNotInstalled is returned when app_info answers with nothing
	ErrAppNotInstalled = errors.New("conductor: app not installed")
	// ErrNotAuthorized is returned for zome calls to a cell without credentials
	ErrNotAuthorized = errors.New("conductor: no signing credentials for cell")
	// ErrCellNotFound is returned when a role or clone label resolves to no cell
	ErrCellNotFound = errors.New("conductor: cell not found")
)

// Envelope is one websocket frame
type Envelope struct {
	ID   string `cbor:"id"`
	Kind string `cbor:"kind"`
	Data []byte `cbor:"data"`
}

// Request is the body of a request frame
type Request struct {
	Type string          `cbor:"type"`
	Data cbor.RawMessage `cbor:"data,omitempty"`
}

// Response is the body of a response frame
type Response struct {
	Type string          `cbor:"type"`
	Data cbor.RawMessage `cbor:"data,omitempty"`
}

// RemoteError is a failure reported by the conductor itself, as opposed to
// a transport failure.
type RemoteError struct {
	Type    string `cbor:"type"`
	Message string `cbor:"message"`
	Request string `cbor:"-"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("conductor rejected %s: %s: %s", e.Request, e.Type, e.Message)
}

// IsRemote reports whether err carries a conductor-side rejection
func IsRemote(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote)
}
