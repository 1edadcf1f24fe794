package generation

import (
	"errors"
	"fmt"
	"net"
)

// ErrTimeout marks a request that exceeded its per-call deadline. Callers
// treat it as transient, like any other transport failure.
var ErrTimeout = errors.New("generation request timed out")

// HTTPError is a non-2xx response from the generation service, kept
// distinct from transport errors for diagnostics.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("generation service returned %d: %s", e.Status, e.Body)
}

// MalformedResponseError is a 2xx response whose body could not be
// interpreted (non-JSON, or missing a required field).
type MalformedResponseError struct {
	Endpoint string
	Detail   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s: %s", e.Endpoint, e.Detail)
}

// classifyTransport maps timeouts onto ErrTimeout and leaves other
// transport errors untouched.
func classifyTransport(err error) error {
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return err
}
