package marketplace

import (
	"errors"
	"fmt"
)

// GenericFailureMessage is shown when a collaborator fails without saying why.
const GenericFailureMessage = "Request failed. Please try again."

var ErrUnavailable = errors.New("marketplace unavailable")

// RemoteError is a failed collaborator call: transport failure, non-2xx
// status, malformed body or success=false.
type RemoteError struct {
	Endpoint   string
	StatusCode int
	// Message is the collaborator's explanation, empty when it gave none.
	Message string
	// Unavailable is set when the call was short-circuited by the breaker.
	Unavailable bool
	Err         error
}

func (e *RemoteError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.StatusCode != 0 {
		return fmt.Sprintf("marketplace: %s: status %d: %s", e.Endpoint, e.StatusCode, msg)
	}
	return fmt.Sprintf("marketplace: %s: %s", e.Endpoint, msg)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// UserMessage is safe to show to the buyer.
func (e *RemoteError) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Unavailable {
		return "The marketplace is temporarily unavailable. Please try again shortly."
	}
	return GenericFailureMessage
}

// UserMessage extracts the buyer-facing message from any error chain holding
// a RemoteError.
func UserMessage(err error) string {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.UserMessage()
	}
	return GenericFailureMessage
}
