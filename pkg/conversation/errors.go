package conversation

import "github.com/pkg/errors"

var (
	// ErrIndexOutOfRange is returned by At for positions outside the root-to-node path.
	ErrIndexOutOfRange = errors.New("index out of range")
	// ErrSourceExhausted is returned when a fragment source is pulled again
	// after it already reported io.EOF.
	ErrSourceExhausted = errors.New("fragment source exhausted")
	// ErrStreamBusy is returned when a node's stream is pulled while another
	// pull on the same stream is still in flight.
	ErrStreamBusy = errors.New("answer stream is already being driven")
)
