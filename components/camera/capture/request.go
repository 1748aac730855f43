package capture

import (
	"fmt"

	"github.com/pkg/errors"
)

// RequestState is the state of a capture request.
type RequestState int

// Request lifecycle: Created → Queued → {Completed, Cancelled} → {Requeued → Queued, Released}.
const (
	RequestCreated RequestState = iota
	RequestQueued
	RequestCompleted
	RequestCancelled
	RequestRequeued
	RequestReleased
)

func (s RequestState) String() string {
	switch s {
	case RequestCreated:
		return "created"
	case RequestQueued:
		return "queued"
	case RequestCompleted:
		return "completed"
	case RequestCancelled:
		return "cancelled"
	case RequestRequeued:
		return "requeued"
	case RequestReleased:
		return "released"
	default:
		return fmt.Sprintf("request(%d)", int(s))
	}
}

var legalRequestTransitions = map[RequestState][]RequestState{
	RequestCreated:   {RequestQueued, RequestReleased},
	RequestQueued:    {RequestCompleted, RequestCancelled},
	RequestCompleted: {RequestRequeued, RequestReleased},
	RequestCancelled: {RequestRequeued, RequestReleased},
	RequestRequeued:  {RequestQueued, RequestReleased},
}

// Request pairs a buffer slot with a pending hardware operation.
type Request struct {
	slot    int
	state   RequestState
	submits int
}

func newRequest(slot int) *Request {
	return &Request{slot: slot, state: RequestCreated}
}

// Slot returns the buffer slot the request captures into.
func (r *Request) Slot() int {
	return r.slot
}

// State returns the current request state.
func (r *Request) State() RequestState {
	return r.state
}

// Submits returns how many times the request was handed to the hardware.
func (r *Request) Submits() int {
	return r.submits
}

func (r *Request) transition(to RequestState) error {
	for _, allowed := range legalRequestTransitions[r.state] {
		if allowed == to {
			r.state = to
			if to == RequestQueued {
				r.submits++
			}
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidState, "request on slot %d cannot go from %s to %s", r.slot, r.state, to)
}

// recycle moves a finished request back to Queued.
func (r *Request) recycle() error {
	if err := r.transition(RequestRequeued); err != nil {
		return err
	}
	return r.transition(RequestQueued)
}
