package event

import (
	"errors"
	"fmt"
)

// Sentinel errors for the event bus.
var (
	// ErrInvalidEventType is returned when publishing an empty or malformed event type.
	ErrInvalidEventType = errors.New("invalid event type")

	// ErrPayloadTooLarge is returned when event data exceeds the configured limit.
	ErrPayloadTooLarge = errors.New("event payload too large")

	// ErrInvalidPayload is returned when event data cannot be encoded.
	ErrInvalidPayload = errors.New("invalid event payload")

	// ErrQueueOverflow is returned to publishers under the Block and Reject strategies.
	ErrQueueOverflow = errors.New("subscription queue overflow")

	// ErrSubscriptionClosed is returned when using an unsubscribed subscription.
	ErrSubscriptionClosed = errors.New("subscription closed")

	// ErrSubscriptionNotFound is returned for unknown subscription ids.
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrBusClosed is returned after Close.
	ErrBusClosed = errors.New("event bus closed")

	// ErrRateLimited is returned when the publish rate limit is exceeded.
	ErrRateLimited = errors.New("event publish rate limited")

	// ErrInvalidStrategy is returned for unknown backpressure strategy names.
	ErrInvalidStrategy = errors.New("invalid backpressure strategy")

	// ErrInvalidRecord is returned by Decode for records that fail schema validation.
	ErrInvalidRecord = errors.New("invalid event record")
)

// OverflowError reports which subscription refused an event.
type OverflowError struct {
	SubscriptionID string
	Strategy       Strategy
}

// Error implements the error interface.
func (e *OverflowError) Error() string {
	return fmt.Sprintf("subscription %s overflow (%s)", e.SubscriptionID, e.Strategy)
}

// Is allows errors.Is to match ErrQueueOverflow.
func (e *OverflowError) Is(target error) bool {
	return target == ErrQueueOverflow
}
