// Package event implements an asynchronous, cross-language event bus.
//
// Publishers hand events to the Bus, which finds every subscription whose
// pattern matches the event type and appends the event to that
// subscription's bounded queue. Consumers pull events with Receive or
// ReceiveBatch; the bus never calls into subscriber code.
//
// # Patterns
//
// Event types are dot-separated segments ("agent.started"). Subscription
// patterns may use:
//
//	"*"       one whole segment
//	"**"      zero or more segments
//	"?"       one character within a segment
//	"[abc]"   one character from a set
//	"{a,b}"   alternatives
//
// Pattern compilation and matching live in the topic subpackage.
//
// # Backpressure
//
// Each subscription picks what happens when its queue is full:
//
//   - DropOldest evicts the oldest queued event (the default)
//   - DropNewest discards the incoming event
//   - Block waits for space up to a timeout, then refuses
//   - Reject refuses immediately
//
// Refusals under Block and Reject are returned to the publisher wrapped in
// an *OverflowError; the event is still delivered to other subscribers.
//
// # Persistence
//
// A Bus configured WithStore appends persistent events to a Store and
// answers history queries. MemoryStore ships here; Redis, SQLite and
// MongoDB stores live under store/.
package event
