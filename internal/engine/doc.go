// Package engine decides when the cached forecast is stale, when a broadcast
// is due, and fans the "tomorrow" message out to subscribers.
//
// All mutable state lives in a Guard. The Scheduler is the only writer of
// broadcast bookkeeping; the Responder only ever reads.
package engine
