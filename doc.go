// Package ssemux is a library for sharing one live SSE connection between
// many consumers.
//
// This library connects to a text/event-stream feed, decodes it into typed
// events and multiplexes the single upstream connection to any number of
// subscriber sessions. Network failures are handled transparently with
// bounded exponential backoff, and a bounded history of recent events is
// replayed to sessions that join late. Delivery is best effort and
// order-preserving per connection epoch; there is no exactly-once guarantee.
//
// Typical usage of this package is:
//   - Create a Hub and obtain a Session per consumer with Hub.Session; all
//     sessions for the same URL share one broker and one upstream
//     connection.
//   - Read the session's projected state (Status, Events, Err, RetryCount)
//     or await changes on Session.Updates.
//   - Use Session.Close, Session.Reconnect and Session.Connect to control
//     the shared connection.
//   - Detach every session when its consumer goes away; the broker for a
//     URL is destroyed when its last session detaches.
//
// A Broker can also be used directly for the one-broker-per-consumer
// topology; both topologies are the same component.
package ssemux
