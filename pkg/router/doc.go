// Package router applies client events to rooms and fans out the results.
//
// One Router serves the whole process. Transports hand it frames with Submit
// and it handles them one at a time on a single dispatch goroutine (Run):
// decode, apply to the room store, persist, then broadcast to the other
// members of the room. Because nothing else mutates rooms, two events can
// never interleave and every event sees the state left by the one before it.
//
// Submit blocks while the inbox is full. A transport that calls Submit from
// one read goroutine per connection therefore gets per-connection FIFO for
// free; events from different connections are applied in arrival order.
//
// Failure handling:
//
//   - An event for a room the store does not hold is ignored (ErrRoomNotFound).
//     join-room is the exception, it creates the room.
//   - A malformed or unknown event is rejected and an error event is sent to
//     its sender only.
//   - A persistence failure is logged and swallowed; the in-memory state stays
//     authoritative and the broadcast still happens.
//   - A peer whose send queue is full is closed so that it reconnects and
//     receives a fresh snapshot.
//
// Middleware wraps every event, including the synthesized disconnect:
//
//	r := router.New(store, registry,
//	    router.WithMiddleware(
//	        middleware.Recover(logger),
//	        middleware.Prometheus(),
//	        middleware.OpenTelemetry(),
//	    ),
//	)
package router
