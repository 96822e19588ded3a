package middleware

import (
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/balco-dev/balco/pkg/router"
)

// PanicError wraps a panic raised while handling an event.
type PanicError struct {
	Event     string
	SessionID string
	Value     any
	Stack     []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("middleware: panic handling %s from session %s: %v", e.Event, e.SessionID, e.Value)
}

// Recover converts a panic in later handlers into a *PanicError and marks
// the event failed.
func Recover(logger *slog.Logger) router.Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "router")

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c *router.Context) (err error) {
			defer func() {
				if v := recover(); v != nil {
					perr := &PanicError{
						Event:     c.Event(),
						SessionID: c.SessionID(),
						Value:     v,
						Stack:     debug.Stack(),
					}
					logger.Error("handler panic",
						"event", perr.Event,
						"session_id", perr.SessionID,
						"panic", v,
						"stack", string(perr.Stack))
					c.SetOutcome(router.OutcomeFailed)
					err = perr
				}
			}()
			return next(c)
		}
	}
}
