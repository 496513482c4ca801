// Package sink delivers resolved notifications to the user.
//
// Every backend makes exactly one attempt per notification and reports
// failure as an error; nothing here retries. Callers on the request path
// go through Dispatcher, which runs delivery in the background and only
// logs the outcome.
package sink

import (
	"context"
	"errors"
	"fmt"

	"notifyrelay/internal/notify"
)

var (
	// ErrUnsupported is returned by a backend that cannot run on this host.
	ErrUnsupported = errors.New("sink not supported on this platform")
	// ErrNoSinks is returned when a config enables no backend.
	ErrNoSinks = errors.New("no sinks configured")
)

// Sink is a delivery backend.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n notify.Notification) error
}

// Func adapts a function to Sink.
type Func struct {
	ID string
	Fn func(ctx context.Context, n notify.Notification) error
}

func (f Func) Name() string { return f.ID }

func (f Func) Deliver(ctx context.Context, n notify.Notification) error {
	if f.Fn == nil {
		return nil
	}
	return f.Fn(ctx, n)
}

// DeliveryError wraps a backend failure with the backend name.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string { return fmt.Sprintf("%s: %v", e.Sink, e.Err) }
func (e *DeliveryError) Unwrap() error { return e.Err }

// urgency maps a category onto the three freedesktop urgency levels.
type urgency byte

const (
	urgencyLow      urgency = 0
	urgencyNormal   urgency = 1
	urgencyCritical urgency = 2
)

func (u urgency) String() string {
	switch u {
	case urgencyLow:
		return "low"
	case urgencyCritical:
		return "critical"
	default:
		return "normal"
	}
}

func urgencyFor(c notify.Category) urgency {
	switch c {
	case notify.CategoryError, notify.CategoryQuestion:
		return urgencyCritical
	case notify.CategoryStop:
		return urgencyNormal
	default:
		return urgencyLow
	}
}
