package sink

import (
	"context"
	"errors"
	"strings"
	"sync"

	"notifyrelay/internal/notify"
)

// Fanout delivers to every child concurrently. It fails if any child fails;
// the returned error joins each child's DeliveryError.
type Fanout struct {
	sinks []Sink
}

func NewFanout(sinks ...Sink) *Fanout {
	return &Fanout{sinks: append([]Sink(nil), sinks...)}
}

func (f *Fanout) Name() string {
	names := make([]string, 0, len(f.sinks))
	for _, s := range f.sinks {
		names = append(names, s.Name())
	}
	return "fanout(" + strings.Join(names, ",") + ")"
}

func (f *Fanout) Deliver(ctx context.Context, n notify.Notification) error {
	if len(f.sinks) == 0 {
		return ErrNoSinks
	}
	errs := make([]error, len(f.sinks))
	var wg sync.WaitGroup
	for i, s := range f.sinks {
		i, s := i, s
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Deliver(ctx, n); err != nil {
				errs[i] = &DeliveryError{Sink: s.Name(), Err: err}
			}
		}()
	}
	wg.Wait()
	return errors.Join(errs...)
}
