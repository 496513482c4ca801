package sink

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"notifyrelay/internal/notify"
	"notifyrelay/internal/runtime/supervisor"
	logx "notifyrelay/pkg/logx"
)

// DefaultDeliveryTimeout bounds one delivery so a hung notifier process
// cannot pin a goroutine forever.
const DefaultDeliveryTimeout = 30 * time.Second

// Result is the outcome of one background delivery.
type Result struct {
	ID       string
	Sink     string
	Err      error
	Duration time.Duration
}

// Observer receives delivery outcomes, typically for metrics.
type Observer interface {
	ObserveDelivery(sink string, err error, d time.Duration)
}

// Dispatcher hands notifications to a Sink without making the caller wait.
type Dispatcher struct {
	sink     atomic.Pointer[Sink]
	sup      *supervisor.Supervisor
	log      logx.Logger
	observer Observer
	timeout  time.Duration
}

type DispatcherOption func(*Dispatcher)

func WithLogger(log logx.Logger) DispatcherOption {
	return func(d *Dispatcher) { d.log = log }
}

func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

func WithDeliveryTimeout(t time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if t > 0 {
			d.timeout = t
		}
	}
}

// NewDispatcher runs deliveries under their own supervisor. parent only
// contributes values: cancelling it does not abort in-flight deliveries.
// Drain is the only way they are cut short.
func NewDispatcher(parent context.Context, s Sink, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{timeout: DefaultDeliveryTimeout}
	for _, o := range opts {
		o(d)
	}
	d.sup = supervisor.New(context.WithoutCancel(parent), supervisor.WithLogger(d.log))
	d.SetSink(s)
	return d
}

// SetSink swaps the sink used by later Dispatch calls.
func (d *Dispatcher) SetSink(s Sink) {
	d.sink.Store(&s)
}

func (d *Dispatcher) currentSink() Sink {
	if p := d.sink.Load(); p != nil {
		return *p
	}
	return nil
}

// InFlight reports deliveries that have not finished yet.
func (d *Dispatcher) InFlight() int64 { return d.sup.Counters().Active }

// Dispatch starts delivering n and returns immediately. The returned
// channel receives exactly one Result and is then closed; callers may
// ignore it.
func (d *Dispatcher) Dispatch(n notify.Notification) <-chan Result {
	out := make(chan Result, 1)
	id := uuid.NewString()
	s := d.currentSink()

	d.sup.Go0("delivery", func(ctx context.Context) {
		defer close(out)
		res := Result{ID: id}
		if s == nil {
			res.Err = ErrNoSinks
			d.report(res, n)
			out <- res
			return
		}
		res.Sink = s.Name()

		dctx, cancel := context.WithTimeout(ctx, d.timeout)
		start := time.Now()
		res.Err = s.Deliver(dctx, n)
		res.Duration = time.Since(start)
		cancel()

		d.report(res, n)
		out <- res
	})
	return out
}

func (d *Dispatcher) report(res Result, n notify.Notification) {
	if d.observer != nil {
		d.observer.ObserveDelivery(res.Sink, res.Err, res.Duration)
	}
	fields := []logx.Field{
		logx.String("delivery_id", res.ID),
		logx.String("sink", res.Sink),
		logx.Duration("took", res.Duration),
		logx.Any("notification", n),
	}
	if res.Err != nil {
		d.log.Error("notification delivery failed", append(fields, logx.Err(res.Err))...)
		return
	}
	d.log.Info("notification delivered", fields...)
}

// Drain waits for in-flight deliveries until ctx expires, then cancels
// whatever is left.
func (d *Dispatcher) Drain(ctx context.Context) error {
	err := d.sup.Wait(ctx)
	d.sup.Cancel()
	return err
}
