package notify

import (
	"context"
	"sync"
	"time"

	"github.com/nkiryanov/payouts/internal/logger"
)

const (
	defaultCountWorkers = 4
	defaultBufferSize   = 256
	defaultSendTimeout  = 5 * time.Second
)

// Dispatcher hands notifications to sender in background workers
type Dispatcher struct {
	countWorkers int
	sendTimeout  time.Duration

	queue  chan Notification
	sender Sender
	logger logger.Logger
}

type Option func(*Dispatcher)

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.countWorkers = n
		}
	}
}

func WithBufferSize(n int) Option {
	return func(d *Dispatcher) {
		if n >= 0 {
			d.queue = make(chan Notification, n)
		}
	}
}

func NewDispatcher(sender Sender, l logger.Logger, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		countWorkers: defaultCountWorkers,
		sendTimeout:  defaultSendTimeout,
		queue:        make(chan Notification, defaultBufferSize),
		sender:       sender,
		logger:       l,
	}
	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Publish queues notification and returns immediately
// If the queue is full the notification is dropped
func (d *Dispatcher) Publish(n Notification) {
	select {
	case d.queue <- n:
	default:
		d.logger.Warn("Notification dropped, queue is full", "event", n.Event, "request_id", n.RequestID)
	}
}

// Run starts workers. They stop when ctx is done, sending whatever is left in the queue first
func (d *Dispatcher) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for range d.countWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.worker(ctx)
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		d.logger.Debug("Notification dispatcher stopped")
	}()

	return idleStopped
}

func (d *Dispatcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.drain()
			return
		case n := <-d.queue:
			d.send(context.WithoutCancel(ctx), n)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case n := <-d.queue:
			d.send(context.Background(), n)
		default:
			return
		}
	}
}

func (d *Dispatcher) send(ctx context.Context, n Notification) {
	ctx, cancel := context.WithTimeout(ctx, d.sendTimeout)
	defer cancel()

	if err := d.sender.Send(ctx, n); err != nil {
		d.logger.Error("Failed to send notification", "error", err, "event", n.Event, "request_id", n.RequestID)
		return
	}

	d.logger.Debug("Notification sent", "event", n.Event, "request_id", n.RequestID)
}
