package mail

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/black-bourne/educ-backend/pkg/logger"
	"github.com/black-bourne/educ-backend/pkg/metrics"
)

// ErrQueueFull is returned when a message cannot be accepted for delivery.
var ErrQueueFull = errors.New("mail: dispatch queue full")

// ErrDispatcherClosed is returned when enqueueing after Stop.
var ErrDispatcherClosed = errors.New("mail: dispatcher closed")

// DispatcherConfig tunes the background delivery workers.
type DispatcherConfig struct {
	Workers     int
	QueueSize   int
	MaxRetries  int
	RetryDelay  time.Duration
	SendTimeout time.Duration
}

// Dispatcher delivers messages asynchronously through a bounded queue and a
// fixed worker pool. Enqueue failures are surfaced to the caller; failures
// after a message is accepted are retried and then logged, never surfaced.
type Dispatcher struct {
	mailer  Mailer
	queue   chan Message
	log     *zap.Logger
	wg      sync.WaitGroup
	mu      sync.Mutex
	closed  bool
	retries int
	delay   time.Duration
	timeout time.Duration
}

// NewDispatcher starts the worker pool and returns the dispatcher.
func NewDispatcher(mailer Mailer, cfg DispatcherConfig) (*Dispatcher, error) {
	if mailer == nil {
		return nil, errors.New("mail: mailer is required")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = 2
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	delay := cfg.RetryDelay
	if delay <= 0 {
		delay = 5 * time.Second
	}
	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	d := &Dispatcher{
		mailer:  mailer,
		queue:   make(chan Message, queueSize),
		log:     logger.WithModule("mail"),
		retries: retries,
		delay:   delay,
		timeout: timeout,
	}

	d.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go d.worker()
	}

	return d, nil
}

// Enqueue accepts a message for asynchronous delivery. A full queue or a
// stopped dispatcher rejects the message immediately; this is the only
// delivery failure a caller ever observes.
func (d *Dispatcher) Enqueue(msg Message) error {
	// The lock spans the send so Stop cannot close the queue between the
	// closed check and the send. The send never blocks; a full queue hits
	// the default case.
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDispatcherClosed
	}

	select {
	case d.queue <- msg:
		metrics.MailQueueDepth.Inc()
		return nil
	default:
		return ErrQueueFull
	}
}

// Stop drains the queue and waits for in-flight deliveries to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for msg := range d.queue {
		metrics.MailQueueDepth.Dec()
		d.deliver(msg)
	}
}

func (d *Dispatcher) deliver(msg Message) {
	var err error
	for attempt := 0; attempt <= d.retries; attempt++ {
		if attempt > 0 {
			time.Sleep(d.delay * time.Duration(attempt))
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err = d.mailer.Send(ctx, msg)
		cancel()

		if err == nil {
			return
		}
		if errors.Is(err, ErrSMTPDisabled) {
			d.log.Debug("mail delivery disabled, dropping message",
				zap.String("subject", msg.Subject))
			return
		}
	}

	d.log.Error("mail delivery failed after retries",
		zap.Strings("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.Error(err),
	)
}
