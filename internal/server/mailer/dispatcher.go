package mailer

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/idkeeper/internal/logging"
)

const publishTimeout = 5 * time.Second

// Dispatcher hands messages to a Producer from a single background worker.
// Send never blocks: when the buffer is full the message is dropped and
// counted.
type Dispatcher struct {
	producer  Producer
	logger    logging.Logger
	ch        chan Message
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	failed    atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewDispatcher(producer Producer, bufferSize int, logger logging.Logger) *Dispatcher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	d := &Dispatcher{
		producer: producer,
		logger:   logger,
		ch:       make(chan Message, bufferSize),
		done:     make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *Dispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.publish(msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.publish(msg)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) publish(msg Message) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	if err := d.producer.Publish(ctx, msg); err != nil {
		d.failed.Add(1)
		d.logger.Error(ctx, "email publish failed", "subject", msg.Subject, "error", err)
		return
	}
	d.logger.Debug(ctx, "email queued", "subject", msg.Subject)
}

func (d *Dispatcher) Send(ctx context.Context, msg Message) {
	if d.closed.Load() {
		return
	}
	select {
	case d.ch <- msg:
	case <-d.done:
	default:
		d.dropped.Add(1)
		d.logger.Warn(ctx, "email dropped, buffer full", "subject", msg.Subject)
	}
}

// Close stops accepting messages and drains the buffer.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

func (d *Dispatcher) Dropped() uint64 { return d.dropped.Load() }

func (d *Dispatcher) Failed() uint64 { return d.failed.Load() }
