// Package queue fans outbound mail out to a fixed pool of workers.
package queue

import (
	"context"
	"hash/fnv"

	"github.com/rs/zerolog"

	"github.com/vamosfrotas/fleet-access/internal/core/ports"
)

const (
	defaultWorkers = 4
	channelBuffer  = 64
)

// Job is one message to deliver. Done, when set, receives the delivery
// result; the outbox consumer uses it to ack or reject the broker message.
type Job struct {
	To      string
	Subject string
	Body    string
	Done    func(err error)
}

// Dispatcher routes jobs to workers by hashing the recipient, so messages to
// one address are delivered in the order they were enqueued.
type Dispatcher struct {
	workers []chan Job
	sender  ports.Notifier
	log     zerolog.Logger
}

// NewDispatcher creates a Dispatcher with numWorkers sharded workers.
// If numWorkers <= 0, defaultWorkers is used.
func NewDispatcher(numWorkers int, sender ports.Notifier, log zerolog.Logger) *Dispatcher {
	if numWorkers <= 0 {
		numWorkers = defaultWorkers
	}
	d := &Dispatcher{
		workers: make([]chan Job, numWorkers),
		sender:  sender,
		log:     log,
	}
	for i := range d.workers {
		d.workers[i] = make(chan Job, channelBuffer)
	}
	return d
}

// Start launches all worker goroutines. Workers stop when ctx is cancelled.
func (d *Dispatcher) Start(ctx context.Context) {
	for i, ch := range d.workers {
		go d.runWorker(ctx, i, ch)
	}
}

// Enqueue hands a job to the worker responsible for its recipient. It blocks
// once that worker's buffer is full.
func (d *Dispatcher) Enqueue(job Job) {
	d.workers[d.shardIndex(job.To)] <- job
}

func (d *Dispatcher) shardIndex(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(d.workers)))
}

func (d *Dispatcher) runWorker(ctx context.Context, id int, ch <-chan Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case job, ok := <-ch:
			if !ok {
				return
			}
			err := d.sender.Send(ctx, job.To, job.Subject, job.Body)
			if err != nil {
				d.log.Error().Err(err).
					Str("to", job.To).
					Int("worker_id", id).
					Msg("mail delivery failed")
			}
			if job.Done != nil {
				job.Done(err)
			}
		}
	}
}
