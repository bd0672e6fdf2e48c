package scheduler

import (
	"context"
	"sync"

	"github.com/hamed0406/watchdog/internal/notify"
)

type outgoing struct {
	ctx context.Context
	ev  notify.Event
}

// outbox hands events to the dispatcher off the check path. Events of one
// service are delivered in order by a single drain goroutine; services do
// not wait on each other.
type outbox struct {
	dispatcher *notify.Dispatcher

	mu      sync.Mutex
	pending map[string][]outgoing
	wg      sync.WaitGroup
}

func newOutbox(d *notify.Dispatcher) *outbox {
	return &outbox{dispatcher: d, pending: map[string][]outgoing{}}
}

func (o *outbox) send(ctx context.Context, ev notify.Event) {
	o.mu.Lock()
	defer o.mu.Unlock()
	q, draining := o.pending[ev.Service]
	o.pending[ev.Service] = append(q, outgoing{ctx: ctx, ev: ev})
	if !draining {
		o.wg.Add(1)
		go o.drain(ev.Service)
	}
}

func (o *outbox) drain(service string) {
	defer o.wg.Done()
	for {
		o.mu.Lock()
		q := o.pending[service]
		if len(q) == 0 {
			delete(o.pending, service)
			o.mu.Unlock()
			return
		}
		next := q[0]
		o.pending[service] = q[1:]
		o.mu.Unlock()

		if next.ctx.Err() != nil {
			continue
		}
		o.dispatcher.Dispatch(next.ctx, next.ev)
	}
}

// wait blocks until every queued event has been delivered or dropped.
func (o *outbox) wait() { o.wg.Wait() }
