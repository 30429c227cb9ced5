package goOnboard

import (
	"context"
	"sync"
	"sync/atomic"
)

// auditDispatcher moves events off the request path onto one worker
// goroutine. A nil dispatcher (audit disabled) accepts and ignores events.
type auditDispatcher struct {
	sink       AuditSink
	dropIfFull bool

	mu     sync.RWMutex // guards closed and the send side of queue
	closed bool
	queue  chan AuditEvent

	stopped chan struct{}
	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &auditDispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stopped:    make(chan struct{}),
	}
	go d.worker()
	return d
}

// worker delivers until Close closes the queue, then exits once the
// remaining buffered events are delivered.
func (d *auditDispatcher) worker() {
	defer close(d.stopped)
	for event := range d.queue {
		d.sink.Emit(context.Background(), event)
	}
}

// Emit queues event. With dropIfFull a full queue drops the event and
// counts it. Otherwise Emit waits for room, counting the event as dropped
// if ctx ends first.
func (d *auditDispatcher) Emit(ctx context.Context, event AuditEvent) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops intake and blocks until every queued event reached the sink.
// Calling it more than once is safe.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	<-d.stopped
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
