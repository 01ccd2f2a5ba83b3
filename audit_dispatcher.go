package clinicauth

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// auditDropWarning is logged once, on the first dropped event.
const auditDropWarning = "audit queue full; dropping events"

// auditDispatcher hands audit events to one background worker so request
// paths never wait on a slow sink. A nil dispatcher is a valid no-op.
type auditDispatcher struct {
	dropIfFull bool
	sink       AuditSink
	log        *zap.Logger

	queue   chan AuditEvent
	stop    chan struct{}
	stopped sync.WaitGroup
	once    sync.Once
	closing atomic.Bool
	dropped atomic.Uint64
}

func newAuditDispatcher(cfg AuditConfig, sink AuditSink, log *zap.Logger) *auditDispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	if log == nil {
		log = zap.NewNop()
	}

	d := &auditDispatcher{
		dropIfFull: cfg.DropIfFull,
		sink:       sink,
		log:        log,
		queue:      make(chan AuditEvent, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
	}
	d.stopped.Add(1)
	go d.worker()
	return d
}

func (d *auditDispatcher) worker() {
	defer d.stopped.Done()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain flushes whatever Emit queued before Close.
func (d *auditDispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver isolates the worker from a panicking sink.
func (d *auditDispatcher) deliver(ev AuditEvent) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("audit sink panicked", zap.Any("panic", r), zap.String("event", ev.EventType))
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues ev. With DropIfFull a full queue drops the event and counts
// it; otherwise Emit blocks until there is room, ctx ends, or Close runs.
func (d *auditDispatcher) Emit(ctx context.Context, ev AuditEvent) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			if d.dropped.Add(1) == 1 {
				d.log.Warn(auditDropWarning, zap.Int("capacity", cap(d.queue)))
			}
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
	case <-d.stop:
	}
}

// Close flushes queued events and waits for the worker. Idempotent.
func (d *auditDispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		d.stopped.Wait()
	})
}

func (d *auditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
