package clinicauth

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, AuditEvent) {
	s.count.Add(1)
}

func (s *countingSink) Count() int64 {
	return s.count.Load()
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{
		gate: make(chan struct{}),
	}
}

func (s *gateSink) Emit(context.Context, AuditEvent) {
	<-s.gate
}

func TestAuditDisabledReturnsNilDispatcher(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, &countingSink{}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when audit is disabled")
	}
	// nil dispatcher must be inert
	d.Emit(context.Background(), AuditEvent{EventType: "e1"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected zero drops on nil dispatcher")
	}
}

func TestAuditBufferFullDropIfFullTrueDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	core, logs := observer.New(zapcore.WarnLevel)
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: true,
	}, sink, zap.New(core))
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	start := time.Now()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e4"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if dispatcher.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
	if n := logs.FilterMessage(auditDropWarning).Len(); n != 1 {
		t.Fatalf("expected exactly one drop warning, got %d of %d entries", n, logs.Len())
	}
}

func TestAuditBufferFullDropIfFullFalseBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 1,
		DropIfFull: false,
	}, sink, nil)
	defer func() {
		close(sink.gate)
		dispatcher.Close()
	}()

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})

	done := make(chan struct{})
	go func() {
		dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestAuditDispatcherCloseDrainsAndIsIdempotent(t *testing.T) {
	sink := &countingSink{}
	dispatcher := newAuditDispatcher(AuditConfig{
		Enabled:    true,
		BufferSize: 4,
		DropIfFull: true,
	}, sink, nil)

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e1"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e2"})
	dispatcher.Close()
	dispatcher.Close()
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "e3"})

	if sink.Count() != 2 {
		t.Fatalf("expected 2 delivered events, got %d", sink.Count())
	}
}

type panicSink struct{ countingSink }

func (s *panicSink) Emit(ctx context.Context, ev AuditEvent) {
	if ev.EventType == "boom" {
		panic("sink failure")
	}
	s.countingSink.Emit(ctx, ev)
}

func TestAuditDispatcherSurvivesPanickingSink(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	sink := &panicSink{}
	dispatcher := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4}, sink, zap.New(core))

	dispatcher.Emit(context.Background(), AuditEvent{EventType: "boom"})
	dispatcher.Emit(context.Background(), AuditEvent{EventType: "login"})
	dispatcher.Close()

	if sink.Count() != 1 {
		t.Fatalf("expected the event after the panic to be delivered, got %d", sink.Count())
	}
	if logs.FilterMessage("audit sink panicked").Len() != 1 {
		t.Fatal("expected the panic to be logged")
	}
}

func TestAuditJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: auditEventLoginSuccess,
		UserID:    "u1",
		ClinicID:  "c1",
		IP:        "127.0.0.1",
		Success:   true,
	})

	if !buf.Contains("login_success") {
		t.Fatal("expected JSON log line to contain event type")
	}
	if !buf.Contains("\"user_id\":\"u1\"") || !buf.Contains("\"clinic_id\":\"c1\"") {
		t.Fatal("expected JSON log line to contain user and clinic")
	}
	if !buf.Contains("\n") {
		t.Fatal("expected newline-terminated record")
	}
}

func TestZapSinkLevelsBySuccess(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	sink := NewZapSink(zap.New(core))

	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLoginSuccess, UserID: "u1", Success: true})
	sink.Emit(context.Background(), AuditEvent{EventType: auditEventLoginFailure, Error: "invalid_credentials",
		Metadata: map[string]string{"identifier_kind": "email"}})

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Level != zapcore.InfoLevel || entries[1].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected levels: %v, %v", entries[0].Level, entries[1].Level)
	}
	if entries[0].LoggerName != "audit" {
		t.Fatalf("expected audit logger name, got %q", entries[0].LoggerName)
	}
	ctx := entries[1].ContextMap()
	if ctx["error"] != "invalid_credentials" || ctx["meta.identifier_kind"] != "email" {
		t.Fatalf("unexpected fields: %v", ctx)
	}
}

func TestMultiSinkFansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	MultiSink{a, nil, b}.Emit(context.Background(), AuditEvent{EventType: "x"})
	if a.Count() != 1 || b.Count() != 1 {
		t.Fatalf("expected both sinks to receive the event, got %d/%d", a.Count(), b.Count())
	}
}

func TestAuditErrorCodeMapping(t *testing.T) {
	cases := map[error]AuditErrorCode{
		nil:                       "",
		ErrInvalidCredentials:     auditErrInvalidCredentials,
		lockedError(time.Now()):   auditErrAccountLocked,
		ErrInvalidRefreshToken:    auditErrInvalidToken,
		ErrTokenInvalidOrExpired:  auditErrInvalidToken,
		ErrForbidden:              auditErrForbidden,
		validationError():         auditErrValidation,
		ErrDuplicateEmail:         auditErrDuplicate,
		internalError(context.Canceled): auditErrInternal,
	}
	for err, want := range cases {
		if got := auditErrorCode(err); got != want {
			t.Fatalf("auditErrorCode(%v) = %q, want %q", err, got, want)
		}
	}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) Contains(v string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.Contains(string(b.buf), v)
}
