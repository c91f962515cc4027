package stream

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/resource"
)

// Producer runs the orchestration for one request, emitting events through
// the stream as it goes. Its error value decides the terminal status: nil
// maps to OK, a budget rejection to RESOURCE_EXCEEDED, anything else to
// FAILED.
type Producer func(ctx context.Context) error

// Stream is the per-request ordered event queue. Emitters serialize on an
// internal mutex so sequence numbers match queue order; once done has been
// enqueued every further emit is dropped.
type Stream struct {
	ctx    context.Context
	cancel context.CancelFunc

	queue     chan *Event
	heartbeat time.Duration

	mu       sync.Mutex
	nextSeq  int64
	doneSent bool

	wg sync.WaitGroup
}

// New creates a stream bound to the request context.
func New(parent context.Context, queueSize int, heartbeat time.Duration) *Stream {
	ctx, cancel := context.WithCancel(parent)
	return &Stream{
		ctx:       ctx,
		cancel:    cancel,
		queue:     make(chan *Event, queueSize),
		heartbeat: heartbeat,
	}
}

// Events is the drain side of the queue. The consumer must stop reading
// after a done event and then call Finish.
func (s *Stream) Events() <-chan *Event {
	return s.queue
}

// Start enqueues the initializing status and launches the producer and the
// heartbeat.
func (s *Stream) Start(producer Producer) {
	s.Emit(KindStatus, StatusPayload{State: "initializing"})

	s.wg.Add(2)
	go s.runHeartbeat()
	go s.runProducer(producer)
}

// Emit enqueues a non-terminal event, blocking for queue space. Returns
// false when the event was dropped because the stream already terminated.
func (s *Stream) Emit(kind Kind, payload any) bool {
	return s.enqueue(kind, payload, false)
}

// EmitToken enqueues one generation token.
func (s *Stream) EmitToken(token string) bool {
	return s.enqueue(KindToken, TokenPayload{Token: token}, false)
}

// Done enqueues the terminal event. Only the first call wins.
func (s *Stream) Done(status config.StreamStatus, reason string) bool {
	return s.enqueue(KindDone, DonePayload{Status: status, Reason: reason}, true)
}

// Finish ends the stream from the consumer side: it emits the aborted or
// safety-net done if the producer never terminated the stream, cancels the
// producer and heartbeat, and waits for both to exit. clientGone marks an
// early consumer exit (disconnect).
func (s *Stream) Finish(clientGone bool) {
	if clientGone {
		if s.tryDone(config.StreamStatusFailed, "client_disconnect") {
			slog.Info("Stream aborted by client disconnect")
		}
	} else if s.tryDone(config.StreamStatusFailed, "missing_terminal_event") {
		// The consumer saw the queue end without a done event; a producer
		// path failed to terminate the stream.
		slog.Warn("Stream finished without a done event; emitted safety net")
	}

	s.cancel()
	s.wg.Wait()
}

func (s *Stream) runProducer(producer Producer) {
	defer s.wg.Done()

	err := producer(s.ctx)
	switch {
	case err == nil:
		s.Done(config.StreamStatusOK, "")
	case errors.Is(err, resource.ErrBudgetExceeded), errors.Is(err, context.DeadlineExceeded):
		s.Emit(KindError, ErrorPayload{Error: err.Error(), Kind: "resource_exceeded"})
		s.Done(config.StreamStatusResourceExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		// Cancelled from the consumer side; Finish owns the terminal event.
	default:
		s.Emit(KindError, ErrorPayload{Error: err.Error()})
		s.Done(config.StreamStatusFailed, err.Error())
	}

	// Producer completion stops the heartbeat.
	s.cancel()
}

func (s *Stream) runHeartbeat() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Emit(KindPing, nil)
		}
	}
}

func (s *Stream) enqueue(kind Kind, payload any, terminal bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.doneSent {
		return false
	}

	s.nextSeq++
	ev := &Event{
		Kind:    kind,
		SeqID:   s.nextSeq,
		TS:      time.Now().Format(time.RFC3339Nano),
		Payload: payload,
	}

	if terminal {
		// The terminal event must land even when the consumer stopped
		// draining; fall through to a non-blocking attempt on cancellation.
		select {
		case s.queue <- ev:
			s.doneSent = true
			return true
		case <-s.ctx.Done():
			select {
			case s.queue <- ev:
			default:
			}
			s.doneSent = true
			return true
		}
	}

	select {
	case s.queue <- ev:
		return true
	case <-s.ctx.Done():
		return false
	}
}

// tryDone emits a terminal event only when none has been sent yet.
func (s *Stream) tryDone(status config.StreamStatus, reason string) bool {
	s.mu.Lock()
	done := s.doneSent
	s.mu.Unlock()
	if done {
		return false
	}
	return s.Done(status, reason)
}
