package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/resource"
)

// drain reads events until done or a timeout, then calls Finish.
func drain(t *testing.T, s *Stream) []*Event {
	t.Helper()
	var events []*Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-s.Events():
			events = append(events, ev)
			if ev.Kind == KindDone {
				s.Finish(false)
				return events
			}
		case <-timeout:
			t.Fatal("stream never terminated")
		}
	}
}

func donePayload(t *testing.T, ev *Event) DonePayload {
	t.Helper()
	require.Equal(t, KindDone, ev.Kind)
	payload, ok := ev.Payload.(DonePayload)
	require.True(t, ok)
	return payload
}

func TestStreamHappyPath(t *testing.T) {
	s := New(context.Background(), 64, time.Hour)
	s.Start(func(ctx context.Context) error {
		s.Emit(KindThinkingPhase, ThinkingPhasePayload{Phase: config.PhaseDiagnose})
		s.EmitToken("hello ")
		s.EmitToken("world")
		return nil
	})

	events := drain(t, s)

	require.GreaterOrEqual(t, len(events), 5)
	assert.Equal(t, KindStatus, events[0].Kind)
	last := events[len(events)-1]
	assert.Equal(t, config.StreamStatusOK, donePayload(t, last).Status)

	// Exactly one done, strictly increasing seq ids, tokens in order.
	doneCount := 0
	var prevSeq int64
	var tokens []string
	for _, ev := range events {
		assert.Greater(t, ev.SeqID, prevSeq, "seq_id must be strictly increasing")
		prevSeq = ev.SeqID
		if ev.Kind == KindDone {
			doneCount++
		}
		if ev.Kind == KindToken {
			tokens = append(tokens, ev.Payload.(TokenPayload).Token)
		}
	}
	assert.Equal(t, 1, doneCount)
	assert.Equal(t, []string{"hello ", "world"}, tokens)
}

func TestStreamProducerError(t *testing.T) {
	s := New(context.Background(), 64, time.Hour)
	s.Start(func(ctx context.Context) error {
		s.EmitToken("partial")
		return errors.New("generation exploded")
	})

	events := drain(t, s)

	last := events[len(events)-1]
	payload := donePayload(t, last)
	assert.Equal(t, config.StreamStatusFailed, payload.Status)

	// error_event directly precedes done.
	require.GreaterOrEqual(t, len(events), 2)
	assert.Equal(t, KindError, events[len(events)-2].Kind)
}

func TestStreamBudgetExceeded(t *testing.T) {
	s := New(context.Background(), 64, time.Hour)
	s.Start(func(ctx context.Context) error {
		return fmt.Errorf("pre-flight: %w", resource.ErrBudgetExceeded)
	})

	events := drain(t, s)
	assert.Equal(t, config.StreamStatusResourceExceeded, donePayload(t, events[len(events)-1]).Status)
}

func TestStreamHeartbeat(t *testing.T) {
	s := New(context.Background(), 64, 10*time.Millisecond)
	release := make(chan struct{})
	s.Start(func(ctx context.Context) error {
		<-release
		return nil
	})

	time.Sleep(60 * time.Millisecond)
	close(release)
	events := drain(t, s)

	pings := 0
	for _, ev := range events {
		if ev.Kind == KindPing {
			pings++
		}
	}
	assert.GreaterOrEqual(t, pings, 2, "heartbeat must tick while producing")
}

func TestStreamClientDisconnect(t *testing.T) {
	s := New(context.Background(), 64, time.Hour)
	blocked := make(chan struct{})
	s.Start(func(ctx context.Context) error {
		s.EmitToken("tok")
		<-ctx.Done()
		close(blocked)
		return ctx.Err()
	})

	// Consumer walks away before the producer finishes.
	<-s.Events() // initializing
	<-s.Events() // token
	s.Finish(true)

	select {
	case <-blocked:
	case <-time.After(2 * time.Second):
		t.Fatal("producer not cancelled on disconnect")
	}

	// The aborted done is queued exactly once.
	var done *Event
	for {
		select {
		case ev := <-s.Events():
			if ev.Kind == KindDone {
				require.Nil(t, done, "only one done per stream")
				done = ev
				continue
			}
		default:
			require.NotNil(t, done)
			payload := donePayload(t, done)
			assert.Equal(t, config.StreamStatusFailed, payload.Status)
			assert.Equal(t, "client_disconnect", payload.Reason)
			return
		}
	}
}

func TestStreamDroppedAfterDone(t *testing.T) {
	s := New(context.Background(), 64, time.Hour)
	s.Start(func(ctx context.Context) error { return nil })
	events := drain(t, s)
	assert.Equal(t, KindDone, events[len(events)-1].Kind)

	assert.False(t, s.EmitToken("late"), "emits after done must be dropped")
	select {
	case ev := <-s.Events():
		t.Fatalf("unexpected event after done: %s", ev.Kind)
	default:
	}
}

func TestEventWireFormat(t *testing.T) {
	ev := &Event{
		Kind:    KindDone,
		SeqID:   42,
		TS:      "2026-03-01T12:00:00Z",
		Payload: DonePayload{Status: config.StreamStatusOK},
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(42), decoded["seq_id"])
	assert.Equal(t, "2026-03-01T12:00:00Z", decoded["ts"])
	assert.Equal(t, "OK", decoded["status"])
}

func TestThinkingPhaseWireKey(t *testing.T) {
	ev := &Event{
		Kind:    KindThinkingPhase,
		SeqID:   3,
		TS:      "2026-03-01T12:00:00Z",
		Payload: ThinkingPhasePayload{Phase: config.PhaseModel, Content: "starch gelatinizes"},
	}
	raw, err := json.Marshal(ev)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "model", decoded["type"])
	assert.NotContains(t, decoded, "phase")
}
