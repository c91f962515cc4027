package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/llm"
)

func TestChatStreamGET(t *testing.T) {
	mock := llm.NewMock()
	mock.Default = "Fold the egg whites slowly."
	r, _ := newTestServer(t, mock, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream?session_id=s1&message=hello+there", nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
	assert.Equal(t, "no", w.Header().Get("X-Accel-Buffering"))

	body := w.Body.String()
	assert.Equal(t, 1, strings.Count(body, "event: done\n"), "exactly one done event")
	assert.Contains(t, body, "event: token\n")
	assert.Contains(t, body, "event: execution_trace\n")
	assert.Contains(t, body, "event: nutrition_report\n")
	assert.Less(t, strings.Index(body, "event: execution_trace\n"),
		strings.Index(body, "event: nutrition_report\n"),
		"nutrition summary follows the trace")
	assert.Contains(t, body, `"status":"OK"`)
	// The done event is the last frame on the wire.
	frames := strings.Split(strings.TrimSpace(body), "\n\n")
	assert.True(t, strings.HasPrefix(frames[len(frames)-1], "event: done"))
}

func TestChatStreamPOST(t *testing.T) {
	mock := llm.NewMock()
	mock.Default = "Rest the dough."
	r, _ := newTestServer(t, mock, nil)

	payload := `{"session_id":"s1","message":"hello there"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "event: token\n")
	assert.Contains(t, body, `"status":"OK"`)
}

func TestChatStreamRejectsBeforeStreaming(t *testing.T) {
	r, st := newTestServer(t, nil, nil)
	sess := seedSession(t, st, "alice")

	tests := []struct {
		name   string
		target string
		user   string
		code   int
	}{
		{"missing message", "/api/chat/stream?session_id=s1", "alice", http.StatusBadRequest},
		{"missing session", "/api/chat/stream?message=hi", "alice", http.StatusBadRequest},
		{"bad profile", "/api/chat/stream?session_id=s1&message=hi&execution_mode=warp", "alice", http.StatusBadRequest},
		{"foreign session", "/api/chat/stream?session_id=" + sess.ID + "&message=hi", "mallory", http.StatusForbidden},
		{"missing identity", "/api/chat/stream?session_id=" + sess.ID + "&message=hi", "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			req.Header.Set("X-User-ID", tt.user)
			w := doRequest(r, req)
			assert.Equal(t, tt.code, w.Code)
			assert.NotContains(t, w.Header().Get("Content-Type"), "text/event-stream")
		})
	}
}

func TestChatStreamSeqIDsIncrease(t *testing.T) {
	mock := llm.NewMock()
	mock.Default = "Simmer gently."
	r, _ := newTestServer(t, mock, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/chat/stream?session_id=s1&message=hello+there", nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)
	require.Equal(t, http.StatusOK, w.Code)

	prev := 0
	for _, line := range strings.Split(w.Body.String(), "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame struct {
			SeqID int `json:"seq_id"`
		}
		require.NoError(t, json.Unmarshal([]byte(line[len("data: "):]), &frame))
		assert.Greater(t, frame.SeqID, prev, "seq_ids strictly increase")
		prev = frame.SeqID
	}
	assert.Positive(t, prev)
}
