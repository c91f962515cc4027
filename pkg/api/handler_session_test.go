package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umami-labs/brigade/pkg/models"
)

func TestCreateConversation(t *testing.T) {
	r, st := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/conversation", nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)

	require.Equal(t, http.StatusCreated, w.Code)
	var sess models.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "alice", sess.OwnerID)

	stored, err := st.GetSession(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.OwnerID)
}

func TestGetConversation(t *testing.T) {
	r, st := newTestServer(t, nil, nil)
	sess := seedSession(t, st, "alice")
	require.NoError(t, st.AppendMessage(context.Background(), &models.Message{
		SessionID: sess.ID, Role: models.RoleUser, Content: "how do I sear scallops",
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/conversation?session_id="+sess.ID, nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SessionID   string            `json:"session_id"`
		Messages    []*models.Message `json:"messages"`
		CurrentMode string            `json:"current_mode"`
		MemoryScope string            `json:"memory_scope"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, sess.ID, body.SessionID)
	assert.Equal(t, "conversation", body.CurrentMode)
	assert.Equal(t, "alice", body.MemoryScope)
	require.Len(t, body.Messages, 1)
	assert.Equal(t, "how do I sear scallops", body.Messages[0].Content)
}

func TestGetConversationEmptyIDReturnsNewSessionMarker(t *testing.T) {
	r, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		SessionID  string            `json:"session_id"`
		NewSession bool              `json:"new_session"`
		Messages   []*models.Message `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.NewSession)
	assert.Empty(t, body.SessionID)
	assert.Empty(t, body.Messages)
}

func TestGetConversationWrongOwner(t *testing.T) {
	r, st := newTestServer(t, nil, nil)
	sess := seedSession(t, st, "alice")

	req := httptest.NewRequest(http.MethodGet, "/api/conversation?session_id="+sess.ID, nil)
	req.Header.Set("X-User-ID", "mallory")
	w := doRequest(r, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGetConversationNotFound(t *testing.T) {
	r, _ := newTestServer(t, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/conversation?session_id=nope", nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMissingIdentityHeaderForbidden(t *testing.T) {
	r, st := newTestServer(t, nil, nil)
	sess := seedSession(t, st, "alice")

	for _, target := range []string{
		"/api/conversation?session_id=" + sess.ID,
		"/api/conversations",
	} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := doRequest(r, req)
		assert.Equal(t, http.StatusForbidden, w.Code, target)
	}
}

func TestListConversationsScopedToUser(t *testing.T) {
	r, st := newTestServer(t, nil, nil)
	seedSession(t, st, "alice")
	seedSession(t, st, "alice")
	seedSession(t, st, "bob")

	req := httptest.NewRequest(http.MethodGet, "/api/conversations", nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Sessions []*models.Session `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Sessions, 2)
}

func TestDeleteConversation(t *testing.T) {
	r, st := newTestServer(t, nil, nil)
	sess := seedSession(t, st, "alice")

	req := httptest.NewRequest(http.MethodDelete, "/api/conversation/"+sess.ID, nil)
	req.Header.Set("X-User-ID", "alice")
	w := doRequest(r, req)
	require.Equal(t, http.StatusNoContent, w.Code)

	_, err := st.GetSession(context.Background(), sess.ID)
	assert.Error(t, err)
}
