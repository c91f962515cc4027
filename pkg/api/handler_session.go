package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

// createConversation handles POST /api/conversation.
func (s *Server) createConversation(c *gin.Context) {
	sess, err := s.store.CreateSession(c.Request.Context(), extractUserID(c))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sess)
}

// getConversation handles GET /api/conversation?session_id=…, returning
// canonical conversation state. An empty session id answers with a
// new-session marker instead of 404, so clients can bootstrap without a
// round trip. Sessions owned by another user answer 403.
func (s *Server) getConversation(c *gin.Context) {
	ctx := c.Request.Context()
	userID := extractUserID(c)

	sessionID := c.Query("session_id")
	if sessionID == "" {
		c.JSON(http.StatusOK, gin.H{
			"session_id":   "",
			"new_session":  true,
			"messages":     []*models.Message{},
			"current_mode": config.ModeConversation,
			"memory_scope": userID,
		})
		return
	}

	sess, err := s.store.GetSession(ctx, sessionID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if sess.OwnerID != userID {
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another user"})
		return
	}
	msgs, err := s.store.Messages(ctx, sess.ID)
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if msgs == nil {
		msgs = []*models.Message{}
	}
	c.JSON(http.StatusOK, gin.H{
		"session_id":   sess.ID,
		"messages":     msgs,
		"current_mode": sess.ResponseMode,
		"memory_scope": sess.OwnerID,
	})
}

// deleteConversation handles DELETE /api/conversation/:id.
func (s *Server) deleteConversation(c *gin.Context) {
	ctx := c.Request.Context()
	sess, err := s.store.GetSession(ctx, c.Param("id"))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	if sess.OwnerID != extractUserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "session belongs to another user"})
		return
	}
	if err := s.store.DeleteSession(ctx, sess.ID); err != nil {
		mapServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// listConversations handles GET /api/conversations.
func (s *Server) listConversations(c *gin.Context) {
	sessions, err := s.store.ListSessions(c.Request.Context(), extractUserID(c))
	if err != nil {
		mapServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}
