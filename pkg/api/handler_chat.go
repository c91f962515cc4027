package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/metrics"
	"github.com/umami-labs/brigade/pkg/services"
	"github.com/umami-labs/brigade/pkg/stream"
)

// chatRequest is the POST /api/chat body.
type chatRequest struct {
	SessionID        string   `json:"session_id" binding:"required"`
	Message          string   `json:"message" binding:"required"`
	ExecutionMode    string   `json:"execution_mode,omitempty"`
	AudienceMode     string   `json:"audience_mode,omitempty"`
	OptimizationGoal string   `json:"optimization_goal,omitempty"`
	Verbosity        string   `json:"verbosity,omitempty"`
	Ingredients      []string `json:"ingredients,omitempty"`
}

// chatStreamGET handles GET /api/chat/stream. Parameters arrive as query
// values so EventSource clients can connect without a body.
func (s *Server) chatStreamGET(c *gin.Context) {
	in := services.ChatInput{
		SessionID: c.Query("session_id"),
		UserID:    extractUserID(c),
		Message:   c.Query("message"),
		Profile:   config.Profile(c.Query("execution_mode")),

		AudienceMode:     config.SkillLevel(c.Query("audience_mode")),
		OptimizationGoal: c.Query("optimization_goal"),
		Verbosity:        c.Query("verbosity"),
	}
	if raw := c.Query("ingredients"); raw != "" {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				in.Ingredients = append(in.Ingredients, name)
			}
		}
	}
	s.streamChat(c, in)
}

// chatStreamPOST handles POST /api/chat.
func (s *Server) chatStreamPOST(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.streamChat(c, services.ChatInput{
		SessionID:        req.SessionID,
		UserID:           extractUserID(c),
		Message:          req.Message,
		Profile:          config.Profile(req.ExecutionMode),
		AudienceMode:     config.SkillLevel(req.AudienceMode),
		OptimizationGoal: req.OptimizationGoal,
		Verbosity:        req.Verbosity,
		Ingredients:      req.Ingredients,
	})
}

// streamChat validates, claims the session, and runs the chat turn over SSE.
// Every rejection happens before the stream opens so clients still get a
// plain status code.
func (s *Server) streamChat(c *gin.Context, in services.ChatInput) {
	if err := s.chatSvc.Validate(in); err != nil {
		mapServiceError(c, err)
		return
	}
	if _, err := s.store.EnsureSession(c.Request.Context(), in.SessionID, in.UserID); err != nil {
		mapServiceError(c, err)
		return
	}

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)
	flusher.Flush()

	st := stream.New(c.Request.Context(), s.cfg.EventQueueSize, s.cfg.HeartbeatInterval)
	st.Start(s.chatSvc.Producer(in, st))

	clientGone := c.Request.Context().Done()
	for {
		select {
		case ev := <-st.Events():
			writeSSE(c, flusher, ev)
			metrics.EventsEmitted.WithLabelValues(string(ev.Kind)).Inc()
			if ev.Kind == stream.KindDone {
				if payload, ok := ev.Payload.(stream.DonePayload); ok {
					metrics.StreamsTotal.WithLabelValues(string(payload.Status)).Inc()
				}
				st.Finish(false)
				return
			}
		case <-clientGone:
			st.Finish(true)
			return
		}
	}
}

func writeSSE(c *gin.Context, flusher http.Flusher, ev *stream.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		data = []byte(`{"error":"event serialization failed"}`)
	}
	fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", ev.Kind, data)
	flusher.Flush()
}
