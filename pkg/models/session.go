package models

import (
	"time"

	"github.com/umami-labs/brigade/pkg/config"
)

// Role identifies the author of a conversation message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Session is a user-owned conversation.
type Session struct {
	ID             string      `json:"session_id"`
	OwnerID        string      `json:"owner_id"`
	ConversationID string      `json:"conversation_id"`
	Title          string      `json:"title,omitempty"`
	ResponseMode   config.Mode `json:"response_mode"`
	LastActiveAt   time.Time   `json:"last_active_at"`
	CreatedAt      time.Time   `json:"created_at"`
}

// Message is one conversation turn. Ordered, append-only within a session.
type Message struct {
	ID        int64          `json:"id"`
	SessionID string         `json:"session_id"`
	Role      Role           `json:"role"`
	Content   string         `json:"content"`
	Trace     map[string]any `json:"execution_trace,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ConfidentValue pairs a preference field with its confidence and the time
// the user last confirmed it.
type ConfidentValue[T any] struct {
	Value           T         `json:"value"`
	Confidence      float64   `json:"confidence"`
	LastConfirmedAt time.Time `json:"last_confirmed_at"`
}

// UserPreferences is the user-scoped memory: skill, equipment, and dietary
// constraints, each with confidence decay semantics.
type UserPreferences struct {
	UserID             string                          `json:"user_id"`
	SkillLevel         ConfidentValue[config.SkillLevel] `json:"skill_level"`
	Equipment          ConfidentValue[[]string]        `json:"equipment"`
	DietaryConstraints ConfidentValue[[]string]        `json:"dietary_constraints"`
	UpdatedAt          time.Time                       `json:"updated_at"`
}

// SessionContext is the session-scoped ephemeral memory. Replaced on update,
// never merged.
type SessionContext struct {
	SessionID      string    `json:"session_id"`
	CurrentDish    string    `json:"current_dish,omitempty"`
	KeyIngredients []string  `json:"key_ingredients,omitempty"`
	Technique      string    `json:"technique,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}
