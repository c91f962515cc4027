// Package store persists conversations, user preferences, and session
// context. Two implementations share one interface: an in-memory store for
// tests and single-node development, and a PostgreSQL store for production.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

var (
	// ErrSessionNotFound is returned for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")

	// ErrNotOwner is returned when a session is accessed by a user other
	// than its owner.
	ErrNotOwner = errors.New("session owned by another user")
)

const titleWords = 7

// Store is the conversation persistence surface. History is append-only;
// mutations of one session serialize, reads return snapshots.
type Store interface {
	// CreateSession creates a session owned by ownerID.
	CreateSession(ctx context.Context, ownerID string) (*models.Session, error)

	// EnsureSession returns the session, lazily creating it claimed by
	// ownerID when the id is unknown. Returns ErrNotOwner when it exists
	// under a different owner.
	EnsureSession(ctx context.Context, sessionID, ownerID string) (*models.Session, error)

	// GetSession returns the session or ErrSessionNotFound.
	GetSession(ctx context.Context, sessionID string) (*models.Session, error)

	// ListSessions returns the owner's sessions, last-active first.
	ListSessions(ctx context.Context, ownerID string) ([]*models.Session, error)

	// DeleteSession hard-deletes the session with its history and context.
	DeleteSession(ctx context.Context, sessionID string) error

	// SetResponseMode records the classifier's sticky mode.
	SetResponseMode(ctx context.Context, sessionID string, mode config.Mode) error

	// AppendMessage appends one turn, titles the session from its first
	// user turn, and touches last-active.
	AppendMessage(ctx context.Context, msg *models.Message) error

	// Messages returns the session's history in order.
	Messages(ctx context.Context, sessionID string) ([]*models.Message, error)

	// DecayIdleSessions clears history and context of sessions idle since
	// before cutoff. The session rows themselves persist. Returns the
	// number of sessions decayed.
	DecayIdleSessions(ctx context.Context, cutoff time.Time) (int, error)

	// Preferences returns the user's stored preferences, or a zero-value
	// record for a user never seen before.
	Preferences(ctx context.Context, userID string) (*models.UserPreferences, error)

	// SavePreferences upserts the user's preferences.
	SavePreferences(ctx context.Context, prefs *models.UserPreferences) error

	// Context returns the session's ephemeral context, nil when unset.
	Context(ctx context.Context, sessionID string) (*models.SessionContext, error)

	// SaveContext replaces the session's context wholesale.
	SaveContext(ctx context.Context, sessCtx *models.SessionContext) error
}

// TitleFromMessage derives a session title from the first user turn.
func TitleFromMessage(content string) string {
	words := strings.Fields(content)
	if len(words) > titleWords {
		words = words[:titleWords]
	}
	return strings.Join(words, " ")
}
