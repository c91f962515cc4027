package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

// Memory is the in-memory Store. A registry lock guards the maps; each
// session additionally carries its own lock so mutations of one session
// serialize without blocking others. Reads return copies.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	prefs    map[string]*models.UserPreferences

	now func() time.Time
}

type memSession struct {
	mu       sync.Mutex
	session  models.Session
	messages []models.Message
	context  *models.SessionContext
	nextID   int64
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		sessions: make(map[string]*memSession),
		prefs:    make(map[string]*models.UserPreferences),
		now:      time.Now,
	}
}

func (m *Memory) CreateSession(_ context.Context, ownerID string) (*models.Session, error) {
	now := m.now()
	sess := models.Session{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ConversationID: uuid.NewString(),
		ResponseMode:   config.ModeConversation,
		LastActiveAt:   now,
		CreatedAt:      now,
	}

	m.mu.Lock()
	m.sessions[sess.ID] = &memSession{session: sess, nextID: 1}
	m.mu.Unlock()

	copied := sess
	return &copied, nil
}

func (m *Memory) EnsureSession(ctx context.Context, sessionID, ownerID string) (*models.Session, error) {
	m.mu.Lock()
	ms, ok := m.sessions[sessionID]
	if !ok {
		now := m.now()
		sess := models.Session{
			ID:             sessionID,
			OwnerID:        ownerID,
			ConversationID: uuid.NewString(),
			ResponseMode:   config.ModeConversation,
			LastActiveAt:   now,
			CreatedAt:      now,
		}
		m.sessions[sessionID] = &memSession{session: sess, nextID: 1}
		m.mu.Unlock()
		copied := sess
		return &copied, nil
	}
	m.mu.Unlock()

	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.session.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	copied := ms.session
	return &copied, nil
}

func (m *Memory) GetSession(_ context.Context, sessionID string) (*models.Session, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	copied := ms.session
	return &copied, nil
}

func (m *Memory) ListSessions(_ context.Context, ownerID string) ([]*models.Session, error) {
	m.mu.RLock()
	var out []*models.Session
	for _, ms := range m.sessions {
		ms.mu.Lock()
		if ms.session.OwnerID == ownerID {
			copied := ms.session
			out = append(out, &copied)
		}
		ms.mu.Unlock()
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	return out, nil
}

func (m *Memory) DeleteSession(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[sessionID]; !ok {
		return ErrSessionNotFound
	}
	delete(m.sessions, sessionID)
	return nil
}

func (m *Memory) SetResponseMode(_ context.Context, sessionID string, mode config.Mode) error {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.session.ResponseMode = mode
	return nil
}

func (m *Memory) AppendMessage(_ context.Context, msg *models.Message) error {
	ms, err := m.lookup(msg.SessionID)
	if err != nil {
		return err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	stored := *msg
	stored.ID = ms.nextID
	ms.nextID++
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = m.now()
	}
	ms.messages = append(ms.messages, stored)
	msg.ID = stored.ID

	if ms.session.Title == "" && stored.Role == models.RoleUser {
		ms.session.Title = TitleFromMessage(stored.Content)
	}
	ms.session.LastActiveAt = m.now()
	return nil
}

func (m *Memory) Messages(_ context.Context, sessionID string) ([]*models.Message, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	out := make([]*models.Message, len(ms.messages))
	for i := range ms.messages {
		copied := ms.messages[i]
		out[i] = &copied
	}
	return out, nil
}

func (m *Memory) DecayIdleSessions(_ context.Context, cutoff time.Time) (int, error) {
	m.mu.RLock()
	all := make([]*memSession, 0, len(m.sessions))
	for _, ms := range m.sessions {
		all = append(all, ms)
	}
	m.mu.RUnlock()

	decayed := 0
	for _, ms := range all {
		ms.mu.Lock()
		if ms.session.LastActiveAt.Before(cutoff) && len(ms.messages) > 0 {
			ms.messages = nil
			ms.context = nil
			decayed++
		}
		ms.mu.Unlock()
	}
	return decayed, nil
}

func (m *Memory) Preferences(_ context.Context, userID string) (*models.UserPreferences, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.prefs[userID]; ok {
		copied := *p
		return &copied, nil
	}
	return &models.UserPreferences{UserID: userID}, nil
}

func (m *Memory) SavePreferences(_ context.Context, prefs *models.UserPreferences) error {
	copied := *prefs
	copied.UpdatedAt = m.now()

	m.mu.Lock()
	m.prefs[prefs.UserID] = &copied
	m.mu.Unlock()
	return nil
}

func (m *Memory) Context(_ context.Context, sessionID string) (*models.SessionContext, error) {
	ms, err := m.lookup(sessionID)
	if err != nil {
		return nil, err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.context == nil {
		return nil, nil
	}
	copied := *ms.context
	return &copied, nil
}

func (m *Memory) SaveContext(_ context.Context, sessCtx *models.SessionContext) error {
	ms, err := m.lookup(sessCtx.SessionID)
	if err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	copied := *sessCtx
	copied.UpdatedAt = m.now()
	ms.context = &copied
	return nil
}

func (m *Memory) lookup(sessionID string) (*memSession, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ms, ok := m.sessions[sessionID]
	if !ok {
		return nil, ErrSessionNotFound
	}
	return ms, nil
}

var _ Store = (*Memory)(nil)
