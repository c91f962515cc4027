package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/umami-labs/brigade/pkg/config"
	"github.com/umami-labs/brigade/pkg/models"
)

// Postgres is the production Store. Serialization of per-session mutation
// rides on row-level locking; reads are plain snapshots.
type Postgres struct {
	db *sql.DB
}

// NewPostgres wraps an open connection pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) CreateSession(ctx context.Context, ownerID string) (*models.Session, error) {
	sess := &models.Session{
		ID:             uuid.NewString(),
		OwnerID:        ownerID,
		ConversationID: uuid.NewString(),
		ResponseMode:   config.ModeConversation,
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO sessions (session_id, owner_id, conversation_id, response_mode)
		VALUES ($1, $2, $3, $4)
		RETURNING last_active_at, created_at`,
		sess.ID, sess.OwnerID, sess.ConversationID, string(sess.ResponseMode))
	if err := row.Scan(&sess.LastActiveAt, &sess.CreatedAt); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

func (p *Postgres) EnsureSession(ctx context.Context, sessionID, ownerID string) (*models.Session, error) {
	sess, err := p.GetSession(ctx, sessionID)
	switch {
	case err == nil:
		if sess.OwnerID != ownerID {
			return nil, ErrNotOwner
		}
		return sess, nil
	case errors.Is(err, ErrSessionNotFound):
	default:
		return nil, err
	}

	sess = &models.Session{
		ID:             sessionID,
		OwnerID:        ownerID,
		ConversationID: uuid.NewString(),
		ResponseMode:   config.ModeConversation,
	}
	row := p.db.QueryRowContext(ctx, `
		INSERT INTO sessions (session_id, owner_id, conversation_id, response_mode)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING last_active_at, created_at`,
		sess.ID, sess.OwnerID, sess.ConversationID, string(sess.ResponseMode))
	if err := row.Scan(&sess.LastActiveAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Lost a creation race; re-read and re-check ownership.
			return p.EnsureSession(ctx, sessionID, ownerID)
		}
		return nil, fmt.Errorf("ensure session: %w", err)
	}
	return sess, nil
}

func (p *Postgres) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	sess := &models.Session{}
	var mode string
	row := p.db.QueryRowContext(ctx, `
		SELECT session_id, owner_id, conversation_id, title, response_mode, last_active_at, created_at
		FROM sessions WHERE session_id = $1`, sessionID)
	err := row.Scan(&sess.ID, &sess.OwnerID, &sess.ConversationID, &sess.Title,
		&mode, &sess.LastActiveAt, &sess.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	sess.ResponseMode = config.Mode(mode)
	return sess, nil
}

func (p *Postgres) ListSessions(ctx context.Context, ownerID string) ([]*models.Session, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT session_id, owner_id, conversation_id, title, response_mode, last_active_at, created_at
		FROM sessions WHERE owner_id = $1
		ORDER BY last_active_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Session
	for rows.Next() {
		sess := &models.Session{}
		var mode string
		if err := rows.Scan(&sess.ID, &sess.OwnerID, &sess.ConversationID, &sess.Title,
			&mode, &sess.LastActiveAt, &sess.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.ResponseMode = config.Mode(mode)
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (p *Postgres) DeleteSession(ctx context.Context, sessionID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *Postgres) SetResponseMode(ctx context.Context, sessionID string, mode config.Mode) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE sessions SET response_mode = $2 WHERE session_id = $1`,
		sessionID, string(mode))
	if err != nil {
		return fmt.Errorf("set response mode: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (p *Postgres) AppendMessage(ctx context.Context, msg *models.Message) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var conversationID, title string
	row := tx.QueryRowContext(ctx, `
		SELECT conversation_id, title FROM sessions
		WHERE session_id = $1 FOR UPDATE`, msg.SessionID)
	if err := row.Scan(&conversationID, &title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lock session: %w", err)
	}

	var traceJSON any
	if msg.Trace != nil {
		encoded, err := json.Marshal(msg.Trace)
		if err != nil {
			return fmt.Errorf("encode execution trace: %w", err)
		}
		traceJSON = encoded
	}
	row = tx.QueryRowContext(ctx, `
		INSERT INTO messages (session_id, conversation_id, role, content, execution_trace)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		msg.SessionID, conversationID, string(msg.Role), msg.Content, traceJSON)
	if err := row.Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}

	if title == "" && msg.Role == models.RoleUser {
		title = TitleFromMessage(msg.Content)
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET title = $2, last_active_at = now()
		WHERE session_id = $1`, msg.SessionID, title); err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return tx.Commit()
}

func (p *Postgres) Messages(ctx context.Context, sessionID string) ([]*models.Message, error) {
	if _, err := p.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, execution_trace, created_at
		FROM messages WHERE session_id = $1 ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []*models.Message
	for rows.Next() {
		msg := &models.Message{}
		var (
			role      string
			traceJSON []byte
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &role, &msg.Content, &traceJSON, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msg.Role = models.Role(role)
		if len(traceJSON) > 0 {
			if err := json.Unmarshal(traceJSON, &msg.Trace); err != nil {
				return nil, fmt.Errorf("decode execution trace: %w", err)
			}
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

func (p *Postgres) DecayIdleSessions(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := p.db.ExecContext(ctx, `
		DELETE FROM messages WHERE session_id IN (
			SELECT session_id FROM sessions WHERE last_active_at < $1
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("decay idle sessions: %w", err)
	}
	if _, err := p.db.ExecContext(ctx, `
		DELETE FROM session_context WHERE session_id IN (
			SELECT session_id FROM sessions WHERE last_active_at < $1
		)`, cutoff); err != nil {
		return 0, fmt.Errorf("decay idle context: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (p *Postgres) Preferences(ctx context.Context, userID string) (*models.UserPreferences, error) {
	prefs := &models.UserPreferences{UserID: userID}
	var (
		skill         string
		equipmentJSON []byte
		dietaryJSON   []byte
		lastConfirmed sql.NullTime
	)
	row := p.db.QueryRowContext(ctx, `
		SELECT skill_level, skill_confidence, equipment, equipment_confidence,
		       dietary_constraints, dietary_confidence, last_confirmed_at, updated_at
		FROM user_preferences WHERE user_id = $1`, userID)
	err := row.Scan(&skill, &prefs.SkillLevel.Confidence,
		&equipmentJSON, &prefs.Equipment.Confidence,
		&dietaryJSON, &prefs.DietaryConstraints.Confidence,
		&lastConfirmed, &prefs.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.UserPreferences{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preferences: %w", err)
	}

	prefs.SkillLevel.Value = config.SkillLevel(skill)
	if err := json.Unmarshal(equipmentJSON, &prefs.Equipment.Value); err != nil {
		return nil, fmt.Errorf("decode equipment: %w", err)
	}
	if err := json.Unmarshal(dietaryJSON, &prefs.DietaryConstraints.Value); err != nil {
		return nil, fmt.Errorf("decode dietary constraints: %w", err)
	}
	if lastConfirmed.Valid {
		prefs.SkillLevel.LastConfirmedAt = lastConfirmed.Time
		prefs.Equipment.LastConfirmedAt = lastConfirmed.Time
		prefs.DietaryConstraints.LastConfirmedAt = lastConfirmed.Time
	}
	return prefs, nil
}

func (p *Postgres) SavePreferences(ctx context.Context, prefs *models.UserPreferences) error {
	equipmentJSON, err := json.Marshal(orEmpty(prefs.Equipment.Value))
	if err != nil {
		return fmt.Errorf("encode equipment: %w", err)
	}
	dietaryJSON, err := json.Marshal(orEmpty(prefs.DietaryConstraints.Value))
	if err != nil {
		return fmt.Errorf("encode dietary constraints: %w", err)
	}

	lastConfirmed := prefs.SkillLevel.LastConfirmedAt
	for _, t := range []time.Time{prefs.Equipment.LastConfirmedAt, prefs.DietaryConstraints.LastConfirmedAt} {
		if t.After(lastConfirmed) {
			lastConfirmed = t
		}
	}

	_, err = p.db.ExecContext(ctx, `
		INSERT INTO user_preferences
			(user_id, skill_level, skill_confidence, equipment, equipment_confidence,
			 dietary_constraints, dietary_confidence, last_confirmed_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (user_id) DO UPDATE SET
			skill_level = EXCLUDED.skill_level,
			skill_confidence = EXCLUDED.skill_confidence,
			equipment = EXCLUDED.equipment,
			equipment_confidence = EXCLUDED.equipment_confidence,
			dietary_constraints = EXCLUDED.dietary_constraints,
			dietary_confidence = EXCLUDED.dietary_confidence,
			last_confirmed_at = EXCLUDED.last_confirmed_at,
			updated_at = now()`,
		prefs.UserID, string(prefs.SkillLevel.Value), prefs.SkillLevel.Confidence,
		equipmentJSON, prefs.Equipment.Confidence,
		dietaryJSON, prefs.DietaryConstraints.Confidence,
		nullableTime(lastConfirmed))
	if err != nil {
		return fmt.Errorf("save preferences: %w", err)
	}
	return nil
}

func (p *Postgres) Context(ctx context.Context, sessionID string) (*models.SessionContext, error) {
	sessCtx := &models.SessionContext{}
	var ingredientsJSON []byte
	row := p.db.QueryRowContext(ctx, `
		SELECT session_id, current_dish, key_ingredients, technique, updated_at
		FROM session_context WHERE session_id = $1`, sessionID)
	err := row.Scan(&sessCtx.SessionID, &sessCtx.CurrentDish, &ingredientsJSON,
		&sessCtx.Technique, &sessCtx.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get session context: %w", err)
	}
	if err := json.Unmarshal(ingredientsJSON, &sessCtx.KeyIngredients); err != nil {
		return nil, fmt.Errorf("decode key ingredients: %w", err)
	}
	return sessCtx, nil
}

func (p *Postgres) SaveContext(ctx context.Context, sessCtx *models.SessionContext) error {
	ingredientsJSON, err := json.Marshal(orEmpty(sessCtx.KeyIngredients))
	if err != nil {
		return fmt.Errorf("encode key ingredients: %w", err)
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO session_context (session_id, current_dish, key_ingredients, technique, updated_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_id) DO UPDATE SET
			current_dish = EXCLUDED.current_dish,
			key_ingredients = EXCLUDED.key_ingredients,
			technique = EXCLUDED.technique,
			updated_at = now()`,
		sessCtx.SessionID, sessCtx.CurrentDish, ingredientsJSON, sessCtx.Technique)
	if err != nil {
		return fmt.Errorf("save session context: %w", err)
	}
	return nil
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

var _ Store = (*Postgres)(nil)
