// Package store persists studies, interview records and settings in
// Postgres. The schema is applied externally (see schema.sql); there is no
// automatic migration runner at startup.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("store: not found")

type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Criterion is one screening criterion of a study.
type Criterion struct {
	ID               string `json:"id"`
	Text             string `json:"text"`
	Question         string `json:"question"`
	ExpectedResponse string `json:"expected_response"`
	Priority         string `json:"priority"` // "high" or "low"
}

// Study is one screening study in the catalog.
type Study struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description,omitempty"`
	Criteria    []Criterion `json:"criteria"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Interview is one screening attempt, keyed by participant ID.
type Interview struct {
	ParticipantID string     `json:"participant_id"`
	SessionID     string     `json:"session_id"`
	StudyID       string     `json:"study_id"`
	Status        string     `json:"status"` // Completed, In Progress, Incomplete, Paused, Abandoned, Interrupted
	ExitReason    *string    `json:"exit_reason,omitempty"`
	MessageCount  int        `json:"message_count"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}

// ConversationMessage is one transcript entry as exported to reviewers.
type ConversationMessage struct {
	ID        string `json:"id"`
	Type      string `json:"type"` // "agent" or "user"
	Content   string `json:"content"`
	Timestamp string `json:"timestamp"`
}

// AudioSettings is the participant-facing voice configuration. Opaque to the
// conversation engine; it only changes what audio the server synthesizes.
type AudioSettings struct {
	OutputLanguage string  `json:"output_language"`
	Voice          string  `json:"voice"`
	Speed          float64 `json:"speed"`
}

// ListStudies returns the study catalog, newest first.
func (s *Store) ListStudies(ctx context.Context) ([]Study, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, title, description, criteria, created_at, updated_at
		FROM studies
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var studies []Study
	for rows.Next() {
		st, err := scanStudy(rows)
		if err != nil {
			return nil, err
		}
		studies = append(studies, *st)
	}
	return studies, rows.Err()
}

// GetStudy returns one study by ID.
func (s *Store) GetStudy(ctx context.Context, id string) (*Study, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, title, description, criteria, created_at, updated_at
		FROM studies
		WHERE id = $1
	`, id)
	st, err := scanStudy(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return st, err
}

// UpsertStudy inserts or replaces a study definition.
func (s *Store) UpsertStudy(ctx context.Context, st Study) error {
	criteriaJSON, err := json.Marshal(st.Criteria)
	if err != nil {
		return fmt.Errorf("marshal criteria: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO studies (id, title, description, criteria)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			criteria = EXCLUDED.criteria,
			updated_at = NOW()
	`, st.ID, st.Title, st.Description, criteriaJSON)
	return err
}

// DeleteStudy removes a study from the catalog. Interview records referencing
// it are kept for audit.
func (s *Store) DeleteStudy(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM studies WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

type studyRow interface {
	Scan(dest ...any) error
}

func scanStudy(row studyRow) (*Study, error) {
	var st Study
	var criteriaJSON []byte
	if err := row.Scan(&st.ID, &st.Title, &st.Description, &criteriaJSON, &st.CreatedAt, &st.UpdatedAt); err != nil {
		return nil, err
	}
	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &st.Criteria); err != nil {
			return nil, fmt.Errorf("unmarshal criteria: %w", err)
		}
	}
	return &st, nil
}

// SaveInterview upserts the interview record and its conversation export.
// Called both for completed interviews and for incomplete saves (abandon,
// refresh, connection loss).
func (s *Store) SaveInterview(ctx context.Context, iv Interview, conversation []ConversationMessage) error {
	convJSON, err := json.Marshal(conversation)
	if err != nil {
		return fmt.Errorf("marshal conversation: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO interviews (participant_id, session_id, study_id, status, exit_reason, message_count, conversation, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (participant_id) DO UPDATE SET
			session_id = EXCLUDED.session_id,
			status = EXCLUDED.status,
			exit_reason = EXCLUDED.exit_reason,
			message_count = EXCLUDED.message_count,
			conversation = EXCLUDED.conversation,
			completed_at = EXCLUDED.completed_at
	`, iv.ParticipantID, iv.SessionID, iv.StudyID, iv.Status, iv.ExitReason, iv.MessageCount, convJSON, iv.StartedAt, iv.CompletedAt)
	return err
}

// SaveEvaluation stores the eligibility outcome for a participant.
func (s *Store) SaveEvaluation(ctx context.Context, participantID string, evaluation any) error {
	evalJSON, err := json.Marshal(evaluation)
	if err != nil {
		return fmt.Errorf("marshal evaluation: %w", err)
	}
	_, err = s.db.Exec(ctx, `
		UPDATE interviews SET evaluation = $2 WHERE participant_id = $1
	`, participantID, evalJSON)
	return err
}

// ListInterviews returns interview records, newest first.
func (s *Store) ListInterviews(ctx context.Context) ([]Interview, error) {
	rows, err := s.db.Query(ctx, `
		SELECT participant_id, session_id, study_id, status, exit_reason, message_count, started_at, completed_at
		FROM interviews
		ORDER BY started_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Interview
	for rows.Next() {
		var iv Interview
		if err := rows.Scan(&iv.ParticipantID, &iv.SessionID, &iv.StudyID, &iv.Status,
			&iv.ExitReason, &iv.MessageCount, &iv.StartedAt, &iv.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// InterviewDetail bundles the record with its stored exports.
type InterviewDetail struct {
	Interview
	Conversation []ConversationMessage `json:"conversation"`
	Evaluation   json.RawMessage       `json:"evaluation,omitempty"`
}

// GetInterview returns a full interview record with conversation and
// evaluation payloads.
func (s *Store) GetInterview(ctx context.Context, participantID string) (*InterviewDetail, error) {
	var d InterviewDetail
	var convJSON []byte
	var evalJSON []byte
	err := s.db.QueryRow(ctx, `
		SELECT participant_id, session_id, study_id, status, exit_reason, message_count, conversation, evaluation, started_at, completed_at
		FROM interviews
		WHERE participant_id = $1
	`, participantID).Scan(&d.ParticipantID, &d.SessionID, &d.StudyID, &d.Status,
		&d.ExitReason, &d.MessageCount, &convJSON, &evalJSON, &d.StartedAt, &d.CompletedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(convJSON) > 0 {
		if err := json.Unmarshal(convJSON, &d.Conversation); err != nil {
			return nil, fmt.Errorf("unmarshal conversation: %w", err)
		}
	}
	if len(evalJSON) > 0 {
		d.Evaluation = json.RawMessage(evalJSON)
	}
	return &d, nil
}

// DeleteInterview removes an interview record and its exports.
func (s *Store) DeleteInterview(ctx context.Context, participantID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM interviews WHERE participant_id = $1`, participantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkStaleInterviews flags interviews still "In Progress" past the cutoff
// as Abandoned. Returns the affected participant IDs.
func (s *Store) MarkStaleInterviews(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := s.db.Query(ctx, `
		UPDATE interviews
		SET status = 'Abandoned', exit_reason = 'session_timeout'
		WHERE status = 'In Progress' AND started_at < $1
		RETURNING participant_id
	`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetAudioSettings returns the stored voice settings, or defaults when none
// were saved yet.
func (s *Store) GetAudioSettings(ctx context.Context) (*AudioSettings, error) {
	var as AudioSettings
	err := s.db.QueryRow(ctx, `
		SELECT output_language, voice, speed FROM audio_settings WHERE id = 1
	`).Scan(&as.OutputLanguage, &as.Voice, &as.Speed)
	if errors.Is(err, pgx.ErrNoRows) {
		return &AudioSettings{OutputLanguage: "english", Voice: "nova", Speed: 1.0}, nil
	}
	if err != nil {
		return nil, err
	}
	return &as, nil
}

// SaveAudioSettings upserts the single voice settings row.
func (s *Store) SaveAudioSettings(ctx context.Context, as AudioSettings) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO audio_settings (id, output_language, voice, speed)
		VALUES (1, $1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			output_language = EXCLUDED.output_language,
			voice = EXCLUDED.voice,
			speed = EXCLUDED.speed,
			updated_at = NOW()
	`, as.OutputLanguage, as.Voice, as.Speed)
	return err
}
