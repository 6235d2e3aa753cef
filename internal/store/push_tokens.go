package store

import (
	"context"
	"time"
)

// CoordinatorPushToken is a device push token belonging to a study
// coordinator who wants completion notifications.
type CoordinatorPushToken struct {
	ID        string    `json:"id"`
	Token     string    `json:"token"`
	Platform  string    `json:"platform"` // "ios"
	CreatedAt time.Time `json:"created_at"`
}

// RegisterPushToken registers or refreshes a coordinator device token.
func (s *Store) RegisterPushToken(ctx context.Context, token, platform string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO coordinator_push_tokens (token, platform)
		VALUES ($1, $2)
		ON CONFLICT (token) DO UPDATE SET
			platform = EXCLUDED.platform,
			created_at = NOW()
	`, token, platform)
	return err
}

// UnregisterPushToken removes a coordinator device token.
func (s *Store) UnregisterPushToken(ctx context.Context, token string) error {
	_, err := s.db.Exec(ctx, `
		DELETE FROM coordinator_push_tokens WHERE token = $1
	`, token)
	return err
}

// ListPushTokens returns all registered coordinator devices.
func (s *Store) ListPushTokens(ctx context.Context) ([]CoordinatorPushToken, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, token, platform, created_at
		FROM coordinator_push_tokens
		ORDER BY created_at
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tokens []CoordinatorPushToken
	for rows.Next() {
		var tk CoordinatorPushToken
		if err := rows.Scan(&tk.ID, &tk.Token, &tk.Platform, &tk.CreatedAt); err != nil {
			return nil, err
		}
		tokens = append(tokens, tk)
	}
	return tokens, rows.Err()
}
