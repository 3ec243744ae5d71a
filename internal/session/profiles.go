package session

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/irihojaphet/kozi-chatbot/internal/retrieval"
)

// requiredProfileFields are the fields a profile must carry to count as
// complete. Completion percentage is filled/required over this list.
var requiredProfileFields = []string{
	"full_name",
	"phone",
	"location",
	"job_category",
	"experience",
	"education",
}

// SetProfileField stores or replaces one profile field for the user. Blank
// values clear the field.
func (s *Store) SetProfileField(ctx context.Context, userID, field, value string) error {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" {
		return fmt.Errorf("profile field name is required")
	}

	value = strings.TrimSpace(value)
	if value == "" {
		_, err := s.db.ExecContext(ctx,
			`DELETE FROM profile_fields WHERE user_id = ? AND field = ?`, userID, field)
		if err != nil {
			return fmt.Errorf("clear profile field: %w", err)
		}
		return nil
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO profile_fields (user_id, field, value) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, field) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		userID, field, value)
	if err != nil {
		return fmt.Errorf("set profile field: %w", err)
	}

	return nil
}

// ProfileStatus reports how complete the user's profile is against the
// required field list. An unknown user has an empty profile, not an error.
func (s *Store) ProfileStatus(ctx context.Context, userID string) (*retrieval.ProfileStatus, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM profile_fields WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	defer rows.Close()

	filled := make(map[string]string)
	for rows.Next() {
		var field, value string
		if err := rows.Scan(&field, &value); err != nil {
			return nil, fmt.Errorf("scan profile field: %w", err)
		}
		filled[field] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	status := &retrieval.ProfileStatus{ProfileData: filled}
	have := 0
	for _, field := range requiredProfileFields {
		if _, ok := filled[field]; ok {
			have++
			continue
		}
		status.MissingFields = append(status.MissingFields, field)
	}
	status.CompletionPercentage = float64(have) / float64(len(requiredProfileFields)) * 100

	return status, nil
}

// ProfileField returns one stored field value, or "" when unset.
func (s *Store) ProfileField(ctx context.Context, userID, field string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM profile_fields WHERE user_id = ? AND field = ?`,
		userID, strings.ToLower(strings.TrimSpace(field))).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load profile field: %w", err)
	}

	return value, nil
}
