package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrDuplicateApplication reports that the (job, user) pair already applied.
var ErrDuplicateApplication = errors.New("application already submitted")

// SaveGeneratedDocument persists a finished generated document (e.g. a CV)
// under the owning user and returns its stable artifact id.
func (s *Store) SaveGeneratedDocument(ctx context.Context, userID string, data map[string]any, templateName string) (string, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, user_id, template, data) VALUES (?, ?, ?, ?)`,
		id, userID, templateName, string(encoded))
	if err != nil {
		return "", fmt.Errorf("store artifact: %w", err)
	}

	s.logger.Info("saved generated document",
		zap.String("artifact_id", id),
		zap.String("user_id", userID),
		zap.String("template", templateName),
	)

	return id, nil
}

// RecordApplication records one application per (job, user) pair. A duplicate
// attempt yields ErrDuplicateApplication so the caller can report it.
func (s *Store) RecordApplication(ctx context.Context, userID, jobID string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO applications (job_id, user_id) VALUES (?, ?)`, jobID, userID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: job %s", ErrDuplicateApplication, jobID)
		}
		return fmt.Errorf("record application: %w", err)
	}

	return nil
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite reports constraint failures only via the message text.
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
