// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"

	"github.com/samueljohnsiby/acharya-backend/internal/domain"
)

// Repository defines the interface for persisting chat history.
type Repository interface {
	// AppendRecord durably appends one chat record under its subject.
	AppendRecord(ctx context.Context, record domain.ChatRecord) error

	// History retrieves a subject's persisted records in append order.
	History(ctx context.Context, subjectID string) ([]domain.ChatRecord, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
