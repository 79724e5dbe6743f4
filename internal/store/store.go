package store

import (
	"context"

	"github.com/me/kthreads/pkg/model"
)

// Store defines the persistence layer for recorded kernel sessions.
type Store interface {
	// Session CRUD
	CreateSession(ctx context.Context, sess *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListSessions(ctx context.Context, opts model.ListOptions) ([]*model.Session, int, error)
	UpdateSession(ctx context.Context, sess *model.Session) error
	DeleteSession(ctx context.Context, id string) error

	// Trace data
	AppendEvents(ctx context.Context, sessionID string, events []model.Event) error
	ListEvents(ctx context.Context, sessionID string, opts model.ListOptions) ([]model.Event, int, error)
	SaveThreads(ctx context.Context, sessionID string, threads []model.ThreadInfo) error
	ListThreads(ctx context.Context, sessionID string) ([]model.ThreadInfo, error)

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}
