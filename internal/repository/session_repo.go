package repository

import (
	"context"

	"github.com/user/harvester/internal/entity"
)

// SessionRepository persists per-source cookies.
type SessionRepository interface {
	// Load returns ErrNotFound when no session was saved for source.
	Load(ctx context.Context, source string) (*entity.Session, error)
	Save(ctx context.Context, session *entity.Session) error
}

// Authenticator drives a scripted login and returns the resulting cookies.
type Authenticator interface {
	Login(ctx context.Context, source string) (entity.Cookies, error)
}
