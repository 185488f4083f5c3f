package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/user/harvester/internal/entity"
	"github.com/user/harvester/internal/repository"
)

// SessionManager obtains and persists per-source cookies.
type SessionManager interface {
	// Obtain runs the login flow. Failures wrap repository.ErrAuthentication.
	Obtain(ctx context.Context, source string) (entity.Cookies, error)
	// Load returns the cached cookies if they are younger than maxAge and complete.
	Load(ctx context.Context, source string, maxAge time.Duration) (entity.Cookies, bool, error)
	Save(ctx context.Context, source string, cookies entity.Cookies) error
	// Ensure loads a fresh session or obtains and saves a new one.
	Ensure(ctx context.Context, source string, maxAge time.Duration) (*entity.Session, error)
}

type sessionManager struct {
	repo       repository.SessionRepository
	auth       repository.Authenticator
	minCookies int
	now        func() time.Time
	logger     *zap.Logger
}

// NewSessionManager creates a SessionManager. auth may be nil for deployments
// that only reuse cookies captured elsewhere.
func NewSessionManager(repo repository.SessionRepository, auth repository.Authenticator, minCookies int, logger *zap.Logger) SessionManager {
	return &sessionManager{
		repo:       repo,
		auth:       auth,
		minCookies: minCookies,
		now:        time.Now,
		logger:     logger,
	}
}

func (m *sessionManager) Obtain(ctx context.Context, source string) (entity.Cookies, error) {
	if m.auth == nil {
		return nil, fmt.Errorf("%w: no login flow for %s", repository.ErrAuthentication, source)
	}
	cookies, err := m.auth.Login(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", repository.ErrAuthentication, source, err)
	}
	if len(cookies) < m.minCookies {
		return nil, fmt.Errorf("%w: %s: got %d cookies, need %d", repository.ErrAuthentication, source, len(cookies), m.minCookies)
	}
	return cookies, nil
}

func (m *sessionManager) Load(ctx context.Context, source string, maxAge time.Duration) (entity.Cookies, bool, error) {
	s, err := m.repo.Load(ctx, source)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load session for %s: %w", source, err)
	}
	if !s.Fresh(m.now(), maxAge) {
		m.logger.Info("cached session expired", zap.String("source", source), zap.Time("saved_at", s.SavedAt))
		return nil, false, nil
	}
	if len(s.Cookies) < m.minCookies {
		m.logger.Info("cached session incomplete", zap.String("source", source), zap.Int("cookies", len(s.Cookies)))
		return nil, false, nil
	}
	return s.Cookies, true, nil
}

func (m *sessionManager) Save(ctx context.Context, source string, cookies entity.Cookies) error {
	return m.repo.Save(ctx, &entity.Session{Source: source, Cookies: cookies, SavedAt: m.now()})
}

func (m *sessionManager) Ensure(ctx context.Context, source string, maxAge time.Duration) (*entity.Session, error) {
	s, err := m.repo.Load(ctx, source)
	switch {
	case errors.Is(err, repository.ErrNotFound):
	case err != nil:
		m.logger.Warn("unreadable session, logging in again", zap.String("source", source), zap.Error(err))
	case s.Fresh(m.now(), maxAge) && len(s.Cookies) >= m.minCookies:
		m.logger.Debug("reusing cached session", zap.String("source", source), zap.Time("saved_at", s.SavedAt))
		return s, nil
	}

	cookies, err := m.Obtain(ctx, source)
	if err != nil {
		return nil, err
	}
	s = &entity.Session{Source: source, Cookies: cookies, SavedAt: m.now()}
	if err := m.repo.Save(ctx, s); err != nil {
		// The cookies are still valid for this run.
		m.logger.Warn("failed to save session", zap.String("source", source), zap.Error(err))
	}
	return s, nil
}
