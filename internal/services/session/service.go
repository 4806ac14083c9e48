package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"

	"github.com/quizbattle/quizbattle-go/internal/dependencies/clock"
	"github.com/quizbattle/quizbattle-go/internal/model"
	"github.com/quizbattle/quizbattle-go/internal/store"
)

// Config holds configuration for the session registry
type Config struct {
	// MaxConnectionsPerUser bounds concurrent connections per user
	MaxConnectionsPerUser int
}

// DefaultConfig returns default session configuration
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerUser: 1,
	}
}

// Service validates connection tokens and enforces per-user connection
// limits. Credential issuance lives in an external service; tokens here
// are opaque keys resolved against the fast store.
type Service struct {
	store  store.Store
	clock  clock.Clock
	cfg    Config
	logger *slog.Logger
}

// New creates a new session registry
func New(store store.Store, clock clock.Clock, cfg Config, logger *slog.Logger) *Service {
	if cfg.MaxConnectionsPerUser <= 0 {
		cfg.MaxConnectionsPerUser = DefaultConfig().MaxConnectionsPerUser
	}
	return &Service{
		store:  store,
		clock:  clock,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "session")),
	}
}

// Authenticate resolves a token to a session. Absent, unknown, and
// expired tokens all come back as ErrUnauthorized; expiry is the
// store's TTL, so an expired token is simply unknown.
func (s *Service) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.ErrUnauthorized
	}
	return s.store.GetSession(ctx, token)
}

// TrackConnection atomically counts a new connection for the user,
// returning ErrMaxConnections when the user is already at the limit.
func (s *Service) TrackConnection(ctx context.Context, userID model.UserID) error {
	ok, err := s.store.TrackConnection(ctx, userID, s.cfg.MaxConnectionsPerUser)
	if err != nil {
		return err
	}
	if !ok {
		s.logger.Warn("connection limit reached", slog.String("user_id", string(userID)))
		return model.ErrMaxConnections
	}
	return nil
}

// ReleaseConnection releases one connection slot for the user.
// Releasing an already-released connection is a no-op.
func (s *Service) ReleaseConnection(ctx context.Context, userID model.UserID) {
	if err := s.store.ReleaseConnection(ctx, userID); err != nil {
		// Best-effort: the counter key self-expires if this fails
		s.logger.Warn("failed to release connection",
			slog.String("user_id", string(userID)),
			slog.String("error", err.Error()))
	}
}

// Create issues a session for a user with the given device context.
// Used by tooling and tests; production tokens come from the external
// credential service writing to the same store.
func (s *Service) Create(ctx context.Context, userID model.UserID, deviceID, ipAddress, userAgent string) (*model.Session, error) {
	session := &model.Session{
		UserID:    userID,
		Token:     generateToken(),
		CreatedAt: s.clock.Now(),
		DeviceID:  deviceID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
	}

	if err := s.store.SaveSession(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}

// Destroy invalidates a session token
func (s *Service) Destroy(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// generateToken returns a 64-char hex token
func generateToken() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
