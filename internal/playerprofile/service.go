package playerprofile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Service resolves the profile for a logging-in player.
type Service interface {
	Resolve(ctx context.Context, username string) (*Profile, error)
}

type service struct {
	store   Store
	timeout time.Duration
	logger  *slog.Logger
}

// NewService wraps store. A non-zero timeout bounds each Resolve call.
func NewService(store Store, timeout time.Duration, logger *slog.Logger) Service {
	return &service{store: store, timeout: timeout, logger: logger}
}

// Resolve returns the stored profile for username, creating a default one the first time
// the name is seen.
func (s *service) Resolve(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, errors.New("username is required")
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	p, err := s.store.GetByName(ctx, username)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, ErrProfileNotFound) {
		return nil, fmt.Errorf("get profile %q: %w", username, err)
	}

	p, err = s.store.CreateDefault(ctx, username)
	if err != nil {
		return nil, fmt.Errorf("create profile %q: %w", username, err)
	}
	s.logger.Info("Created default profile", "username", username)
	return p, nil
}
