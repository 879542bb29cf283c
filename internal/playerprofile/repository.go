package playerprofile

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/lib/pq"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
)

// Default values for a freshly created profile.
const (
	DefaultRating = 1000
	DefaultWins   = 0
)

// Profile is the persisted part of a player, keyed by username.
type Profile struct {
	Username string
	Rating   int
	Wins     int
}

// Store is the lookup-and-upsert contract the relay server needs from profile storage.
type Store interface {
	GetByName(ctx context.Context, username string) (*Profile, error)
	CreateDefault(ctx context.Context, username string) (*Profile, error)
}

type postgresRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewRepository(db *sql.DB, logger *slog.Logger) Store {
	return &postgresRepository{db: db, logger: logger}
}

// GetByName retrieves a profile by username.
func (r *postgresRepository) GetByName(ctx context.Context, username string) (*Profile, error) {
	query := `
		SELECT username, rating, wins
		FROM profiles
		WHERE username = $1;
	`
	var p Profile
	err := r.db.QueryRowContext(ctx, query, username).Scan(&p.Username, &p.Rating, &p.Wins)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		r.logError("Failed to get profile from database", username, err)
		return nil, err
	}
	return &p, nil
}

// CreateDefault inserts a profile with default stats. Two logins racing on the same new
// name both get the row that won.
func (r *postgresRepository) CreateDefault(ctx context.Context, username string) (*Profile, error) {
	query := `
		INSERT INTO profiles (username, rating, wins)
		VALUES ($1, $2, $3)
		ON CONFLICT (username) DO UPDATE SET username = EXCLUDED.username
		RETURNING username, rating, wins;
	`
	var p Profile
	err := r.db.QueryRowContext(ctx, query, username, DefaultRating, DefaultWins).Scan(&p.Username, &p.Rating, &p.Wins)
	if err != nil {
		r.logError("Failed to create profile in database", username, err)
		return nil, err
	}
	return &p, nil
}

func (r *postgresRepository) logError(msg, username string, err error) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		r.logger.Error(msg, "username", username, "code", pqErr.Code.Name(), "error", err)
		return
	}
	r.logger.Error(msg, "username", username, "error", err)
}
