package playerprofile

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
)

type sqliteRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteRepository stores profiles in a local SQLite file opened by
// database.NewSQLiteDB.
func NewSQLiteRepository(db *sql.DB, logger *slog.Logger) Store {
	return &sqliteRepository{db: db, logger: logger}
}

func (r *sqliteRepository) GetByName(ctx context.Context, username string) (*Profile, error) {
	var p Profile
	err := r.db.QueryRowContext(ctx,
		`SELECT username, rating, wins FROM profiles WHERE username = ?`, username,
	).Scan(&p.Username, &p.Rating, &p.Wins)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		r.logger.Error("Failed to get profile from sqlite", "username", username, "error", err)
		return nil, err
	}
	return &p, nil
}

// CreateDefault inserts the default row unless one exists, then reads back whatever is
// stored.
func (r *sqliteRepository) CreateDefault(ctx context.Context, username string) (*Profile, error) {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO profiles (username, rating, wins) VALUES (?, ?, ?) ON CONFLICT(username) DO NOTHING`,
		username, DefaultRating, DefaultWins)
	if err != nil {
		r.logger.Error("Failed to create profile in sqlite", "username", username, "error", err)
		return nil, err
	}
	return r.GetByName(ctx, username)
}
