package repository

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/okian/bastion/internal/domain/model"
	"github.com/okian/bastion/pkg/logger"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const (
	sqliteMaxOpenConns = 4
	sqliteBusyTimeout  = 5000
)

// OpenSQLite opens the rating database at path and applies pending
// migrations. Write transactions take the database lock up front so
// concurrent read-modify-write cycles serialize instead of failing late.
func OpenSQLite(ctx context.Context, path string, log logger.Logger) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_txlock=immediate&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on",
		path, sqliteBusyTimeout)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(sqliteMaxOpenConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	log.Info(ctx, "rating database ready", logger.String("path", path))
	return db, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to run goose migrations: %w", err)
	}
	return nil
}

// SQLiteRatingStore persists ratings and their history in SQLite.
type SQLiteRatingStore struct {
	db     *sql.DB
	logger logger.Logger
	now    func() time.Time
}

var _ RatingStore = (*SQLiteRatingStore)(nil)

// NewSQLiteRatingStore wraps a database prepared by OpenSQLite.
func NewSQLiteRatingStore(db *sql.DB, opts ...Option) *SQLiteRatingStore {
	s := &SQLiteRatingStore{
		db:  db,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("repository")
	}
	return s
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRating(ctx context.Context, q queryer, playerID string) (model.PlayerRating, error) {
	var r model.PlayerRating
	err := q.QueryRowContext(ctx,
		`SELECT player_id, mmr, rank, rp, losses_since_promotion, updated_at FROM ratings WHERE player_id = ?`,
		playerID,
	).Scan(&r.PlayerID, &r.MMR, &r.Rank, &r.RP, &r.LossesSincePromotion, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlayerRating{}, fmt.Errorf("player %s: %w", playerID, model.ErrPlayerNotFound)
	}
	if err != nil {
		return model.PlayerRating{}, fmt.Errorf("failed to read rating: %w", err)
	}
	return r, nil
}

// Get returns the stored rating of a player.
func (s *SQLiteRatingStore) Get(ctx context.Context, playerID string) (model.PlayerRating, error) {
	return getRating(ctx, s.db, playerID)
}

// Update applies fn inside an immediate transaction.
func (s *SQLiteRatingStore) Update(ctx context.Context, playerID string, seed model.PlayerRating, fn Mutation) (model.PlayerRating, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return model.PlayerRating{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	cur, err := getRating(ctx, tx, playerID)
	switch {
	case errors.Is(err, model.ErrPlayerNotFound):
		cur = seed
	case err != nil:
		return model.PlayerRating{}, err
	}
	cur.PlayerID = playerID

	next, change, err := fn(cur)
	if err != nil {
		return model.PlayerRating{}, err
	}

	if change.MatchID != "" {
		var n int
		if err := tx.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM rating_history WHERE match_id = ? AND player_id = ?`,
			change.MatchID, playerID,
		).Scan(&n); err != nil {
			return model.PlayerRating{}, fmt.Errorf("failed to check history: %w", err)
		}
		if n > 0 {
			return model.PlayerRating{}, fmt.Errorf("match %s for player %s: %w", change.MatchID, playerID, model.ErrAlreadySettled)
		}
	}
	if change.ID == "" {
		if change.ID, err = gonanoid.New(); err != nil {
			return model.PlayerRating{}, fmt.Errorf("failed to generate nanoid: %w", err)
		}
	}

	now := s.now().UTC()
	next.PlayerID = playerID
	next.UpdatedAt = now
	change.PlayerID = playerID
	change.CreatedAt = now

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO ratings (player_id, mmr, rank, rp, losses_since_promotion, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (player_id) DO UPDATE SET
			mmr = excluded.mmr,
			rank = excluded.rank,
			rp = excluded.rp,
			losses_since_promotion = excluded.losses_since_promotion,
			updated_at = excluded.updated_at`,
		next.PlayerID, next.MMR, next.Rank, next.RP, next.LossesSincePromotion, next.UpdatedAt,
	); err != nil {
		return model.PlayerRating{}, fmt.Errorf("failed to upsert rating: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO rating_history (id, match_id, player_id, delta, mmr, rank, rp, promoted, demoted, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		change.ID, change.MatchID, change.PlayerID, change.Delta, change.MMR, change.Rank, change.RP,
		change.Promoted, change.Demoted, change.CreatedAt,
	); err != nil {
		return model.PlayerRating{}, fmt.Errorf("failed to insert rating history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return model.PlayerRating{}, fmt.Errorf("failed to commit rating: %w", err)
	}
	return next, nil
}

// History returns up to limit changes, newest first. A non-positive limit
// returns everything.
func (s *SQLiteRatingStore) History(ctx context.Context, playerID string, limit int) ([]model.RatingChange, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, match_id, player_id, delta, mmr, rank, rp, promoted, demoted, created_at
		FROM rating_history
		WHERE player_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, playerID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query rating history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RatingChange
	for rows.Next() {
		var c model.RatingChange
		if err := rows.Scan(&c.ID, &c.MatchID, &c.PlayerID, &c.Delta, &c.MMR, &c.Rank, &c.RP,
			&c.Promoted, &c.Demoted, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rating history: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// TopN returns the leaderboard head.
func (s *SQLiteRatingStore) TopN(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		return nil, ErrInvalidLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT player_id, mmr, rank, rp
		FROM ratings
		ORDER BY mmr DESC, player_id ASC
		LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Entry, 0, n)
	for rows.Next() {
		e := Entry{Position: len(out) + 1}
		if err := rows.Scan(&e.PlayerID, &e.MMR, &e.Rank, &e.RP); err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of rated players. Errors are logged and count as zero.
func (s *SQLiteRatingStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM ratings`).Scan(&n); err != nil {
		s.logger.Error(ctx, "failed to count ratings", logger.Error(err))
		return 0
	}
	return n
}
