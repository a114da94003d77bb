package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"lockin/internal/level"
	"lockin/internal/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUsernameTaken = errors.New("username taken")
	ErrLinkExists    = errors.New("link exists")
)

const uniqueViolation = "23505"

type Repo struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo {
	return &Repo{Pool: pool}
}

// UpsertUser inserts a user or, when the email already exists, updates name
// and username in place. The existing password hash is kept on update. A
// username held by a different email fails with ErrUsernameTaken; the unique
// index backstops the in-transaction check against races.
func (r *Repo) UpsertUser(ctx context.Context, email, name, username, passwordHash string) (models.User, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return models.User{}, err
	}
	defer tx.Rollback(ctx)

	var held string
	err = tx.QueryRow(ctx, `SELECT email FROM users WHERE username=$1`, username).Scan(&held)
	if err == nil && held != email {
		return models.User{}, ErrUsernameTaken
	}
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, err
	}

	var u models.User
	err = tx.QueryRow(ctx, `INSERT INTO users (email, name, username, password_hash)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET name=EXCLUDED.name, username=EXCLUDED.username, updated_at=now()
		RETURNING id, email, username, name, password_hash, total_minutes, level, created_at, updated_at`,
		email, name, username, passwordHash).
		Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.PasswordHash, &u.TotalMinutes, &u.Level, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, ErrUsernameTaken
		}
		return models.User{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.User{}, err
	}
	return u, nil
}

func (r *Repo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return r.getUser(ctx, `SELECT id, email, username, name, password_hash, total_minutes, level, created_at, updated_at FROM users WHERE email=$1`, email)
}

func (r *Repo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return r.getUser(ctx, `SELECT id, email, username, name, password_hash, total_minutes, level, created_at, updated_at FROM users WHERE username=$1`, username)
}

func (r *Repo) getUser(ctx context.Context, query, key string) (models.User, error) {
	var u models.User
	err := r.Pool.QueryRow(ctx, query, key).
		Scan(&u.ID, &u.Email, &u.Username, &u.Name, &u.PasswordHash, &u.TotalMinutes, &u.Level, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.User{}, ErrNotFound
	}
	return u, err
}

// CreateLink inserts a link keeping the caller's email order. A concurrent
// insert of the same pair (from either side) trips the pair index and comes
// back as ErrLinkExists so callers can treat it as already-connected.
func (r *Repo) CreateLink(ctx context.Context, user1, user2 string, theme models.Theme) (models.Link, error) {
	var l models.Link
	err := r.Pool.QueryRow(ctx, `INSERT INTO links (user1, user2, theme_type, theme_value)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user1, user2, theme_type, theme_value, created_at`,
		user1, user2, theme.Type, theme.Value).
		Scan(&l.ID, &l.User1, &l.User2, &l.Theme.Type, &l.Theme.Value, &l.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.Link{}, ErrLinkExists
		}
		return models.Link{}, err
	}
	return l, nil
}

// GetLinkByPair matches the pair in either orientation.
func (r *Repo) GetLinkByPair(ctx context.Context, a, b string) (models.Link, error) {
	return r.getLink(ctx, `SELECT id, user1, user2, theme_type, theme_value, created_at FROM links
		WHERE (user1=$1 AND user2=$2) OR (user1=$2 AND user2=$1)`, a, b)
}

// GetLinkByMember finds the link containing email in either slot. Oldest row
// wins so reads stay deterministic even if a user ends up in two links.
func (r *Repo) GetLinkByMember(ctx context.Context, email string) (models.Link, error) {
	return r.getLink(ctx, `SELECT id, user1, user2, theme_type, theme_value, created_at FROM links
		WHERE user1=$1 OR user2=$1 ORDER BY created_at LIMIT 1`, email)
}

func (r *Repo) getLink(ctx context.Context, query string, args ...any) (models.Link, error) {
	var l models.Link
	err := r.Pool.QueryRow(ctx, query, args...).
		Scan(&l.ID, &l.User1, &l.User2, &l.Theme.Type, &l.Theme.Value, &l.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Link{}, ErrNotFound
	}
	return l, err
}

// DeleteLinkByMember removes the whole link, unpairing both sides. Deleting
// when no link exists is a no-op.
func (r *Repo) DeleteLinkByMember(ctx context.Context, email string) error {
	_, err := r.Pool.Exec(ctx, `DELETE FROM links WHERE user1=$1 OR user2=$1`, email)
	return err
}

// UpdateLinkTheme overwrites the shared theme on the caller's link. No-op
// when solo.
func (r *Repo) UpdateLinkTheme(ctx context.Context, email string, theme models.Theme) error {
	_, err := r.Pool.Exec(ctx, `UPDATE links SET theme_type=$1, theme_value=$2 WHERE user1=$3 OR user2=$3`,
		theme.Type, theme.Value, email)
	return err
}

// LogSession appends an immutable session row and folds the duration into the
// owner's stored totals in the same transaction. When no user row exists the
// session still commits and applied comes back false.
func (r *Repo) LogSession(ctx context.Context, email string, duration int, sessionType, name, tag string) (models.Session, bool, error) {
	tx, err := r.Pool.Begin(ctx)
	if err != nil {
		return models.Session{}, false, err
	}
	defer tx.Rollback(ctx)

	s := models.Session{
		ID:        uuid.NewString(),
		UserEmail: email,
		Duration:  duration,
		Type:      sessionType,
		Name:      name,
		Tag:       tag,
	}
	err = tx.QueryRow(ctx, `INSERT INTO sessions (id, user_email, duration_minutes, type, name, tag)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING created_at`,
		s.ID, s.UserEmail, s.Duration, s.Type, s.Name, s.Tag).Scan(&s.Timestamp)
	if err != nil {
		return models.Session{}, false, err
	}

	applied := true
	var newTotal int64
	err = tx.QueryRow(ctx, `UPDATE users SET total_minutes = total_minutes + $1, updated_at=now()
		WHERE email=$2 RETURNING total_minutes`, duration, email).Scan(&newTotal)
	if errors.Is(err, pgx.ErrNoRows) {
		applied = false
	} else if err != nil {
		return models.Session{}, false, err
	} else {
		if _, err := tx.Exec(ctx, `UPDATE users SET level=$1 WHERE email=$2`, level.Level(newTotal), email); err != nil {
			return models.Session{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return models.Session{}, false, err
	}
	return s, applied, nil
}

// ListRecentSessions returns up to limit sessions for one member, newest
// first. History views never scan the full log.
func (r *Repo) ListRecentSessions(ctx context.Context, email string, limit int) ([]models.Session, error) {
	rows, err := r.Pool.Query(ctx, `SELECT id, user_email, duration_minutes, type, name, tag, created_at
		FROM sessions WHERE user_email=$1 ORDER BY created_at DESC LIMIT $2`, email, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		if err := rows.Scan(&s.ID, &s.UserEmail, &s.Duration, &s.Type, &s.Name, &s.Tag, &s.Timestamp); err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *Repo) UpsertStats(ctx context.Context, stats models.Stats) error {
	_, err := r.Pool.Exec(ctx, `INSERT INTO stats (email, minutes, song, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (email) DO UPDATE SET minutes=EXCLUDED.minutes, song=EXCLUDED.song, status=EXCLUDED.status, updated_at=now()`,
		stats.Email, stats.Minutes, stats.Song, stats.Status)
	return err
}

func (r *Repo) GetStats(ctx context.Context, email string) (models.Stats, error) {
	var s models.Stats
	err := r.Pool.QueryRow(ctx, `SELECT email, minutes, song, status FROM stats WHERE email=$1`, email).
		Scan(&s.Email, &s.Minutes, &s.Song, &s.Status)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Stats{}, ErrNotFound
	}
	return s, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
