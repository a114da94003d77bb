package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"lockin/internal/models"
)

func setupTestRepo(t *testing.T) (*Repo, func()) {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		t.Skip("DATABASE_URL not set")
	}
	ctx := context.Background()
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, fmt.Sprintf("SET search_path TO %s", schema))
		return err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err = pool.Exec(ctx, fmt.Sprintf("CREATE SCHEMA %s", schema))
	if err != nil {
		pool.Close()
		t.Fatalf("create schema: %v", err)
	}
	if err := createTestTables(ctx, pool); err != nil {
		pool.Close()
		t.Fatalf("create tables: %v", err)
	}
	repo := New(pool)
	return repo, func() {
		_, _ = pool.Exec(ctx, fmt.Sprintf("DROP SCHEMA %s CASCADE", schema))
		pool.Close()
	}
}

func createTestTables(ctx context.Context, pool *pgxpool.Pool) error {
	queries := []string{
		`CREATE TABLE users (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), email text NOT NULL, username text NOT NULL, name text NOT NULL DEFAULT '', password_hash text NOT NULL DEFAULT '', total_minutes bigint NOT NULL DEFAULT 0 CHECK (total_minutes >= 0), level int NOT NULL DEFAULT 1, created_at timestamptz NOT NULL DEFAULT now(), updated_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE UNIQUE INDEX test_users_email_key ON users (email)`,
		`CREATE UNIQUE INDEX test_users_username_key ON users (username)`,
		`CREATE TABLE links (id uuid PRIMARY KEY DEFAULT gen_random_uuid(), user1 text NOT NULL, user2 text NOT NULL, theme_type text NOT NULL, theme_value text NOT NULL, created_at timestamptz NOT NULL DEFAULT now(), CHECK (user1 <> user2))`,
		`CREATE UNIQUE INDEX test_links_pair_key ON links (LEAST(user1, user2), GREATEST(user1, user2))`,
		`CREATE TABLE sessions (id uuid PRIMARY KEY, user_email text NOT NULL, duration_minutes int NOT NULL CHECK (duration_minutes >= 1), type text NOT NULL, name text NOT NULL DEFAULT '', tag text NOT NULL DEFAULT '', created_at timestamptz NOT NULL DEFAULT now())`,
		`CREATE TABLE stats (email text PRIMARY KEY, minutes int NOT NULL DEFAULT 0, song text NOT NULL DEFAULT '', status text NOT NULL DEFAULT 'Offline', updated_at timestamptz NOT NULL DEFAULT now())`,
	}
	for _, query := range queries {
		if _, err := pool.Exec(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func TestUpsertUserUniquenessAndUpdate(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.UpsertUser(ctx, "a@b.com", "Alice", "alice", "hash1"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	if _, err := repo.UpsertUser(ctx, "c@d.com", "Carol", "alice", "hash2"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}

	u, err := repo.UpsertUser(ctx, "a@b.com", "Alicia", "alicia", "ignored")
	if err != nil {
		t.Fatalf("re-register: %v", err)
	}
	if u.Name != "Alicia" || u.Username != "alicia" {
		t.Fatalf("in-place update wrong: %+v", u)
	}
	if u.PasswordHash != "hash1" {
		t.Fatalf("password hash must survive re-registration, got %q", u.PasswordHash)
	}

	var count int
	if err := repo.Pool.QueryRow(ctx, `SELECT count(*) FROM users`).Scan(&count); err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected one user row, got %d", count)
	}
}

func TestLinkEitherDirection(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()
	theme := models.Theme{Type: "solid", Value: "#000"}

	if _, err := repo.CreateLink(ctx, "a@b.com", "c@d.com", theme); err != nil {
		t.Fatalf("create link: %v", err)
	}

	// The reversed pair is the same link.
	if _, err := repo.GetLinkByPair(ctx, "c@d.com", "a@b.com"); err != nil {
		t.Fatalf("reversed pair lookup: %v", err)
	}
	if _, err := repo.CreateLink(ctx, "c@d.com", "a@b.com", theme); !errors.Is(err, ErrLinkExists) {
		t.Fatalf("expected ErrLinkExists on reversed insert, got %v", err)
	}

	for _, email := range []string{"a@b.com", "c@d.com"} {
		link, err := repo.GetLinkByMember(ctx, email)
		if err != nil {
			t.Fatalf("member lookup %s: %v", email, err)
		}
		if link.User1 != "a@b.com" || link.User2 != "c@d.com" {
			t.Fatalf("unexpected link %+v", link)
		}
	}

	if err := repo.UpdateLinkTheme(ctx, "c@d.com", models.Theme{Type: "video", Value: "v"}); err != nil {
		t.Fatalf("update theme: %v", err)
	}
	link, err := repo.GetLinkByMember(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("member lookup: %v", err)
	}
	if link.Theme.Type != "video" || link.Theme.Value != "v" {
		t.Fatalf("theme not shared: %+v", link.Theme)
	}

	// Either member leaving removes the whole link.
	if err := repo.DeleteLinkByMember(ctx, "c@d.com"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetLinkByMember(ctx, "a@b.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after unlink, got %v", err)
	}
	// Deleting again is a no-op.
	if err := repo.DeleteLinkByMember(ctx, "c@d.com"); err != nil {
		t.Fatalf("second delete: %v", err)
	}
}

func TestLogSessionUpdatesTotalsAndLevel(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.UpsertUser(ctx, "a@b.com", "Alice", "alice", "h"); err != nil {
		t.Fatalf("user: %v", err)
	}

	first, applied, err := repo.LogSession(ctx, "a@b.com", 25, "Focus", "Deep work", "study")
	if err != nil || !applied {
		t.Fatalf("first log: applied=%v err=%v", applied, err)
	}
	if _, applied, err = repo.LogSession(ctx, "a@b.com", 75, "Focus", "", ""); err != nil || !applied {
		t.Fatalf("second log: applied=%v err=%v", applied, err)
	}

	u, err := repo.GetUserByEmail(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.TotalMinutes != 100 || u.Level != 6 {
		t.Fatalf("expected total=100 level=6, got total=%d level=%d", u.TotalMinutes, u.Level)
	}

	// The earlier session row is untouched by later writes.
	sessions, err := repo.ListRecentSessions(ctx, "a@b.com", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 2 {
		t.Fatalf("expected 2 sessions, got %d", len(sessions))
	}
	oldest := sessions[len(sessions)-1]
	if oldest.ID != first.ID || oldest.Duration != 25 || !oldest.Timestamp.Equal(first.Timestamp) {
		t.Fatalf("first session mutated: %+v vs %+v", oldest, first)
	}
}

func TestLogSessionUnknownUser(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	_, applied, err := repo.LogSession(ctx, "ghost@b.com", 30, "Stopwatch", "", "")
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	if applied {
		t.Fatalf("no user row exists, totals must not apply")
	}
	sessions, err := repo.ListRecentSessions(ctx, "ghost@b.com", 10)
	if err != nil || len(sessions) != 1 {
		t.Fatalf("session must still be recorded: %v %d", err, len(sessions))
	}
}

func TestListRecentSessionsBounded(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if _, _, err := repo.LogSession(ctx, "a@b.com", i+1, "Focus", "", ""); err != nil {
			t.Fatalf("log %d: %v", i, err)
		}
	}
	sessions, err := repo.ListRecentSessions(ctx, "a@b.com", 3)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sessions) != 3 {
		t.Fatalf("expected 3, got %d", len(sessions))
	}
	for i := 1; i < len(sessions); i++ {
		if sessions[i-1].Timestamp.Before(sessions[i].Timestamp) {
			t.Fatalf("not descending at %d", i)
		}
	}
}

func TestUpsertStats(t *testing.T) {
	repo, cleanup := setupTestRepo(t)
	defer cleanup()
	ctx := context.Background()

	if _, err := repo.GetStats(ctx, "a@b.com"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := repo.UpsertStats(ctx, models.Stats{Email: "a@b.com", Minutes: 5, Song: "lofi", Status: "Focusing"}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := repo.UpsertStats(ctx, models.Stats{Email: "a@b.com", Minutes: 6, Song: "Paused", Status: "Idle"}); err != nil {
		t.Fatalf("update: %v", err)
	}

	s, err := repo.GetStats(ctx, "a@b.com")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if s.Minutes != 6 || s.Song != "Paused" || s.Status != "Idle" {
		t.Fatalf("upsert wrong: %+v", s)
	}

	var count int
	if err := repo.Pool.QueryRow(ctx, `SELECT count(*) FROM stats`).Scan(&count); err != nil || count != 1 {
		t.Fatalf("expected one stats row, got %d (%v)", count, err)
	}
}
