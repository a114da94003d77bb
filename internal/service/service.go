package service

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"time"

	"lockin/internal/auth"
	"lockin/internal/level"
	"lockin/internal/models"
	"lockin/internal/repo"
)

// ErrInvalidCredentials covers both unknown emails and wrong passwords so the
// login path does not leak which one it was.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Store is the persistence surface the service needs. *repo.Repo satisfies
// it; tests swap in an in-memory implementation.
type Store interface {
	UpsertUser(ctx context.Context, email, name, username, passwordHash string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	GetUserByUsername(ctx context.Context, username string) (models.User, error)
	CreateLink(ctx context.Context, user1, user2 string, theme models.Theme) (models.Link, error)
	GetLinkByPair(ctx context.Context, a, b string) (models.Link, error)
	GetLinkByMember(ctx context.Context, email string) (models.Link, error)
	DeleteLinkByMember(ctx context.Context, email string) error
	UpdateLinkTheme(ctx context.Context, email string, theme models.Theme) error
	LogSession(ctx context.Context, email string, duration int, sessionType, name, tag string) (models.Session, bool, error)
	ListRecentSessions(ctx context.Context, email string, limit int) ([]models.Session, error)
	UpsertStats(ctx context.Context, stats models.Stats) error
	GetStats(ctx context.Context, email string) (models.Stats, error)
}

// Result is how expected, user-correctable failures travel back to clients:
// as data, never as errors, so the UI can render the message inline.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type InvitePreview struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// DefaultTheme is attached to every new link until either member changes it.
var DefaultTheme = models.Theme{
	Type:  "video",
	Value: "https://motionbgs.com/media/8/son-goku-ultra-power.mp4",
}

const (
	// historyLimit bounds the per-member fetch in squad views; history is
	// never a full log scan.
	historyLimit = 50
	// analyticsLimit bounds the personal dashboard window.
	analyticsLimit = 500
)

type Service struct {
	Store    Store
	Auth     *auth.Manager
	TokenTTL time.Duration
}

func New(store Store, authManager *auth.Manager) *Service {
	return &Service{Store: store, Auth: authManager, TokenTTL: 30 * 24 * time.Hour}
}

// normalizeUsername fixes the case-sensitivity question once for every
// uniqueness check and lookup.
func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// RegisterUser creates an account or, for an existing email, verifies the
// password and updates name/username in place. Returns a token on success.
func (s *Service) RegisterUser(ctx context.Context, email, name, username, password string) (Result, string, error) {
	username = normalizeUsername(username)

	var passwordHash string
	existing, err := s.Store.GetUserByEmail(ctx, email)
	switch {
	case err == nil:
		if s.Auth.ComparePassword(existing.PasswordHash, password) != nil {
			return Result{Success: false, Message: "Invalid credentials"}, "", nil
		}
		passwordHash = existing.PasswordHash
	case errors.Is(err, repo.ErrNotFound):
		passwordHash, err = s.Auth.HashPassword(password)
		if err != nil {
			return Result{}, "", err
		}
	default:
		return Result{}, "", err
	}

	if _, err := s.Store.UpsertUser(ctx, email, name, username, passwordHash); err != nil {
		if errors.Is(err, repo.ErrUsernameTaken) {
			return Result{Success: false, Message: "Username taken"}, "", nil
		}
		return Result{}, "", err
	}

	token, err := s.Auth.GenerateToken(email, s.TokenTTL)
	if err != nil {
		return Result{}, "", err
	}
	return Result{Success: true}, token, nil
}

func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if s.Auth.ComparePassword(user.PasswordHash, password) != nil {
		return "", ErrInvalidCredentials
	}
	return s.Auth.GenerateToken(email, s.TokenTTL)
}

// GetUser returns nil without error when the email is unknown; absence drives
// the onboarding gate, it is not a failure.
func (s *Service) GetUser(ctx context.Context, email string) (*models.User, error) {
	user, err := s.Store.GetUserByEmail(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ResolveInvite previews an inviter before the invite is accepted. Only the
// public-safe fields leave the server.
func (s *Service) ResolveInvite(ctx context.Context, username string) (*InvitePreview, error) {
	user, err := s.Store.GetUserByUsername(ctx, normalizeUsername(username))
	if errors.Is(err, repo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &InvitePreview{Email: user.Email, Name: user.Name}, nil
}

// AddFriend links the caller with the named user. Linking is unilateral and
// immediate; re-linking an existing pair from either side is an idempotent
// success.
func (s *Service) AddFriend(ctx context.Context, myEmail, friendUsername string) (Result, error) {
	friend, err := s.Store.GetUserByUsername(ctx, normalizeUsername(friendUsername))
	if errors.Is(err, repo.ErrNotFound) {
		return Result{Success: false, Message: "User not found. Check the username."}, nil
	}
	if err != nil {
		return Result{}, err
	}

	if friend.Email == myEmail {
		return Result{Success: false, Message: "You cannot add yourself."}, nil
	}

	if _, err := s.Store.GetLinkByPair(ctx, myEmail, friend.Email); err == nil {
		return Result{Success: true, Message: "Already connected!"}, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return Result{}, err
	}

	if _, err := s.Store.CreateLink(ctx, myEmail, friend.Email, DefaultTheme); err != nil {
		// The other side won the race; same outcome either way.
		if errors.Is(err, repo.ErrLinkExists) {
			return Result{Success: true, Message: "Already connected!"}, nil
		}
		return Result{}, err
	}
	return Result{Success: true}, nil
}

func (s *Service) SyncStats(ctx context.Context, stats models.Stats) error {
	return s.Store.UpsertStats(ctx, stats)
}

func (s *Service) LeaveSpace(ctx context.Context, email string) error {
	return s.Store.DeleteLinkByMember(ctx, email)
}

func (s *Service) UpdateTheme(ctx context.Context, email string, theme models.Theme) error {
	return s.Store.UpdateLinkTheme(ctx, email, theme)
}

// GetSpace resolves the caller's link state. A missing partner presence row
// is projected as offline, never as an error.
func (s *Service) GetSpace(ctx context.Context, email string) (models.Space, error) {
	link, err := s.Store.GetLinkByMember(ctx, email)
	if errors.Is(err, repo.ErrNotFound) {
		return models.Space{Status: "solo"}, nil
	}
	if err != nil {
		return models.Space{}, err
	}

	partnerEmail := link.User1
	if partnerEmail == email {
		partnerEmail = link.User2
	}

	partner, err := s.Store.GetStats(ctx, partnerEmail)
	if errors.Is(err, repo.ErrNotFound) {
		partner = models.Stats{Email: partnerEmail, Status: "Offline", Minutes: 0, Song: ""}
	} else if err != nil {
		return models.Space{}, err
	}
	partner.Email = partnerEmail

	theme := link.Theme
	return models.Space{Status: "linked", Theme: &theme, Partner: &partner}, nil
}

// LogSession records a completed interval and folds it into the owner's
// stored totals. Sub-minute durations count as one minute.
func (s *Service) LogSession(ctx context.Context, email string, duration int, sessionType, name, tag string) error {
	if duration < 1 {
		duration = 1
	}
	if sessionType == "" {
		sessionType = "Focus"
	}
	_, applied, err := s.Store.LogSession(ctx, email, duration, sessionType, name, tag)
	if err != nil {
		return err
	}
	if !applied {
		// Session row committed but there was no user row to fold totals
		// into. Surface the inconsistency instead of dropping it silently.
		log.Printf("logSession: session recorded for unknown user %s; totals not updated", email)
	}
	return nil
}

// GetSquadronStats aggregates level and history across the caller's squad
// (self plus partner, never more than two members).
func (s *Service) GetSquadronStats(ctx context.Context, email string) (models.SquadronStats, error) {
	emails := []string{email}
	link, err := s.Store.GetLinkByMember(ctx, email)
	if err == nil {
		partner := link.User1
		if partner == email {
			partner = link.User2
		}
		emails = append(emails, partner)
	} else if !errors.Is(err, repo.ErrNotFound) {
		return models.SquadronStats{}, err
	}

	stats := models.SquadronStats{Members: []models.SquadMember{}, History: []models.SessionEntry{}}
	var batches [][]models.Session
	for _, member := range emails {
		user, err := s.Store.GetUserByEmail(ctx, member)
		if err == nil {
			stats.Members = append(stats.Members, models.SquadMember{
				Email:        user.Email,
				Name:         user.Name,
				Level:        user.Level,
				TotalMinutes: user.TotalMinutes,
			})
			stats.SquadTotalMinutes += user.TotalMinutes
		} else if !errors.Is(err, repo.ErrNotFound) {
			return models.SquadronStats{}, err
		}

		sessions, err := s.Store.ListRecentSessions(ctx, member, historyLimit)
		if err != nil {
			return models.SquadronStats{}, err
		}
		batches = append(batches, sessions)
	}

	stats.SquadLevel = level.Level(stats.SquadTotalMinutes)
	stats.ProgressToNext = level.Progress(stats.SquadTotalMinutes, stats.SquadLevel)
	stats.History = mergeHistory(batches)
	return stats, nil
}

// mergeHistory flattens per-member session batches into one timeline, newest
// first.
func mergeHistory(batches [][]models.Session) []models.SessionEntry {
	merged := []models.SessionEntry{}
	for _, batch := range batches {
		for _, s := range batch {
			merged = append(merged, models.SessionEntry{
				UserEmail: s.UserEmail,
				Duration:  s.Duration,
				Type:      s.Type,
				Name:      s.Name,
				Tag:       s.Tag,
				Timestamp: s.TimestampMillis(),
			})
		}
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp > merged[j].Timestamp
	})
	return merged
}

// GetAnalytics summarizes the caller's own recent sessions for the dashboard:
// totals, today's minutes, type split and a 7-day activity series ending
// today.
func (s *Service) GetAnalytics(ctx context.Context, email string) (models.Analytics, error) {
	sessions, err := s.Store.ListRecentSessions(ctx, email, analyticsLimit)
	if err != nil {
		return models.Analytics{}, err
	}

	now := time.Now()
	analytics := models.Analytics{
		TotalSessions: len(sessions),
		TypeCounts:    map[string]int{},
	}
	for _, sess := range sessions {
		analytics.TotalMinutes += int64(sess.Duration)
		analytics.TypeCounts[sess.Type]++
		if sameDay(sess.Timestamp, now) {
			analytics.TodayMinutes += int64(sess.Duration)
		}
	}

	for i := 6; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		var minutes int64
		for _, sess := range sessions {
			if sameDay(sess.Timestamp, day) {
				minutes += int64(sess.Duration)
			}
		}
		analytics.Weekly = append(analytics.Weekly, models.DayActivity{
			Day:     day.Format("Mon"),
			Minutes: minutes,
			IsToday: i == 0,
		})
	}
	return analytics, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
