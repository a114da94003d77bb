package models

import "time"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Username     string    `json:"username"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	TotalMinutes int64     `json:"totalMinutes"`
	Level        int       `json:"level"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Theme is the visual background shared by both sides of a link.
type Theme struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Link pairs two users into a shared space. User1/User2 keep the order the
// initiating call supplied; lookups must match either slot.
type Link struct {
	ID        string    `json:"id"`
	User1     string    `json:"user1"`
	User2     string    `json:"user2"`
	Theme     Theme     `json:"theme"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one completed focus or stopwatch interval. Rows are immutable
// once written.
type Session struct {
	ID        string    `json:"id"`
	UserEmail string    `json:"userEmail"`
	Duration  int       `json:"duration"` // minutes
	Type      string    `json:"type"`
	Name      string    `json:"name,omitempty"`
	Tag       string    `json:"tag,omitempty"`
	Timestamp time.Time `json:"-"`
}

// TimestampMillis is the epoch ordering value clients sort history by.
func (s Session) TimestampMillis() int64 {
	return s.Timestamp.UnixMilli()
}

// Stats is the ephemeral presence record, upserted on every client heartbeat.
// Distinct from durable Session history.
type Stats struct {
	Email   string `json:"email"`
	Minutes int    `json:"minutes"`
	Song    string `json:"song"`
	Status  string `json:"status"`
}

// Space is the caller's view of their link state. Partner and Theme are nil
// when solo.
type Space struct {
	Status  string `json:"status"` // "solo" or "linked"
	Theme   *Theme `json:"theme"`
	Partner *Stats `json:"partner"`
}

type SquadMember struct {
	Email        string `json:"email"`
	Name         string `json:"name"`
	Level        int    `json:"level"`
	TotalMinutes int64  `json:"totalMinutes"`
}

type SessionEntry struct {
	UserEmail string `json:"userEmail"`
	Duration  int    `json:"duration"`
	Type      string `json:"type"`
	Name      string `json:"name,omitempty"`
	Tag       string `json:"tag,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type SquadronStats struct {
	SquadLevel        int            `json:"squadLevel"`
	SquadTotalMinutes int64          `json:"squadTotalMinutes"`
	ProgressToNext    float64        `json:"progressToNext"`
	Members           []SquadMember  `json:"members"`
	History           []SessionEntry `json:"history"`
}

type DayActivity struct {
	Day     string `json:"day"` // short weekday name
	Minutes int64  `json:"minutes"`
	IsToday bool   `json:"isToday"`
}

// Analytics summarizes the caller's own recent sessions, mirroring what the
// dashboard renders.
type Analytics struct {
	TotalMinutes  int64          `json:"totalMinutes"`
	TotalSessions int            `json:"totalSessions"`
	TodayMinutes  int64          `json:"todayMinutes"`
	TypeCounts    map[string]int `json:"typeCounts"`
	Weekly        []DayActivity  `json:"weekly"`
}
