package domain

import (
	"strings"
	"time"
)

// ConversationID identifies the group chat that hosts a challenge or game.
type ConversationID string

func (c ConversationID) String() string { return string(c) }

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// Opponent returns the other side.
func (c Color) Opponent() Color {
	if c == White {
		return Black
	}
	return White
}

// User is a chat participant. ID is opaque and stable; Name is only for display.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Display returns the best human-readable label for the user.
func (u User) Display() string {
	if n := strings.TrimSpace(u.Name); n != "" {
		return n
	}
	return u.ID
}

// Challenge is a pending invitation between two users of one conversation.
type Challenge struct {
	Challenger User      `json:"challenger"`
	Challenged User      `json:"challenged"`
	IssuedAt   time.Time `json:"issued_at"`
}

// Matches reports whether the challenge was issued by challengerID to challengedID.
func (c *Challenge) Matches(challengerID, challengedID string) bool {
	return c != nil && c.Challenger.ID == challengerID && c.Challenged.ID == challengedID
}

// Expired reports whether the challenge is older than ttl. A non-positive ttl never expires.
func (c *Challenge) Expired(now time.Time, ttl time.Duration) bool {
	if c == nil || ttl <= 0 {
		return false
	}
	return now.Sub(c.IssuedAt) >= ttl
}

// Game is the live state of one conversation's match. The board is rebuilt from
// Moves (UCI, from the standard start position); the side to move is never stored.
type Game struct {
	ID        string    `json:"id"`
	White     User      `json:"white"`
	Black     User      `json:"black"`
	Moves     []string  `json:"moves"`
	StartedAt time.Time `json:"started_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Player returns the user bound to color.
func (g *Game) Player(c Color) User {
	if c == Black {
		return g.Black
	}
	return g.White
}

// Slot is the registry entry of one conversation: empty, a challenge, or a game.
type Slot struct {
	Challenge *Challenge `json:"challenge,omitempty"`
	Game      *Game      `json:"game,omitempty"`
}

// Empty reports whether nothing occupies the slot.
func (s Slot) Empty() bool { return s.Challenge == nil && s.Game == nil }
