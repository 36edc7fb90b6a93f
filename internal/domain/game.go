package domain

import (
	"fmt"
	"strings"
	"time"
)

// Status is the lifecycle state of a game.
type Status string

const (
	StatusWaiting    Status = "waiting"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAborted    Status = "aborted"
)

// Result is only meaningful once a game reaches StatusCompleted or
// StatusAborted.
type Result string

const (
	ResultNone     Result = ""
	ResultWhiteWin Result = "white_win"
	ResultBlackWin Result = "black_win"
	ResultDraw     Result = "draw"
	ResultAborted  Result = "aborted"
)

// WinnerColor returns "white" or "black" for decisive results, "" otherwise.
func (r Result) WinnerColor() string {
	switch r {
	case ResultWhiteWin:
		return "white"
	case ResultBlackWin:
		return "black"
	default:
		return ""
	}
}

type TimeControl string

const (
	TimeControlBullet TimeControl = "bullet"
	TimeControlBlitz  TimeControl = "blitz"
	TimeControlRapid  TimeControl = "rapid"
	TimeControlDaily  TimeControl = "daily"
	TimeControlCustom TimeControl = "custom"
)

// PlayerKind distinguishes the two seat occupants a game supports.
type PlayerKind string

const (
	PlayerHuman PlayerKind = "human"
	PlayerBot   PlayerKind = "bot"
)

// PlayerRef identifies one seat of a game: either a human user id or a
// bot profile id. The kind decides which namespace the id belongs to.
type PlayerRef struct {
	Kind PlayerKind `json:"kind"`
	ID   string     `json:"id"`
}

func NewHuman(userID string) PlayerRef { return PlayerRef{Kind: PlayerHuman, ID: userID} }

func NewBot(profileID string) PlayerRef { return PlayerRef{Kind: PlayerBot, ID: profileID} }

func (p PlayerRef) IsBot() bool { return p.Kind == PlayerBot }

// IsUser reports whether this seat belongs to the given human user.
func (p PlayerRef) IsUser(userID string) bool {
	return p.Kind == PlayerHuman && p.ID == userID && userID != ""
}

// String renders the ref for column storage, e.g. "human:u-42" or
// "bot:grandmaster".
func (p PlayerRef) String() string {
	return string(p.Kind) + ":" + p.ID
}

// ParsePlayerRef is the inverse of PlayerRef.String.
func ParsePlayerRef(s string) (PlayerRef, error) {
	kind, id, ok := strings.Cut(s, ":")
	if !ok {
		return PlayerRef{}, fmt.Errorf("malformed player ref %q", s)
	}
	switch PlayerKind(kind) {
	case PlayerHuman, PlayerBot:
		return PlayerRef{Kind: PlayerKind(kind), ID: id}, nil
	default:
		return PlayerRef{}, fmt.Errorf("unknown player kind %q", kind)
	}
}

// Game is the authoritative record of one chess session. The session
// service is its sole writer; everything else reads snapshots.
type Game struct {
	ID            string      `json:"id"`
	White         PlayerRef   `json:"white"`
	Black         PlayerRef   `json:"black"`
	TimeControl   TimeControl `json:"timeControl"`
	TimeLimit     int         `json:"timeLimit"`
	TimeIncrement int         `json:"timeIncrement"`
	Rated         bool        `json:"rated"`
	WhiteTime     int         `json:"whiteTime"`
	BlackTime     int         `json:"blackTime"`
	Status        Status      `json:"status"`
	Result        Result      `json:"result,omitempty"`
	StartFEN      string      `json:"startFen,omitempty"`
	FEN           string      `json:"fen"`
	PGN           string      `json:"pgn,omitempty"`
	MovesUCI      []string    `json:"movesUci"`
	MovesSAN      []string    `json:"movesSan"`
	Turn          string      `json:"turn"`
	StartedAt     time.Time   `json:"startedAt"`
	EndedAt       time.Time   `json:"endedAt,omitzero"`
}

// PlayerColor returns "w" or "b" for the seat held by userID, or ""
// when the user holds neither seat.
func (g *Game) PlayerColor(userID string) string {
	switch {
	case g.White.IsUser(userID):
		return "w"
	case g.Black.IsUser(userID):
		return "b"
	default:
		return ""
	}
}

// SideRef returns the seat playing the given color ("w" or "b").
func (g *Game) SideRef(color string) PlayerRef {
	if color == "w" {
		return g.White
	}
	return g.Black
}

func (g *Game) IsActive() bool { return g.Status == StatusInProgress }

// Move is one half-move as persisted to the move log. Ply counts from 1.
type Move struct {
	GameID        string    `json:"gameId"`
	Ply           int       `json:"ply"`
	SAN           string    `json:"san"`
	UCI           string    `json:"uci"`
	FEN           string    `json:"fen"`
	TimeRemaining int       `json:"timeRemaining"`
	PlayedAt      time.Time `json:"playedAt"`
}

// BotProfile describes one selectable engine opponent.
type BotProfile struct {
	ID         string        `json:"id" yaml:"id"`
	Name       string        `json:"name" yaml:"name"`
	Difficulty string        `json:"difficulty" yaml:"difficulty"`
	EloMin     int           `json:"eloMin" yaml:"elo_min"`
	EloMax     int           `json:"eloMax" yaml:"elo_max"`
	SkillLevel int           `json:"skillLevel" yaml:"skill_level"`
	ThinkTime  time.Duration `json:"thinkTime" yaml:"-"`
}
