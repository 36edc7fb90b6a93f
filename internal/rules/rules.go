// Package rules wraps the chess move-generation library behind the
// small surface the session service and bot generator need: replaying
// a stored game, applying one move, and asking about the position.
package rules

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

// StartFEN is the standard initial position.
const StartFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

var ErrIllegalMove = errors.New("illegal move")

// Game holds a replayed position. It is not safe for concurrent use;
// callers serialize access per game id.
type Game struct {
	inner *nchess.Game
}

// New returns a game at the standard initial position.
func New() *Game {
	return &Game{inner: nchess.NewGame()}
}

// Replay reconstructs a position from a starting FEN (empty means the
// standard position) and the UCI moves played so far.
func Replay(startFEN string, movesUCI []string) (*Game, error) {
	var g *nchess.Game
	if startFEN == "" || startFEN == StartFEN {
		g = nchess.NewGame()
	} else {
		opt, err := nchess.FEN(startFEN)
		if err != nil {
			return nil, fmt.Errorf("parse start fen: %w", err)
		}
		g = nchess.NewGame(opt)
	}
	for i, mv := range movesUCI {
		if err := g.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %d (%s): %w", i+1, mv, err)
		}
	}
	return &Game{inner: g}, nil
}

// Applied describes the outcome of one accepted move.
type Applied struct {
	SAN         string
	UCI         string
	FEN         string
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsDraw      bool
}

// Terminal reports whether the move ended the game.
func (a Applied) Terminal() bool {
	return a.IsCheckmate || a.IsStalemate || a.IsDraw
}

// ApplyMove accepts a move in SAN or UCI form, applies it, and reports
// the resulting notation and position. ErrIllegalMove covers both
// unparseable and illegal input.
func (g *Game) ApplyMove(text string) (Applied, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Applied{}, ErrIllegalMove
	}
	pos := g.inner.Position()
	san := nchess.AlgebraicNotation{}
	uci := nchess.UCINotation{}

	mv, err := san.Decode(pos, text)
	if err != nil {
		mv, err = uci.Decode(pos, strings.ToLower(text))
	}
	if err != nil {
		return Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}
	sanStr := san.Encode(pos, mv)
	uciStr := uci.Encode(pos, mv)
	if err := g.inner.Move(mv, nil); err != nil {
		return Applied{}, fmt.Errorf("%w: %s", ErrIllegalMove, text)
	}

	method := g.inner.Method()
	outcome := g.inner.Outcome()
	return Applied{
		SAN:         sanStr,
		UCI:         strings.ToLower(uciStr),
		FEN:         g.inner.FEN(),
		IsCheck:     strings.ContainsAny(sanStr, "+#"),
		IsCheckmate: method == nchess.Checkmate,
		IsStalemate: method == nchess.Stalemate,
		IsDraw:      outcome == nchess.Draw && method != nchess.Stalemate,
	}, nil
}

// FEN returns the current position.
func (g *Game) FEN() string { return g.inner.FEN() }

// Turn returns "w" or "b" for the side to move.
func (g *Game) Turn() string {
	if g.inner.Position().Turn() == nchess.White {
		return "w"
	}
	return "b"
}

// LegalMoves lists every legal move in UCI form.
func (g *Game) LegalMoves() []string {
	valid := g.inner.ValidMoves()
	out := make([]string, 0, len(valid))
	for _, mv := range valid {
		out = append(out, strings.ToLower(mv.String()))
	}
	return out
}

// GameOver reports whether the position is terminal.
func (g *Game) GameOver() bool {
	return g.inner.Outcome() != nchess.NoOutcome
}
