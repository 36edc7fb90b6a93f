// Package bot turns an engine best-move query into a game move for a
// configured opponent profile, falling back to a random legal move
// when the engine cannot answer.
package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/castlegate/chess-arena/internal/engine/uci"
	"github.com/castlegate/chess-arena/internal/rules"
)

const defaultMoveTimeMillis = 1000

var (
	ErrBotNotFound  = errors.New("bot profile not found")
	ErrNoLegalMoves = errors.New("no legal moves available")
)

// Engine is the best-move source. A nil Engine is allowed; every
// request then takes the random-legal fallback.
type Engine interface {
	BestMove(ctx context.Context, req uci.Request) (string, error)
}

type Generator struct {
	engine   Engine
	profiles *ProfileSet
	logger   *zap.Logger
	moveTime int

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewGenerator(engine Engine, profiles *ProfileSet, logger *zap.Logger) *Generator {
	if profiles == nil {
		profiles = DefaultProfiles()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		engine:   engine,
		profiles: profiles,
		logger:   logger,
		moveTime: defaultMoveTimeMillis,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Generator) Profiles() *ProfileSet { return g.profiles }

// SetMoveTime overrides the engine search budget per move, in
// milliseconds. Values <= 0 keep the current budget.
func (g *Generator) SetMoveTime(ms int) {
	if ms > 0 {
		g.moveTime = ms
	}
}

// GenerateMove picks and applies the bot's move on the given position.
// The profile's think time is waited out first so bot replies do not
// land instantly.
func (g *Generator) GenerateMove(ctx context.Context, game *rules.Game, botID string) (rules.Applied, error) {
	profile, ok := g.profiles.Get(botID)
	if !ok {
		return rules.Applied{}, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}

	if err := g.wait(ctx, profile.ThinkTime); err != nil {
		return rules.Applied{}, err
	}

	if g.engine != nil {
		mv, err := g.engine.BestMove(ctx, uci.Request{
			FEN:            game.FEN(),
			SkillLevel:     profile.SkillLevel,
			MoveTimeMillis: g.moveTime,
		})
		if err == nil {
			applied, applyErr := game.ApplyMove(mv)
			if applyErr == nil {
				return applied, nil
			}
			err = applyErr
		}
		g.logger.Warn("engine move failed, using random legal move",
			zap.String("bot", botID),
			zap.Error(err))
	}

	return g.randomMove(game)
}

func (g *Generator) randomMove(game *rules.Game) (rules.Applied, error) {
	legal := game.LegalMoves()
	if len(legal) == 0 {
		return rules.Applied{}, ErrNoLegalMoves
	}
	g.randMu.Lock()
	mv := legal[g.rand.Intn(len(legal))]
	g.randMu.Unlock()
	return game.ApplyMove(mv)
}

func (g *Generator) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
