// Package game owns all Game and Move state transitions. Every write
// goes through the Service under a per-game lock; collaborators only
// ever see snapshots.
package game

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/castlegate/chess-arena/internal/bot"
	"github.com/castlegate/chess-arena/internal/domain"
	"github.com/castlegate/chess-arena/internal/rules"
)

// Abort is only allowed while at most this many plies were played.
const abortMaxPlies = 2

// MoveResult is the outcome of one accepted move, for broadcast.
type MoveResult struct {
	GameID      string
	SAN         string
	UCI         string
	FEN         string
	Ply         int
	IsCheck     bool
	IsCheckmate bool
	IsStalemate bool
	IsDraw      bool
	GameOver    bool
	Result      domain.Result
}

type Service struct {
	repo   Repository
	cache  SnapshotCache
	bots   *bot.Generator
	logger *zap.Logger
	locks  *keyedMutex
	now    func() time.Time
	newID  func() string
}

// New builds the session service. cache may be nil to run without the
// snapshot layer.
func New(repo Repository, cache SnapshotCache, bots *bot.Generator, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:   repo,
		cache:  cache,
		bots:   bots,
		logger: logger,
		locks:  newKeyedMutex(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// CreateGame persists a new human-vs-human game with both clocks at
// the full budget and white to move.
func (s *Service) CreateGame(ctx context.Context, whiteID, blackID string, tc domain.TimeControl, timeLimit, increment int, rated bool) (*domain.Game, error) {
	return s.createGame(ctx, domain.NewHuman(whiteID), domain.NewHuman(blackID), tc, timeLimit, increment, rated)
}

// CreateBotGame persists a game against the given bot profile. When
// the bot plays white its first move is made before returning, so the
// human never waits on an empty board.
func (s *Service) CreateBotGame(ctx context.Context, userID, botID string, tc domain.TimeControl, timeLimit, increment int, botPlaysWhite bool) (*domain.Game, error) {
	if s.bots == nil || !s.bots.Profiles().Has(botID) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidBotID, botID)
	}

	white := domain.NewHuman(userID)
	black := domain.NewBot(botID)
	if botPlaysWhite {
		white, black = domain.NewBot(botID), domain.NewHuman(userID)
	}

	game, err := s.createGame(ctx, white, black, tc, timeLimit, increment, false)
	if err != nil {
		return nil, err
	}
	if botPlaysWhite {
		unlock := s.locks.Lock(game.ID)
		_, err := s.applyBotMove(ctx, game)
		unlock()
		if err != nil {
			return nil, fmt.Errorf("opening bot move: %w", err)
		}
	}
	return game, nil
}

func (s *Service) createGame(ctx context.Context, white, black domain.PlayerRef, tc domain.TimeControl, timeLimit, increment int, rated bool) (*domain.Game, error) {
	if timeLimit <= 0 {
		return nil, fmt.Errorf("time limit must be > 0: %d", timeLimit)
	}
	game := &domain.Game{
		ID:            s.newID(),
		White:         white,
		Black:         black,
		TimeControl:   tc,
		TimeLimit:     timeLimit,
		TimeIncrement: increment,
		Rated:         rated,
		WhiteTime:     timeLimit,
		BlackTime:     timeLimit,
		Status:        domain.StatusInProgress,
		FEN:           rules.StartFEN,
		MovesUCI:      []string{},
		MovesSAN:      []string{},
		Turn:          "w",
		StartedAt:     s.now(),
	}
	game.PGN = buildPGN(game)
	if err := s.repo.InsertGame(ctx, game); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, game)
	s.logger.Info("game created",
		zap.String("game", game.ID),
		zap.String("white", game.White.String()),
		zap.String("black", game.Black.String()),
		zap.String("time_control", string(tc)))
	return game, nil
}

// Game returns a snapshot, preferring the cache.
func (s *Service) Game(ctx context.Context, id string) (*domain.Game, error) {
	game, err := s.loadGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	return game, nil
}

// Moves returns the persisted move log in ply order.
func (s *Service) Moves(ctx context.Context, gameID string) ([]*domain.Move, error) {
	return s.repo.ListMoves(ctx, gameID)
}

// ActiveGames lists in-progress games for a user.
func (s *Service) ActiveGames(ctx context.Context, userID string) ([]*domain.Game, error) {
	return s.repo.ActiveGames(ctx, userID)
}

// RecentGames lists a user's latest games, newest first.
func (s *Service) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error) {
	return s.repo.RecentGames(ctx, userID, limit)
}

// MakeMove validates and applies one human move. moveText may be SAN
// or UCI.
func (s *Service) MakeMove(ctx context.Context, gameID, playerID, moveText string) (*MoveResult, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	game, err := s.activeGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	color := game.PlayerColor(playerID)
	if color == "" || color != game.Turn {
		return nil, ErrNotYourTurn
	}

	pos, err := rules.Replay(game.StartFEN, game.MovesUCI)
	if err != nil {
		return nil, fmt.Errorf("replay game %s: %w", gameID, err)
	}
	applied, err := pos.ApplyMove(moveText)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrIllegalMove, moveText)
	}
	return s.commitMove(ctx, game, pos, applied, color)
}

// MakeBotMove makes the bot reply when it is the bot's turn. Callers
// use it both for normal move chaining and for resuming a stalled bot
// game on rejoin.
func (s *Service) MakeBotMove(ctx context.Context, gameID string) (*MoveResult, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	game, err := s.activeGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return s.applyBotMove(ctx, game)
}

// applyBotMove assumes the per-game lock is held and the game active.
func (s *Service) applyBotMove(ctx context.Context, game *domain.Game) (*MoveResult, error) {
	if !game.White.IsBot() && !game.Black.IsBot() {
		return nil, ErrNotBotGame
	}
	seat := game.SideRef(game.Turn)
	if !seat.IsBot() {
		return nil, ErrNotBotTurn
	}

	pos, err := rules.Replay(game.StartFEN, game.MovesUCI)
	if err != nil {
		return nil, fmt.Errorf("replay game %s: %w", game.ID, err)
	}
	applied, err := s.bots.GenerateMove(ctx, pos, seat.ID)
	if err != nil {
		return nil, err
	}
	return s.commitMove(ctx, game, pos, applied, game.Turn)
}

// commitMove appends the accepted move, detects terminal positions,
// and persists the move row plus the updated game.
func (s *Service) commitMove(ctx context.Context, game *domain.Game, pos *rules.Game, applied rules.Applied, moverColor string) (*MoveResult, error) {
	ply := len(game.MovesUCI) + 1
	timeRemaining := game.WhiteTime
	if moverColor == "b" {
		timeRemaining = game.BlackTime
	}

	game.MovesUCI = append(game.MovesUCI, applied.UCI)
	game.MovesSAN = append(game.MovesSAN, applied.SAN)
	game.FEN = applied.FEN
	game.Turn = pos.Turn()

	switch {
	case applied.IsCheckmate:
		s.finish(game, winResult(moverColor))
	case applied.IsStalemate, applied.IsDraw:
		s.finish(game, domain.ResultDraw)
	}
	game.PGN = buildPGN(game)

	move := &domain.Move{
		GameID:        game.ID,
		Ply:           ply,
		SAN:           applied.SAN,
		UCI:           applied.UCI,
		FEN:           applied.FEN,
		TimeRemaining: timeRemaining,
		PlayedAt:      s.now(),
	}
	if err := s.repo.InsertMove(ctx, move); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateGame(ctx, game); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, game)

	if game.Status == domain.StatusCompleted {
		s.logger.Info("game finished",
			zap.String("game", game.ID),
			zap.String("result", string(game.Result)),
			zap.Int("plies", ply))
	}

	return &MoveResult{
		GameID:      game.ID,
		SAN:         applied.SAN,
		UCI:         applied.UCI,
		FEN:         applied.FEN,
		Ply:         ply,
		IsCheck:     applied.IsCheck,
		IsCheckmate: applied.IsCheckmate,
		IsStalemate: applied.IsStalemate,
		IsDraw:      applied.IsDraw,
		GameOver:    game.Status == domain.StatusCompleted,
		Result:      game.Result,
	}, nil
}

// Resign ends the game in the opponent's favor.
func (s *Service) Resign(ctx context.Context, gameID, playerID string) (*domain.Game, error) {
	return s.terminate(ctx, gameID, func(game *domain.Game) error {
		switch game.PlayerColor(playerID) {
		case "w":
			s.finish(game, domain.ResultBlackWin)
		case "b":
			s.finish(game, domain.ResultWhiteWin)
		default:
			return ErrNotPlayer
		}
		return nil
	})
}

// AcceptDraw ends the game as a draw by agreement. The offer/response
// handshake lives at the gateway; acceptance here is unconditional.
func (s *Service) AcceptDraw(ctx context.Context, gameID string) (*domain.Game, error) {
	return s.terminate(ctx, gameID, func(game *domain.Game) error {
		s.finish(game, domain.ResultDraw)
		return nil
	})
}

// Abort cancels a barely-started game without a winner.
func (s *Service) Abort(ctx context.Context, gameID string) (*domain.Game, error) {
	return s.terminate(ctx, gameID, func(game *domain.Game) error {
		if len(game.MovesUCI) > abortMaxPlies {
			return ErrAbortWindowClosed
		}
		game.Status = domain.StatusAborted
		game.Result = domain.ResultAborted
		game.EndedAt = s.now()
		return nil
	})
}

// UpdateTime persists a clock snapshot; a clock at or below zero
// flags the other side's win on time.
func (s *Service) UpdateTime(ctx context.Context, gameID string, whiteTime, blackTime int) (*domain.Game, error) {
	return s.terminate(ctx, gameID, func(game *domain.Game) error {
		game.WhiteTime = max(whiteTime, 0)
		game.BlackTime = max(blackTime, 0)
		switch {
		case whiteTime <= 0:
			s.finish(game, domain.ResultBlackWin)
		case blackTime <= 0:
			s.finish(game, domain.ResultWhiteWin)
		}
		return nil
	})
}

// terminate runs a state mutation on an active game under its lock and
// persists the outcome.
func (s *Service) terminate(ctx context.Context, gameID string, mutate func(*domain.Game) error) (*domain.Game, error) {
	unlock := s.locks.Lock(gameID)
	defer unlock()

	game, err := s.activeGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if err := mutate(game); err != nil {
		return nil, err
	}
	game.PGN = buildPGN(game)
	if err := s.repo.UpdateGame(ctx, game); err != nil {
		return nil, err
	}
	s.cacheSet(ctx, game)
	if game.Status != domain.StatusInProgress {
		s.logger.Info("game ended",
			zap.String("game", gameID),
			zap.String("status", string(game.Status)),
			zap.String("result", string(game.Result)))
	}
	return game, nil
}

func (s *Service) finish(game *domain.Game, result domain.Result) {
	game.Status = domain.StatusCompleted
	game.Result = result
	game.EndedAt = s.now()
}

func (s *Service) activeGame(ctx context.Context, gameID string) (*domain.Game, error) {
	game, err := s.loadGame(ctx, gameID)
	if err != nil {
		return nil, err
	}
	if game == nil {
		return nil, ErrGameNotFound
	}
	if !game.IsActive() {
		return nil, ErrGameNotActive
	}
	return game, nil
}

func (s *Service) loadGame(ctx context.Context, id string) (*domain.Game, error) {
	if s.cache != nil {
		game, err := s.cache.Get(ctx, id)
		if err != nil {
			s.logger.Warn("snapshot cache read failed", zap.String("game", id), zap.Error(err))
		} else if game != nil {
			return game, nil
		}
	}
	game, err := s.repo.GetGame(ctx, id)
	if err != nil {
		return nil, err
	}
	if game != nil {
		s.cacheSet(ctx, game)
	}
	return game, nil
}

func (s *Service) cacheSet(ctx context.Context, game *domain.Game) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, game); err != nil {
		s.logger.Warn("snapshot cache write failed", zap.String("game", game.ID), zap.Error(err))
	}
}

func winResult(color string) domain.Result {
	if color == "w" {
		return domain.ResultWhiteWin
	}
	return domain.ResultBlackWin
}
