// Package queue holds the in-memory matchmaking pools. Entries are
// keyed by exact time-control parameters and matched FIFO within a
// rating window; nothing here survives a restart.
package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/castlegate/chess-arena/internal/domain"
)

// Key identifies one pool. All three fields must match exactly for two
// entries to ever meet.
type Key struct {
	TimeControl   domain.TimeControl
	TimeLimit     int
	TimeIncrement int
}

func (k Key) String() string {
	return fmt.Sprintf("%s_%d_%d", k.TimeControl, k.TimeLimit, k.TimeIncrement)
}

// Entry is one waiting player, tied to a live connection.
type Entry struct {
	ConnID     string
	UserID     string
	Rating     int
	EnqueuedAt time.Time
}

// JoinRequest carries everything needed to either match immediately or
// wait in the pool.
type JoinRequest struct {
	Key
	ConnID      string
	UserID      string
	Rating      int
	RatingRange int
	Rated       bool
}

// Match pairs the requester (white) with the opponent who was already
// waiting (black).
type Match struct {
	GameID string
	White  Entry
	Black  Entry
}

// GameCreator is satisfied by the game session service.
type GameCreator interface {
	CreateGame(ctx context.Context, whiteID, blackID string, tc domain.TimeControl, timeLimit, increment int, rated bool) (*domain.Game, error)
}

type Queue struct {
	games  GameCreator
	logger *zap.Logger

	mu    sync.Mutex
	pools map[Key][]Entry
}

func New(games GameCreator, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{
		games:  games,
		logger: logger,
		pools:  make(map[Key][]Entry),
	}
}

// Join scans the pool oldest-first for an opponent within the
// requester's rating window. On a match a game is created with the
// requester as white; otherwise the requester is appended and the
// returned position is 1-based.
func (q *Queue) Join(ctx context.Context, req JoinRequest) (*Match, int, error) {
	requester := Entry{
		ConnID:     req.ConnID,
		UserID:     req.UserID,
		Rating:     req.Rating,
		EnqueuedAt: time.Now(),
	}

	q.mu.Lock()
	pool := q.pools[req.Key]
	idx := -1
	for i, e := range pool {
		if e.UserID == req.UserID {
			continue
		}
		if diff := e.Rating - req.Rating; diff >= -req.RatingRange && diff <= req.RatingRange {
			idx = i
			break
		}
	}
	if idx == -1 {
		q.pools[req.Key] = append(pool, requester)
		position := len(q.pools[req.Key])
		q.mu.Unlock()
		q.logger.Info("queued for match",
			zap.String("user", req.UserID),
			zap.String("pool", req.Key.String()),
			zap.Int("position", position))
		return nil, position, nil
	}

	opponent := pool[idx]
	q.pools[req.Key] = append(pool[:idx], pool[idx+1:]...)
	q.mu.Unlock()

	game, err := q.games.CreateGame(ctx, req.UserID, opponent.UserID, req.TimeControl, req.TimeLimit, req.TimeIncrement, req.Rated)
	if err != nil {
		// Put the opponent back at the head so they keep their spot.
		q.mu.Lock()
		q.pools[req.Key] = append([]Entry{opponent}, q.pools[req.Key]...)
		q.mu.Unlock()
		return nil, 0, fmt.Errorf("create matched game: %w", err)
	}

	q.logger.Info("match found",
		zap.String("game", game.ID),
		zap.String("white", req.UserID),
		zap.String("black", opponent.UserID),
		zap.String("pool", req.Key.String()))
	return &Match{GameID: game.ID, White: requester, Black: opponent}, 0, nil
}

// Leave removes the connection's entry from one pool. Absence is not
// an error.
func (q *Queue) Leave(connID string, key Key) {
	q.mu.Lock()
	defer q.mu.Unlock()
	pool := q.pools[key]
	for i, e := range pool {
		if e.ConnID == connID {
			q.pools[key] = append(pool[:i], pool[i+1:]...)
			return
		}
	}
}

// Disconnect purges the connection from every pool.
func (q *Queue) Disconnect(connID string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for key, pool := range q.pools {
		kept := pool[:0]
		for _, e := range pool {
			if e.ConnID != connID {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(q.pools, key)
			continue
		}
		q.pools[key] = kept
	}
}

// Len reports how many players wait in one pool.
func (q *Queue) Len(key Key) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pools[key])
}
