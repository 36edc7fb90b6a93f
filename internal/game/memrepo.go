package game

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/castlegate/chess-arena/internal/domain"
)

// memrepo is a development-only in-memory repository implementation
// used when no DB is configured.
type memrepo struct {
	mu sync.RWMutex

	games map[string]*domain.Game
	moves map[string][]*domain.Move // gameID -> moves ordered by ply
}

func NewMemoryRepository() Repository {
	return &memrepo{
		games: make(map[string]*domain.Game),
		moves: make(map[string][]*domain.Move),
	}
}

func (m *memrepo) InsertGame(ctx context.Context, game *domain.Game) error {
	if game == nil {
		return ErrGameNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[game.ID] = copyGame(game)
	return nil
}

func (m *memrepo) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[id]
	if !ok {
		return nil, nil
	}
	return copyGame(g), nil
}

func (m *memrepo) UpdateGame(ctx context.Context, game *domain.Game) error {
	if game == nil {
		return ErrGameNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.games[game.ID]; !ok {
		return ErrGameNotFound
	}
	m.games[game.ID] = copyGame(game)
	return nil
}

func (m *memrepo) InsertMove(ctx context.Context, move *domain.Move) error {
	if move == nil {
		return nil
	}
	cp := *move
	m.mu.Lock()
	m.moves[move.GameID] = append(m.moves[move.GameID], &cp)
	m.mu.Unlock()
	return nil
}

func (m *memrepo) ListMoves(ctx context.Context, gameID string) ([]*domain.Move, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.moves[gameID]
	out := make([]*domain.Move, 0, len(list))
	for _, mv := range list {
		cp := *mv
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ply < out[j].Ply })
	return out, nil
}

func (m *memrepo) ActiveGames(ctx context.Context, userID string) ([]*domain.Game, error) {
	return m.filterGames(func(g *domain.Game) bool {
		return g.IsActive() && g.PlayerColor(userID) != ""
	}, 0)
}

func (m *memrepo) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error) {
	if limit <= 0 {
		limit = 10
	}
	return m.filterGames(func(g *domain.Game) bool {
		return g.PlayerColor(userID) != ""
	}, limit)
}

func (m *memrepo) filterGames(keep func(*domain.Game) bool, limit int) ([]*domain.Game, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]*domain.Game, 0)
	for _, g := range m.games {
		if keep(g) {
			items = append(items, copyGame(g))
		}
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].StartedAt.Equal(items[j].StartedAt) {
			return items[i].StartedAt.After(items[j].StartedAt)
		}
		return items[i].ID > items[j].ID
	})
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func copyGame(g *domain.Game) *domain.Game {
	cp := *g
	cp.MovesUCI = slices.Clone(g.MovesUCI)
	cp.MovesSAN = slices.Clone(g.MovesSAN)
	return &cp
}
