package game

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/castlegate/chess-arena/internal/domain"
)

// Repository persists games and their move logs. GetGame returns
// (nil, nil) when the id is unknown.
type Repository interface {
	InsertGame(ctx context.Context, game *domain.Game) error
	GetGame(ctx context.Context, id string) (*domain.Game, error)
	UpdateGame(ctx context.Context, game *domain.Game) error
	InsertMove(ctx context.Context, move *domain.Move) error
	ListMoves(ctx context.Context, gameID string) ([]*domain.Move, error)
	ActiveGames(ctx context.Context, userID string) ([]*domain.Game, error)
	RecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error)
}

type repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

const gameColumns = `
		id,
		white_player,
		black_player,
		time_control,
		time_limit,
		time_increment,
		is_rated,
		white_time,
		black_time,
		status,
		result,
		start_fen,
		fen,
		pgn,
		moves_uci,
		moves_san,
		current_turn,
		started_at,
		ended_at`

func (r *repository) InsertGame(ctx context.Context, game *domain.Game) error {
	if game == nil {
		return fmt.Errorf("nil game payload")
	}
	movesUCI, movesSAN, err := marshalMoves(game)
	if err != nil {
		return err
	}

	const query = `
		INSERT INTO games (
			id,
			white_player,
			black_player,
			time_control,
			time_limit,
			time_increment,
			is_rated,
			white_time,
			black_time,
			status,
			result,
			start_fen,
			fen,
			pgn,
			moves_uci,
			moves_san,
			current_turn,
			started_at,
			ended_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15::jsonb, $16::jsonb, $17, $18, $19)`

	_, err = r.db.ExecContext(
		ctx,
		query,
		game.ID,
		game.White.String(),
		game.Black.String(),
		string(game.TimeControl),
		game.TimeLimit,
		game.TimeIncrement,
		game.Rated,
		game.WhiteTime,
		game.BlackTime,
		string(game.Status),
		string(game.Result),
		game.StartFEN,
		game.FEN,
		game.PGN,
		movesUCI,
		movesSAN,
		game.Turn,
		game.StartedAt,
		nullTime(game),
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (r *repository) GetGame(ctx context.Context, id string) (*domain.Game, error) {
	const query = `SELECT` + gameColumns + `
		FROM games
		WHERE id = $1`

	game, err := scanGame(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	return game, nil
}

func (r *repository) UpdateGame(ctx context.Context, game *domain.Game) error {
	if game == nil {
		return fmt.Errorf("nil game payload")
	}
	movesUCI, movesSAN, err := marshalMoves(game)
	if err != nil {
		return err
	}

	const query = `
		UPDATE games SET
			white_time = $2,
			black_time = $3,
			status = $4,
			result = $5,
			fen = $6,
			pgn = $7,
			moves_uci = $8::jsonb,
			moves_san = $9::jsonb,
			current_turn = $10,
			ended_at = $11
		WHERE id = $1`

	res, err := r.db.ExecContext(
		ctx,
		query,
		game.ID,
		game.WhiteTime,
		game.BlackTime,
		string(game.Status),
		string(game.Result),
		game.FEN,
		game.PGN,
		movesUCI,
		movesSAN,
		game.Turn,
		nullTime(game),
	)
	if err != nil {
		return fmt.Errorf("update game: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrGameNotFound
	}
	return nil
}

func (r *repository) InsertMove(ctx context.Context, move *domain.Move) error {
	if move == nil {
		return fmt.Errorf("nil move payload")
	}
	const query = `
		INSERT INTO moves (game_id, ply, san, uci, fen, time_remaining, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := r.db.ExecContext(
		ctx,
		query,
		move.GameID,
		move.Ply,
		move.SAN,
		move.UCI,
		move.FEN,
		move.TimeRemaining,
		move.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}
	return nil
}

func (r *repository) ListMoves(ctx context.Context, gameID string) ([]*domain.Move, error) {
	const query = `
		SELECT game_id, ply, san, uci, fen, time_remaining, played_at
		FROM moves
		WHERE game_id = $1
		ORDER BY ply ASC`

	rows, err := r.db.QueryContext(ctx, query, gameID)
	if err != nil {
		return nil, fmt.Errorf("select moves: %w", err)
	}
	defer rows.Close()

	var moves []*domain.Move
	for rows.Next() {
		var mv domain.Move
		if err := rows.Scan(&mv.GameID, &mv.Ply, &mv.SAN, &mv.UCI, &mv.FEN, &mv.TimeRemaining, &mv.PlayedAt); err != nil {
			return nil, fmt.Errorf("scan move: %w", err)
		}
		moves = append(moves, &mv)
	}
	return moves, rows.Err()
}

func (r *repository) ActiveGames(ctx context.Context, userID string) ([]*domain.Game, error) {
	const query = `SELECT` + gameColumns + `
		FROM games
		WHERE status = 'in_progress'
		  AND (white_player = $1 OR black_player = $1)
		ORDER BY started_at DESC`

	return r.queryGames(ctx, query, domain.NewHuman(userID).String())
}

func (r *repository) RecentGames(ctx context.Context, userID string, limit int) ([]*domain.Game, error) {
	if limit <= 0 {
		limit = 10
	}
	const query = `SELECT` + gameColumns + `
		FROM games
		WHERE white_player = $1 OR black_player = $1
		ORDER BY started_at DESC
		LIMIT $2`

	return r.queryGames(ctx, query, domain.NewHuman(userID).String(), limit)
}

func (r *repository) queryGames(ctx context.Context, query string, args ...any) ([]*domain.Game, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select games: %w", err)
	}
	defer rows.Close()

	var games []*domain.Game
	for rows.Next() {
		game, err := scanGame(rows)
		if err != nil {
			return nil, fmt.Errorf("scan game: %w", err)
		}
		games = append(games, game)
	}
	return games, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGame(row rowScanner) (*domain.Game, error) {
	var (
		game         domain.Game
		whiteRef     string
		blackRef     string
		movesUCIJSON []byte
		movesSANJSON []byte
		endedAt      sql.NullTime
	)
	if err := row.Scan(
		&game.ID,
		&whiteRef,
		&blackRef,
		(*string)(&game.TimeControl),
		&game.TimeLimit,
		&game.TimeIncrement,
		&game.Rated,
		&game.WhiteTime,
		&game.BlackTime,
		(*string)(&game.Status),
		(*string)(&game.Result),
		&game.StartFEN,
		&game.FEN,
		&game.PGN,
		&movesUCIJSON,
		&movesSANJSON,
		&game.Turn,
		&game.StartedAt,
		&endedAt,
	); err != nil {
		return nil, err
	}

	var err error
	if game.White, err = domain.ParsePlayerRef(whiteRef); err != nil {
		return nil, err
	}
	if game.Black, err = domain.ParsePlayerRef(blackRef); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(movesUCIJSON, &game.MovesUCI); err != nil {
		return nil, fmt.Errorf("unmarshal moves_uci: %w", err)
	}
	if err := json.Unmarshal(movesSANJSON, &game.MovesSAN); err != nil {
		return nil, fmt.Errorf("unmarshal moves_san: %w", err)
	}
	if endedAt.Valid {
		game.EndedAt = endedAt.Time
	}
	return &game, nil
}

func marshalMoves(game *domain.Game) ([]byte, []byte, error) {
	movesUCI, err := json.Marshal(sliceOrEmpty(game.MovesUCI))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal moves_uci: %w", err)
	}
	movesSAN, err := json.Marshal(sliceOrEmpty(game.MovesSAN))
	if err != nil {
		return nil, nil, fmt.Errorf("marshal moves_san: %w", err)
	}
	return movesUCI, movesSAN, nil
}

func sliceOrEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nullTime(game *domain.Game) sql.NullTime {
	return sql.NullTime{Time: game.EndedAt, Valid: !game.EndedAt.IsZero()}
}
