package game

import "errors"

var (
	ErrGameNotFound      = errors.New("game not found")
	ErrGameNotActive     = errors.New("game is not in progress")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrNotPlayer         = errors.New("not a player in this game")
	ErrIllegalMove       = errors.New("invalid move")
	ErrAbortWindowClosed = errors.New("cannot abort after the second move")
	ErrInvalidBotID      = errors.New("invalid bot id")
	ErrNotBotGame        = errors.New("game has no bot player")
	ErrNotBotTurn        = errors.New("not the bot's turn")
)
