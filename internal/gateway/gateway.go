// Package gateway is the realtime event fabric: it authenticates
// websocket connections, tracks game rooms, and translates client
// events into game service and matchmaking calls.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/castlegate/chess-arena/internal/auth"
	"github.com/castlegate/chess-arena/internal/bot"
	"github.com/castlegate/chess-arena/internal/domain"
	"github.com/castlegate/chess-arena/internal/game"
	"github.com/castlegate/chess-arena/internal/queue"
)

var ErrAuthorizationFailed = errors.New("authorization failed")

type Gateway struct {
	games    *game.Service
	queue    *queue.Queue
	verifier auth.Verifier
	hub      *Hub
	logger   *zap.Logger
	origins  []string
}

func New(games *game.Service, q *queue.Queue, verifier auth.Verifier, origins []string, logger *zap.Logger) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Gateway{
		games:    games,
		queue:    q,
		verifier: verifier,
		hub:      newHub(),
		logger:   logger,
		origins:  origins,
	}
}

// ServeHTTP upgrades an authenticated request to a websocket and runs
// its read loop until the peer goes away.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID, err := g.verifier.Verify(bearerToken(r))
	if err != nil {
		g.logger.Debug("websocket auth rejected", zap.Error(err))
		http.Error(w, "authentication failed", http.StatusUnauthorized)
		return
	}

	opts := &websocket.AcceptOptions{OriginPatterns: g.origins}
	if len(g.origins) == 0 {
		opts.InsecureSkipVerify = true
	}
	conn, err := websocket.Accept(w, r, opts)
	if err != nil {
		g.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}

	client := newClient(uuid.NewString(), userID, conn)
	g.hub.Register(client)
	g.logger.Info("client connected",
		zap.String("conn", client.id),
		zap.String("user", userID))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	go client.writeLoop(ctx, g.logger)

	g.readLoop(ctx, client, conn)

	g.disconnect(client)
}

func bearerToken(r *http.Request) string {
	if tok := r.URL.Query().Get("token"); tok != "" {
		return tok
	}
	h := r.Header.Get("Authorization")
	if after, ok := strings.CutPrefix(h, "Bearer "); ok {
		return strings.TrimSpace(after)
	}
	return ""
}

func (g *Gateway) readLoop(ctx context.Context, client *Client, conn *websocket.Conn) {
	for {
		var env Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			status := websocket.CloseStatus(err)
			if status == -1 && !errors.Is(err, context.Canceled) {
				g.logger.Debug("websocket read failed",
					zap.String("conn", client.id),
					zap.Error(err))
			}
			return
		}
		g.dispatch(client, env)
	}
}

func (g *Gateway) disconnect(client *Client) {
	client.close()
	g.hub.Unregister(client)
	g.queue.Disconnect(client.id)
	g.logger.Info("client disconnected",
		zap.String("conn", client.id),
		zap.String("user", client.userID))
}

func (g *Gateway) dispatch(client *Client, env Envelope) {
	switch env.Event {
	case EventJoinGame:
		withPayload(g, client, env, g.handleJoinGame)
	case EventLeaveGame:
		withPayload(g, client, env, g.handleLeaveGame)
	case EventMakeMove:
		withPayload(g, client, env, g.handleMakeMove)
	case EventResign:
		withPayload(g, client, env, g.handleResign)
	case EventDrawOffer:
		withPayload(g, client, env, g.handleDrawOffer)
	case EventDrawResponse:
		withPayload(g, client, env, g.handleDrawResponse)
	case EventAbortGame:
		withPayload(g, client, env, g.handleAbort)
	case EventTimeUpdate:
		withPayload(g, client, env, g.handleTimeUpdate)
	case EventJoinQueue:
		withPayload(g, client, env, g.handleJoinQueue)
	case EventLeaveQueue:
		withPayload(g, client, env, g.handleLeaveQueue)
	case EventSendMessage:
		withPayload(g, client, env, g.handleSendMessage)
	default:
		g.logger.Warn("unknown event",
			zap.String("conn", client.id),
			zap.String("event", env.Event))
	}
}

// withPayload decodes the event payload and routes malformed frames to
// a private error instead of a handler call.
func withPayload[T any](g *Gateway, client *Client, env Envelope, handle func(*Client, T)) {
	var payload T
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &payload); err != nil {
			g.sendError(client, "malformed payload")
			return
		}
	}
	handle(client, payload)
}

func (g *Gateway) handleJoinGame(client *Client, p gameRefPayload) {
	ctx := context.Background()
	gm, err := g.games.Game(ctx, p.GameID)
	if err != nil {
		g.sendError(client, errMessage(err))
		return
	}
	if gm.PlayerColor(client.userID) == "" {
		g.sendError(client, errMessage(ErrAuthorizationFailed))
		return
	}
	g.hub.JoinRoom(p.GameID, client)
	client.Send(newEnvelope(EventGameJoined, gameJoinedPayload{GameID: gm.ID, Game: gm}))
	g.logger.Info("joined game room",
		zap.String("conn", client.id),
		zap.String("game", p.GameID))

	// A bot game may have stalled on the bot's turn if the server
	// restarted or the reply was lost; nudge it on rejoin.
	g.tryBotMove(ctx, p.GameID)
}

func (g *Gateway) handleLeaveGame(client *Client, p gameRefPayload) {
	g.hub.LeaveRoom(p.GameID, client)
}

func (g *Gateway) handleMakeMove(client *Client, p makeMovePayload) {
	ctx := context.Background()
	res, err := g.games.MakeMove(ctx, p.GameID, client.userID, p.Move)
	if err != nil {
		g.sendError(client, errMessage(err))
		return
	}
	g.broadcastMove(p.GameID, res)

	if !res.GameOver {
		g.tryBotMove(ctx, p.GameID)
	}
}

// tryBotMove asks the session service for a bot reply and broadcasts
// it. Games without a bot on turn are a quiet no-op.
func (g *Gateway) tryBotMove(ctx context.Context, gameID string) {
	res, err := g.games.MakeBotMove(ctx, gameID)
	if err != nil {
		if errors.Is(err, game.ErrNotBotGame) || errors.Is(err, game.ErrNotBotTurn) ||
			errors.Is(err, game.ErrGameNotActive) {
			return
		}
		g.logger.Error("bot move failed",
			zap.String("game", gameID),
			zap.Error(err))
		return
	}
	g.broadcastMove(gameID, res)
}

func (g *Gateway) broadcastMove(gameID string, res *game.MoveResult) {
	g.hub.Broadcast(gameID, newEnvelope(EventMoveMade, moveMadePayload{
		GameID:      gameID,
		Move:        res.SAN,
		UCI:         res.UCI,
		FEN:         res.FEN,
		IsCheck:     res.IsCheck,
		IsCheckmate: res.IsCheckmate,
		IsStalemate: res.IsStalemate,
		IsDraw:      res.IsDraw,
	}))
	if res.GameOver {
		g.hub.Broadcast(gameID, newEnvelope(EventGameOver, gameOverPayload{
			GameID: gameID,
			Result: moveEndReason(res),
			Winner: res.Result.WinnerColor(),
		}))
	}
}

func moveEndReason(res *game.MoveResult) string {
	switch {
	case res.IsCheckmate:
		return "checkmate"
	case res.IsStalemate:
		return "stalemate"
	default:
		return "draw"
	}
}

func (g *Gateway) handleResign(client *Client, p gameRefPayload) {
	gm, err := g.games.Resign(context.Background(), p.GameID, client.userID)
	if err != nil {
		g.sendError(client, errMessage(err))
		return
	}
	g.hub.Broadcast(p.GameID, newEnvelope(EventGameOver, gameOverPayload{
		GameID: p.GameID,
		Result: "resignation",
		Winner: winnerSeatID(gm),
	}))
}

func (g *Gateway) handleDrawOffer(client *Client, p gameRefPayload) {
	// Offers are advisory; validate the game is live, then relay.
	gm, err := g.games.Game(context.Background(), p.GameID)
	if err != nil {
		g.sendError(client, errMessage(err))
		return
	}
	if !gm.IsActive() {
		g.sendError(client, errMessage(game.ErrGameNotActive))
		return
	}
	g.hub.BroadcastExcept(p.GameID, client, newEnvelope(EventDrawOffer, drawOfferPayload{
		GameID: p.GameID,
		From:   client.userID,
	}))
}

func (g *Gateway) handleDrawResponse(client *Client, p drawResponsePayload) {
	if !p.Accepted {
		g.hub.BroadcastExcept(p.GameID, client, newEnvelope(EventDrawDeclined, gameRefPayload{GameID: p.GameID}))
		return
	}
	if _, err := g.games.AcceptDraw(context.Background(), p.GameID); err != nil {
		g.sendError(client, errMessage(err))
		return
	}
	g.hub.Broadcast(p.GameID, newEnvelope(EventGameOver, gameOverPayload{
		GameID: p.GameID,
		Result: "draw_agreement",
	}))
}

func (g *Gateway) handleAbort(client *Client, p gameRefPayload) {
	if _, err := g.games.Abort(context.Background(), p.GameID); err != nil {
		g.sendError(client, errMessage(err))
		return
	}
	g.hub.Broadcast(p.GameID, newEnvelope(EventGameOver, gameOverPayload{
		GameID: p.GameID,
		Result: "aborted",
	}))
}

func (g *Gateway) handleTimeUpdate(client *Client, p timeUpdatePayload) {
	gm, err := g.games.UpdateTime(context.Background(), p.GameID, p.WhiteTime, p.BlackTime)
	if err != nil {
		if !errors.Is(err, game.ErrGameNotActive) {
			g.sendError(client, errMessage(err))
		}
		return
	}
	g.hub.BroadcastExcept(p.GameID, client, newEnvelope(EventTimeUpdate, timeUpdatePayload{
		GameID:    p.GameID,
		WhiteTime: gm.WhiteTime,
		BlackTime: gm.BlackTime,
	}))
	if gm.Status == domain.StatusCompleted {
		g.hub.Broadcast(p.GameID, newEnvelope(EventGameOver, gameOverPayload{
			GameID: p.GameID,
			Result: "timeout",
			Winner: gm.Result.WinnerColor(),
		}))
	}
}

func (g *Gateway) handleJoinQueue(client *Client, p joinQueuePayload) {
	if p.TimeControl == "" || p.TimeLimit <= 0 || len(p.RatingRange) != 2 {
		g.sendError(client, "invalid queue parameters")
		return
	}
	req := queue.JoinRequest{
		Key: queue.Key{
			TimeControl:   domain.TimeControl(p.TimeControl),
			TimeLimit:     p.TimeLimit,
			TimeIncrement: p.TimeIncrement,
		},
		ConnID:      client.id,
		UserID:      client.userID,
		Rating:      p.Rating,
		RatingRange: p.RatingRange[1] - p.RatingRange[0],
		Rated:       p.IsRated,
	}
	match, position, err := g.queue.Join(context.Background(), req)
	if err != nil {
		g.logger.Error("matchmaking failed",
			zap.String("conn", client.id),
			zap.Error(err))
		g.sendError(client, "matchmaking failed")
		return
	}
	if match == nil {
		client.Send(newEnvelope(EventQueueJoined, queueJoinedPayload{Position: position}))
		return
	}

	client.Send(newEnvelope(EventMatchFound, matchFoundPayload{GameID: match.GameID, Color: "white"}))
	if opponent := g.hub.Client(match.Black.ConnID); opponent != nil {
		opponent.Send(newEnvelope(EventMatchFound, matchFoundPayload{GameID: match.GameID, Color: "black"}))
	}
}

func (g *Gateway) handleLeaveQueue(client *Client, p leaveQueuePayload) {
	g.queue.Leave(client.id, queue.Key{
		TimeControl:   domain.TimeControl(p.TimeControl),
		TimeLimit:     p.TimeLimit,
		TimeIncrement: p.TimeIncrement,
	})
	client.Send(newEnvelope(EventQueueLeft, nil))
}

func (g *Gateway) handleSendMessage(client *Client, p chatPayload) {
	if strings.TrimSpace(p.Message) == "" {
		return
	}
	g.hub.BroadcastExcept(p.GameID, client, newEnvelope(EventReceiveMessage, receiveMessagePayload{
		From:      client.userID,
		Message:   p.Message,
		Timestamp: time.Now().UnixMilli(),
	}))
}

func (g *Gateway) sendError(client *Client, msg string) {
	client.Send(newEnvelope(EventError, errorPayload{Message: msg}))
}

func winnerSeatID(gm *domain.Game) string {
	switch gm.Result {
	case domain.ResultWhiteWin:
		return gm.White.ID
	case domain.ResultBlackWin:
		return gm.Black.ID
	default:
		return ""
	}
}

// errMessage maps service errors to stable client-facing strings so
// internals never leak over the socket.
func errMessage(err error) string {
	switch {
	case errors.Is(err, ErrAuthorizationFailed):
		return "not authorized to join this game"
	case errors.Is(err, game.ErrGameNotFound):
		return "game not found"
	case errors.Is(err, game.ErrGameNotActive):
		return "game is not in progress"
	case errors.Is(err, game.ErrNotYourTurn):
		return "not your turn"
	case errors.Is(err, game.ErrNotPlayer):
		return "not a player in this game"
	case errors.Is(err, game.ErrIllegalMove):
		return "invalid move"
	case errors.Is(err, game.ErrAbortWindowClosed):
		return "game can no longer be aborted"
	case errors.Is(err, game.ErrInvalidBotID):
		return "unknown bot"
	case errors.Is(err, bot.ErrBotNotFound):
		return "unknown bot"
	default:
		return "internal error"
	}
}
