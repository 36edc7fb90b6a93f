package gateway

import (
	"encoding/json"
	"testing"

	"github.com/castlegate/chess-arena/internal/bot"
	"github.com/castlegate/chess-arena/internal/domain"
	"github.com/castlegate/chess-arena/internal/game"
	"github.com/castlegate/chess-arena/internal/queue"
)

type staticVerifier struct{}

func (staticVerifier) Verify(token string) (string, error) { return token, nil }

func newTestGateway(t *testing.T) (*Gateway, *game.Service) {
	t.Helper()
	profiles, err := bot.NewProfileSet([]domain.BotProfile{
		{ID: "rookie", Name: "Rookie", SkillLevel: 2},
	})
	if err != nil {
		t.Fatalf("profiles: %v", err)
	}
	games := game.New(game.NewMemoryRepository(), nil, bot.NewGenerator(nil, profiles, nil), nil)
	q := queue.New(games, nil)
	return New(games, q, staticVerifier{}, nil, nil), games
}

func connect(g *Gateway, connID, userID string) *Client {
	c := newClient(connID, userID, nil)
	g.hub.Register(c)
	return c
}

func send(t *testing.T, g *Gateway, c *Client, event string, payload any) {
	t.Helper()
	g.dispatch(c, newEnvelope(event, payload))
}

func decode[T any](t *testing.T, ev Envelope) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(ev.Data, &out); err != nil {
		t.Fatalf("decode %s: %v", ev.Event, err)
	}
	return out
}

func expectEvent(t *testing.T, c *Client, event string) Envelope {
	t.Helper()
	ev := mustRecv(t, c)
	if ev.Event != event {
		t.Fatalf("%s got event %s, want %s", c.id, ev.Event, event)
	}
	return ev
}

func startGame(t *testing.T, g *Gateway, games *game.Service, white, black *Client) *domain.Game {
	t.Helper()
	gm, err := games.CreateGame(t.Context(), white.userID, black.userID, domain.TimeControlBlitz, 300, 0, false)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	for _, c := range []*Client{white, black} {
		send(t, g, c, EventJoinGame, gameRefPayload{GameID: gm.ID})
		expectEvent(t, c, EventGameJoined)
	}
	return gm
}

func TestJoinGameAuthorization(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	stranger := connect(g, "c-s", "u-s")

	gm, err := games.CreateGame(t.Context(), "u-w", "u-b", domain.TimeControlBlitz, 300, 0, false)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}

	send(t, g, white, EventJoinGame, gameRefPayload{GameID: gm.ID})
	joined := decode[gameJoinedPayload](t, expectEvent(t, white, EventGameJoined))
	if joined.Game == nil || joined.GameID != gm.ID {
		t.Fatalf("payload: %+v", joined)
	}

	send(t, g, stranger, EventJoinGame, gameRefPayload{GameID: gm.ID})
	refused := decode[errorPayload](t, expectEvent(t, stranger, EventError))
	if refused.Message != "not authorized to join this game" {
		t.Fatalf("message: %s", refused.Message)
	}
	if g.hub.RoomSize(gm.ID) != 1 {
		t.Fatalf("room size: %d", g.hub.RoomSize(gm.ID))
	}

	send(t, g, white, EventJoinGame, gameRefPayload{GameID: "missing"})
	ev := decode[errorPayload](t, expectEvent(t, white, EventError))
	if ev.Message != "game not found" {
		t.Fatalf("message: %s", ev.Message)
	}
}

func TestMakeMoveBroadcastAndPrivateErrors(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	black := connect(g, "c-b", "u-b")
	gm := startGame(t, g, games, white, black)

	send(t, g, white, EventMakeMove, makeMovePayload{GameID: gm.ID, Move: "e4"})
	for _, c := range []*Client{white, black} {
		made := decode[moveMadePayload](t, expectEvent(t, c, EventMoveMade))
		if made.Move != "e4" || made.UCI != "e2e4" {
			t.Fatalf("payload: %+v", made)
		}
	}

	// Out-of-turn move errors only the offender.
	send(t, g, white, EventMakeMove, makeMovePayload{GameID: gm.ID, Move: "d4"})
	msg := decode[errorPayload](t, expectEvent(t, white, EventError))
	if msg.Message != "not your turn" {
		t.Fatalf("message: %s", msg.Message)
	}
	assertNoEvent(t, black)

	send(t, g, black, EventMakeMove, makeMovePayload{GameID: gm.ID, Move: "e2e4"})
	msg = decode[errorPayload](t, expectEvent(t, black, EventError))
	if msg.Message != "invalid move" {
		t.Fatalf("message: %s", msg.Message)
	}
	assertNoEvent(t, white)
}

func TestCheckmateBroadcastsGameOver(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	black := connect(g, "c-b", "u-b")
	gm := startGame(t, g, games, white, black)

	// Fool's mate.
	moves := []struct {
		c  *Client
		mv string
	}{
		{white, "f3"}, {black, "e5"}, {white, "g4"}, {black, "Qh4#"},
	}
	for _, step := range moves[:3] {
		send(t, g, step.c, EventMakeMove, makeMovePayload{GameID: gm.ID, Move: step.mv})
		expectEvent(t, white, EventMoveMade)
		expectEvent(t, black, EventMoveMade)
	}
	send(t, g, black, EventMakeMove, makeMovePayload{GameID: gm.ID, Move: "Qh4#"})
	for _, c := range []*Client{white, black} {
		made := decode[moveMadePayload](t, expectEvent(t, c, EventMoveMade))
		if !made.IsCheckmate {
			t.Fatalf("payload: %+v", made)
		}
		over := decode[gameOverPayload](t, expectEvent(t, c, EventGameOver))
		if over.Result != "checkmate" || over.Winner != "black" {
			t.Fatalf("game over: %+v", over)
		}
	}
}

func TestResignBroadcastsOpponentAsWinner(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	black := connect(g, "c-b", "u-b")
	gm := startGame(t, g, games, white, black)

	send(t, g, white, EventResign, gameRefPayload{GameID: gm.ID})
	for _, c := range []*Client{white, black} {
		over := decode[gameOverPayload](t, expectEvent(t, c, EventGameOver))
		if over.Result != "resignation" || over.Winner != "u-b" {
			t.Fatalf("game over: %+v", over)
		}
	}
}

func TestDrawOfferFlow(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	black := connect(g, "c-b", "u-b")
	gm := startGame(t, g, games, white, black)

	send(t, g, white, EventDrawOffer, gameRefPayload{GameID: gm.ID})
	offer := decode[drawOfferPayload](t, expectEvent(t, black, EventDrawOffer))
	if offer.From != "u-w" {
		t.Fatalf("offer: %+v", offer)
	}
	assertNoEvent(t, white)

	send(t, g, black, EventDrawResponse, drawResponsePayload{GameID: gm.ID, Accepted: false})
	expectEvent(t, white, EventDrawDeclined)
	assertNoEvent(t, black)

	send(t, g, black, EventDrawResponse, drawResponsePayload{GameID: gm.ID, Accepted: true})
	for _, c := range []*Client{white, black} {
		over := decode[gameOverPayload](t, expectEvent(t, c, EventGameOver))
		if over.Result != "draw_agreement" {
			t.Fatalf("game over: %+v", over)
		}
	}
}

func TestTimeUpdateRelayAndTimeout(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	black := connect(g, "c-b", "u-b")
	gm := startGame(t, g, games, white, black)

	send(t, g, white, EventTimeUpdate, timeUpdatePayload{GameID: gm.ID, WhiteTime: 120, BlackTime: 100})
	sync := decode[timeUpdatePayload](t, expectEvent(t, black, EventTimeUpdate))
	if sync.WhiteTime != 120 || sync.BlackTime != 100 {
		t.Fatalf("sync: %+v", sync)
	}
	assertNoEvent(t, white)

	send(t, g, black, EventTimeUpdate, timeUpdatePayload{GameID: gm.ID, WhiteTime: 0, BlackTime: 45})
	expectEvent(t, white, EventTimeUpdate)
	for _, c := range []*Client{white, black} {
		over := decode[gameOverPayload](t, expectEvent(t, c, EventGameOver))
		if over.Result != "timeout" || over.Winner != "black" {
			t.Fatalf("game over: %+v", over)
		}
	}
}

func TestAbortBroadcast(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	black := connect(g, "c-b", "u-b")
	gm := startGame(t, g, games, white, black)

	send(t, g, white, EventAbortGame, gameRefPayload{GameID: gm.ID})
	for _, c := range []*Client{white, black} {
		over := decode[gameOverPayload](t, expectEvent(t, c, EventGameOver))
		if over.Result != "aborted" || over.Winner != "" {
			t.Fatalf("game over: %+v", over)
		}
	}
}

func TestBotGameMoveChaining(t *testing.T) {
	g, games := newTestGateway(t)
	human := connect(g, "c-h", "u-h")

	gm, err := games.CreateBotGame(t.Context(), "u-h", "rookie", domain.TimeControlRapid, 600, 0, false)
	if err != nil {
		t.Fatalf("create bot game: %v", err)
	}
	send(t, g, human, EventJoinGame, gameRefPayload{GameID: gm.ID})
	expectEvent(t, human, EventGameJoined)

	send(t, g, human, EventMakeMove, makeMovePayload{GameID: gm.ID, Move: "e4"})
	first := decode[moveMadePayload](t, expectEvent(t, human, EventMoveMade))
	if first.UCI != "e2e4" {
		t.Fatalf("first move: %+v", first)
	}
	// The bot replies in the same dispatch.
	expectEvent(t, human, EventMoveMade)

	got, err := games.Game(t.Context(), gm.ID)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(got.MovesUCI) != 2 || got.Turn != "w" {
		t.Fatalf("after chaining: moves=%v turn=%s", got.MovesUCI, got.Turn)
	}
}

func TestBotResumeOnJoin(t *testing.T) {
	g, games := newTestGateway(t)
	human := connect(g, "c-h", "u-h")

	// Bot plays white, so its opening move lands during creation and
	// the rejoin nudge has nothing left to do.
	gm, err := games.CreateBotGame(t.Context(), "u-h", "rookie", domain.TimeControlRapid, 600, 0, true)
	if err != nil {
		t.Fatalf("create bot game: %v", err)
	}
	send(t, g, human, EventJoinGame, gameRefPayload{GameID: gm.ID})
	joined := decode[gameJoinedPayload](t, expectEvent(t, human, EventGameJoined))
	if len(joined.Game.MovesUCI) != 1 {
		t.Fatalf("opening move missing: %+v", joined.Game)
	}
	assertNoEvent(t, human)
}

func TestQueueMatchFlow(t *testing.T) {
	g, _ := newTestGateway(t)
	a := connect(g, "c-a", "u-a")
	b := connect(g, "c-b", "u-b")

	join := joinQueuePayload{
		TimeControl: "blitz", TimeLimit: 300, TimeIncrement: 0,
		Rating: 1500, RatingRange: []int{1400, 1600},
	}
	send(t, g, a, EventJoinQueue, join)
	pos := decode[queueJoinedPayload](t, expectEvent(t, a, EventQueueJoined))
	if pos.Position != 1 {
		t.Fatalf("position: %d", pos.Position)
	}

	join.Rating = 1550
	send(t, g, b, EventJoinQueue, join)
	matchB := decode[matchFoundPayload](t, expectEvent(t, b, EventMatchFound))
	matchA := decode[matchFoundPayload](t, expectEvent(t, a, EventMatchFound))
	if matchA.GameID != matchB.GameID {
		t.Fatalf("game ids differ: %s %s", matchA.GameID, matchB.GameID)
	}
	if matchB.Color != "white" || matchA.Color != "black" {
		t.Fatalf("colors: a=%s b=%s", matchA.Color, matchB.Color)
	}
}

func TestQueueValidationAndLeave(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "c-1", "u-1")

	send(t, g, c, EventJoinQueue, joinQueuePayload{TimeControl: "blitz"})
	expectEvent(t, c, EventError)

	send(t, g, c, EventJoinQueue, joinQueuePayload{
		TimeControl: "blitz", TimeLimit: 300,
		Rating: 1500, RatingRange: []int{1400, 1600},
	})
	expectEvent(t, c, EventQueueJoined)

	send(t, g, c, EventLeaveQueue, leaveQueuePayload{TimeControl: "blitz", TimeLimit: 300})
	expectEvent(t, c, EventQueueLeft)

	// Leaving again still acknowledges.
	send(t, g, c, EventLeaveQueue, leaveQueuePayload{TimeControl: "blitz", TimeLimit: 300})
	expectEvent(t, c, EventQueueLeft)
}

func TestChatRelay(t *testing.T) {
	g, games := newTestGateway(t)
	white := connect(g, "c-w", "u-w")
	black := connect(g, "c-b", "u-b")
	gm := startGame(t, g, games, white, black)

	send(t, g, white, EventSendMessage, chatPayload{GameID: gm.ID, Message: "gl hf"})
	msg := decode[receiveMessagePayload](t, expectEvent(t, black, EventReceiveMessage))
	if msg.From != "u-w" || msg.Message != "gl hf" {
		t.Fatalf("chat: %+v", msg)
	}
	assertNoEvent(t, white)

	send(t, g, white, EventSendMessage, chatPayload{GameID: gm.ID, Message: "   "})
	assertNoEvent(t, black)
}

func TestMalformedPayload(t *testing.T) {
	g, _ := newTestGateway(t)
	c := connect(g, "c-1", "u-1")

	g.dispatch(c, Envelope{Event: EventMakeMove, Data: json.RawMessage(`{"gameId":42}`)})
	msg := decode[errorPayload](t, expectEvent(t, c, EventError))
	if msg.Message != "malformed payload" {
		t.Fatalf("message: %s", msg.Message)
	}
}
