package gateway

import (
	"encoding/json"

	"github.com/castlegate/chess-arena/internal/domain"
)

// Event names shared with the web client.
const (
	EventJoinGame       = "join_game"
	EventLeaveGame      = "leave_game"
	EventGameJoined     = "game_joined"
	EventMakeMove       = "make_move"
	EventMoveMade       = "move_made"
	EventGameOver       = "game_over"
	EventResign         = "resign"
	EventDrawOffer      = "draw_offer"
	EventDrawResponse   = "draw_response"
	EventDrawDeclined   = "draw_declined"
	EventAbortGame      = "abort_game"
	EventTimeUpdate     = "time_update"
	EventJoinQueue      = "join_queue"
	EventQueueJoined    = "queue_joined"
	EventLeaveQueue     = "leave_queue"
	EventQueueLeft      = "queue_left"
	EventMatchFound     = "match_found"
	EventSendMessage    = "send_message"
	EventReceiveMessage = "receive_message"
	EventError          = "error"
)

// Envelope is the one frame shape on the wire: an event name plus an
// event-specific payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func newEnvelope(event string, payload any) Envelope {
	if payload == nil {
		return Envelope{Event: event}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		// Payloads are our own structs; a marshal failure is a bug.
		panic(err)
	}
	return Envelope{Event: event, Data: raw}
}

type gameRefPayload struct {
	GameID string `json:"gameId"`
}

type gameJoinedPayload struct {
	GameID string       `json:"gameId"`
	Game   *domain.Game `json:"game"`
}

type makeMovePayload struct {
	GameID string `json:"gameId"`
	Move   string `json:"move"`
}

type moveMadePayload struct {
	GameID      string `json:"gameId"`
	Move        string `json:"move"`
	UCI         string `json:"uci"`
	FEN         string `json:"fen"`
	IsCheck     bool   `json:"isCheck"`
	IsCheckmate bool   `json:"isCheckmate"`
	IsStalemate bool   `json:"isStalemate"`
	IsDraw      bool   `json:"isDraw"`
}

type gameOverPayload struct {
	GameID string `json:"gameId"`
	Result string `json:"result"`
	Winner string `json:"winner,omitempty"`
}

type drawOfferPayload struct {
	GameID string `json:"gameId"`
	From   string `json:"from"`
}

type drawResponsePayload struct {
	GameID   string `json:"gameId"`
	Accepted bool   `json:"accepted"`
}

type timeUpdatePayload struct {
	GameID    string `json:"gameId"`
	WhiteTime int    `json:"whiteTime"`
	BlackTime int    `json:"blackTime"`
}

type joinQueuePayload struct {
	TimeControl   string `json:"timeControl"`
	TimeLimit     int    `json:"timeLimit"`
	TimeIncrement int    `json:"timeIncrement"`
	Rating        int    `json:"rating"`
	RatingRange   []int  `json:"ratingRange"`
	IsRated       bool   `json:"isRated"`
}

type leaveQueuePayload struct {
	TimeControl   string `json:"timeControl"`
	TimeLimit     int    `json:"timeLimit"`
	TimeIncrement int    `json:"timeIncrement"`
}

type queueJoinedPayload struct {
	Position int `json:"position"`
}

type matchFoundPayload struct {
	GameID string `json:"gameId"`
	Color  string `json:"color"`
}

type chatPayload struct {
	GameID  string `json:"gameId"`
	Message string `json:"message"`
}

type receiveMessagePayload struct {
	From      string `json:"from"`
	Message   string `json:"message"`
	Timestamp int64  `json:"timestamp"`
}

type errorPayload struct {
	Message string `json:"message"`
}
