package game

import (
	"fmt"
	"strings"
	"time"

	"github.com/castlegate/chess-arena/internal/domain"
)

func pgnResult(result domain.Result) string {
	switch result {
	case domain.ResultWhiteWin:
		return "1-0"
	case domain.ResultBlackWin:
		return "0-1"
	case domain.ResultDraw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

func buildPGN(g *domain.Game) string {
	if g == nil {
		return ""
	}
	result := pgnResult(g.Result)

	var b strings.Builder
	date := g.StartedAt
	if date.IsZero() {
		date = time.Now()
	}
	b.WriteString("[Event \"Live Game\"]\n")
	b.WriteString("[Site \"Chess Arena\"]\n")
	b.WriteString(fmt.Sprintf("[Date \"%04d.%02d.%02d\"]\n", date.Year(), int(date.Month()), date.Day()))
	b.WriteString(fmt.Sprintf("[White \"%s\"]\n", sanitizePGN(seatName(g.White))))
	b.WriteString(fmt.Sprintf("[Black \"%s\"]\n", sanitizePGN(seatName(g.Black))))
	if g.TimeLimit > 0 {
		b.WriteString(fmt.Sprintf("[TimeControl \"%d+%d\"]\n", g.TimeLimit, g.TimeIncrement))
	}
	if g.StartFEN != "" {
		b.WriteString("[SetUp \"1\"]\n")
		b.WriteString(fmt.Sprintf("[FEN \"%s\"]\n", sanitizePGN(g.StartFEN)))
	}
	b.WriteString(fmt.Sprintf("[Result \"%s\"]\n\n", result))

	for i := 0; i < len(g.MovesSAN); i += 2 {
		turn := (i / 2) + 1
		b.WriteString(fmt.Sprintf("%d. %s", turn, strings.TrimSpace(g.MovesSAN[i])))
		if i+1 < len(g.MovesSAN) {
			b.WriteString(" ")
			b.WriteString(strings.TrimSpace(g.MovesSAN[i+1]))
		}
		b.WriteString(" ")
	}
	b.WriteString(result)
	return b.String()
}

func seatName(ref domain.PlayerRef) string {
	if ref.IsBot() {
		return "bot:" + ref.ID
	}
	return ref.ID
}

func sanitizePGN(s string) string {
	s = strings.ReplaceAll(s, "\\", " ")
	s = strings.ReplaceAll(s, "\"", "'")
	return strings.TrimSpace(s)
}
