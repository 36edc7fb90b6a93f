// Package uci speaks the UCI text protocol to an external Stockfish
// process. Sessions are pooled and reconfigured per request; strength
// is set through the Skill Level option rather than per-session
// presets.
package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

const (
	defaultReadyTimeout = 4 * time.Second
	searchGraceMillis   = 2000

	MinSkillLevel = 0
	MaxSkillLevel = 20
)

var (
	// ErrEngineUnavailable means the engine process could not be
	// started or initialized. Callers may retry later.
	ErrEngineUnavailable = errors.New("engine unavailable")
	// ErrEngineTimeout means a search did not produce a bestmove
	// within its deadline.
	ErrEngineTimeout = errors.New("engine search timed out")
	// ErrNoBestMove means the engine answered "bestmove (none)",
	// which happens when the position is already terminal.
	ErrNoBestMove = errors.New("engine returned no move")
)

// Request is one best-move query. FEN may be empty for the start
// position. MoveTimeMillis bounds the engine's own search time.
type Request struct {
	FEN            string
	SkillLevel     int
	MoveTimeMillis int
}

type session struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	mu     sync.Mutex
	search sync.Mutex

	skillLevel int
}

func newSession(ctx context.Context, binaryPath string) (*session, error) {
	cmd := exec.CommandContext(ctx, binaryPath)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("create stdin pipe: %w", err)
	}
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("create stdout pipe: %w", err)
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		stdin.Close()
		stdoutPipe.Close()
		return nil, fmt.Errorf("start engine: %w", err)
	}

	s := &session{
		cmd:        cmd,
		stdin:      stdin,
		stdout:     bufio.NewReader(stdoutPipe),
		skillLevel: -1,
	}

	if err := s.initialize(ctx); err != nil {
		s.close()
		return nil, err
	}
	return s, nil
}

func (s *session) initialize(ctx context.Context) error {
	initCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("uci\n"); err != nil {
		return fmt.Errorf("send uci: %w", err)
	}
	if err := s.awaitToken(initCtx, "uciok"); err != nil {
		return fmt.Errorf("wait uciok: %w", err)
	}

	cmds := []string{
		"setoption name Threads value 1\n",
		"setoption name Hash value 16\n",
		"setoption name Minimum Thinking Time value 10\n",
		"setoption name Move Overhead value 100\n",
	}
	for _, cmd := range cmds {
		if err := s.send(cmd); err != nil {
			return fmt.Errorf("apply options: %w", err)
		}
	}

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(initCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

// bestMove runs one search. The skill option is only resent when it
// differs from the session's last configured level.
func (s *session) bestMove(ctx context.Context, req Request) (string, error) {
	if req.SkillLevel < MinSkillLevel || req.SkillLevel > MaxSkillLevel {
		return "", fmt.Errorf("skill level %d out of range %d-%d", req.SkillLevel, MinSkillLevel, MaxSkillLevel)
	}
	if req.MoveTimeMillis <= 0 {
		return "", fmt.Errorf("move time must be > 0: %d", req.MoveTimeMillis)
	}

	s.search.Lock()
	defer s.search.Unlock()

	if req.SkillLevel != s.skillLevel {
		if err := s.send(fmt.Sprintf("setoption name Skill Level value %d\n", req.SkillLevel)); err != nil {
			return "", fmt.Errorf("send skill level: %w", err)
		}
		s.skillLevel = req.SkillLevel
	}

	positionCmd := buildPositionCommand(req.FEN)
	if err := s.send(positionCmd); err != nil {
		return "", fmt.Errorf("send position: %w", err)
	}
	goCmd := "go movetime " + strconv.Itoa(req.MoveTimeMillis)
	if err := s.send(goCmd + "\n"); err != nil {
		return "", fmt.Errorf("send go: %w", err)
	}

	searchCtx, cancel := context.WithTimeout(ctx, searchDeadline(req.MoveTimeMillis))
	defer cancel()

	for {
		line, err := s.readLine(searchCtx)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				log.Printf("[uci] search deadline exceeded (position=%s, go=%s)", strings.TrimSpace(positionCmd), goCmd)
				return "", ErrEngineTimeout
			}
			return "", fmt.Errorf("read line: %w", err)
		}
		mv, ok, err := parseBestMove(line)
		if err != nil {
			return "", err
		}
		if ok {
			return mv, nil
		}
	}
}

func buildPositionCommand(fen string) string {
	fen = strings.TrimSpace(fen)
	if fen == "" || fen == "startpos" {
		return "position startpos\n"
	}
	return "position fen " + fen + "\n"
}

// parseBestMove reports ok=false for lines other than bestmove,
// letting the read loop skip info chatter.
func parseBestMove(line string) (string, bool, error) {
	if !strings.HasPrefix(line, "bestmove") {
		return "", false, nil
	}
	parts := strings.Fields(line)
	if len(parts) < 2 {
		return "", false, fmt.Errorf("malformed bestmove line %q", line)
	}
	if parts[1] == "(none)" {
		return "", false, ErrNoBestMove
	}
	return strings.ToLower(parts[1]), true, nil
}

func searchDeadline(moveTimeMillis int) time.Duration {
	return time.Duration(moveTimeMillis+searchGraceMillis) * time.Millisecond * 3
}

func (s *session) ensureReady(ctx context.Context) error {
	readyCtx, cancel := context.WithTimeout(ctx, defaultReadyTimeout)
	defer cancel()

	if err := s.send("isready\n"); err != nil {
		return fmt.Errorf("send isready: %w", err)
	}
	if err := s.awaitToken(readyCtx, "readyok"); err != nil {
		return fmt.Errorf("wait readyok: %w", err)
	}
	return nil
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stdin != nil {
		// Ask the engine to exit on its own before resorting to Kill.
		_, _ = io.WriteString(s.stdin, "quit\n")
		s.stdin.Close()
	}
	if s.cmd != nil && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	if s.cmd != nil {
		return s.cmd.Wait()
	}
	return nil
}

func (s *session) send(msg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := io.WriteString(s.stdin, msg)
	return err
}

func (s *session) awaitToken(ctx context.Context, token string) error {
	for {
		line, err := s.readLine(ctx)
		if err != nil {
			return err
		}
		if strings.Contains(line, token) {
			return nil
		}
	}
}

func (s *session) readLine(ctx context.Context) (string, error) {
	type result struct {
		line string
		err  error
	}
	ch := make(chan result, 1)

	go func() {
		line, err := s.stdout.ReadString('\n')
		ch <- result{line: strings.TrimSpace(line), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		return res.line, res.err
	}
}
