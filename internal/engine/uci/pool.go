package uci

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"
)

type PoolConfig struct {
	BinaryPath string
	Capacity   int
}

// Pool maintains a bounded set of engine processes. Sessions are
// spawned lazily on first use; a failed spawn frees the slot so a
// later request can retry.
type Pool struct {
	binaryPath string
	capacity   int

	mu    sync.Mutex
	total int
	idle  chan *session
}

var errPoolAtCapacity = errors.New("engine pool at capacity")

func NewPool(cfg PoolConfig) (*Pool, error) {
	if cfg.BinaryPath == "" {
		return nil, fmt.Errorf("binary path required")
	}
	if _, err := os.Stat(cfg.BinaryPath); err != nil {
		return nil, fmt.Errorf("stockfish binary check: %w", err)
	}

	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultCapacity()
	}
	return &Pool{
		binaryPath: cfg.BinaryPath,
		capacity:   capacity,
		idle:       make(chan *session, capacity),
	}, nil
}

// BestMove checks out a session, runs the search, and returns the
// session to the pool. Sessions that error are killed rather than
// reused.
func (p *Pool) BestMove(ctx context.Context, req Request) (string, error) {
	s, err := p.acquire(ctx)
	if err != nil {
		return "", err
	}
	mv, err := s.bestMove(ctx, req)
	p.release(s, err)
	return mv, err
}

func (p *Pool) acquire(ctx context.Context) (*session, error) {
	for {
		select {
		case s := <-p.idle:
			if s == nil {
				continue
			}
			if err := s.ensureReady(ctx); err != nil {
				p.discard(s)
				continue
			}
			return s, nil
		default:
		}

		s, err := p.create(ctx)
		if err == nil {
			return s, nil
		}
		if !errors.Is(err, errPoolAtCapacity) {
			return nil, fmt.Errorf("%w: %v", ErrEngineUnavailable, err)
		}

		select {
		case s := <-p.idle:
			if s == nil {
				continue
			}
			if err := s.ensureReady(ctx); err != nil {
				p.discard(s)
				continue
			}
			return s, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Pool) create(ctx context.Context) (*session, error) {
	p.mu.Lock()
	if p.total >= p.capacity {
		p.mu.Unlock()
		return nil, errPoolAtCapacity
	}
	p.total++
	p.mu.Unlock()

	s, err := newSession(ctx, p.binaryPath)
	if err != nil {
		p.decrement()
		return nil, err
	}
	return s, nil
}

func (p *Pool) release(s *session, err error) {
	if s == nil {
		return
	}
	if err != nil && !errors.Is(err, ErrNoBestMove) {
		p.discard(s)
		return
	}
	select {
	case p.idle <- s:
	default:
		p.discard(s)
	}
}

func (p *Pool) discard(s *session) {
	if s != nil {
		_ = s.close()
	}
	p.decrement()
}

func (p *Pool) decrement() {
	p.mu.Lock()
	if p.total > 0 {
		p.total--
	}
	p.mu.Unlock()
}

func (p *Pool) Close() error {
	var errs []error
	for {
		select {
		case s := <-p.idle:
			if s == nil {
				continue
			}
			if err := s.close(); err != nil {
				errs = append(errs, err)
			}
			p.decrement()
		default:
			if len(errs) > 0 {
				return errors.Join(errs...)
			}
			return nil
		}
	}
}

func defaultCapacity() int {
	cpu := runtime.NumCPU()
	if cpu < 2 {
		return 2
	}
	if cpu > 4 {
		return 4
	}
	return cpu
}
