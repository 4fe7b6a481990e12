// Package scheduler runs at most one background campaign per chat and stops
// them all on shutdown.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrAlreadyRunning = errors.New("scheduler: campaign already running for this chat")
	ErrClosed         = errors.New("scheduler: shutting down")
)

// Task is the body of a background campaign. It must return once ctx is
// cancelled.
type Task func(ctx context.Context)

type handle struct {
	cancel  context.CancelFunc
	started time.Time
}

type Scheduler struct {
	log *zap.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	running map[int64]*handle
	closed  bool
}

func New(log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{log: log.Named("scheduler"), running: make(map[int64]*handle)}
}

// Start launches task for chatID on its own goroutine. The task context is
// derived from parent and also ends on Cancel or Shutdown.
func (s *Scheduler) Start(parent context.Context, chatID int64, task Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.running[chatID]; ok {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(parent)
	h := &handle{cancel: cancel, started: time.Now()}
	s.running[chatID] = h

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.finish(chatID, h)
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("campaign task panicked", zap.Int64("chat_id", chatID), zap.Any("panic", rec), zap.Stack("stack"))
			}
		}()
		task(ctx)
	}()
	return nil
}

func (s *Scheduler) finish(chatID int64, h *handle) {
	h.cancel()
	s.mu.Lock()
	if s.running[chatID] == h {
		delete(s.running, chatID)
	}
	s.mu.Unlock()
	s.log.Debug("campaign task done", zap.Int64("chat_id", chatID), zap.Duration("took", time.Since(h.started)))
}

// Cancel asks the chat's campaign to stop. It reports whether one was running.
func (s *Scheduler) Cancel(chatID int64) bool {
	s.mu.Lock()
	h, ok := s.running[chatID]
	s.mu.Unlock()
	if ok {
		h.cancel()
	}
	return ok
}

func (s *Scheduler) Running(chatID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.running[chatID]
	return ok
}

// Wait blocks until every started task has returned.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Shutdown refuses new tasks, cancels running ones and waits for them or for
// ctx to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	for _, h := range s.running {
		h.cancel()
	}
	n := len(s.running)
	s.mu.Unlock()

	if n > 0 {
		s.log.Info("stopping campaigns", zap.Int("running", n))
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run blocks until ctx is done and then shuts the scheduler down, giving
// tasks grace to report their final state.
func (s *Scheduler) Run(ctx context.Context, grace time.Duration) error {
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}
