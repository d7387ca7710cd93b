package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/tokenstore"
	"go.uber.org/zap"
)

var errNothingPruned = errors.New("nothing pruned")

// Sweeper periodically prunes every user's token collection so that users who never
// authenticate again do not keep stale tokens forever.
type Sweeper struct {
	store    tokenstore.Store
	policy   *Policy
	interval time.Duration
	logger   *logging.Service

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewSweeper(store tokenstore.Store, policy *Policy, interval time.Duration, logger *logging.Service) *Sweeper {
	return &Sweeper{
		store:    store,
		policy:   policy,
		interval: interval,
		logger:   logger.Named("sweeper"),
	}
}

// Start launches the sweep loop. It is a no-op when the interval is not positive or the loop
// is already running.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.interval <= 0 || s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.run(ctx, s.done)

	if s.logger != nil {
		s.logger.Info("started refresh token retention sweeper", zap.Duration("interval", s.interval))
	}
}

// Stop cancels the loop and waits for it to exit.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	if s.logger != nil {
		s.logger.Info("stopped refresh token retention sweeper")
	}
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil && s.logger != nil && ctx.Err() == nil {
				s.logger.Error("refresh token retention sweep failed", zap.Error(err))
			}
		}
	}
}

// SweepOnce prunes every user and returns the number of tokens removed. A failure for one user
// does not stop the sweep; the first error is returned after all users were visited.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	ids, err := s.store.ListUserIDs(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list users for retention sweep: %w", err)
	}

	total := 0
	var firstErr error
	for _, id := range ids {
		if ctx.Err() != nil {
			return total, ctx.Err()
		}

		removed := 0
		err := s.store.Update(ctx, id, func(user *models.User) error {
			removed = s.policy.Prune(user)
			if removed == 0 {
				return errNothingPruned
			}
			return nil
		})
		if err != nil && !errors.Is(err, errNothingPruned) {
			if s.logger != nil {
				s.logger.Warn("failed to prune user refresh tokens", zap.Uint("user_id", id), zap.Error(err))
			}
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if err == nil {
			total += removed
		}
	}

	if total > 0 && s.logger != nil {
		s.logger.Info("retention sweep completed", zap.Int("removed", total), zap.Int("users", len(ids)))
	}
	return total, firstErr
}
