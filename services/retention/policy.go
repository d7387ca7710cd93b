package retention

import (
	"time"

	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/metrics"
	"go.uber.org/zap"
)

// Policy removes inactive tokens once they are older than the retention TTL. Active tokens are
// never removed.
type Policy struct {
	ttl     time.Duration
	logger  *logging.Service
	metrics *metrics.Metrics
	now     func() time.Time
}

func NewPolicy(cfg *config.Config, logger *logging.Service, m *metrics.Metrics) *Policy {
	return &Policy{
		ttl:     cfg.RefreshToken.RetentionTTL,
		logger:  logger.Named("retention"),
		metrics: m,
		now:     time.Now,
	}
}

// Prune drops expired or revoked tokens whose creation is at least TTL in the past and returns
// how many were dropped. The survivors keep their order.
func (p *Policy) Prune(user *models.User) int {
	now := p.now()
	kept := user.RefreshTokens[:0]
	removed := 0

	for _, rt := range user.RefreshTokens {
		if !rt.IsActive(now) && !rt.Created.Add(p.ttl).After(now) {
			removed++
			continue
		}
		kept = append(kept, rt)
	}
	user.RefreshTokens = kept

	if removed > 0 {
		p.metrics.AddPruned(removed)
		if p.logger != nil {
			p.logger.Debug("pruned refresh tokens",
				zap.Uint("user_id", user.ID),
				zap.Int("removed", removed),
				zap.Int("remaining", len(kept)))
		}
	}
	return removed
}
