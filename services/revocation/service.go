package revocation

import (
	"errors"
	"time"

	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"go.uber.org/zap"
)

var (
	ErrChainTooLong = errors.New("refresh token chain exceeds the user's token count")
	ErrChainCycle   = errors.New("refresh token chain revisits a token")
)

// Service applies revocation mutations to tokens the caller already holds under the owner's
// unit of work. It never persists anything itself.
type Service struct {
	logger *logging.Service
	now    func() time.Time
}

func NewService(logger *logging.Service) *Service {
	return &Service{
		logger: logger.Named("revocation"),
		now:    time.Now,
	}
}

// Revoke marks an active token revoked for reason. A token that is already revoked or
// expired yields apperror.ErrInvalidToken and is left untouched.
func (s *Service) Revoke(rt *models.RefreshToken, ip, reason string) error {
	now := s.now()
	if !rt.IsActive(now) {
		if s.logger != nil {
			s.logger.Debug("refusing to revoke inactive refresh token",
				zap.Uint("token_id", rt.ID),
				zap.Bool("revoked", rt.IsRevoked()))
		}
		return apperror.ErrInvalidToken
	}

	s.mark(rt, now, ip, reason)

	if s.logger != nil {
		s.logger.Info("refresh token revoked",
			zap.Uint("token_id", rt.ID),
			zap.Uint("user_id", rt.UserID),
			zap.String("reason", reason))
	}
	return nil
}

// Supersede revokes rt as the source of a rotation and links it to successor.
func (s *Service) Supersede(rt *models.RefreshToken, ip, successor string) error {
	now := s.now()
	if !rt.IsActive(now) {
		return apperror.ErrInvalidToken
	}

	s.mark(rt, now, ip, models.ReasonReplaced)
	rt.ReplacedByToken = &successor
	return nil
}

// CascadeRevoke follows the replacement chain that starts at rt and revokes the first active
// descendant found. It reports how many tokens it revoked. Mutations made before a chain error
// are kept.
func (s *Service) CascadeRevoke(user *models.User, rt *models.RefreshToken, ip, reason string) (int, error) {
	index := make(map[string]int, len(user.RefreshTokens))
	for i := range user.RefreshTokens {
		index[user.RefreshTokens[i].Token] = i
	}

	now := s.now()
	visited := map[string]struct{}{rt.Token: {}}
	maxHops := len(user.RefreshTokens)
	revoked := 0
	current := rt

	for hops := 0; ; hops++ {
		next, ok := current.Successor()
		if !ok {
			break
		}
		if hops >= maxHops {
			s.logChainError(user, rt, ErrChainTooLong, hops)
			return revoked, ErrChainTooLong
		}
		if _, seen := visited[next]; seen {
			s.logChainError(user, rt, ErrChainCycle, hops)
			return revoked, ErrChainCycle
		}
		visited[next] = struct{}{}

		i, ok := index[next]
		if !ok {
			// successor already pruned
			break
		}
		successor := &user.RefreshTokens[i]

		if successor.IsActive(now) {
			s.mark(successor, now, ip, reason)
			revoked++
			break
		}
		current = successor
	}

	if s.logger != nil {
		s.logger.Warn("refresh token reuse cascade applied",
			zap.Uint("user_id", user.ID),
			zap.Uint("reused_token_id", rt.ID),
			zap.Int("revoked", revoked))
	}
	return revoked, nil
}

func (s *Service) mark(rt *models.RefreshToken, now time.Time, ip, reason string) {
	rt.Revoked = &now
	rt.RevokedByIP = &ip
	rt.ReasonRevoked = &reason
}

func (s *Service) logChainError(user *models.User, rt *models.RefreshToken, err error, hops int) {
	if s.logger != nil {
		s.logger.Error("refresh token chain walk aborted",
			zap.Uint("user_id", user.ID),
			zap.Uint("token_id", rt.ID),
			zap.Int("hops", hops),
			zap.Error(err))
	}
}
