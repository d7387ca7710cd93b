package refreshtoken

import (
	"context"
	"errors"
	"time"

	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/metrics"
	"github.com/tech-arch1tect/tokenchain/services/retention"
	"github.com/tech-arch1tect/tokenchain/services/revocation"
	"github.com/tech-arch1tect/tokenchain/services/tokencodec"
	"github.com/tech-arch1tect/tokenchain/services/tokenstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// errNoChange aborts a unit of work that has nothing to persist.
var errNoChange = errors.New("no token mutation to persist")

type Service struct {
	store      tokenstore.Store
	codec      *tokencodec.Codec
	revocation *revocation.Service
	retention  *retention.Policy
	metrics    *metrics.Metrics
	logger     *logging.Service
	tracer     trace.Tracer
	now        func() time.Time
}

func NewService(
	store tokenstore.Store,
	codec *tokencodec.Codec,
	revocationService *revocation.Service,
	policy *retention.Policy,
	m *metrics.Metrics,
	logger *logging.Service,
) *Service {
	return &Service{
		store:      store,
		codec:      codec,
		revocation: revocationService,
		retention:  policy,
		metrics:    m,
		logger:     logger.Named("refreshtoken"),
		tracer:     otel.Tracer("github.com/tech-arch1tect/tokenchain/services/refreshtoken"),
		now:        time.Now,
	}
}

// Refresh exchanges an active refresh token for a new pair. Presenting a revoked token revokes
// the live descendant of its chain and fails. Every rejection is apperror.ErrInvalidToken.
func (s *Service) Refresh(ctx context.Context, token string, origin models.Origin) (pair *TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "RefreshToken.Refresh",
		trace.WithAttributes(attribute.String("client.ip", origin.IP)))
	started := time.Now()
	defer func() {
		s.metrics.ObserveRefresh(err, time.Since(started))
		endSpan(span, err)
	}()

	if token == "" {
		return nil, apperror.ErrInvalidToken
	}

	userID, err := s.store.FindUserIDByToken(ctx, token)
	if err != nil {
		return nil, s.mapError("refresh", err)
	}
	span.SetAttributes(attribute.Int64("user.id", int64(userID)))

	var (
		reused      bool
		cascaded    int
		issued      *models.RefreshToken
		owner       *models.User
		accessToken string
	)

	err = s.store.Update(ctx, userID, func(user *models.User) error {
		i := user.FindToken(token)
		if i < 0 {
			return apperror.ErrInvalidToken
		}
		current := &user.RefreshTokens[i]

		if current.IsRevoked() {
			reused = true
			n, cerr := s.revocation.CascadeRevoke(user, current, origin.IP, models.ReasonReuseDetected)
			if cerr != nil {
				s.metrics.IncChainError()
				if s.logger != nil {
					s.logger.Error("reuse cascade aborted", zap.Uint("user_id", user.ID), zap.Error(cerr))
				}
			}
			cascaded = n
			if n == 0 {
				return errNoChange
			}
			return nil
		}

		if current.IsExpired(s.now()) {
			return apperror.ErrInvalidToken
		}

		next, err := s.codec.IssueRefreshToken(ctx, origin)
		if err != nil {
			return err
		}
		if err := s.revocation.Supersede(current, origin.IP, next.Token); err != nil {
			return err
		}

		user.RefreshTokens = append(user.RefreshTokens, *next)
		s.retention.Prune(user)

		// signed before commit so a signing failure leaves the source token active
		accessToken, err = s.codec.IssueAccessToken(user)
		if err != nil {
			return err
		}
		issued = next
		owner = user
		return nil
	})

	if reused {
		s.metrics.IncReuseDetected()
		span.AddEvent("refresh_token.reuse_detected")
		switch {
		case err == nil:
			s.metrics.AddRevoked(models.ReasonReuseDetected, cascaded)
		case errors.Is(err, errNoChange):
		default:
			if s.logger != nil {
				s.logger.Error("failed to persist reuse cascade", zap.Uint("user_id", userID), zap.Error(err))
			}
		}
		if s.logger != nil {
			s.logger.Warn("revoked refresh token presented",
				zap.Uint("user_id", userID),
				zap.String("ip", origin.IP),
				zap.Int("revoked_descendants", cascaded))
		}
		return nil, apperror.ErrInvalidToken
	}
	if err != nil {
		return nil, s.mapError("refresh", err)
	}
	s.metrics.AddRevoked(models.ReasonReplaced, 1)

	if s.logger != nil {
		s.logger.Info("refresh token rotated", zap.Uint("user_id", owner.ID))
	}

	return &TokenPair{
		User:           owner,
		AccessToken:    accessToken,
		RefreshToken:   issued.Token,
		RefreshExpires: issued.Expires,
	}, nil
}

// RevokeToken manually revokes an active refresh token on behalf of ip.
func (s *Service) RevokeToken(ctx context.Context, token, ip string) (err error) {
	ctx, span := s.tracer.Start(ctx, "RefreshToken.Revoke")
	defer func() { endSpan(span, err) }()

	if token == "" {
		return apperror.Validation("token", "token is required")
	}

	userID, err := s.store.FindUserIDByToken(ctx, token)
	if err != nil {
		return s.mapError("revoke", err)
	}

	err = s.store.Update(ctx, userID, func(user *models.User) error {
		i := user.FindToken(token)
		if i < 0 {
			return apperror.ErrInvalidToken
		}
		return s.revocation.Revoke(&user.RefreshTokens[i], ip, models.ReasonManual)
	})
	if err != nil {
		return s.mapError("revoke", err)
	}

	s.metrics.AddRevoked(models.ReasonManual, 1)
	return nil
}

// mapError collapses store outcomes into the flow taxonomy.
func (s *Service) mapError(op string, err error) error {
	switch {
	case errors.Is(err, apperror.ErrInvalidToken),
		errors.Is(err, tokenstore.ErrTokenNotFound),
		errors.Is(err, tokenstore.ErrUserNotFound),
		errors.Is(err, tokenstore.ErrConcurrentUpdate):
		return apperror.ErrInvalidToken
	case apperror.IsValidation(err):
		return err
	default:
		if s.logger != nil {
			s.logger.Error("refresh token operation failed", zap.String("op", op), zap.Error(err))
		}
		return apperror.Fatal(op, err)
	}
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, string(apperror.Kind(err)))
	}
	span.End()
}
