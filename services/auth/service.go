package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"github.com/tech-arch1tect/tokenchain/services/metrics"
	"github.com/tech-arch1tect/tokenchain/services/refreshtoken"
	"github.com/tech-arch1tect/tokenchain/services/retention"
	"github.com/tech-arch1tect/tokenchain/services/tokencodec"
	"github.com/tech-arch1tect/tokenchain/services/tokenstore"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var ErrPasswordHashingFailed = errors.New("failed to hash password")

// bcrypt only reads the first 72 bytes and rejects longer input.
const maxPasswordBytes = 72

// compared against when the username is unknown so both failure paths cost one bcrypt check
const dummyPassword = "tokenchain-timing-equaliser"

type Service struct {
	config    *config.Config
	store     tokenstore.Store
	codec     *tokencodec.Codec
	retention *retention.Policy
	metrics   *metrics.Metrics
	logger    *logging.Service
	tracer    trace.Tracer
	dummyHash []byte
}

func NewService(
	cfg *config.Config,
	store tokenstore.Store,
	codec *tokencodec.Codec,
	policy *retention.Policy,
	m *metrics.Metrics,
	logger *logging.Service,
) (*Service, error) {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}

	dummyHash, err := bcrypt.GenerateFromPassword([]byte(dummyPassword), cfg.Auth.BcryptCost)
	if err != nil {
		return nil, ErrPasswordHashingFailed
	}

	return &Service{
		config:    cfg,
		store:     store,
		codec:     codec,
		retention: policy,
		metrics:   m,
		logger:    logger.Named("auth"),
		tracer:    otel.Tracer("github.com/tech-arch1tect/tokenchain/services/auth"),
		dummyHash: dummyHash,
	}, nil
}

// Authenticate verifies the credentials and starts a new refresh token chain for the user.
// Unknown usernames and wrong passwords both yield apperror.ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, username, password string, origin models.Origin) (pair *refreshtoken.TokenPair, err error) {
	ctx, span := s.tracer.Start(ctx, "Auth.Authenticate",
		trace.WithAttributes(attribute.String("client.ip", origin.IP)))
	started := time.Now()
	defer func() {
		s.metrics.ObserveAuthentication(err, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(apperror.Kind(err)))
		}
		span.End()
	}()

	user, err := s.store.FindUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, tokenstore.ErrUserNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			if s.logger != nil {
				s.logger.Warn("authentication failed", zap.String("reason", "unknown user"), zap.String("ip", origin.IP))
			}
			return nil, apperror.ErrInvalidCredentials
		}
		return nil, apperror.Fatal("authenticate", err)
	}

	if err := s.VerifyPassword(user.PasswordHash, password); err != nil {
		if s.logger != nil {
			s.logger.Warn("authentication failed",
				zap.String("reason", "password mismatch"),
				zap.Uint("user_id", user.ID),
				zap.String("ip", origin.IP))
		}
		return nil, apperror.ErrInvalidCredentials
	}
	span.SetAttributes(attribute.Int64("user.id", int64(user.ID)))

	var (
		issued      *models.RefreshToken
		owner       *models.User
		accessToken string
	)
	err = s.store.Update(ctx, user.ID, func(u *models.User) error {
		rt, err := s.codec.IssueRefreshToken(ctx, origin)
		if err != nil {
			return err
		}
		u.RefreshTokens = append(u.RefreshTokens, *rt)
		s.retention.Prune(u)

		accessToken, err = s.codec.IssueAccessToken(u)
		if err != nil {
			return err
		}
		issued = rt
		owner = u
		return nil
	})
	if err != nil {
		if errors.Is(err, tokenstore.ErrUserNotFound) {
			return nil, apperror.ErrInvalidCredentials
		}
		if s.logger != nil {
			s.logger.Error("failed to start refresh token chain", zap.Uint("user_id", user.ID), zap.Error(err))
		}
		return nil, apperror.Fatal("authenticate", err)
	}

	if s.logger != nil {
		s.logger.Info("user authenticated", zap.Uint("user_id", owner.ID), zap.String("ip", origin.IP))
	}

	return &refreshtoken.TokenPair{
		User:           owner,
		AccessToken:    accessToken,
		RefreshToken:   issued.Token,
		RefreshExpires: issued.Expires,
	}, nil
}

func (s *Service) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, tokenstore.ErrUserNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	return s.store.ListUsers(ctx)
}

// ListRefreshTokens returns every stored token of the user, including inactive ones.
func (s *Service) ListRefreshTokens(ctx context.Context, userID uint) ([]models.RefreshToken, error) {
	if _, err := s.GetUserByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.ListTokens(ctx, userID)
}

func (s *Service) CreateUser(ctx context.Context, firstName, lastName, username, password string) (*models.User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, apperror.Validation("username", "username is required")
	}
	if password == "" {
		return nil, apperror.Validation("password", "password is required")
	}

	hash, err := s.HashPassword(password)
	if err != nil {
		if apperror.IsValidation(err) {
			return nil, err
		}
		return nil, apperror.Fatal("create user", err)
	}

	user := &models.User{
		FirstName:    firstName,
		LastName:     lastName,
		Username:     username,
		PasswordHash: hash,
	}
	if err := s.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, tokenstore.ErrDuplicateUsername) {
			return nil, apperror.Validation("username", "username is already taken")
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) HashPassword(password string) (string, error) {
	if len(password) > maxPasswordBytes {
		return "", apperror.Validation("password", fmt.Sprintf("password must be at most %d bytes", maxPasswordBytes))
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Auth.BcryptCost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", ErrPasswordHashingFailed
	}
	return string(hash), nil
}

func (s *Service) VerifyPassword(hashedPassword, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password)); err != nil {
		return apperror.ErrInvalidCredentials
	}
	return nil
}

type seedUser struct {
	firstName, lastName, username, password string
}

var defaultSeedUsers = []seedUser{
	{"Test", "User", "test", "test"},
	{"Admin", "User", "admin", "admin"},
}

// SeedUsers creates the demo accounts that do not exist yet.
func (s *Service) SeedUsers(ctx context.Context) error {
	for _, seed := range defaultSeedUsers {
		if _, err := s.store.FindUserByUsername(ctx, seed.username); err == nil {
			continue
		} else if !errors.Is(err, tokenstore.ErrUserNotFound) {
			return err
		}

		if _, err := s.CreateUser(ctx, seed.firstName, seed.lastName, seed.username, seed.password); err != nil {
			return err
		}
		if s.logger != nil {
			s.logger.Info("seeded user", zap.String("username", seed.username))
		}
	}
	return nil
}
