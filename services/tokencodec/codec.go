package tokencodec

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"go.uber.org/zap"
)

var ErrTokenCollision = errors.New("generated refresh token already exists")

// TokenLookup reports whether a refresh token string is already stored.
type TokenLookup interface {
	TokenExists(ctx context.Context, token string) (bool, error)
}

// AccessSigner signs access tokens. *jwt.Service is the production implementation.
type AccessSigner interface {
	GenerateToken(user *models.User) (string, error)
}

type Codec struct {
	config *config.Config
	signer AccessSigner
	lookup TokenLookup
	logger *logging.Service
	now    func() time.Time
	random io.Reader
}

func NewCodec(cfg *config.Config, signer AccessSigner, lookup TokenLookup, logger *logging.Service) *Codec {
	return &Codec{
		config: cfg,
		signer: signer,
		lookup: lookup,
		logger: logger.Named("tokencodec"),
		now:    time.Now,
		random: rand.Reader,
	}
}

func (c *Codec) IssueAccessToken(user *models.User) (string, error) {
	token, err := c.signer.GenerateToken(user)
	if err != nil {
		return "", apperror.Fatal("issue access token", err)
	}
	return token, nil
}

// IssueRefreshToken builds an unsaved token. The caller appends it to the owner's collection.
func (c *Codec) IssueRefreshToken(ctx context.Context, origin models.Origin) (*models.RefreshToken, error) {
	buf := make([]byte, c.config.RefreshToken.TokenLength)
	if _, err := io.ReadFull(c.random, buf); err != nil {
		if c.logger != nil {
			c.logger.Error("failed to read random bytes for refresh token", zap.Error(err))
		}
		return nil, apperror.Fatal("issue refresh token", fmt.Errorf("failed to generate secure token: %w", err))
	}
	token := base64.RawURLEncoding.EncodeToString(buf)

	if c.lookup != nil {
		exists, err := c.lookup.TokenExists(ctx, token)
		if err != nil {
			return nil, apperror.Fatal("issue refresh token", fmt.Errorf("failed to check token uniqueness: %w", err))
		}
		if exists {
			if c.logger != nil {
				c.logger.Error("refresh token collision detected")
			}
			return nil, apperror.Fatal("issue refresh token", ErrTokenCollision)
		}
	}

	now := c.now()
	return &models.RefreshToken{
		Token:           token,
		Created:         now,
		Expires:         now.Add(c.config.RefreshToken.Expiry),
		CreatedByIP:     origin.IP,
		CreatedByDevice: origin.Device,
	}, nil
}
