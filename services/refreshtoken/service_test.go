package refreshtoken

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/jwt"
	"github.com/tech-arch1tect/tokenchain/services/metrics"
	"github.com/tech-arch1tect/tokenchain/services/retention"
	"github.com/tech-arch1tect/tokenchain/services/revocation"
	"github.com/tech-arch1tect/tokenchain/services/tokencodec"
	"github.com/tech-arch1tect/tokenchain/services/tokenstore"
	"github.com/tech-arch1tect/tokenchain/testutils"
	"gorm.io/gorm"
)

type fixture struct {
	service *Service
	db      *gorm.DB
	jwt     *jwt.Service
	user    *models.User
}

func setup(t *testing.T, lookup tokencodec.TokenLookup) *fixture {
	t.Helper()

	cfg := testutils.GetTestConfig()
	db := testutils.SetupTestDB(t)
	store := tokenstore.NewGormStore(db, tokenstore.NewMemoryLocker(cfg.Lock.AcquireTimeout), cfg, nil)
	jwtService := jwt.NewService(cfg, nil)
	if lookup == nil {
		lookup = store
	}
	codec := tokencodec.NewCodec(cfg, jwtService, lookup, nil)
	service := NewService(store, codec, revocation.NewService(nil), retention.NewPolicy(cfg, nil, nil), metrics.New(), nil)

	return &fixture{
		service: service,
		db:      db,
		jwt:     jwtService,
		user:    testutils.CreateUser(t, db, "test", "test"),
	}
}

var origin = models.Origin{IP: "203.0.113.7", Device: "Chrome on Windows"}

func TestService_Refresh_Rotates(t *testing.T) {
	f := setup(t, nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

	pair, err := f.service.Refresh(context.Background(), "t0", origin)

	require.NoError(t, err)
	assert.Equal(t, f.user.ID, pair.User.ID)
	assert.NotEqual(t, "t0", pair.RefreshToken)

	claims, err := f.jwt.ValidateToken(pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, f.user.ID, claims.UserID)

	source := testutils.LoadToken(t, f.db, "t0")
	require.True(t, source.IsRevoked())
	assert.Equal(t, models.ReasonReplaced, *source.ReasonRevoked)
	assert.Equal(t, origin.IP, *source.RevokedByIP)
	assert.Equal(t, pair.RefreshToken, *source.ReplacedByToken)

	successor := testutils.LoadToken(t, f.db, pair.RefreshToken)
	assert.True(t, successor.IsActive(time.Now()))
	assert.Equal(t, origin.IP, successor.CreatedByIP)
	assert.Equal(t, origin.Device, successor.CreatedByDevice)
	assert.WithinDuration(t, successor.Expires, pair.RefreshExpires, time.Second)
}

func TestService_Refresh_SourceIsSingleUse(t *testing.T) {
	f := setup(t, nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

	_, err := f.service.Refresh(context.Background(), "t0", origin)
	require.NoError(t, err)

	_, err = f.service.Refresh(context.Background(), "t0", origin)
	testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)
}

func TestService_Refresh_ChainStaysLinear(t *testing.T) {
	f := setup(t, nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

	current := "t0"
	for i := 0; i < 5; i++ {
		pair, err := f.service.Refresh(context.Background(), current, origin)
		require.NoError(t, err)
		current = pair.RefreshToken
	}

	tokens := testutils.LoadTokens(t, f.db, f.user.ID)
	require.Len(t, tokens, 6)

	byToken := make(map[string]models.RefreshToken, len(tokens))
	referenced := make(map[string]int)
	active := 0
	for _, rt := range tokens {
		byToken[rt.Token] = rt
		if next, ok := rt.Successor(); ok {
			referenced[next]++
		}
		if rt.IsActive(time.Now()) {
			active++
		}
	}
	assert.Equal(t, 1, active)
	for token, n := range referenced {
		assert.Equal(t, 1, n, "token %s has more than one predecessor", token)
	}

	walk := byToken["t0"]
	for hops := 0; hops < len(tokens); hops++ {
		next, ok := walk.Successor()
		if !ok {
			break
		}
		walk = byToken[next]
	}
	assert.Equal(t, current, walk.Token)
	assert.True(t, walk.IsActive(time.Now()))
}

func TestService_Refresh_ReuseRevokesDescendant(t *testing.T) {
	f := setup(t, nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "A", nil)
	ctx := context.Background()

	b, err := f.service.Refresh(ctx, "A", origin)
	require.NoError(t, err)
	c, err := f.service.Refresh(ctx, b.RefreshToken, origin)
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, "A", models.Origin{IP: "198.51.100.1"})
	testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)

	tip := testutils.LoadToken(t, f.db, c.RefreshToken)
	require.True(t, tip.IsRevoked())
	assert.Equal(t, models.ReasonReuseDetected, *tip.ReasonRevoked)
	assert.Equal(t, "198.51.100.1", *tip.RevokedByIP)
	assert.Nil(t, tip.ReplacedByToken)

	middle := testutils.LoadToken(t, f.db, b.RefreshToken)
	assert.Equal(t, models.ReasonReplaced, *middle.ReasonRevoked)

	_, err = f.service.Refresh(ctx, c.RefreshToken, origin)
	testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)
}

func TestService_Refresh_ReuseLeavesOtherSessionsAlone(t *testing.T) {
	f := setup(t, nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "laptop", nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "phone", nil)
	ctx := context.Background()

	_, err := f.service.Refresh(ctx, "laptop", origin)
	require.NoError(t, err)

	_, err = f.service.Refresh(ctx, "laptop", origin)
	testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)

	phone := testutils.LoadToken(t, f.db, "phone")
	assert.True(t, phone.IsActive(time.Now()))
}

// An expired token that was never rotated carries no reuse signal, so presenting it rejects
// without containment. This leaves a stolen token that expired unseen undetected, which is
// accepted behaviour for now.
func TestService_Refresh_ExpiredTokenDoesNotCascade(t *testing.T) {
	f := setup(t, nil)
	ctx := context.Background()
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "live", nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "expired", func(rt *models.RefreshToken) {
		rt.Created = time.Now().Add(-2 * time.Hour)
		rt.Expires = time.Now().Add(-time.Hour)
	})

	var before models.User
	require.NoError(t, f.db.First(&before, f.user.ID).Error)

	_, err := f.service.Refresh(ctx, "expired", origin)
	testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)

	expired := testutils.LoadToken(t, f.db, "expired")
	assert.False(t, expired.IsRevoked())
	live := testutils.LoadToken(t, f.db, "live")
	assert.True(t, live.IsActive(time.Now()))

	var after models.User
	require.NoError(t, f.db.First(&after, f.user.ID).Error)
	assert.Equal(t, before.TokenVersion, after.TokenVersion)
}

func TestService_Refresh_UnknownToken(t *testing.T) {
	f := setup(t, nil)

	_, err := f.service.Refresh(context.Background(), "", origin)
	testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)

	_, err = f.service.Refresh(context.Background(), "never-issued", origin)
	testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)
}

func TestService_Refresh_PrunesStaleTokens(t *testing.T) {
	f := setup(t, nil)
	revokedAt := time.Now().Add(-90 * time.Hour)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "ancient", func(rt *models.RefreshToken) {
		rt.Created = time.Now().Add(-100 * time.Hour)
		rt.Revoked = &revokedAt
	})
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

	pair, err := f.service.Refresh(context.Background(), "t0", origin)
	require.NoError(t, err)

	var names []string
	for _, rt := range testutils.LoadTokens(t, f.db, f.user.ID) {
		names = append(names, rt.Token)
	}
	assert.Equal(t, []string{"t0", pair.RefreshToken}, names)
}

func TestService_Refresh_ConcurrentPresentation(t *testing.T) {
	f := setup(t, nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

	const attempts = 2
	var wg sync.WaitGroup
	start := make(chan struct{})
	results := make(chan error, attempts)

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.service.Refresh(context.Background(), "t0", origin)
			results <- err
		}()
	}
	close(start)
	wg.Wait()
	close(results)

	successes, rejected := 0, 0
	for err := range results {
		switch {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, apperror.ErrInvalidToken):
			rejected++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, rejected)

	active := 0
	for _, rt := range testutils.LoadTokens(t, f.db, f.user.ID) {
		if rt.Token != "t0" && rt.IsActive(time.Now()) {
			active++
		}
	}
	assert.LessOrEqual(t, active, 1)
}

func TestService_Refresh_CollisionIsFatal(t *testing.T) {
	lookup := &testutils.MockTokenLookup{}
	lookup.On("TokenExists", mock.Anything, mock.Anything).Return(true, nil)
	f := setup(t, lookup)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

	_, err := f.service.Refresh(context.Background(), "t0", origin)

	require.Error(t, err)
	assert.True(t, apperror.IsFatal(err))
	assert.ErrorIs(t, err, tokencodec.ErrTokenCollision)
	source := testutils.LoadToken(t, f.db, "t0")
	assert.False(t, source.IsRevoked())
}

func TestService_Refresh_SigningFailureKeepsSourceActive(t *testing.T) {
	f := setup(t, nil)
	testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

	cfg := testutils.GetTestConfig()
	store := tokenstore.NewGormStore(f.db, tokenstore.NewMemoryLocker(cfg.Lock.AcquireTimeout), cfg, nil)
	signer := &testutils.MockAccessSigner{}
	signer.On("GenerateToken", mock.Anything).Return("", assert.AnError).Once()
	signer.On("GenerateToken", mock.Anything).Return("access", nil)
	codec := tokencodec.NewCodec(cfg, signer, store, nil)
	service := NewService(store, codec, revocation.NewService(nil), retention.NewPolicy(cfg, nil, nil), metrics.New(), nil)

	_, err := service.Refresh(context.Background(), "t0", origin)

	require.Error(t, err)
	assert.True(t, apperror.IsFatal(err))
	source := testutils.LoadToken(t, f.db, "t0")
	assert.True(t, source.IsActive(time.Now()))
	assert.Len(t, testutils.LoadTokens(t, f.db, f.user.ID), 1)

	pair, err := service.Refresh(context.Background(), "t0", origin)

	require.NoError(t, err)
	assert.Equal(t, "access", pair.AccessToken)
	signer.AssertExpectations(t)
}

func TestService_RevokeToken(t *testing.T) {
	ctx := context.Background()

	t.Run("requires a token", func(t *testing.T) {
		f := setup(t, nil)

		err := f.service.RevokeToken(ctx, "", "10.0.0.1")

		require.Error(t, err)
		assert.True(t, apperror.IsValidation(err))
		assert.NotErrorIs(t, err, apperror.ErrInvalidToken)
	})

	t.Run("unknown token", func(t *testing.T) {
		f := setup(t, nil)

		err := f.service.RevokeToken(ctx, "nope", "10.0.0.1")

		testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)
	})

	t.Run("succeeds once", func(t *testing.T) {
		f := setup(t, nil)
		testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)

		require.NoError(t, f.service.RevokeToken(ctx, "t0", "10.0.0.1"))

		rt := testutils.LoadToken(t, f.db, "t0")
		require.True(t, rt.IsRevoked())
		assert.Equal(t, models.ReasonManual, *rt.ReasonRevoked)
		assert.Equal(t, "10.0.0.1", *rt.RevokedByIP)
		assert.Nil(t, rt.ReplacedByToken)

		err := f.service.RevokeToken(ctx, "t0", "10.0.0.2")
		testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)
		rt = testutils.LoadToken(t, f.db, "t0")
		assert.Equal(t, "10.0.0.1", *rt.RevokedByIP)
	})

	t.Run("revoked token cannot be refreshed", func(t *testing.T) {
		f := setup(t, nil)
		testutils.CreateRefreshToken(t, f.db, f.user.ID, "t0", nil)
		require.NoError(t, f.service.RevokeToken(ctx, "t0", "10.0.0.1"))

		_, err := f.service.Refresh(ctx, "t0", origin)

		testutils.AssertErrorType(t, apperror.ErrInvalidToken, err)
		assert.Len(t, testutils.LoadTokens(t, f.db, f.user.ID), 1)
	})
}
