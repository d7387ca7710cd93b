package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tech-arch1tect/tokenchain/apperror"
	"github.com/tech-arch1tect/tokenchain/config"
	"github.com/tech-arch1tect/tokenchain/models"
	"github.com/tech-arch1tect/tokenchain/services/logging"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrTokenNotFound     = errors.New("refresh token not found")
	ErrConcurrentUpdate  = errors.New("token collection was modified concurrently")
	ErrDuplicateUsername = errors.New("username already exists")
)

// Store persists users and their refresh token collections.
type Store interface {
	FindUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByID(ctx context.Context, id uint) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	ListUserIDs(ctx context.Context) ([]uint, error)
	CreateUser(ctx context.Context, user *models.User) error
	FindUserIDByToken(ctx context.Context, token string) (uint, error)
	TokenExists(ctx context.Context, token string) (bool, error)
	ListTokens(ctx context.Context, userID uint) ([]models.RefreshToken, error)
	Update(ctx context.Context, userID uint, fn func(user *models.User) error) error
}

type GormStore struct {
	db      *gorm.DB
	locker  Locker
	timeout time.Duration
	logger  *logging.Service
}

func NewGormStore(db *gorm.DB, locker Locker, cfg *config.Config, logger *logging.Service) *GormStore {
	return &GormStore{
		db:      db,
		locker:  locker,
		timeout: cfg.Database.QueryTimeout,
		logger:  logger.Named("tokenstore"),
	}
}

func (s *GormStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *GormStore) FindUserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Fatal("find user by username", err)
	}
	return &user, nil
}

func (s *GormStore) GetUserByID(ctx context.Context, id uint) (*models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var user models.User
	if err := s.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Fatal("get user", err)
	}
	return &user, nil
}

func (s *GormStore) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var users []models.User
	if err := s.db.WithContext(ctx).Order("id").Find(&users).Error; err != nil {
		return nil, apperror.Fatal("list users", err)
	}
	return users, nil
}

func (s *GormStore) ListUserIDs(ctx context.Context) ([]uint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var ids []uint
	if err := s.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, apperror.Fatal("list user ids", err)
	}
	return ids, nil
}

func (s *GormStore) CreateUser(ctx context.Context, user *models.User) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.db.WithContext(ctx).Omit("RefreshTokens").Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateUsername
		}
		return apperror.Fatal("create user", err)
	}

	if s.logger != nil {
		s.logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	}
	return nil
}

func (s *GormStore) FindUserIDByToken(ctx context.Context, token string) (uint, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rt models.RefreshToken
	err := s.db.WithContext(ctx).Select("id", "user_id").Where("token = ?", token).First(&rt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrTokenNotFound
		}
		return 0, apperror.Fatal("find refresh token owner", err)
	}
	return rt.UserID, nil
}

func (s *GormStore) TokenExists(ctx context.Context, token string) (bool, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.RefreshToken{}).Where("token = ?", token).Count(&count).Error; err != nil {
		return false, apperror.Fatal("check refresh token", err)
	}
	return count > 0, nil
}

func (s *GormStore) ListTokens(ctx context.Context, userID uint) ([]models.RefreshToken, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var tokens []models.RefreshToken
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).Order("id").Find(&tokens).Error; err != nil {
		return nil, apperror.Fatal("list refresh tokens", err)
	}
	return tokens, nil
}

// Update loads the user with its token collection under the user's lock, applies fn, and
// persists the resulting difference atomically. Nothing is written when fn fails.
//
// The write is guarded by the user's token version, so a writer that bypassed the lock (or
// whose lock lease expired) fails with ErrConcurrentUpdate instead of overwriting.
func (s *GormStore) Update(ctx context.Context, userID uint, fn func(user *models.User) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	log := s.logger.With(zap.Uint("user_id", userID))

	release, err := s.locker.Acquire(ctx, lockKey(userID))
	if err != nil {
		log.Warn("failed to acquire user lock", zap.Error(err))
		return apperror.Fatal("acquire user lock", err)
	}
	defer release()

	user, err := s.loadUserWithTokens(ctx, userID)
	if err != nil {
		return err
	}

	version := user.TokenVersion
	snapshot := make(map[uint]models.RefreshToken, len(user.RefreshTokens))
	for _, rt := range user.RefreshTokens {
		snapshot[rt.ID] = rt
	}

	if err := fn(user); err != nil {
		return err
	}

	if err := s.persist(ctx, user, version, snapshot); err != nil {
		if errors.Is(err, ErrConcurrentUpdate) {
			log.Warn("concurrent token collection update rejected")
			return err
		}
		log.Error("failed to persist token collection", zap.Error(err))
		return apperror.Fatal("persist token collection", err)
	}

	return nil
}

func (s *GormStore) loadUserWithTokens(ctx context.Context, userID uint) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).
		Preload("RefreshTokens", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		First(&user, userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, apperror.Fatal("load token collection", err)
	}
	return &user, nil
}

func (s *GormStore) persist(ctx context.Context, user *models.User, version uint, snapshot map[uint]models.RefreshToken) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.User{}).
			Where("id = ? AND token_version = ?", user.ID, version).
			UpdateColumn("token_version", gorm.Expr("token_version + ?", 1))
		if result.Error != nil {
			return fmt.Errorf("failed to bump token version: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrConcurrentUpdate
		}

		kept := make(map[uint]struct{}, len(user.RefreshTokens))
		for i := range user.RefreshTokens {
			rt := &user.RefreshTokens[i]
			if rt.ID == 0 {
				rt.UserID = user.ID
				if err := tx.Create(rt).Error; err != nil {
					return fmt.Errorf("failed to insert refresh token: %w", err)
				}
				kept[rt.ID] = struct{}{}
				continue
			}

			kept[rt.ID] = struct{}{}
			if before, ok := snapshot[rt.ID]; ok && !tokenChanged(before, *rt) {
				continue
			}
			if err := tx.Save(rt).Error; err != nil {
				return fmt.Errorf("failed to update refresh token: %w", err)
			}
		}

		var pruned []uint
		for id := range snapshot {
			if _, ok := kept[id]; !ok {
				pruned = append(pruned, id)
			}
		}
		if len(pruned) > 0 {
			if err := tx.Where("id IN ?", pruned).Delete(&models.RefreshToken{}).Error; err != nil {
				return fmt.Errorf("failed to delete pruned refresh tokens: %w", err)
			}
		}

		user.TokenVersion = version + 1
		return nil
	})
}

func tokenChanged(before, after models.RefreshToken) bool {
	return !equalTime(before.Revoked, after.Revoked) ||
		!equalString(before.RevokedByIP, after.RevokedByIP) ||
		!equalString(before.ReasonRevoked, after.ReasonRevoked) ||
		!equalString(before.ReplacedByToken, after.ReplacedByToken)
}

func equalTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func equalString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func lockKey(userID uint) string {
	return fmt.Sprintf("user:%d:tokens", userID)
}
