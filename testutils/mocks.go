package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tech-arch1tect/tokenchain/models"
)

// MockTokenLookup satisfies tokencodec.TokenLookup.
type MockTokenLookup struct {
	mock.Mock
}

func (m *MockTokenLookup) TokenExists(ctx context.Context, token string) (bool, error) {
	args := m.Called(ctx, token)
	return args.Bool(0), args.Error(1)
}

// MockLocker satisfies tokenstore.Locker.
type MockLocker struct {
	mock.Mock
}

func (m *MockLocker) Acquire(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	release, _ := args.Get(0).(func())
	return release, args.Error(1)
}

// MockAccessSigner satisfies tokencodec.AccessSigner.
type MockAccessSigner struct {
	mock.Mock
}

func (m *MockAccessSigner) GenerateToken(user *models.User) (string, error) {
	args := m.Called(user)
	return args.String(0), args.Error(1)
}
