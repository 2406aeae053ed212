// Package mockstorage provides a testify-based mock of storage.Backend for
// service, connector and router tests.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/userapi/internal/user"
)

// StorageMock is a testify mock of storage.Backend.
type StorageMock struct {
	mock.Mock

	// OnPing, if set, answers Ping instead of the recorded expectations.
	// Health checks call Ping on every request, which makes exact
	// expectations noisy.
	OnPing func(ctx context.Context) error
}

// Ping answers through OnPing when it is set.
func (m *StorageMock) Ping(ctx context.Context) error {
	if m.OnPing != nil {
		return m.OnPing(ctx)
	}
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// CreateUser mocks insertion. Use Run on the expectation to fill in the ID.
func (m *StorageMock) CreateUser(ctx context.Context, usr *user.User) error {
	args := m.Called(ctx, usr)
	return args.Error(0)
}

func (m *StorageMock) FindUserByEmailOrMobile(ctx context.Context, email, mobile string) (*user.User, error) {
	args := m.Called(ctx, email, mobile)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	args := m.Called(ctx, email)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	args := m.Called(ctx, userID)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) ListUsers(ctx context.Context, search string) ([]*user.User, error) {
	args := m.Called(ctx, search)
	users, _ := args.Get(0).([]*user.User)
	return users, args.Error(1)
}

func (m *StorageMock) SetProfilePicture(ctx context.Context, userID, picturePath string) (*user.User, error) {
	args := m.Called(ctx, userID, picturePath)
	usr, _ := args.Get(0).(*user.User)
	return usr, args.Error(1)
}

func (m *StorageMock) SetActive(ctx context.Context, userID string, active bool) error {
	args := m.Called(ctx, userID, active)
	return args.Error(0)
}
