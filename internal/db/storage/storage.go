// Package storage declares the contract every data backend implements and
// the errors they report.
package storage

import (
	"context"
	"errors"

	"github.com/patric-chuzhbe/userapi/internal/user"
)

var (
	// ErrNotFound is returned when no user matches the lookup.
	ErrNotFound = errors.New("user not found")

	// ErrDuplicateEmail is returned when an insert violates the unique email
	// constraint. It is authoritative over any earlier existence check.
	ErrDuplicateEmail = errors.New("duplicate email")
)

// Users is the user directory persisted by a backend.
type Users interface {
	// CreateUser inserts usr and fills in ID, IsActive, CreatedAt and UpdatedAt.
	CreateUser(ctx context.Context, usr *user.User) error

	// FindUserByEmailOrMobile returns any user whose email or mobile matches.
	// When several match, one with the matching email is preferred.
	FindUserByEmailOrMobile(ctx context.Context, email, mobile string) (*user.User, error)

	FindUserByEmail(ctx context.Context, email string) (*user.User, error)

	FindUserByID(ctx context.Context, userID string) (*user.User, error)

	// ListUsers returns users whose name, email or mobile contains search,
	// case-insensitively, newest first. An empty search returns everyone.
	ListUsers(ctx context.Context, search string) ([]*user.User, error)

	// SetProfilePicture stores picturePath for the user and returns the
	// updated record.
	SetProfilePicture(ctx context.Context, userID, picturePath string) (*user.User, error)

	SetActive(ctx context.Context, userID string, active bool) error
}

// Backend is a connected data backend.
type Backend interface {
	Users

	Ping(ctx context.Context) error

	Close() error
}
