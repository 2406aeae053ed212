// Package service implements the user directory: registration, login, listing
// and profile picture upload on top of a storage backend.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/patric-chuzhbe/userapi/internal/db/storage"
	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/metrics"
	"github.com/patric-chuzhbe/userapi/internal/password"
	"github.com/patric-chuzhbe/userapi/internal/token"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

var (
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrDuplicateMobile    = errors.New("mobile number already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDeactivated = errors.New("account deactivated")
	ErrUserNotFound       = errors.New("user not found")
	ErrNoFile             = errors.New("no file uploaded")
)

type passwordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hashed string) (bool, error)
}

type tokenIssuer interface {
	Issue(identity token.Identity, ttl time.Duration) (string, error)
}

type fileStore interface {
	Save(src io.Reader) (string, error)
	Remove(publicPath string) error
}

type fileReaper interface {
	Enqueue(publicPath string)
}

// Session is a user together with a freshly issued token.
type Session struct {
	User  *user.User
	Token string
}

// Registration holds the fields of a new account.
type Registration struct {
	Name     string
	Email    string
	Mobile   string
	Password string
}

type Service struct {
	users   storage.Users
	hasher  passwordHasher
	tokens  tokenIssuer
	files   fileStore
	reaper  fileReaper
	metrics metrics.Recorder
}

// Option configures New.
type Option func(*Service)

// WithFileReaper hands files that could not be deleted to reaper.
func WithFileReaper(reaper fileReaper) Option {
	return func(s *Service) {
		s.reaper = reaper
	}
}

func WithMetrics(recorder metrics.Recorder) Option {
	return func(s *Service) {
		s.metrics = recorder
	}
}

func New(
	users storage.Users,
	hasher passwordHasher,
	tokens tokenIssuer,
	files fileStore,
	opts ...Option,
) *Service {
	s := &Service{
		users:   users,
		hasher:  hasher,
		tokens:  tokens,
		files:   files,
		metrics: metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an account and signs the user in. An existing account
// with the same email wins over one with the same mobile number.
func (s *Service) Register(ctx context.Context, registration Registration) (*Session, error) {
	usr := &user.User{
		Name:   strings.TrimSpace(registration.Name),
		Email:  normalizeEmail(registration.Email),
		Mobile: strings.TrimSpace(registration.Mobile),
	}

	existing, err := s.users.FindUserByEmailOrMobile(ctx, usr.Email, usr.Mobile)
	switch {
	case err == nil && existing.Email == usr.Email:
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return nil, ErrDuplicateEmail
	case err == nil:
		s.metrics.RecordRegistration(metrics.ResultRejected)
		return nil, ErrDuplicateMobile
	case !errors.Is(err, storage.ErrNotFound):
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, fmt.Errorf("in internal/service/service.go/Register(): error while `s.users.FindUserByEmailOrMobile()` calling: %w", err)
	}

	usr.PasswordHash, err = s.hasher.Hash(registration.Password)
	if err != nil {
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, fmt.Errorf("in internal/service/service.go/Register(): error while `s.hasher.Hash()` calling: %w", err)
	}

	if err := s.users.CreateUser(ctx, usr); err != nil {
		if errors.Is(err, storage.ErrDuplicateEmail) {
			s.metrics.RecordRegistration(metrics.ResultRejected)
			return nil, ErrDuplicateEmail
		}
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, fmt.Errorf("in internal/service/service.go/Register(): error while `s.users.CreateUser()` calling: %w", err)
	}

	session, err := s.newSession(usr)
	if err != nil {
		s.metrics.RecordRegistration(metrics.ResultError)
		return nil, err
	}

	logger.Log.Infow("user registered", "user_id", usr.ID)
	s.metrics.RecordRegistration(metrics.ResultSuccess)

	return session, nil
}

// Login checks the credentials. Unknown email and wrong password are
// indistinguishable to the caller; a deactivated account is reported before
// the password is checked.
func (s *Service) Login(ctx context.Context, email, plaintext string) (*Session, error) {
	usr, err := s.users.FindUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.metrics.RecordLogin(metrics.ResultRejected)
			return nil, ErrInvalidCredentials
		}
		s.metrics.RecordLogin(metrics.ResultError)
		return nil, fmt.Errorf("in internal/service/service.go/Login(): error while `s.users.FindUserByEmail()` calling: %w", err)
	}

	if !usr.IsActive {
		s.metrics.RecordLogin(metrics.ResultDeactivated)
		return nil, ErrAccountDeactivated
	}

	ok, err := s.hasher.Verify(plaintext, usr.PasswordHash)
	if err != nil {
		s.metrics.RecordLogin(metrics.ResultError)
		return nil, fmt.Errorf("in internal/service/service.go/Login(): error while `s.hasher.Verify()` calling: %w", err)
	}
	if !ok {
		s.metrics.RecordLogin(metrics.ResultRejected)
		return nil, ErrInvalidCredentials
	}

	session, err := s.newSession(usr)
	if err != nil {
		s.metrics.RecordLogin(metrics.ResultError)
		return nil, err
	}
	s.metrics.RecordLogin(metrics.ResultSuccess)

	return session, nil
}

func (s *Service) newSession(usr *user.User) (*Session, error) {
	tokenString, err := s.tokens.Issue(token.Identity{
		UserID: usr.ID,
		Email:  usr.Email,
		Name:   usr.Name,
	}, 0)
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/newSession(): error while `s.tokens.Issue()` calling: %w", err)
	}

	return &Session{User: usr, Token: tokenString}, nil
}

// ListUsers returns users matching search, newest first.
func (s *Service) ListUsers(ctx context.Context, search string) ([]*user.User, error) {
	users, err := s.users.ListUsers(ctx, strings.TrimSpace(search))
	if err != nil {
		return nil, fmt.Errorf("in internal/service/service.go/ListUsers(): error while `s.users.ListUsers()` calling: %w", err)
	}

	return users, nil
}

// UploadProfilePicture stores upload as the picture of userID. The previous
// picture is deleted on a best-effort basis. The new file never outlives a
// failed call.
func (s *Service) UploadProfilePicture(ctx context.Context, userID string, upload io.Reader) (*user.User, error) {
	if upload == nil {
		s.metrics.RecordUpload(metrics.ResultRejected)
		return nil, ErrNoFile
	}

	var content bytes.Buffer
	newPath, err := s.files.Save(io.TeeReader(upload, &content))
	if err != nil {
		s.metrics.RecordUpload(metrics.ResultRejected)
		return nil, fmt.Errorf("in internal/service/service.go/UploadProfilePicture(): error while `s.files.Save()` calling: %w", err)
	}

	updated, err := s.replacePicture(ctx, userID, newPath)
	if err != nil {
		s.discard(newPath)
		if errors.Is(err, ErrUserNotFound) {
			s.metrics.RecordUpload(metrics.ResultRejected)
		} else {
			s.metrics.RecordUpload(metrics.ResultError)
		}
		return nil, err
	}

	logger.Log.Infow(
		"profile picture stored",
		"user_id", userID,
		"path", newPath,
		"sha256", password.Digest(content.Bytes()),
	)
	s.metrics.RecordUpload(metrics.ResultSuccess)

	return updated, nil
}

func (s *Service) replacePicture(ctx context.Context, userID, newPath string) (*user.User, error) {
	usr, err := s.users.FindUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("in internal/service/service.go/replacePicture(): error while `s.users.FindUserByID()` calling: %w", err)
	}

	if usr.ProfilePicture != nil && *usr.ProfilePicture != "" && *usr.ProfilePicture != newPath {
		s.discard(*usr.ProfilePicture)
	}

	updated, err := s.users.SetProfilePicture(ctx, userID, newPath)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("in internal/service/service.go/replacePicture(): error while `s.users.SetProfilePicture()` calling: %w", err)
	}

	return updated, nil
}

// discard removes a file and leaves failures to the reaper.
func (s *Service) discard(publicPath string) {
	err := s.files.Remove(publicPath)
	if err == nil {
		return
	}

	logger.Log.Warnw("could not delete file", "path", publicPath, "error", err)
	if s.reaper != nil {
		s.reaper.Enqueue(publicPath)
	}
}

// SetActive enables or disables an account. Disabled accounts cannot log in;
// tokens already issued stay valid until they expire.
func (s *Service) SetActive(ctx context.Context, userID string, active bool) error {
	err := s.users.SetActive(ctx, userID, active)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrUserNotFound
		}
		return fmt.Errorf("in internal/service/service.go/SetActive(): error while `s.users.SetActive()` calling: %w", err)
	}

	return nil
}
