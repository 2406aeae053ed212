// Package jsondb is an in-process user store that can snapshot itself to a
// JSON file. The memory backend is a JSONDB without a file.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/userapi/internal/db/storage"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

type record struct {
	Seq            int64     `json:"seq"`
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Mobile         string    `json:"mobile"`
	PasswordHash   string    `json:"password_hash"`
	ProfilePicture *string   `json:"profile_picture"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CacheStruct is the persisted state of the store.
type CacheStruct struct {
	Users   map[string]*record `json:"users"`
	NextSeq int64              `json:"next_seq"`
}

// JSONDB keeps users in memory and, when a file name is set, writes them to
// that file on Close.
type JSONDB struct {
	mu       sync.RWMutex
	fileName string
	cache    CacheStruct
	now      func() time.Time
}

// NewCache returns an empty cache.
func NewCache() CacheStruct {
	return CacheStruct{
		Users:   map[string]*record{},
		NextSeq: 1,
	}
}

// NewInMemory returns a JSONDB that is never written to disk.
func NewInMemory() *JSONDB {
	return &JSONDB{
		cache: NewCache(),
		now:   time.Now,
	}
}

// New opens the snapshot in fileName, creating it when it does not exist.
func New(fileName string) (*JSONDB, error) {
	db := &JSONDB{
		fileName: fileName,
		cache:    NewCache(),
		now:      time.Now,
	}

	err := parseJSONFile(fileName, &db.cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `parseJSONFile()` calling: %w", err)
		}
		if err := writeToJSONFile(fileName, db.cache); err != nil {
			return nil, fmt.Errorf("in internal/db/jsondb/jsondb.go/New(): error while `writeToJSONFile()` calling: %w", err)
		}
	}
	if db.cache.Users == nil {
		db.cache.Users = map[string]*record{}
	}
	if db.cache.NextSeq < 1 {
		db.cache.NextSeq = 1
	}

	return db, nil
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	return os.WriteFile(fileName, jsonData, 0o600)
}

func parseJSONFile(fileName string, cache *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	return json.NewDecoder(file).Decode(cache)
}

func (r *record) toUser() *user.User {
	usr := &user.User{
		ID:           r.ID,
		Name:         r.Name,
		Email:        r.Email,
		Mobile:       r.Mobile,
		PasswordHash: r.PasswordHash,
		IsActive:     r.IsActive,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
	if r.ProfilePicture != nil {
		picture := *r.ProfilePicture
		usr.ProfilePicture = &picture
	}

	return usr
}

// CreateUser stores usr; the email must be unique.
func (db *JSONDB) CreateUser(ctx context.Context, usr *user.User) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, existing := range db.cache.Users {
		if existing.Email == usr.Email {
			return storage.ErrDuplicateEmail
		}
	}

	now := db.now().UTC()
	rec := &record{
		Seq:          db.cache.NextSeq,
		ID:           uuid.NewString(),
		Name:         usr.Name,
		Email:        usr.Email,
		Mobile:       usr.Mobile,
		PasswordHash: usr.PasswordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	db.cache.NextSeq++
	db.cache.Users[rec.ID] = rec

	usr.ID = rec.ID
	usr.IsActive = rec.IsActive
	usr.CreatedAt = rec.CreatedAt
	usr.UpdatedAt = rec.UpdatedAt

	return nil
}

// FindUserByEmailOrMobile prefers an email match over a mobile match.
func (db *JSONDB) FindUserByEmailOrMobile(ctx context.Context, email, mobile string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var byMobile *record
	for _, rec := range db.cache.Users {
		if rec.Email == email {
			return rec.toUser(), nil
		}
		if byMobile == nil && rec.Mobile == mobile {
			byMobile = rec
		}
	}
	if byMobile == nil {
		return nil, storage.ErrNotFound
	}

	return byMobile.toUser(), nil
}

func (db *JSONDB) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, rec := range db.cache.Users {
		if rec.Email == email {
			return rec.toUser(), nil
		}
	}

	return nil, storage.ErrNotFound
}

func (db *JSONDB) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rec, found := db.cache.Users[userID]
	if !found {
		return nil, storage.ErrNotFound
	}

	return rec.toUser(), nil
}

// ListUsers filters by case-insensitive substring and sorts newest first.
func (db *JSONDB) ListUsers(ctx context.Context, search string) ([]*user.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	records := funk.Values(db.cache.Users).([]*record)
	if search != "" {
		needle := strings.ToLower(search)
		records = funk.Filter(records, func(rec *record) bool {
			return strings.Contains(strings.ToLower(rec.Name), needle) ||
				strings.Contains(strings.ToLower(rec.Email), needle) ||
				strings.Contains(strings.ToLower(rec.Mobile), needle)
		}).([]*record)
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].Seq > records[j].Seq
	})

	result := make([]*user.User, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.toUser())
	}

	return result, nil
}

func (db *JSONDB) SetProfilePicture(ctx context.Context, userID, picturePath string) (*user.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, found := db.cache.Users[userID]
	if !found {
		return nil, storage.ErrNotFound
	}
	rec.ProfilePicture = &picturePath
	rec.UpdatedAt = db.now().UTC()

	return rec.toUser(), nil
}

func (db *JSONDB) SetActive(ctx context.Context, userID string, active bool) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	rec, found := db.cache.Users[userID]
	if !found {
		return storage.ErrNotFound
	}
	rec.IsActive = active
	rec.UpdatedAt = db.now().UTC()

	return nil
}

func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close writes the snapshot when the store is file backed.
func (db *JSONDB) Close() error {
	if db.fileName == "" {
		return nil
	}

	db.mu.RLock()
	defer db.mu.RUnlock()

	return writeToJSONFile(db.fileName, db.cache)
}
