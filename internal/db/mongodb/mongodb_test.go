package mongodb

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/patric-chuzhbe/userapi/internal/db/storage"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

func TestSearchFilter(t *testing.T) {
	type tTestCase struct {
		name        string
		search      string
		wantPattern string
	}
	testCases := []tTestCase{
		{name: "plain", search: "alice", wantPattern: "alice"},
		{name: "regex metacharacters are literal", search: "a.b*(c)", wantPattern: `a\.b\*\(c\)`},
		{name: "plus in mobile", search: "+91", wantPattern: `\+91`},
	}

	for _, test := range testCases {
		t.Run(test.name, func(t *testing.T) {
			filter := searchFilter(test.search)

			or, ok := filter["$or"].(bson.A)
			require.True(t, ok)
			require.Len(t, or, 3)
			for _, clause := range or {
				for _, value := range clause.(bson.M) {
					assert.Equal(t, primitive.Regex{Pattern: test.wantPattern, Options: "i"}, value)
				}
			}
		})
	}
}

func TestSearchFilterEmpty(t *testing.T) {
	assert.Empty(t, searchFilter(""))
}

func TestDocumentToUser(t *testing.T) {
	objectID := primitive.NewObjectID()
	picture := "/uploads/a.png"
	created := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)

	usr := (&document{
		ID:             objectID,
		Name:           "Alice",
		Email:          "alice@example.com",
		Mobile:         "9876543210",
		PasswordHash:   "hash",
		ProfilePicture: &picture,
		IsActive:       true,
		CreatedAt:      created,
		UpdatedAt:      created,
	}).toUser()

	assert.Equal(t, objectID.Hex(), usr.ID)
	assert.Equal(t, "hash", usr.PasswordHash)
	require.NotNil(t, usr.ProfilePicture)
	assert.Equal(t, picture, *usr.ProfilePicture)
}

// TestLiveDatabase runs against a real server when TEST_MDB_URI is set.
func TestLiveDatabase(t *testing.T) {
	uri := os.Getenv("TEST_MDB_URI")
	if uri == "" {
		t.Skip("TEST_MDB_URI is not set")
	}

	ctx := context.Background()
	db, err := New(ctx, uri, "userapi_test_"+primitive.NewObjectID().Hex(), 5*time.Second)
	require.NoError(t, err)
	defer func() {
		_ = db.users.Database().Drop(ctx)
		_ = db.Close()
	}()

	first := &user.User{Name: "Alice", Email: "alice@example.com", Mobile: "9876543210", PasswordHash: "h"}
	require.NoError(t, db.CreateUser(ctx, first))
	assert.True(t, first.IsActive)

	duplicate := &user.User{Name: "Other", Email: "alice@example.com", Mobile: "1111111111", PasswordHash: "h"}
	assert.ErrorIs(t, db.CreateUser(ctx, duplicate), storage.ErrDuplicateEmail)

	found, err := db.FindUserByEmailOrMobile(ctx, "nobody@example.com", "9876543210")
	require.NoError(t, err)
	assert.Equal(t, first.ID, found.ID)

	_, err = db.FindUserByID(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	updated, err := db.SetProfilePicture(ctx, first.ID, "/uploads/p.png")
	require.NoError(t, err)
	require.NotNil(t, updated.ProfilePicture)

	users, err := db.ListUsers(ctx, "ALI")
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, db.SetActive(ctx, first.ID, false))
	found, err = db.FindUserByID(ctx, first.ID)
	require.NoError(t, err)
	assert.False(t, found.IsActive)
}
