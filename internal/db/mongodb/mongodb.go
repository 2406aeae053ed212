// Package mongodb is the document backend: users stored in a MongoDB
// collection with a unique index on email.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/patric-chuzhbe/userapi/internal/db/storage"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

const (
	usersCollection = "users"
	emailIndexName  = "users_email_key"
)

type document struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Name           string             `bson:"name"`
	Email          string             `bson:"email"`
	Mobile         string             `bson:"mobile"`
	PasswordHash   string             `bson:"passwordHash"`
	ProfilePicture *string            `bson:"profilePicture"`
	IsActive       bool               `bson:"isActive"`
	CreatedAt      time.Time          `bson:"createdAt"`
	UpdatedAt      time.Time          `bson:"updatedAt"`
}

func (doc *document) toUser() *user.User {
	return &user.User{
		ID:             doc.ID.Hex(),
		Name:           doc.Name,
		Email:          doc.Email,
		Mobile:         doc.Mobile,
		PasswordHash:   doc.PasswordHash,
		ProfilePicture: doc.ProfilePicture,
		IsActive:       doc.IsActive,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

// MongoDB is a MongoDB-backed storage.Backend.
type MongoDB struct {
	client            *mongo.Client
	users             *mongo.Collection
	connectionTimeout time.Duration
	now               func() time.Time
}

// New connects to uri, selects database and makes sure the email index
// exists. Every step is bounded by connectionTimeout.
func New(ctx context.Context, uri, database string, connectionTimeout time.Duration) (*MongoDB, error) {
	if connectionTimeout <= 0 {
		connectionTimeout = 10 * time.Second
	}

	clientOptions := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(connectionTimeout).
		SetServerSelectionTimeout(connectionTimeout)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `mongo.Connect()` calling: %w", err)
	}

	db := &MongoDB{
		client:            client,
		users:             client.Database(database).Collection(usersCollection),
		connectionTimeout: connectionTimeout,
		now:               time.Now,
	}

	if err := db.Ping(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/New(): error while `db.Ping()` calling: %w", err)
	}

	if err := db.ensureIndexes(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

func (db *MongoDB) ensureIndexes(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	_, err := db.users.Indexes().CreateMany(ctxWithTimeout, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true).SetName(emailIndexName),
		},
		{
			Keys: bson.D{{Key: "mobile", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "createdAt", Value: -1}},
		},
	})
	if err != nil {
		return fmt.Errorf("in internal/db/mongodb/mongodb.go/ensureIndexes(): error while `db.users.Indexes().CreateMany()` calling: %w", err)
	}

	return nil
}

func (db *MongoDB) CreateUser(ctx context.Context, usr *user.User) error {
	now := db.now().UTC().Truncate(time.Millisecond)
	doc := document{
		Name:         usr.Name,
		Email:        usr.Email,
		Mobile:       usr.Mobile,
		PasswordHash: usr.PasswordHash,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	result, err := db.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return storage.ErrDuplicateEmail
		}
		return fmt.Errorf("in internal/db/mongodb/mongodb.go/CreateUser(): error while `db.users.InsertOne()` calling: %w", err)
	}

	objectID, ok := result.InsertedID.(primitive.ObjectID)
	if !ok {
		return fmt.Errorf("in internal/db/mongodb/mongodb.go/CreateUser(): unexpected inserted id type %T", result.InsertedID)
	}

	usr.ID = objectID.Hex()
	usr.IsActive = true
	usr.CreatedAt = now
	usr.UpdatedAt = now

	return nil
}

func (db *MongoDB) findOne(ctx context.Context, filter any, opts ...*options.FindOneOptions) (*user.User, error) {
	var doc document
	err := db.users.FindOne(ctx, filter, opts...).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/findOne(): error while `Decode()` calling: %w", err)
	}

	return doc.toUser(), nil
}

// FindUserByEmailOrMobile prefers an email match over a mobile one.
func (db *MongoDB) FindUserByEmailOrMobile(ctx context.Context, email, mobile string) (*user.User, error) {
	usr, err := db.findOne(ctx, bson.M{"email": email})
	if !errors.Is(err, storage.ErrNotFound) {
		return usr, err
	}

	return db.findOne(ctx, bson.M{"mobile": mobile})
}

func (db *MongoDB) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return db.findOne(ctx, bson.M{"email": email})
}

func (db *MongoDB) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	return db.findOne(ctx, bson.M{"_id": objectID})
}

// ListUsers matches search as a case-insensitive literal substring.
func (db *MongoDB) ListUsers(ctx context.Context, search string) ([]*user.User, error) {
	cursor, err := db.users.Find(
		ctx,
		searchFilter(search),
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/ListUsers(): error while `db.users.Find()` calling: %w", err)
	}
	defer cursor.Close(ctx)

	result := []*user.User{}
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/ListUsers(): error while `cursor.Decode()` calling: %w", err)
		}
		result = append(result, doc.toUser())
	}

	if err := cursor.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func searchFilter(search string) bson.M {
	if search == "" {
		return bson.M{}
	}

	pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}

	return bson.M{
		"$or": bson.A{
			bson.M{"name": pattern},
			bson.M{"email": pattern},
			bson.M{"mobile": pattern},
		},
	}
}

func (db *MongoDB) SetProfilePicture(ctx context.Context, userID, picturePath string) (*user.User, error) {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return nil, storage.ErrNotFound
	}

	var doc document
	err = db.users.FindOneAndUpdate(
		ctx,
		bson.M{"_id": objectID},
		bson.M{"$set": bson.M{
			"profilePicture": picturePath,
			"updatedAt":      db.now().UTC().Truncate(time.Millisecond),
		}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("in internal/db/mongodb/mongodb.go/SetProfilePicture(): error while `db.users.FindOneAndUpdate()` calling: %w", err)
	}

	return doc.toUser(), nil
}

func (db *MongoDB) SetActive(ctx context.Context, userID string, active bool) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return storage.ErrNotFound
	}

	result, err := db.users.UpdateByID(ctx, objectID, bson.M{"$set": bson.M{
		"isActive":  active,
		"updatedAt": db.now().UTC().Truncate(time.Millisecond),
	}})
	if err != nil {
		return fmt.Errorf("in internal/db/mongodb/mongodb.go/SetActive(): error while `db.users.UpdateByID()` calling: %w", err)
	}
	if result.MatchedCount == 0 {
		return storage.ErrNotFound
	}

	return nil
}

func (db *MongoDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.client.Ping(ctxWithTimeout, nil)
}

// Close disconnects the client.
func (db *MongoDB) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), db.connectionTimeout)
	defer cancel()

	return db.client.Disconnect(ctx)
}
