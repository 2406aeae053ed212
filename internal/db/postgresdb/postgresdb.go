// Package postgresdb is the relational backend: users persisted in
// PostgreSQL through the pgx database/sql driver, with the schema managed by
// embedded goose migrations.
package postgresdb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/patric-chuzhbe/userapi/internal/db/storage"
	"github.com/patric-chuzhbe/userapi/internal/user"
)

//go:embed migrations/*.sql
var migrations embed.FS

const (
	uniqueViolationCode = "23505"
	emailConstraintName = "users_email_key"

	userColumns = `id, name, email, mobile, password_hash, profile_picture, is_active, created_at, updated_at`
)

// PostgresDB is a PostgreSQL-backed storage.Backend.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type initOptions struct {
	DBPreReset     bool
	skipMigrations bool
}

// InitOption configures New.
type InitOption func(*initOptions)

// WithDBPreReset drops every table in the public schema before migrating.
// Only meant for test databases.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// WithSkipMigrations connects without running migrations.
func WithSkipMigrations(value bool) InitOption {
	return func(options *initOptions) {
		options.skipMigrations = value
	}
}

// New opens the database, checks that it is reachable within
// connectionTimeout and applies pending migrations.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `sql.Open()` calling: %w", err)
	}

	result := NewFromDB(database, connectionTimeout)

	if err := result.Ping(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/New(): error while `result.Ping()` calling: %w", err)
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	if !options.skipMigrations {
		if err := result.migrate(ctx); err != nil {
			_ = database.Close()
			return nil, err
		}
	}

	return result, nil
}

// NewFromDB wraps an already opened database without pinging or migrating it.
func NewFromDB(database *sql.DB, connectionTimeout time.Duration) *PostgresDB {
	if connectionTimeout <= 0 {
		connectionTimeout = 10 * time.Second
	}

	return &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}
}

func (db *PostgresDB) migrate(ctx context.Context) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.UpContext(ctx, db.database, "migrations"); err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/migrate(): error while `goose.UpContext()` calling: %w", err)
	}

	return nil
}

func scanUser(row interface{ Scan(dest ...any) error }) (*user.User, error) {
	var (
		usr     user.User
		picture sql.NullString
	)
	err := row.Scan(
		&usr.ID,
		&usr.Name,
		&usr.Email,
		&usr.Mobile,
		&usr.PasswordHash,
		&picture,
		&usr.IsActive,
		&usr.CreatedAt,
		&usr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	if picture.Valid {
		usr.ProfilePicture = &picture.String
	}

	return &usr, nil
}

func findOne(ctx context.Context, database queryer, query string, args ...any) (*user.User, error) {
	return scanUser(database.QueryRowContext(ctx, query, args...))
}

// CreateUser inserts usr. A unique violation on the email index is reported
// as storage.ErrDuplicateEmail.
func (db *PostgresDB) CreateUser(ctx context.Context, usr *user.User) error {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO users (name, email, mobile, password_hash)
				VALUES ($1, $2, $3, $4)
				RETURNING id, is_active, created_at, updated_at
		`,
		usr.Name,
		usr.Email,
		usr.Mobile,
		usr.PasswordHash,
	)
	err := row.Scan(&usr.ID, &usr.IsActive, &usr.CreatedAt, &usr.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == emailConstraintName {
			return storage.ErrDuplicateEmail
		}
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/CreateUser(): error while `row.Scan()` calling: %w", err)
	}

	return nil
}

// FindUserByEmailOrMobile returns a user matching either field, an email
// match first.
func (db *PostgresDB) FindUserByEmailOrMobile(ctx context.Context, email, mobile string) (*user.User, error) {
	return findOne(
		ctx,
		db.database,
		`
			SELECT `+userColumns+`
				FROM users
				WHERE lower(email) = lower($1) OR mobile = $2
				ORDER BY (lower(email) = lower($1)) DESC
				LIMIT 1
		`,
		email,
		mobile,
	)
}

func (db *PostgresDB) FindUserByEmail(ctx context.Context, email string) (*user.User, error) {
	return findOne(
		ctx,
		db.database,
		`SELECT `+userColumns+` FROM users WHERE lower(email) = lower($1)`,
		email,
	)
}

// FindUserByID reports storage.ErrNotFound for ids that are not UUIDs.
func (db *PostgresDB) FindUserByID(ctx context.Context, userID string) (*user.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, storage.ErrNotFound
	}

	return findOne(
		ctx,
		db.database,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		userID,
	)
}

// ListUsers matches search with ILIKE against name, email and mobile.
func (db *PostgresDB) ListUsers(ctx context.Context, search string) ([]*user.User, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`
			SELECT `+userColumns+`
				FROM users
				WHERE $1 = '' OR name ILIKE $2 OR email ILIKE $2 OR mobile ILIKE $2
				ORDER BY created_at DESC, id DESC
		`,
		search,
		likePattern(search),
	)
	if err != nil {
		return nil, fmt.Errorf("in internal/db/postgresdb/postgresdb.go/ListUsers(): error while `db.database.QueryContext()` calling: %w", err)
	}
	defer rows.Close()

	result := []*user.User{}
	for rows.Next() {
		usr, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, usr)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

func (db *PostgresDB) SetProfilePicture(ctx context.Context, userID, picturePath string) (*user.User, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, storage.ErrNotFound
	}

	return findOne(
		ctx,
		db.database,
		`
			UPDATE users
				SET profile_picture = $2, updated_at = now()
				WHERE id = $1
				RETURNING `+userColumns,
		userID,
		picturePath,
	)
}

func (db *PostgresDB) SetActive(ctx context.Context, userID string, active bool) error {
	if _, err := uuid.Parse(userID); err != nil {
		return storage.ErrNotFound
	}

	result, err := db.database.ExecContext(
		ctx,
		`UPDATE users SET is_active = $2, updated_at = now() WHERE id = $1`,
		userID,
		active,
	)
	if err != nil {
		return fmt.Errorf("in internal/db/postgresdb/postgresdb.go/SetActive(): error while `db.database.ExecContext()` calling: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Ping verifies connectivity within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the connection pool.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf(
			"in internal/db/postgresdb/postgresdb.go/resetDB(): error while `db.database.ExecContext()` calling: %w",
			err,
		)
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func likePattern(search string) string {
	return "%" + likeEscaper.Replace(search) + "%"
}
