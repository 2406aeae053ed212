// Package config loads the service configuration. Values are resolved in the
// order defaults < .env file < process environment < command line flags and
// validated before use.
package config

import (
	"errors"
	"flag"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	env "github.com/caarlos0/env/v6"
	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// DefaultJWTSecret is used when JWT_SECRET is not set. It is only fit for
// local development.
const DefaultJWTSecret = "default-secret-key"

var (
	// ErrMissingRelationalConfig means neither DATABASE_DSN nor the
	// DB_HOST/DB_NAME/DB_USER triple is set.
	ErrMissingRelationalConfig = errors.New("set DATABASE_DSN or DB_HOST, DB_NAME and DB_USER")

	// ErrMissingDocumentConfig means neither MDB_URI nor MDB_HOST/MDB_NAME is set.
	ErrMissingDocumentConfig = errors.New("set MDB_URI or MDB_HOST and MDB_NAME")
)

// Config is the complete service configuration.
type Config struct {
	RunAddr     string `env:"SERVER_ADDRESS" validate:"hostname_port"`
	RestPort    int    `env:"REST_PORT" validate:"min=0,max=65535"`
	Environment string `env:"APP_ENV"`
	ServiceName string `env:"SERVICE_NAME"`
	LogLevel    string `env:"LOG_LEVEL" validate:"loglevel"`
	APIVersion  string `env:"API_VERSION" validate:"urlpath"`

	DBType              string        `env:"DB_TYPE"`
	DBConnectionTimeout time.Duration `env:"DB_CONNECTION_TIMEOUT" validate:"min=0"`
	RequestTimeout      time.Duration `env:"REQUEST_TIMEOUT" validate:"min=0"`

	DatabaseDSN string `env:"DATABASE_DSN"`
	DBHost      string `env:"DB_HOST"`
	DBPort      int    `env:"DB_PORT" validate:"min=0,max=65535"`
	DBUser      string `env:"DB_USER"`
	DBPassword  string `env:"DB_PASSWORD"`
	DBName      string `env:"DB_NAME"`
	DBSSLMode   string `env:"DB_SSLMODE"`

	MongoURI  string `env:"MDB_URI"`
	MongoHost string `env:"MDB_HOST"`
	MongoPort int    `env:"MDB_PORT" validate:"min=0,max=65535"`
	MongoName string `env:"MDB_NAME"`
	MongoUser string `env:"MDB_USER"`
	MongoPass string `env:"MDB_PASS"`

	JWTSecret    string   `env:"JWT_SECRET" validate:"required"`
	JWTExpiresIn TokenTTL `env:"JWT_EXPIRES_IN"`

	LocalStoragePath string `env:"LOCAL_STORAGE_PATH" validate:"required,storagepath"`
	UploadMaxBytes   int64  `env:"UPLOAD_MAX_BYTES" validate:"min=1"`

	// FileStoragePath is the JSON snapshot of the memory backend. Empty keeps
	// the memory backend purely in-process.
	FileStoragePath string `env:"FILE_STORAGE_PATH"`

	TrustedSubnet        string  `env:"TRUSTED_SUBNET" validate:"omitempty,cidr"`
	AuthRatePerMinute    float64 `env:"AUTH_RATE_PER_MINUTE" validate:"min=0"`
	AuthRateBurst        int     `env:"AUTH_RATE_BURST" validate:"min=0"`
	ExposeInternalErrors bool    `env:"EXPOSE_INTERNAL_ERRORS"`

	// TrustProxyHeaders takes the client IP from X-Real-IP/X-Forwarded-For.
	// Only enable it behind a reverse proxy that overwrites those headers.
	TrustProxyHeaders bool `env:"TRUST_PROXY_HEADERS"`
}

var defaultConfig = Config{
	RunAddr:              ":3000",
	Environment:          "development",
	ServiceName:          "userapi",
	LogLevel:             "info",
	APIVersion:           "/api/v1",
	DBConnectionTimeout:  10 * time.Second,
	RequestTimeout:       15 * time.Second,
	DBPort:               5432,
	DBSSLMode:            "disable",
	MongoPort:            27017,
	JWTSecret:            DefaultJWTSecret,
	JWTExpiresIn:         TokenTTL(7 * 24 * time.Hour),
	LocalStoragePath:     "./uploads",
	UploadMaxBytes:       5 << 20,
	AuthRatePerMinute:    30,
	AuthRateBurst:        10,
	ExposeInternalErrors: true,
}

// InitOption customises New.
type InitOption func(*initOptions)

type initOptions struct {
	disableFlagsParsing bool
	disableDotEnv       bool
	args                []string
}

// WithDisableFlagsParsing skips command line parsing; tests use it.
func WithDisableFlagsParsing(disableFlagsParsing bool) InitOption {
	return func(options *initOptions) {
		options.disableFlagsParsing = disableFlagsParsing
	}
}

// WithDisableDotEnv skips loading the .env file.
func WithDisableDotEnv(disableDotEnv bool) InitOption {
	return func(options *initOptions) {
		options.disableDotEnv = disableDotEnv
	}
}

// WithArgs parses args instead of os.Args[1:].
func WithArgs(args []string) InitOption {
	return func(options *initOptions) {
		options.args = args
	}
}

// New resolves and validates the configuration.
func New(optionsProto ...InitOption) (*Config, error) {
	options := &initOptions{
		args: os.Args[1:],
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	if !options.disableDotEnv {
		// A missing .env file is normal outside development.
		_ = godotenv.Load()
	}

	values := defaultConfig

	if err := env.Parse(&values); err != nil {
		return nil, fmt.Errorf("in internal/config/config.go/New(): error while `env.Parse()` calling: %w", err)
	}

	if !options.disableFlagsParsing {
		if err := values.parseFlags(options.args); err != nil {
			return nil, err
		}
	}

	if values.RestPort != 0 {
		values.RunAddr = ":" + strconv.Itoa(values.RestPort)
	}
	values.DBType = strings.ToLower(strings.TrimSpace(values.DBType))

	if err := validate(&values); err != nil {
		return nil, err
	}

	return &values, nil
}

func (c *Config) parseFlags(args []string) error {
	flags := flag.NewFlagSet("userapi", flag.ContinueOnError)
	flags.StringVar(&c.RunAddr, "a", c.RunAddr, "address and port to run server")
	flags.StringVar(&c.LogLevel, "l", c.LogLevel, "logger level")
	flags.StringVar(&c.DBType, "t", c.DBType, "database type: postgres, mongo, multi or memory")
	flags.StringVar(&c.DatabaseDSN, "d", c.DatabaseDSN, "PostgreSQL connection string")
	flags.StringVar(&c.MongoURI, "m", c.MongoURI, "MongoDB connection URI")
	flags.StringVar(&c.LocalStoragePath, "u", c.LocalStoragePath, "directory for uploaded files")
	flags.StringVar(&c.FileStoragePath, "f", c.FileStoragePath, "memory backend snapshot file")
	flags.Var(&c.JWTExpiresIn, "e", "token lifetime, e.g. 12h or 7d")

	if err := flags.Parse(args); err != nil {
		return fmt.Errorf("in internal/config/config.go/parseFlags(): error while `flags.Parse()` calling: %w", err)
	}

	return nil
}

// RelationalDSN returns the PostgreSQL connection string, built from the
// DB_* parts when DATABASE_DSN is empty.
func (c *Config) RelationalDSN() (string, error) {
	if c.DatabaseDSN != "" {
		return c.DatabaseDSN, nil
	}
	if c.DBHost == "" || c.DBName == "" || c.DBUser == "" {
		return "", ErrMissingRelationalConfig
	}

	port := c.DBPort
	if port == 0 {
		port = defaultConfig.DBPort
	}
	dsn := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.DBUser, c.DBPassword),
		Host:     net.JoinHostPort(c.DBHost, strconv.Itoa(port)),
		Path:     "/" + c.DBName,
		RawQuery: url.Values{"sslmode": {c.DBSSLMode}}.Encode(),
	}

	return dsn.String(), nil
}

// DocumentURI returns the MongoDB URI and database name, built from the
// MDB_* parts when MDB_URI is empty.
func (c *Config) DocumentURI() (uri string, database string, err error) {
	if c.MongoURI != "" {
		database = c.MongoName
		if database == "" {
			if parsed, err := url.Parse(c.MongoURI); err == nil {
				database = strings.Trim(parsed.Path, "/")
			}
		}
		if database == "" {
			database = c.ServiceName
		}
		return c.MongoURI, database, nil
	}
	if c.MongoHost == "" || c.MongoName == "" {
		return "", "", ErrMissingDocumentConfig
	}

	port := c.MongoPort
	if port == 0 {
		port = defaultConfig.MongoPort
	}
	mongoURL := url.URL{
		Scheme:   "mongodb",
		Host:     net.JoinHostPort(c.MongoHost, strconv.Itoa(port)),
		Path:     "/" + c.MongoName,
		RawQuery: "authSource=admin",
	}
	if c.MongoUser != "" {
		mongoURL.User = url.UserPassword(c.MongoUser, c.MongoPass)
	}

	return mongoURL.String(), c.MongoName, nil
}

// UsesDefaultSecret reports whether tokens are signed with DefaultJWTSecret.
func (c *Config) UsesDefaultSecret() bool {
	return c.JWTSecret == DefaultJWTSecret
}

func validateLogLevel(fieldLevel validator.FieldLevel) bool {
	allowedLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
		"fatal": true,
	}

	return allowedLogLevels[fieldLevel.Field().String()]
}

func validateStoragePath(fieldLevel validator.FieldLevel) bool {
	info, err := os.Stat(fieldLevel.Field().String())
	if err != nil {
		return os.IsNotExist(err)
	}

	return info.IsDir()
}

func validateURLPath(fieldLevel validator.FieldLevel) bool {
	value := fieldLevel.Field().String()

	return value == "" || (strings.HasPrefix(value, "/") && !strings.ContainsAny(value, " ?#"))
}

func validate(values *Config) error {
	validate := validator.New()

	if err := validate.RegisterValidation("loglevel", validateLogLevel); err != nil {
		return err
	}
	if err := validate.RegisterValidation("urlpath", validateURLPath); err != nil {
		return err
	}
	if err := validate.RegisterValidation("storagepath", validateStoragePath); err != nil {
		return err
	}

	return validate.Struct(values)
}

// TokenTTL is a duration that also accepts a whole number of days, e.g. "7d".
type TokenTTL time.Duration

// Duration returns the value as a time.Duration.
func (t TokenTTL) Duration() time.Duration {
	return time.Duration(t)
}

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (t *TokenTTL) UnmarshalText(text []byte) error {
	return t.Set(string(text))
}

// Set implements flag.Value.
func (t *TokenTTL) Set(value string) error {
	value = strings.TrimSpace(value)
	if days, found := strings.CutSuffix(value, "d"); found {
		n, err := strconv.Atoi(days)
		if err != nil || n <= 0 {
			return fmt.Errorf("invalid token lifetime %q", value)
		}
		*t = TokenTTL(time.Duration(n) * 24 * time.Hour)
		return nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil || duration <= 0 {
		return fmt.Errorf("invalid token lifetime %q", value)
	}
	*t = TokenTTL(duration)

	return nil
}

// String implements flag.Value.
func (t *TokenTTL) String() string {
	if t == nil {
		return ""
	}
	return time.Duration(*t).String()
}
