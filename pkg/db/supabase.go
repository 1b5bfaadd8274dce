package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	supabase "github.com/supabase-community/supabase-go"
)

// ErrNoDirectDB is returned when a Supabase project is configured without database credentials.
// The catalog store needs a direct Postgres connection; the REST API alone is not enough.
var ErrNoDirectDB = errors.New("supabase: no direct database connection configured")

// ErrNoSDK is returned by REST calls when the project has no API key configured.
var ErrNoSDK = errors.New("supabase: REST client not configured")

// ErrRowsHidden is returned by Open when the REST API sees fewer catalog rows than the
// direct connection, which is what row level security without a read policy looks like.
var ErrRowsHidden = errors.New("supabase: REST API sees fewer rows than the database")

// SupabaseConfig holds the settings for a catalog database hosted on Supabase.
type SupabaseConfig struct {
	// ConnectionString is the project's Postgres connection string.
	// When empty it is derived from ProjectURL and Password.
	ConnectionString string

	// ProjectURL looks like "https://<project-ref>.supabase.co".
	ProjectURL string

	// APIKey enables the SDK client (service_role key for server-side use).
	APIKey string

	// Password is the database password, not the API key.
	Password string

	MaxOpenConns int
	MaxIdleConns int
	ConnMaxIdle  time.Duration
	ConnMaxLife  time.Duration
}

// SupabaseClient provides the Postgres handle of a Supabase project plus its SDK client.
type SupabaseClient struct {
	db          *sql.DB
	supabaseSDK *supabase.Client
	cfg         SupabaseConfig
}

// NewSupabaseClient constructs a Supabase client. Call Connect before use.
func NewSupabaseClient(cfg SupabaseConfig) *SupabaseClient {
	return &SupabaseClient{cfg: cfg}
}

// Connect initializes the SDK client when an API key is set and opens the direct
// database connection when a connection string or password is set.
func (c *SupabaseClient) Connect(ctx context.Context) error {
	if c.cfg.ProjectURL != "" && c.cfg.APIKey != "" {
		sdkClient, err := supabase.NewClient(c.cfg.ProjectURL, c.cfg.APIKey, nil)
		if err != nil {
			return fmt.Errorf("initialize supabase SDK: %w", err)
		}
		c.supabaseSDK = sdkClient
	}

	connStr := c.cfg.ConnectionString
	if connStr == "" && c.cfg.Password != "" {
		var err error
		connStr, err = buildSupabaseConnString(c.cfg.ProjectURL, c.cfg.Password)
		if err != nil {
			return fmt.Errorf("build connection string: %w", err)
		}
	}

	if connStr == "" {
		if c.supabaseSDK == nil {
			return fmt.Errorf("either connection string/password or project URL+key must be provided")
		}
		return nil
	}

	// Pooled Supabase connections reject prepared statement caching.
	connStr = addConnectionParam(connStr, "statement_cache_capacity", "0")
	connStr = addConnectionParam(connStr, "default_query_exec_mode", "simple_protocol")

	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return fmt.Errorf("open supabase postgres: %w", err)
	}
	applyPoolSettings(db, c.cfg.MaxOpenConns, c.cfg.MaxIdleConns, c.cfg.ConnMaxIdle, c.cfg.ConnMaxLife)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("ping supabase postgres: %w", err)
	}

	c.db = db
	return nil
}

// Close closes the database connection.
func (c *SupabaseClient) Close() error {
	if c.db == nil {
		return nil
	}
	return c.db.Close()
}

// DB returns nil when only the SDK was configured.
func (c *SupabaseClient) DB() *sql.DB {
	return c.db
}

func (c *SupabaseClient) HasDirectDB() bool {
	return c.db != nil
}

// CountREST counts the rows of table as the project's REST API sees them.
// It fails with ErrNoSDK when no API key was configured.
func (c *SupabaseClient) CountREST(table string) (int64, error) {
	if c.supabaseSDK == nil {
		return 0, ErrNoSDK
	}
	_, count, err := c.supabaseSDK.From(table).Select("id", "exact", true).Execute()
	if err != nil {
		return 0, fmt.Errorf("count %s over REST: %w", table, err)
	}
	return count, nil
}

type restCounter interface {
	CountREST(table string) (int64, error)
}

// checkRESTVisibility compares the REST row count of table with the direct one.
// A project without an API key is not checked.
func checkRESTVisibility(rest restCounter, table string, direct int64) (int64, error) {
	n, err := rest.CountREST(table)
	if errors.Is(err, ErrNoSDK) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if n < direct {
		return n, fmt.Errorf("%w: %s has %d rows, REST returns %d", ErrRowsHidden, table, direct, n)
	}
	return n, nil
}

// buildSupabaseConnString derives the direct connection string from the project URL.
func buildSupabaseConnString(projectURL, password string) (string, error) {
	if projectURL == "" {
		return "", fmt.Errorf("supabase project URL is required when connection string is not provided")
	}

	parsedURL, err := url.Parse(projectURL)
	if err != nil {
		return "", fmt.Errorf("parse supabase URL: %w", err)
	}

	// "abcd.supabase.co" -> "abcd"
	parts := strings.Split(parsedURL.Host, ".")
	if len(parts) < 2 || parts[0] == "" {
		return "", fmt.Errorf("invalid supabase URL format: expected <project-ref>.supabase.co")
	}

	return fmt.Sprintf("postgresql://postgres:%s@db.%s.supabase.co:5432/postgres?sslmode=require",
		url.QueryEscape(password), parts[0]), nil
}

// addConnectionParam appends key=value unless the key is already present.
func addConnectionParam(connStr, key, value string) string {
	if strings.Contains(connStr, key+"=") {
		return connStr
	}

	separator := "?"
	if strings.Contains(connStr, "?") {
		separator = "&"
	}

	return connStr + separator + key + "=" + value
}
