package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"irdin-archive/pkg/domain"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Supported values for Config.Driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

// Config selects and configures the catalog database.
type Config struct {
	Driver string

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string

	Postgres PostgresConfig
	Supabase SupabaseConfig
}

// Open connects to the configured database and migrates the catalog schema.
func Open(ctx context.Context, cfg Config, logger *zap.Logger) (*Store, error) {
	gormCfg := &gorm.Config{
		Logger:  gormlogger.Default.LogMode(gormlogger.Warn),
		NowFunc: func() time.Time { return time.Now().UTC() },
	}

	var (
		dialector gorm.Dialector
		provider  DBProvider
	)

	switch strings.ToLower(cfg.Driver) {
	case "", DriverSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = "irdin.sqlite3"
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dialector = &sqlite.Dialector{DriverName: sqliteDriverName, DSN: SQLiteDSN(path)}

	case DriverPostgres:
		client := NewPostgresClient(cfg.Postgres)
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		provider = client
		dialector = postgres.New(postgres.Config{Conn: client.DB()})

	case DriverSupabase:
		client := NewSupabaseClient(cfg.Supabase)
		if err := client.Connect(ctx); err != nil {
			return nil, err
		}
		if !client.HasDirectDB() {
			_ = client.Close()
			return nil, ErrNoDirectDB
		}
		provider = client
		dialector = postgres.New(postgres.Config{Conn: client.DB(), PreferSimpleProtocol: true})

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		if provider != nil {
			_ = provider.Close()
		}
		return nil, fmt.Errorf("open catalog database: %w", err)
	}

	store := &Store{db: gdb, provider: provider, logger: logger.Named("store")}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, err
	}

	if client, ok := provider.(*SupabaseClient); ok {
		var direct int64
		if err := gdb.WithContext(ctx).Model(&domain.Source{}).Count(&direct).Error; err != nil {
			_ = store.Close()
			return nil, fmt.Errorf("count sources: %w", err)
		}
		n, err := checkRESTVisibility(client, "sources", direct)
		if err != nil {
			_ = store.Close()
			return nil, err
		}
		logger.Info("supabase REST client ready", zap.Int64("sources", n))
	}

	logger.Info("catalog database ready", zap.String("driver", gdb.Dialector.Name()))
	return store, nil
}

// Migrate creates or updates the catalog tables.
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&domain.Source{}, &domain.Author{}, &domain.Track{}); err != nil {
		return fmt.Errorf("migrate catalog schema: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	if s.provider != nil {
		return s.provider.Close()
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
