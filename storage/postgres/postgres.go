package postgres

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5/pgxpool"

	"bombily/config"
	"bombily/pkg/logger"
	"bombily/storage"
)

type Store struct {
	pool *pgxpool.Pool
	log  logger.ILogger
	feed *Feed
}

func New(ctx context.Context, cfg config.Config, log logger.ILogger) (*Store, error) {
	url := cfg.PostgresURL()

	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		log.Error("error while parsing Postgres config", logger.Error(err))
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		log.Error("failed to connect Postgres", logger.Error(err))
		return nil, err
	}

	if err := Migrate(url, log); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("Postgres connected")

	return &Store{
		pool: pool,
		log:  log,
		feed: NewFeed(url, cfg.FeedChannel, cfg.FeedReconnectDelay, log),
	}, nil
}

// Migrate applies the nearest migrations directory found walking up from the
// working directory (or its postgres subdirectory when present).
func Migrate(url string, log logger.ILogger) error {
	cwd, _ := os.Getwd()
	mPath := migrationsDir(cwd)
	if _, err := os.Stat(filepath.Join(mPath, "postgres")); err == nil {
		mPath = filepath.Join(mPath, "postgres")
	}

	m, err := migrate.New("file://"+mPath, url)
	if err != nil {
		log.Error("migration init error or no migrations found", logger.Error(err))
		return nil
	}
	defer m.Close()

	if err = m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Info("no migrations to apply")
			return nil
		}
		log.Error("migration up error", logger.Error(err))
		return err
	}
	return nil
}

func migrationsDir(from string) string {
	for dir := from; ; dir = filepath.Dir(dir) {
		candidate := filepath.Join(dir, "migrations")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate
		}
		if filepath.Dir(dir) == dir {
			return filepath.Join(from, "migrations")
		}
	}
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) GetPool() *pgxpool.Pool {
	return s.pool
}

func (s *Store) User() storage.IUserStorage         { return NewUserRepo(s.pool, s.log) }
func (s *Store) Order() storage.IOrderStorage       { return NewOrderRepo(s.pool, s.log) }
func (s *Store) City() storage.ICityStorage         { return NewCityRepo(s.pool, s.log) }
func (s *Store) Shop() storage.IShopStorage         { return NewShopRepo(s.pool, s.log) }
func (s *Store) Settings() storage.ISettingsStorage { return NewSettingsRepo(s.pool, s.log) }
func (s *Store) Catalog() storage.ICatalogStorage   { return NewCatalogRepo(s.pool, s.log) }
func (s *Store) Feed() storage.IOrderFeed           { return s.feed }
