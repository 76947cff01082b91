package main

import (
	"context"
	"os"

	"github.com/jackc/pgx/v5"

	"bombily/config"
	"bombily/pkg/logger"
)

// Wipes orders, shops, users and cities and resets the markup. Schema and
// migration history are kept.
func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)
	ctx := context.Background()

	conn, err := pgx.Connect(ctx, cfg.PostgresURL())
	if err != nil {
		log.Error("failed to connect Postgres", logger.Error(err))
		os.Exit(1)
	}
	defer conn.Close(ctx)

	err = pgx.BeginFunc(ctx, conn, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "TRUNCATE TABLE orders, shops, users, cities CASCADE"); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, "UPDATE app_settings SET markup_percent = 0 WHERE id = 1")
		return err
	})
	if err != nil {
		log.Error("failed to reset tables", logger.Error(err))
		os.Exit(1)
	}
	log.Info("truncated orders, shops, users and cities")
}
