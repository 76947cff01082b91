package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"bombily/config"
	"bombily/pkg/api"
	"bombily/pkg/bot"
	"bombily/pkg/logger"
	"bombily/pkg/notify"
	"bombily/pkg/realtime"
	"bombily/pkg/schedule"
	"bombily/service"
	"bombily/storage"
	"bombily/storage/memory"
	"bombily/storage/postgres"
	"bombily/storage/redis"
)

func main() {
	cfg := config.Load()
	log := logger.New(cfg.ServiceName, cfg.LoggerLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stg, err := openStorage(ctx, cfg, log)
	if err != nil {
		log.Error("failed to open storage", logger.Error(err))
		os.Exit(1)
	}
	defer stg.Close()

	resolver := schedule.NewResolver(cfg.Location(), cfg.ScheduleLeadTime)
	svc := service.New(stg, resolver, cfg.AdminID, time.Now, log)
	hub := realtime.NewHub(log)

	var notifier notify.Notifier = notify.NewLog(log)
	var bots []*bot.Bot
	if cfg.BotsEnabled {
		clientBot, err := bot.New(bot.BotTypeClient, cfg, svc, log)
		if err != nil {
			log.Error("failed to initialize passenger bot", logger.Error(err))
			os.Exit(1)
		}
		driverBot, err := bot.New(bot.BotTypeDriverAdmin, cfg, svc, log)
		if err != nil {
			log.Error("failed to initialize driver/admin bot", logger.Error(err))
			os.Exit(1)
		}
		bots = append(bots, clientBot, driverBot)
		notifier = notify.Multi{notifier, notify.NewTelegram(stg.User(), clientBot.Bot, driverBot.Bot, log)}
	}

	observer := service.NewObserver(stg, notifier, openDeduper(ctx, cfg, log), hub, cfg.NotifyTimeout, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return api.New(svc, hub, log).Run(gctx, cfg.AppPort)
	})
	g.Go(func() error {
		return observer.Run(gctx)
	})
	for _, b := range bots {
		b := b
		go b.Start()
		g.Go(func() error {
			<-gctx.Done()
			b.Stop()
			return nil
		})
	}

	log.Info("bombily is running", logger.String("storage", cfg.StorageDriver), logger.Bool("bots", cfg.BotsEnabled))

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("shutting down after failure", logger.Error(err))
	}
	observer.Wait()
	log.Info("stopped")
}

func openStorage(ctx context.Context, cfg config.Config, log logger.ILogger) (storage.IStorage, error) {
	if cfg.StorageDriver == config.StorageDriverMemory {
		log.Warning("using in-memory storage, data is lost on restart")
		return memory.New(), nil
	}
	return postgres.New(ctx, cfg, log)
}

// openDeduper shares the seen-event set through redis when configured. A nil
// deduper makes the observer keep it in memory.
func openDeduper(ctx context.Context, cfg config.Config, log logger.ILogger) service.Deduper {
	addr := cfg.RedisAddr()
	if addr == "" {
		return nil
	}
	d := redis.NewDeduper(redis.NewClient(addr, cfg.RedisPassword), 10*time.Minute)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := d.Ping(pingCtx); err != nil {
		log.Warning("redis unavailable, deduplicating in memory", logger.String("addr", addr), logger.Error(err))
		return nil
	}
	log.Info("redis connected", logger.String("addr", addr))
	return d
}
