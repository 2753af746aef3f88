package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"task-tracker/internal/api"
	"task-tracker/internal/auth"
	"task-tracker/internal/bot"
	"task-tracker/internal/cache"
	"task-tracker/internal/config"
	"task-tracker/internal/repository"
	"task-tracker/internal/service"
)

const (
	jobTimeout         = 30 * time.Second
	cacheStatsInterval = 5 * time.Minute
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	setupLogging(cfg)

	db, err := repository.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("db handle: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	var taskStore service.TaskStore = repository.NewTaskRepository(db)

	health := map[string]api.HealthCheck{"database": sqlDB.PingContext}

	var revoker auth.Revoker = auth.NewMemoryRevoker()
	var rdb *redis.Client
	var taskCache *cache.TaskCache
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			log.Fatalf("redis url: %v", err)
		}
		rdb = redis.NewClient(opts)
		revoker = auth.NewRedisRevoker(rdb)
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		if cfg.TaskCacheTTL > 0 {
			taskCache = cache.NewTaskCache(taskStore, rdb, cfg.TaskCacheTTL)
			taskStore = taskCache
			log.WithField("ttl", cfg.TaskCacheTTL).Info("task cache enabled")
		}
	} else {
		log.Warn("REDIS_URL is not set: token revocation is kept in memory and the task cache is off")
	}

	tokens := auth.NewJWTManager(auth.JWTConfig{
		SecretKey:            cfg.JWTSecret,
		AccessTokenDuration:  cfg.AccessTokenTTL,
		RefreshTokenDuration: cfg.RefreshTokenTTL,
	})
	accounts := service.NewAuthService(userRepo, auth.NewPasswordHasher(cfg.BcryptCost), tokens, revoker)
	tasks := service.NewTaskService(taskStore)
	summaries := service.NewSummaryService(taskStore)

	e := api.NewServer(api.Deps{Tasks: tasks, Accounts: accounts, Health: health}, log.StandardLogger())
	go func() {
		log.WithField("addr", cfg.HTTPAddr).Info("http server listening")
		if err := e.Start(cfg.HTTPAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server: %v", err)
		}
	}()

	scheduler := service.NewSchedulerService(time.Local)
	if cfg.PurgeAfter > 0 {
		if _, err := scheduler.ScheduleDaily(cfg.PurgeAt, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			n, err := tasks.PurgeDeleted(jobCtx, cfg.PurgeAfter, time.Now())
			if err != nil {
				log.WithError(err).Error("purge deleted tasks")
				return
			}
			log.WithField("purged", n).Info("purged deleted tasks")
		}); err != nil {
			log.Fatalf("schedule purge: %v", err)
		}
	}

	if taskCache != nil {
		if _, err := scheduler.ScheduleInterval(cacheStatsInterval, func() {
			taskCache.LogStats(log.WithField("component", "cache"))
		}); err != nil {
			log.Fatalf("schedule cache stats: %v", err)
		}
	}

	botCtx, stopBot := context.WithCancel(context.Background())
	botDone := make(chan struct{})
	if cfg.TelegramToken != "" {
		telegramBot, err := bot.New(cfg.TelegramToken, accounts, tasks, summaries)
		if err != nil {
			log.Fatalf("bot: %v", err)
		}
		if _, err := scheduler.ScheduleInterval(cfg.ReportInterval, func() {
			jobCtx, cancel := context.WithTimeout(botCtx, jobTimeout)
			defer cancel()
			if err := telegramBot.SendDailyReports(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("send summaries")
			}
		}); err != nil {
			log.Fatalf("schedule summaries: %v", err)
		}
		go func() {
			defer close(botDone)
			if err := telegramBot.Start(botCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).Error("bot stopped")
			}
		}()
	} else {
		close(botDone)
		log.Info("TELEGRAM_TOKEN is not set: bot disabled")
	}

	scheduler.Start()
	log.WithField("jobs", scheduler.Entries()).Info("task tracker started")

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http": func(ctx context.Context) error {
				return e.Shutdown(ctx)
			},
			"scheduler": func(ctx context.Context) error {
				return scheduler.Stop(ctx)
			},
			"bot": func(ctx context.Context) error {
				stopBot()
				select {
				case <-botDone:
					return nil
				case <-ctx.Done():
					return ctx.Err()
				}
			},
		},
	)

	exitCode := <-wait
	if rdb != nil {
		if err := rdb.Close(); err != nil {
			log.WithError(err).Warn("close redis")
		}
	}
	if err := sqlDB.Close(); err != nil {
		log.WithError(err).Warn("close db")
	}
	log.WithField("exit_code", exitCode).Info("shutdown complete")
	os.Exit(exitCode)
}

func setupLogging(cfg config.Config) {
	if cfg.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
}
