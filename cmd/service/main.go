package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/Fauli/listener-dj-set-collab-sub001/internal/config"
	"github.com/Fauli/listener-dj-set-collab-sub001/internal/realtime"
	"github.com/Fauli/listener-dj-set-collab-sub001/internal/setlist"
)

func main() {
	configPath := flag.String("config", "listener.toml", "path to TOML config file")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "listener",
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("load config", "err", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("connect postgres", "err", err)
	}
	defer pool.Close()

	if err := setlist.AutoMigrate(ctx, pool); err != nil {
		logger.Fatal("migrate", "err", err)
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("parse redis url", "err", err)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	store := setlist.NewStore(pool, setlist.StoreConfig{
		LockTimeout:      time.Duration(cfg.LockTimeoutMs) * time.Millisecond,
		StatementTimeout: time.Duration(cfg.StatementTimeoutMs) * time.Millisecond,
	})
	pub := setlist.NewRedisPublisher(rdb, cfg.BroadcastChannel, logger)
	gw := setlist.NewGateway(store, setlist.NewSequencer(), pub, logger)
	gw.SetInsertRetries(cfg.InsertRetries)
	api := setlist.NewServer(pool, gw, logger)

	hub := realtime.NewHub()
	go hub.Run()
	rt := realtime.NewServer(hub, rdb, logger)
	go rt.RunSubscriber(ctx, cfg.BroadcastChannel)

	middlewares := []func(http.Handler) http.Handler{
		corsMiddleware,
		bodySizeLimitMiddleware(cfg.MaxBodyBytes),
	}
	if cfg.JWTSecret != "" {
		middlewares = append(middlewares, jwtAuthMiddleware([]byte(cfg.JWTSecret)))
	}

	r := chi.NewRouter()
	r.Mount("/", api.Router(middlewares...))
	r.Mount("/realtime", rt.Router(middlewares...))

	logger.Info("listening", "port", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		logger.Fatal("http server", "err", err)
	}
}
