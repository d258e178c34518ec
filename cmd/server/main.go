package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/0xRedwolf/caryvn-backend/internal/auth"
	"github.com/0xRedwolf/caryvn-backend/internal/catalog"
	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/logger"
	"github.com/0xRedwolf/caryvn-backend/internal/model"
	"github.com/0xRedwolf/caryvn-backend/internal/orders"
	"github.com/0xRedwolf/caryvn-backend/internal/payment"
	"github.com/0xRedwolf/caryvn-backend/internal/provider"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"
	httptransport "github.com/0xRedwolf/caryvn-backend/internal/transport/http"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	// 1. load config
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	// 2. init logger
	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	// 3. postgres
	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}
	if err := gdb.AutoMigrate(
		&model.Wallet{}, &model.Transaction{}, &model.OutboxEvent{},
		&model.Order{}, &model.Service{}, &model.MarkupRule{}, &model.APILog{},
	); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	// 4. redis
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("redis ping: %v", err)
	}

	// 5. kafka writer
	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	// 6. repo & domain services
	repository := repo.NewRepository(gdb, rdb, kw, log)
	led := ledger.New(repository, log)
	prov := provider.NewClient(cfg.Provider, repository, log)
	engine := orders.NewEngine(repository, led, prov, log)
	squad := payment.NewSquadClient(cfg.Squad, log)
	reconciler := payment.NewReconciler(repository, led, squad, cfg.Squad, log)
	syncer := catalog.NewSyncer(repository, prov, log)
	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret)

	// 7. gin router
	router := httptransport.NewRouter(httptransport.Deps{
		Repo:       repository,
		Ledger:     led,
		Engine:     engine,
		Reconciler: reconciler,
		Syncer:     syncer,
		Provider:   prov,
		Tokens:     tokens,
		Log:        log,
	}, cfg.RateLimit)

	// 8. serve
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Infof("caryvn-server listening on %s", addr)
	if err := http.ListenAndServe(addr, router); err != nil {
		log.Fatalf("listen: %v", err)
	}
}
