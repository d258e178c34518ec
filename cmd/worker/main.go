package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/0xRedwolf/caryvn-backend/internal/catalog"
	"github.com/0xRedwolf/caryvn-backend/internal/config"
	"github.com/0xRedwolf/caryvn-backend/internal/ledger"
	"github.com/0xRedwolf/caryvn-backend/internal/logger"
	"github.com/0xRedwolf/caryvn-backend/internal/orders"
	"github.com/0xRedwolf/caryvn-backend/internal/provider"
	"github.com/0xRedwolf/caryvn-backend/internal/repo"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// The worker owns every background loop: outbox drain, catalog sync, order
// reconciliation and the orphaned-charge sweep. Exactly one instance should
// run per deployment.
func main() {
	cfg, err := config.Load("internal/config/config.yaml")
	if err != nil {
		panic(fmt.Errorf("load config: %w", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level)
	if err != nil {
		panic(fmt.Errorf("init logger: %w", err))
	}
	defer log.Sync()

	gdb, err := gorm.Open(postgres.Open(cfg.Postgres.DSN), &gorm.Config{PrepareStmt: true})
	if err != nil {
		log.Fatalf("open postgres: %v", err)
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	kw := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Kafka.Brokers...),
		Topic:    cfg.Kafka.Topic,
		Balancer: &kafka.LeastBytes{},
	}

	repository := repo.NewRepository(gdb, rdb, kw, log)
	led := ledger.New(repository, log)
	prov := provider.NewClient(cfg.Provider, repository, log)
	engine := orders.NewEngine(repository, led, prov, log)
	syncer := catalog.NewSyncer(repository, prov, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	outboxTick := time.NewTicker(1 * time.Second)
	reconcileTick := time.NewTicker(cfg.Sync.OrderInterval())
	catalogTick := time.NewTicker(cfg.Sync.CatalogInterval())
	sweepTick := time.NewTicker(cfg.Sync.OrphanSweepInterval())
	defer outboxTick.Stop()
	defer reconcileTick.Stop()
	defer catalogTick.Stop()
	defer sweepTick.Stop()

	log.Info("caryvn-worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("caryvn-worker stopping")
			return
		case <-outboxTick.C:
			drainOutbox(ctx, repository, log)
		case <-reconcileTick.C:
			updated, failed, err := engine.ReconcileActiveOrders(ctx)
			if err != nil {
				log.Errorf("reconcile orders: %v", err)
				continue
			}
			log.Infof("order reconcile: %d updated, %d failed", updated, failed)
		case <-catalogTick.C:
			count, err := syncer.Sync(ctx, false)
			if err != nil {
				log.Errorf("catalog sync: %v", err)
				continue
			}
			log.Infof("catalog sync: %d services", count)
		case <-sweepTick.C:
			swept, err := engine.SweepOrphanedCharges(ctx, cfg.Sync.OrphanAge())
			if err != nil {
				log.Errorf("orphan sweep: %v", err)
				continue
			}
			if swept > 0 {
				log.Infof("orphan sweep: %d charges refunded", swept)
			}
		}
	}
}

func drainOutbox(ctx context.Context, repository *repo.Repository, log *zap.SugaredLogger) {
	events, err := repository.PollOutbox(ctx, 100)
	if err != nil {
		log.Errorf("poll outbox: %v", err)
		return
	}
	for _, evt := range events {
		if err := repository.PublishEvent(ctx, evt); err != nil {
			log.Errorf("publish id=%d: %v", evt.ID, err)
			continue
		}
		if err := repository.MarkOutboxProcessed(ctx, evt.ID); err != nil {
			log.Errorf("mark processed id=%d: %v", evt.ID, err)
		} else {
			log.Infof("event %d sent", evt.ID)
		}
	}
}
