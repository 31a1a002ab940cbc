package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"njord/api/httpserver"
	"njord/config"
	"njord/domain/ledger"
	"njord/domain/market"
	"njord/infra/kafka"
	"njord/infra/metrics"
	"njord/infra/outbox"
	"njord/infra/store"
	"njord/infra/wal"
	"njord/jobs/broadcaster"
	"njord/service"
)

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config load failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---------------- Persistence ----------------

	journal, err := wal.Open(wal.Config{
		Dir:             cfg.WALDir,
		SegmentSize:     cfg.WALSegmentSize,
		SegmentDuration: cfg.WALSegmentAge,
		SyncOnAppend:    cfg.WALSyncOnAppend,
	}, log)
	if err != nil {
		log.Fatal("journal init failed", zap.Error(err))
	}

	st, err := store.Open(cfg.StoreDir)
	if err != nil {
		log.Fatal("store init failed", zap.Error(err))
	}
	defer st.Close()

	ob, err := outbox.Open(cfg.OutboxDir)
	if err != nil {
		log.Fatal("outbox init failed", zap.Error(err))
	}
	defer ob.Close()

	// ---------------- Domain ----------------

	// Single-process collaborators. Deployments with an external coin
	// ledger or custody wire their own market.CoinLedger / ItemCustody.
	coins := ledger.NewCoins()
	custody := ledger.NewCustody()
	royalty := ledger.NewRoyalty(0, 0)

	m := market.New(coins, custody, royalty, log)

	// ---------------- Service ----------------

	reg := prometheus.NewRegistry()
	svc := service.New(m, journal, st, ob, metrics.New(reg), log)
	if err := svc.Recover(); err != nil {
		log.Fatal("recovery failed", zap.Error(err))
	}
	defer svc.Close()

	// ---------------- Background jobs ----------------

	go svc.RunSnapshotJob(ctx, cfg.SnapshotInterval)

	if len(cfg.KafkaBrokers) > 0 {
		bc, err := broadcaster.New(ob, cfg.KafkaBrokers, cfg.KafkaEventsTopic, cfg.BroadcastEvery, log)
		if err != nil {
			log.Fatal("broadcaster init failed", zap.Error(err))
		}
		defer bc.Close()
		go bc.Run(ctx)

		var dead *kafka.Producer
		if cfg.KafkaOrdersDLQ != "" {
			dead = kafka.NewProducer(cfg.KafkaBrokers, cfg.KafkaOrdersDLQ)
			defer dead.Close()
		}

		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaOrdersTopic, cfg.KafkaOrdersGroup, dead, log)
		defer consumer.Close()
		go func() {
			if err := consumer.Run(ctx, func(ctx context.Context, payload []byte) error {
				var batch struct {
					Caller market.AccountID      `json:"caller"`
					Orders []market.OrderRequest `json:"orders"`
				}
				if err := json.Unmarshal(payload, &batch); err != nil {
					return err
				}
				_, err := svc.LimitOrders(batch.Caller, batch.Orders)
				return err
			}); err != nil {
				log.Error("order intake stopped", zap.Error(err))
			}
		}()
	}

	// ---------------- HTTP ----------------

	srv := httpserver.New(svc, reg, log)
	if err := srv.Run(cfg.HTTPAddr); err != nil {
		log.Fatal("http server exited", zap.Error(err))
	}
}
