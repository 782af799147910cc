package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/jbest-gaming/numbers-bet-platform/internal/bet"
	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
	"github.com/jbest-gaming/numbers-bet-platform/internal/settlement"
	wpub "github.com/jbest-gaming/numbers-bet-platform/internal/settlement-worker/producer"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/cache"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/config"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/db"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/kafka"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/logger"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/metrics"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/migrate"
	"github.com/jbest-gaming/numbers-bet-platform/internal/wallet"
	ev "github.com/jbest-gaming/numbers-bet-platform/pkg/contracts/events"
)

func main() {
	cfg := config.Load()
	log, err := logger.New(cfg.ServiceName, cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg connect", zap.Error(err))
	}
	defer pg.Close()

	if err := migrate.Up(pg, cfg.MigrationsDir); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	reg, err := modality.LoadRegistry(context.Background(), pg)
	if err != nil {
		log.Fatal("modalities", zap.Error(err))
	}

	// Redis: lock por sorteio — garante um único liquidador por vez
	rdb, err := cache.ConnectRedis(cfg.RedisAddr)
	if err != nil {
		log.Fatal("redis", zap.Error(err))
	}
	lock := cache.NewDrawLock(rdb, cfg.SettleLockTTL)

	// Kafka consumers: eventos de apuração e cancelamento de sorteios
	drawnReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicDrawDrawn, "settlement-worker")
	defer drawnReader.Close()
	cancelledReader := kafka.NewReader(cfg.KafkaBrokers, cfg.TopicDrawCancelled, "settlement-worker")
	defer cancelledReader.Close()

	// Kafka producers: resultados por aposta e por sorteio, mais DLQ
	betSettledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetSettled)
	defer betSettledWriter.Close()
	drawSettledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicDrawSettled)
	defer drawSettledWriter.Close()

	var dlqWriter *kafkago.Writer
	if cfg.TopicDrawDrawnDLQ != "" {
		dlqWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicDrawDrawnDLQ)
		defer dlqWriter.Close()
	}
	var cancelledDLQWriter *kafkago.Writer
	if cfg.TopicDrawCancelledDLQ != "" {
		cancelledDLQWriter = kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicDrawCancelledDLQ)
		defer cancelledDLQWriter.Close()
	}

	wallets := wallet.NewPostgres(pg)
	bets := bet.NewPostgres(pg)
	draws := draw.NewPostgres(pg)
	publ := wpub.NewKafkaPublisher(betSettledWriter, drawSettledWriter)

	engine := settlement.NewEngine(log, wallets, bets, draws, reg, lock, publ)

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		if err := pg.PingContext(ctx); err != nil {
			return err
		}
		return rdb.Ping(ctx).Err()
	})

	ctx := context.Background()

	// Varreduras de recuperação: sorteios em "drawn" sem liquidação concluída
	// (evento perdido ou crash no meio) são retomados daqui, e reservas órfãs
	// de um crash do bet-service entre a reserva e o insert são devolvidas.
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.SweepEvery), func() { sweepStuck(ctx, log, draws, engine) }); err != nil {
		log.Fatal("cron", zap.Error(err))
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.SweepEvery), func() {
		sweepOrphanReservations(ctx, log, wallets, cfg.ReservationOrphanTTL)
	}); err != nil {
		log.Fatal("cron", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	log.Info("settlement-worker started",
		zap.String("consume", cfg.TopicDrawDrawn+","+cfg.TopicDrawCancelled),
		zap.String("publish", cfg.TopicBetSettled+","+cfg.TopicDrawSettled),
	)

	go consumeCancelled(ctx, log, cancelledReader, cancelledDLQWriter, engine)
	consumeDrawn(ctx, log, drawnReader, dlqWriter, engine)
}

// consumeDrawn processa eventos draw_drawn: cada um dispara a liquidação
// completa do sorteio. Reprocessar o mesmo evento é inofensivo.
func consumeDrawn(ctx context.Context, log *zap.Logger, reader *kafkago.Reader, dlq *kafkago.Writer, engine *settlement.Engine) {
	for {
		_, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		var e ev.DrawDrawn
		if jerr := json.Unmarshal(value, &e); jerr != nil {
			log.Error("unmarshal draw_drawn", zap.Error(jerr))
			continue
		}

		if err := settleWithRetry(ctx, engine, e.DrawID); err != nil {
			log.Error("settle draw", zap.String("drawId", e.DrawID), zap.Error(err))
			if dlq != nil {
				_ = kafka.WriteJSON(ctx, dlq, e.DrawID, value)
			}
		}
	}
}

// settleWithRetry tenta a liquidação algumas vezes antes de mandar pra DLQ.
// ErrSettlementInProgress não é falha: outro worker (ou a varredura) assume.
func settleWithRetry(ctx context.Context, engine *settlement.Engine, drawID string) error {
	const retries = 3
	var err error
	for i := 0; i < retries; i++ {
		if err = engine.SettleDraw(ctx, drawID); err == nil {
			return nil
		}
		if errors.Is(err, settlement.ErrSettlementInProgress) {
			return nil
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	return err
}

func consumeCancelled(ctx context.Context, log *zap.Logger, reader *kafkago.Reader, dlq *kafkago.Writer, engine *settlement.Engine) {
	for {
		_, value, err := kafka.ReadNext(ctx, reader)
		if err != nil {
			log.Warn("kafka read", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}
		var e ev.DrawCancelled
		if jerr := json.Unmarshal(value, &e); jerr != nil {
			log.Error("unmarshal draw_cancelled", zap.Error(jerr))
			continue
		}
		if err := cancelWithRetry(ctx, engine, e.DrawID); err != nil {
			log.Error("cancel draw", zap.String("drawId", e.DrawID), zap.Error(err))
			if dlq != nil {
				_ = kafka.WriteJSON(ctx, dlq, e.DrawID, value)
			}
		}
	}
}

func cancelWithRetry(ctx context.Context, engine *settlement.Engine, drawID string) error {
	const retries = 3
	var err error
	for i := 0; i < retries; i++ {
		if err = engine.CancelDraw(ctx, drawID); err == nil {
			return nil
		}
		time.Sleep(time.Duration(300*(i+1)) * time.Millisecond)
	}
	return err
}

// sweepOrphanReservations libera reservas que ficariam presas em reserved_cents
// para sempre: nenhuma aposta as referencia e nenhum fluxo normal as fecha.
func sweepOrphanReservations(ctx context.Context, log *zap.Logger, wallets *wallet.Postgres, olderThan time.Duration) {
	n, err := wallets.ReleaseOrphans(ctx, olderThan)
	if err != nil {
		log.Warn("release orphan reservations", zap.Error(err))
		return
	}
	if n > 0 {
		log.Info("orphan reservations released", zap.Int("count", n))
	}
}

func sweepStuck(ctx context.Context, log *zap.Logger, draws *draw.Postgres, engine *settlement.Engine) {
	stuck, err := draws.ListStuckDrawn(ctx)
	if err != nil {
		log.Warn("list stuck drawn", zap.Error(err))
		return
	}
	for _, d := range stuck {
		if err := engine.SettleDraw(ctx, d.ID); err != nil && !errors.Is(err, settlement.ErrSettlementInProgress) {
			log.Error("sweep settle", zap.String("drawId", d.ID), zap.Error(err))
		}
	}
}
