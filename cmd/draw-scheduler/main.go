package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/jbest-gaming/numbers-bet-platform/internal/bet"
	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
	scheduler "github.com/jbest-gaming/numbers-bet-platform/internal/draw-scheduler"
	shttp "github.com/jbest-gaming/numbers-bet-platform/internal/draw-scheduler/http"
	spub "github.com/jbest-gaming/numbers-bet-platform/internal/draw-scheduler/producer"
	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/config"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/db"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/kafka"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/logger"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/metrics"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/migrate"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	if err := migrate.Up(pg, cfg.MigrationsDir); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	reg, err := modality.LoadRegistry(context.Background(), pg)
	if err != nil {
		log.Fatal("modalities", zap.Error(err))
	}

	// Kafka writers para os eventos de sorteio
	drawnWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicDrawDrawn)
	defer drawnWriter.Close()
	cancelledWriter := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicDrawCancelled)
	defer cancelledWriter.Close()

	draws := draw.NewPostgres(pg)
	bets := bet.NewPostgres(pg)
	publ := spub.NewKafkaPublisher(drawnWriter, cancelledWriter)

	// Relógio: abre/fecha sorteios vencidos a cada 30s
	ticker := scheduler.NewTicker(log, draws)
	c := cron.New()
	if _, err := c.AddFunc("@every 30s", func() { ticker.Tick(context.Background()) }); err != nil {
		log.Fatal("cron", zap.Error(err))
	}
	c.Start()
	defer c.Stop()

	// HTTP administrativo: agendamento, resultado, cancelamento, relatório
	api := shttp.NewServer(log, draws, bets, reg, publ)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	log.Info("draw-scheduler listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
