package main

import (
	"context"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/jbest-gaming/numbers-bet-platform/internal/bet"
	bhttp "github.com/jbest-gaming/numbers-bet-platform/internal/bet-service/http"
	kpub "github.com/jbest-gaming/numbers-bet-platform/internal/bet-service/producer"
	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/config"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/db"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/kafka"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/logger"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/metrics"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/migrate"
	"github.com/jbest-gaming/numbers-bet-platform/internal/wallet"
)

func main() {
	cfg := config.Load()
	log, _ := logger.New(cfg.ServiceName, cfg.Env)
	defer log.Sync()

	// Postgres
	pg, err := db.ConnectPostgres(cfg.PostgresDSN)
	if err != nil {
		log.Fatal("pg", zap.Error(err))
	}
	defer pg.Close()

	if err := migrate.Up(pg, cfg.MigrationsDir); err != nil {
		log.Fatal("migrate", zap.Error(err))
	}

	// Modalidades: carregadas uma vez, somente leitura depois
	reg, err := modality.LoadRegistry(context.Background(), pg)
	if err != nil {
		log.Fatal("modalities", zap.Error(err))
	}

	// Kafka writer (topic bet_placed)
	writer := kafka.NewWriter(cfg.KafkaBrokers, cfg.TopicBetPlaced)
	defer writer.Close()

	// deps
	wallets := wallet.NewPostgres(pg)
	bets := bet.NewPostgres(pg)
	draws := draw.NewPostgres(pg)
	publ := kpub.NewKafkaPublisher(writer, cfg.TopicBetPlaced)

	// HTTP público
	api := bhttp.NewServer(log, wallets, bets, draws, reg, publ)
	apiSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.HTTPPort),
		Handler: api.Router(),
	}

	// metrics/health
	metrics.StartMetricsServer(cfg.MetricsPort, func(ctx context.Context) error {
		return pg.PingContext(ctx)
	})

	log.Info("bet-service listening", zap.String("addr", fmt.Sprintf(":%s", cfg.HTTPPort)))
	if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal("api", zap.Error(err))
	}
}
