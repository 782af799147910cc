package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Contadores de negócio expostos em /metrics por todos os serviços.
var (
	BetsPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jbest_bets_placed_total",
		Help: "Apostas aceitas, por modalidade.",
	}, []string{"modality"})

	BetsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jbest_bets_rejected_total",
		Help: "Apostas recusadas na validação ou reserva, por motivo.",
	}, []string{"reason"})

	BetsSettled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "jbest_bets_settled_total",
		Help: "Apostas resolvidas, por resultado (won/lost/cancelled).",
	}, []string{"outcome"})

	PrizeCentsCredited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jbest_prize_cents_credited_total",
		Help: "Total de prêmios creditados, em centavos.",
	})

	SettlementDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "jbest_settlement_duration_seconds",
		Help:    "Duração da liquidação de um sorteio.",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
	})

	WalletConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "jbest_wallet_version_conflicts_total",
		Help: "Conflitos de versão otimista na carteira (inclui os resolvidos por retry).",
	})
)
