package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jbest-gaming/numbers-bet-platform/internal/bet"
	"github.com/jbest-gaming/numbers-bet-platform/internal/bet-service/dto"
	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
	"github.com/jbest-gaming/numbers-bet-platform/internal/shared/metrics"
	"github.com/jbest-gaming/numbers-bet-platform/internal/wallet"
	"github.com/jbest-gaming/numbers-bet-platform/pkg/contracts/events"
)

// Interfaces das dependências usadas pelos handlers HTTP.

type Wallets interface {
	GetOrCreate(ctx context.Context, userID string) (wallet.Wallet, error)
	Deposit(ctx context.Context, userID string, amountCents int64, externalRef string) (wallet.Wallet, error)
	Withdraw(ctx context.Context, userID string, amountCents int64, externalRef string) (wallet.Wallet, error)
	Reserve(ctx context.Context, userID string, amountCents int64, ref string) (string, error)
	Release(ctx context.Context, reservationID string) error
	ListEntries(ctx context.Context, userID string, limit int) ([]wallet.LedgerEntry, error)
	Reconcile(ctx context.Context, userID string) error
}

type Bets interface {
	Create(ctx context.Context, b *bet.Bet) (bet.Bet, error)
	Get(ctx context.Context, betID string) (bet.Bet, error)
	GetByIdempotencyKey(ctx context.Context, key string) (bet.Bet, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]bet.Bet, error)
}

type Draws interface {
	Get(ctx context.Context, id string) (draw.Draw, error)
	Current(ctx context.Context, modalityID string) (draw.Draw, error)
}

type Registry interface {
	Get(id string) (modality.Modality, error)
	All() []modality.Modality
}

type Publisher interface {
	PublishBetPlaced(ctx context.Context, e events.BetPlaced) error
}

// Server expõe a API pública de apostas e carteira.
type Server struct {
	log     *zap.Logger
	wallets Wallets
	bets    Bets
	draws   Draws
	reg     Registry
	publ    Publisher
}

func NewServer(log *zap.Logger, w Wallets, b Bets, d Draws, r Registry, p Publisher) *Server {
	return &Server{log: log, wallets: w, bets: b, draws: d, reg: r, publ: p}
}

// Router retorna o mux HTTP com as rotas da API.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/bets", s.placeBet)                     // POST
	mux.HandleFunc("/bets/history", s.betHistory)           // GET ?userId=...
	mux.HandleFunc("/bets/", s.getBet)                      // GET /bets/{id}
	mux.HandleFunc("/modalities", s.listModalities)         // GET
	mux.HandleFunc("/draws/current", s.currentDraw)         // GET ?modalityId=...
	mux.HandleFunc("/draws/", s.getDraw)                    // GET /draws/{id}
	mux.HandleFunc("/wallet", s.getWallet)                  // GET ?userId=...
	mux.HandleFunc("/wallet/deposit", s.deposit)            // POST
	mux.HandleFunc("/wallet/withdraw", s.withdraw)          // POST
	mux.HandleFunc("/wallet/transactions", s.transactions)  // GET ?userId=...
	mux.HandleFunc("/wallet/reconcile", s.reconcileWallet)  // GET ?userId=... (admin)
	return mux
}

// placeBet valida a seleção, reserva o saldo e persiste a aposta pendente.
// Se a persistência falhar, a reserva é devolvida — nada fica "flutuando".
func (s *Server) placeBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req dto.PlaceBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.DrawID == "" || req.ModalityID == "" || len(req.Numbers) == 0 || req.StakeCents <= 0 || req.IdempotencyKey == "" {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	// 1) Regras da modalidade
	m, err := s.reg.Get(req.ModalityID)
	if err != nil {
		metrics.BetsRejected.WithLabelValues("unknown_modality").Inc()
		http.Error(w, "unknown modality", http.StatusBadRequest)
		return
	}
	if err := modality.ValidateSelection(m, req.Numbers, req.StakeCents); err != nil {
		metrics.BetsRejected.WithLabelValues("validation").Inc()
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// 2) O sorteio é a autoridade sobre "aceitando apostas"
	d, err := s.draws.Get(r.Context(), req.DrawID)
	if err != nil {
		http.Error(w, "draw not found", http.StatusNotFound)
		return
	}
	if d.Status != draw.StatusOpen || d.ModalityID != req.ModalityID {
		metrics.BetsRejected.WithLabelValues("draw_closed").Inc()
		http.Error(w, "draw is not accepting bets for this modality", http.StatusConflict)
		return
	}

	// 3) Reserva o stake (ref = betID)
	betID := uuid.NewString()
	resID, err := s.wallets.Reserve(r.Context(), req.UserID, req.StakeCents, betID)
	if err != nil {
		switch {
		case errors.Is(err, wallet.ErrInsufficientFunds):
			metrics.BetsRejected.WithLabelValues("insufficient_funds").Inc()
			http.Error(w, "insufficient funds", http.StatusConflict)
		case errors.Is(err, wallet.ErrWalletNotFound):
			http.Error(w, "wallet not found", http.StatusNotFound)
		case errors.Is(err, wallet.ErrConcurrentModification):
			metrics.BetsRejected.WithLabelValues("conflict").Inc()
			http.Error(w, "wallet busy, retry", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// 4) Persiste a aposta pendente, vinculada ao sorteio aberto
	created, err := s.bets.Create(r.Context(), &bet.Bet{
		ID:             betID,
		UserID:         req.UserID,
		DrawID:         req.DrawID,
		ModalityID:     req.ModalityID,
		Numbers:        req.Numbers,
		StakeCents:     req.StakeCents,
		ReservationID:  resID,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		s.releaseAfterFailure(r.Context(), resID, betID)
		switch {
		case errors.Is(err, bet.ErrDuplicateBet):
			// retry do cliente: devolve a aposta original
			if existing, gerr := s.bets.GetByIdempotencyKey(r.Context(), req.IdempotencyKey); gerr == nil {
				writeJSON(w, toPlaceBetResponse(existing))
				return
			}
			http.Error(w, "duplicate bet", http.StatusConflict)
		case errors.Is(err, bet.ErrDrawNotOpen):
			metrics.BetsRejected.WithLabelValues("draw_closed").Inc()
			http.Error(w, "draw closed", http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	// 5) Publica evento bet_placed
	_ = s.publ.PublishBetPlaced(r.Context(), events.BetPlaced{
		BetID:       created.ID,
		UserID:      created.UserID,
		DrawID:      created.DrawID,
		ModalityID:  created.ModalityID,
		Numbers:     created.Numbers,
		StakeCents:  created.StakeCents,
		ReservedRef: resID,
	})
	metrics.BetsPlaced.WithLabelValues(created.ModalityID).Inc()

	writeJSON(w, toPlaceBetResponse(created))
}

func (s *Server) releaseAfterFailure(ctx context.Context, resID, betID string) {
	if err := s.wallets.Release(ctx, resID); err != nil && !errors.Is(err, wallet.ErrAlreadyReleased) {
		s.log.Error("release reservation after failed bet create",
			zap.String("reservationId", resID), zap.String("betId", betID), zap.Error(err))
	}
}

func (s *Server) getBet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	id := strings.TrimPrefix(r.URL.Path, "/bets/")
	if id == "" {
		http.Error(w, "betId required", http.StatusBadRequest)
		return
	}
	b, err := s.bets.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toBetResponse(b))
}

func (s *Server) betHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	bets, err := s.bets.ListByUser(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := dto.BetHistoryResponse{Total: len(bets)}
	for _, b := range bets {
		resp.Bets = append(resp.Bets, toBetResponse(b))
	}
	writeJSON(w, resp)
}

func (s *Server) listModalities(w http.ResponseWriter, r *http.Request) {
	mods := s.reg.All()
	out := make([]dto.ModalityResponse, 0, len(mods))
	for _, m := range mods {
		out = append(out, dto.ModalityResponse{
			ID:               m.ID,
			DisplayName:      m.DisplayName,
			NumberCount:      m.NumberCount,
			RangeMin:         m.RangeMin,
			RangeMax:         m.RangeMax,
			MinStakeCents:    m.MinStakeCents,
			MaxStakeCents:    m.MaxStakeCents,
			PayoutMultiplier: m.PayoutMultiplier,
			MatchRule:        m.MatchRule,
		})
	}
	writeJSON(w, out)
}

func (s *Server) currentDraw(w http.ResponseWriter, r *http.Request) {
	modalityID := r.URL.Query().Get("modalityId")
	if modalityID == "" {
		http.Error(w, "modalityId required", http.StatusBadRequest)
		return
	}
	d, err := s.draws.Current(r.Context(), modalityID)
	if err != nil {
		http.Error(w, "no open draw", http.StatusNotFound)
		return
	}
	writeJSON(w, toDrawResponse(d))
}

func (s *Server) getDraw(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/draws/")
	if id == "" {
		http.Error(w, "drawId required", http.StatusBadRequest)
		return
	}
	d, err := s.draws.Get(r.Context(), id)
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, toDrawResponse(d))
}

// getWallet retorna (ou cria) a carteira e saldos do usuário
func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	wl, err := s.wallets.GetOrCreate(r.Context(), userID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, toWalletResponse(wl))
}

// deposit credita saldo vindo do provedor de pagamento
func (s *Server) deposit(w http.ResponseWriter, r *http.Request) {
	var req dto.DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	wl, err := s.wallets.Deposit(r.Context(), req.UserID, req.AmountCents, req.ExternalRef)
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, toWalletResponse(wl))
}

// withdraw debita saldo disponível para saque
func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) {
	var req dto.WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.AmountCents <= 0 {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	wl, err := s.wallets.Withdraw(r.Context(), req.UserID, req.AmountCents, req.ExternalRef)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			http.Error(w, "insufficient funds", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, toWalletResponse(wl))
}

func (s *Server) transactions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.wallets.ListEntries(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	resp := dto.TransactionsResponse{}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, dto.LedgerEntryResponse{
			ID:           e.ID,
			Kind:         e.Kind,
			AmountCents:  e.AmountCents,
			RelatedBetID: e.RelatedBetID,
			Description:  e.Description,
			CreatedAt:    e.CreatedAt,
		})
	}
	writeJSON(w, resp)
}

// reconcileWallet reexecuta o ledger do usuário contra os saldos cacheados
func (s *Server) reconcileWallet(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "userId required", http.StatusBadRequest)
		return
	}
	if err := s.wallets.Reconcile(r.Context(), userID); err != nil {
		if errors.Is(err, wallet.ErrLedgerMismatch) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"RECONCILED"}`))
}

func toPlaceBetResponse(b bet.Bet) dto.PlaceBetResponse {
	return dto.PlaceBetResponse{
		BetID:  b.ID,
		Status: string(b.Status),
		Receipt: dto.Receipt{
			ID:         b.ID,
			ModalityID: b.ModalityID,
			Numbers:    b.Numbers,
			StakeCents: b.StakeCents,
			CreatedAt:  b.CreatedAt,
		},
	}
}

func toBetResponse(b bet.Bet) dto.BetResponse {
	return dto.BetResponse{
		BetID:      b.ID,
		DrawID:     b.DrawID,
		ModalityID: b.ModalityID,
		Numbers:    b.Numbers,
		StakeCents: b.StakeCents,
		Status:     string(b.Status),
		PrizeCents: b.PrizeCents,
		CreatedAt:  b.CreatedAt,
		SettledAt:  b.SettledAt,
	}
}

func toDrawResponse(d draw.Draw) dto.DrawResponse {
	return dto.DrawResponse{
		DrawID:           d.ID,
		ModalityID:       d.ModalityID,
		Status:           string(d.Status),
		ScheduledOpenAt:  d.ScheduledOpenAt,
		ScheduledCloseAt: d.ScheduledCloseAt,
		WinningNumbers:   d.WinningNumbers,
	}
}

func toWalletResponse(wl wallet.Wallet) dto.WalletResponse {
	return dto.WalletResponse{
		UserID:         wl.UserID,
		WalletID:       wl.ID,
		AvailableCents: wl.AvailableCents,
		ReservedCents:  wl.ReservedCents,
	}
}

// writeJSON serializa e envia resposta JSON
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
