package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/jbest-gaming/numbers-bet-platform/internal/bet"
	"github.com/jbest-gaming/numbers-bet-platform/internal/draw"
	"github.com/jbest-gaming/numbers-bet-platform/internal/modality"
	"github.com/jbest-gaming/numbers-bet-platform/pkg/contracts/events"
)

type Draws interface {
	Schedule(ctx context.Context, modalityID string, openAt, closeAt time.Time) (draw.Draw, error)
	Get(ctx context.Context, id string) (draw.Draw, error)
	RecordResult(ctx context.Context, id string, winning []int) error
	Cancel(ctx context.Context, id string) error
}

type Bets interface {
	Report(ctx context.Context, drawID string) (bet.DrawReport, error)
}

type Registry interface {
	Get(id string) (modality.Modality, error)
}

type Publisher interface {
	PublishDrawDrawn(ctx context.Context, e events.DrawDrawn) error
	PublishDrawCancelled(ctx context.Context, e events.DrawCancelled) error
}

// Server é a superfície administrativa do scheduler: agendamento de sorteios,
// entrada do resultado (os números vêm de fora, o core nunca sorteia) e
// cancelamento. Consumida pelo painel do operador.
type Server struct {
	log   *zap.Logger
	draws Draws
	bets  Bets
	reg   Registry
	publ  Publisher
}

func NewServer(log *zap.Logger, d Draws, b Bets, r Registry, p Publisher) *Server {
	return &Server{log: log, draws: d, bets: b, reg: r, publ: p}
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/admin/draws", s.scheduleDraw) // POST
	mux.HandleFunc("/admin/draws/", s.drawAction)  // POST {id}/result | {id}/cancel, GET {id}/report
	return mux
}

type scheduleDrawRequest struct {
	ModalityID string    `json:"modalityId"`
	OpenAt     time.Time `json:"scheduled_open_at"`
	CloseAt    time.Time `json:"scheduled_close_at"`
}

type recordResultRequest struct {
	WinningNumbers []int `json:"winning_numbers"`
}

type cancelRequest struct {
	Reason string `json:"reason,omitempty"`
}

func (s *Server) scheduleDraw(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req scheduleDrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}
	if _, err := s.reg.Get(req.ModalityID); err != nil {
		http.Error(w, "unknown modality", http.StatusBadRequest)
		return
	}
	d, err := s.draws.Schedule(r.Context(), req.ModalityID, req.OpenAt, req.CloseAt)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.log.Info("draw scheduled", zap.String("drawId", d.ID), zap.String("modality", d.ModalityID))
	writeJSON(w, map[string]string{"drawId": d.ID, "status": string(d.Status)})
}

// drawAction roteia /admin/draws/{id}/{action}
func (s *Server) drawAction(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/admin/draws/")
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	drawID, action := parts[0], parts[1]

	switch {
	case action == "result" && r.Method == http.MethodPost:
		s.recordResult(w, r, drawID)
	case action == "cancel" && r.Method == http.MethodPost:
		s.cancelDraw(w, r, drawID)
	case action == "report" && r.Method == http.MethodGet:
		s.drawReport(w, r, drawID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// recordResult valida os números sorteados contra a modalidade do sorteio,
// grava a apuração e dispara a liquidação via Kafka.
func (s *Server) recordResult(w http.ResponseWriter, r *http.Request, drawID string) {
	var req recordResultRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad json", http.StatusBadRequest)
		return
	}

	d, err := s.draws.Get(r.Context(), drawID)
	if err != nil {
		http.Error(w, "draw not found", http.StatusNotFound)
		return
	}
	m, err := s.reg.Get(d.ModalityID)
	if err != nil {
		http.Error(w, "unknown modality", http.StatusInternalServerError)
		return
	}
	if err := modality.ValidateResult(m, req.WinningNumbers); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := s.draws.RecordResult(r.Context(), drawID, req.WinningNumbers); err != nil {
		var verr *modality.ValidationError
		switch {
		case errors.As(err, &verr):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, draw.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	if err := s.publ.PublishDrawDrawn(r.Context(), events.DrawDrawn{
		DrawID:         drawID,
		ModalityID:     d.ModalityID,
		WinningNumbers: req.WinningNumbers,
	}); err != nil {
		// a varredura do settlement-worker recupera sorteios em "drawn"
		// mesmo sem o evento, então só loga
		s.log.Error("publish draw_drawn", zap.String("drawId", drawID), zap.Error(err))
	}

	s.log.Info("draw result recorded", zap.String("drawId", drawID), zap.Ints("winning", req.WinningNumbers))
	writeJSON(w, map[string]string{"drawId": drawID, "status": string(draw.StatusDrawn)})
}

// cancelDraw fecha a porta imediatamente (status no banco) e delega os
// estornos ao settlement-worker via evento.
func (s *Server) cancelDraw(w http.ResponseWriter, r *http.Request, drawID string) {
	var req cancelRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.draws.Cancel(r.Context(), drawID); err != nil {
		if errors.Is(err, draw.ErrInvalidTransition) {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		if errors.Is(err, draw.ErrDrawNotFound) {
			http.Error(w, "draw not found", http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if err := s.publ.PublishDrawCancelled(r.Context(), events.DrawCancelled{
		DrawID: drawID,
		Reason: req.Reason,
	}); err != nil {
		s.log.Error("publish draw_cancelled", zap.String("drawId", drawID), zap.Error(err))
	}

	s.log.Info("draw cancelled", zap.String("drawId", drawID), zap.String("reason", req.Reason))
	writeJSON(w, map[string]string{"drawId": drawID, "status": string(draw.StatusCancelled)})
}

func (s *Server) drawReport(w http.ResponseWriter, r *http.Request, drawID string) {
	d, err := s.draws.Get(r.Context(), drawID)
	if err != nil {
		http.Error(w, "draw not found", http.StatusNotFound)
		return
	}
	rep, err := s.bets.Report(r.Context(), drawID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]any{
		"drawId":            d.ID,
		"modalityId":        d.ModalityID,
		"status":            string(d.Status),
		"winning_numbers":   d.WinningNumbers,
		"total_bets":        rep.Total,
		"pending":           rep.Pending,
		"won":               rep.Won,
		"lost":              rep.Lost,
		"cancelled":         rep.Cancelled,
		"total_stake_cents": rep.TotalStakeCents,
		"total_prize_cents": rep.TotalPrizeCents,
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
