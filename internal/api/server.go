// Package api exposes the submission and read surface over HTTP for the
// decision/scheduling collaborator.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/maxibitcat/aisignals/internal/broadcast"
	"github.com/maxibitcat/aisignals/internal/config"
	"github.com/maxibitcat/aisignals/internal/ledger"
	"github.com/maxibitcat/aisignals/internal/post"
	"github.com/maxibitcat/aisignals/internal/signal"
)

// Poster is the submission facade the server fronts.
type Poster interface {
	Post(ctx context.Context, rec signal.Record) (*post.Result, error)
	Recent(ctx context.Context, strategy string, count int) ([]ledger.Entry, error)
	Balance(ctx context.Context) (*big.Int, error)
	Account() common.Address
}

// Server is the HTTP front end.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	poster Poster
}

// NewServer builds the HTTP front end.
func NewServer(cfg *config.Config, logger *slog.Logger, poster Poster) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cfg: cfg, logger: logger, poster: poster}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.withAuth(s.handleHealth))
	mux.HandleFunc("/signals", s.withAuth(s.handlePost))
	mux.HandleFunc("/signals/recent", s.withAuth(s.handleRecent))
	mux.HandleFunc("/balance", s.withAuth(s.handleBalance))
	return mux
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxTimeout)
	}()
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) withAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.API.AuthToken != "" {
			token := r.Header.Get("X-API-Key")
			if token == "" {
				auth := r.Header.Get("Authorization")
				if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
					token = strings.TrimSpace(auth[7:])
				}
			}
			if token != s.cfg.API.AuthToken {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"account": s.poster.Account().Hex(),
	})
}

// postRequest is the canonical submission shape. Legacy field aliases from
// older collaborators are normalized here and nowhere deeper.
type postRequest struct {
	Strategy  string `json:"strategy"`
	Asset     string `json:"asset"`
	Symbol    string `json:"symbol,omitempty"` // legacy alias for asset
	Message   string `json:"message"`
	Direction string `json:"direction"`
	Side      string `json:"side,omitempty"` // legacy alias for direction
	Leverage  uint8  `json:"leverage"`
	Weight    uint8  `json:"weight"`
}

type postResponse struct {
	Hash    string       `json:"hash"`
	Nonce   uint64       `json:"nonce"`
	ChainID string       `json:"chain_id"`
	Outcome string       `json:"outcome"`
	Receipt *receiptView `json:"receipt,omitempty"`
	Warning string       `json:"warning,omitempty"`
}

type receiptView struct {
	Status      uint64 `json:"status"`
	BlockNumber uint64 `json:"block_number"`
	GasUsed     uint64 `json:"gas_used"`
}

func (s *Server) handlePost(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req postRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Asset == "" {
		req.Asset = req.Symbol
	}
	if req.Direction == "" {
		req.Direction = req.Side
	}
	direction, err := signal.ParseDirection(req.Direction)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec := signal.Record{
		Strategy:  req.Strategy,
		Asset:     req.Asset,
		Message:   req.Message,
		Direction: direction,
		Leverage:  req.Leverage,
		Weight:    req.Weight,
	}
	result, err := s.poster.Post(r.Context(), rec)
	if err != nil {
		var validationErr *signal.ValidationError
		if errors.As(err, &validationErr) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if result == nil {
			writeError(w, http.StatusBadGateway, err.Error())
			return
		}
	}
	resp := postResponse{
		Hash:    result.Hash.Hex(),
		Nonce:   result.Nonce,
		ChainID: result.ChainID.String(),
		Outcome: result.Outcome.String(),
	}
	if result.Receipt != nil {
		resp.Receipt = &receiptView{
			Status:      result.Receipt.Status,
			BlockNumber: result.Receipt.BlockNumber,
			GasUsed:     result.Receipt.GasUsed,
		}
	}
	status := http.StatusOK
	if errors.Is(err, broadcast.ErrUnconfirmed) {
		resp.Warning = err.Error()
		status = http.StatusAccepted
	}
	writeJSON(w, status, resp)
}

type entryView struct {
	ID        string `json:"id"`
	Author    string `json:"author"`
	Strategy  string `json:"strategy"`
	Asset     string `json:"asset"`
	Message   string `json:"message"`
	Direction string `json:"direction"`
	Leverage  uint8  `json:"leverage"`
	Weight    uint8  `json:"weight"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	strategy := r.URL.Query().Get("strategy")
	if strategy == "" {
		writeError(w, http.StatusBadRequest, "strategy query parameter is required")
		return
	}
	count := 10
	if raw := r.URL.Query().Get("count"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 1000 {
			writeError(w, http.StatusBadRequest, "count must be an integer in [1,1000]")
			return
		}
		count = v
	}
	entries, err := s.poster.Recent(r.Context(), strategy, count)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	out := make([]entryView, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryView{
			ID:        e.ID.String(),
			Author:    e.Author.Hex(),
			Strategy:  e.Record.Strategy,
			Asset:     e.Record.Asset,
			Message:   e.Record.Message,
			Direction: e.Record.Direction.String(),
			Leverage:  e.Record.Leverage,
			Weight:    e.Record.Weight,
			Timestamp: e.Timestamp.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": out})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	balance, err := s.poster.Balance(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"account":     s.poster.Account().Hex(),
		"balance_wei": balance.String(),
	})
}

func readJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	b, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return errors.New("request body is empty")
	}
	return json.Unmarshal(b, v)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
