package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/auth"
	"hackmarket-backend/internal/config"
	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/market"
	"hackmarket-backend/internal/portfolio"
	"hackmarket-backend/internal/store"
	"hackmarket-backend/internal/token"
)

// purchaseHistoryLen bounds the per-market purchase feed
const purchaseHistoryLen = 200

// Server holds all dependencies for the HTTP and WebSocket API
type Server struct {
	cfg       *config.Config
	factory   *market.Factory
	ledger    *token.Ledger
	sessions  *auth.SessionManager
	journal   store.Journal
	portfolio *portfolio.Service
	wsHub     *Hub

	historyMu sync.Mutex
	purchases map[common.Address]*engine.History
}

// NewServer creates a new API server
func NewServer(
	cfg *config.Config,
	factory *market.Factory,
	ledger *token.Ledger,
	sessions *auth.SessionManager,
	journal store.Journal,
) *Server {
	return &Server{
		cfg:       cfg,
		factory:   factory,
		ledger:    ledger,
		sessions:  sessions,
		journal:   journal,
		portfolio: portfolio.NewService(factory, journal),
		wsHub:     NewHub(),
		purchases: make(map[common.Address]*engine.History),
	}
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *Hub {
	return s.wsHub
}

// RegisterRoutes registers all HTTP routes
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", s.handleHealth)

	// Wallet login
	mux.HandleFunc("POST /api/auth/challenge", s.handleChallenge)
	mux.HandleFunc("POST /api/auth/verify", s.handleVerify)

	// Factory
	mux.HandleFunc("GET /api/markets", s.handleListMarkets)
	mux.HandleFunc("GET /api/markets/count", s.handleMarketCount)
	mux.HandleFunc("GET /api/markets/index/{index}", s.handleMarketByIndex)
	mux.HandleFunc("POST /api/markets", s.requireAuth(s.handleCreateMarket))
	mux.HandleFunc("POST /api/markets/batch", s.requireAuth(s.handleBatchCreateMarkets))

	// Single market
	mux.HandleFunc("GET /api/market/{address}", s.handleGetMarket)
	mux.HandleFunc("GET /api/market/{address}/metadata", s.handleGetMetadata)
	mux.HandleFunc("GET /api/market/{address}/odds", s.handleGetOdds)
	mux.HandleFunc("GET /api/market/{address}/quote", s.handleQuote)
	mux.HandleFunc("GET /api/market/{address}/shares/{account}", s.handleGetShares)
	mux.HandleFunc("GET /api/market/{address}/purchases", s.handleGetPurchases)
	mux.HandleFunc("POST /api/market/{address}/buy", s.requireAuth(s.handleBuy))
	mux.HandleFunc("POST /api/market/{address}/settle", s.requireAuth(s.handleSettle))
	mux.HandleFunc("POST /api/market/{address}/claim", s.requireAuth(s.handleClaim))

	mux.HandleFunc("GET /api/portfolio/{account}", s.handlePortfolio)

	// Stablecoin
	mux.HandleFunc("GET /api/token/balance/{account}", s.handleBalance)
	mux.HandleFunc("GET /api/token/allowance", s.handleAllowance)
	mux.HandleFunc("POST /api/token/approve", s.requireAuth(s.handleApprove))
	mux.HandleFunc("POST /api/token/transfer", s.requireAuth(s.handleTransfer))
	mux.HandleFunc("POST /api/token/mint", s.requireAuth(s.handleMint))

	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Handler returns the routed handler wrapped in CORS
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(s.cfg.CORSOrigin, mux)
}

// OnEvent records a committed market event and pushes it to subscribers
func (s *Server) OnEvent(ev engine.Event) {
	if ev.Kind == engine.EventPurchase {
		s.purchaseHistory(ev.Market).Add(ev)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.journal.Append(ctx, ev); err != nil {
		log.Error().Err(err).Str("event", ev.ID).Str("market", ev.Market.Hex()).Msg("failed to journal event")
	}

	s.wsHub.Broadcast(Message{Type: string(ev.Kind), Data: ev})
}

// LoadHistory fills the purchase feeds from journaled events, oldest first
func (s *Server) LoadHistory(events []engine.Event) {
	for _, ev := range events {
		if ev.Kind == engine.EventPurchase {
			s.purchaseHistory(ev.Market).Add(ev)
		}
	}
}

// BroadcastOdds pushes fresh odds for the given markets
func (s *Server) BroadcastOdds(snaps []market.Snapshot) {
	for _, snap := range snaps {
		s.wsHub.Broadcast(Message{Type: "odds", Data: oddsView(snap)})
	}
}

func (s *Server) purchaseHistory(addr common.Address) *engine.History {
	s.historyMu.Lock()
	defer s.historyMu.Unlock()

	h, ok := s.purchases[addr]
	if !ok {
		h = engine.NewHistory(purchaseHistoryLen)
		s.purchases[addr] = h
	}
	return h
}

// Start serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context) error {
	go s.wsHub.Run(ctx)

	srv := &http.Server{
		Addr:              ":" + s.cfg.ServerPort,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("server starting")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	log.Info().Msg("server shutting down")
	return srv.Shutdown(shutdownCtx)
}

// handleHealth is the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"markets":   s.factory.GetMarketCount(),
		"ws_client": s.wsHub.ClientCount(),
	})
}

// corsMiddleware adds CORS headers
func corsMiddleware(origin string, next http.Handler) http.Handler {
	if origin == "" {
		origin = "*"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
