// Package http exposes the budget tracker as a JSON API.
package http

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"kakeibo/internal/fuzzy"
	"kakeibo/internal/services"
	"kakeibo/internal/storage"
	"kakeibo/internal/summary"
)

// Server wires the handlers, middleware and graceful shutdown around a
// standard http.Server.
type Server struct {
	httpServer   *http.Server
	store        storage.Store
	transactions *services.TransactionService
	summaries    *summary.Service
	parser       *fuzzy.Parser // nil when no model is configured
	backendName  string
	rateLimiter  *rateLimiter
	shutdownOnce sync.Once
}

// Config carries the pieces the server needs beyond its listen address.
type Config struct {
	Addr         string
	Store        storage.Store
	Transactions *services.TransactionService
	Summaries    *summary.Service
	Parser       *fuzzy.Parser
	BackendName  string
}

func NewServer(cfg Config) *Server {
	s := &Server{
		store:        cfg.Store,
		transactions: cfg.Transactions,
		summaries:    cfg.Summaries,
		parser:       cfg.Parser,
		backendName:  cfg.BackendName,
		rateLimiter:  newRateLimiter(),
	}

	mux := http.NewServeMux()
	s.routes(mux)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      s.withSecurityHeaders(mux.ServeHTTP),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) routes(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/expense-categories", s.handleListExpenseCategories)
	mux.HandleFunc("POST /api/expense-categories", s.handleCreateExpenseCategory)
	mux.HandleFunc("DELETE /api/expense-categories/{id}", s.handleDeleteExpenseCategory)

	mux.HandleFunc("GET /api/wallet-categories", s.handleListWalletCategories)
	mux.HandleFunc("POST /api/wallet-categories", s.handleCreateWalletCategory)
	mux.HandleFunc("DELETE /api/wallet-categories/{id}", s.handleDeleteWalletCategory)
	mux.HandleFunc("PUT /api/wallets/{id}/balance", s.handleSetWalletBalance)

	mux.HandleFunc("GET /api/credit-categories", s.handleListCreditCategories)
	mux.HandleFunc("POST /api/credit-categories", s.handleCreateCreditCategory)
	mux.HandleFunc("DELETE /api/credit-categories/{id}", s.handleDeleteCreditCategory)

	mux.HandleFunc("POST /api/transactions", s.handleCreateTransaction)
	mux.HandleFunc("GET /api/transactions", s.handleListTransactions)
	mux.HandleFunc("GET /api/transactions/{id}", s.handleGetTransaction)
	mux.HandleFunc("PUT /api/transactions/{id}", s.handleUpdateTransaction)
	mux.HandleFunc("DELETE /api/transactions/{id}", s.handleDeleteTransaction)
	mux.HandleFunc("GET /api/transactions/date/{date}", s.handleListTransactionsByDate)
	mux.HandleFunc("GET /api/transactions/month/{year}/{month}", s.handleListTransactionsByMonth)
	mux.HandleFunc("GET /api/category-transactions/{year}/{month}/{categoryID}/{categoryType}", s.handleListCategoryTransactions)
	mux.HandleFunc("GET /api/wallet-transactions/{year}/{month}/{walletID}", s.handleListWalletTransactions)

	mux.HandleFunc("GET /api/budgets/{year}/{month}", s.handleListBudgets)
	mux.HandleFunc("POST /api/budgets", s.handleUpsertBudget)
	mux.HandleFunc("POST /api/budget-adjustments", s.handleCreateBudgetAdjustment)

	mux.HandleFunc("GET /api/summary/{year}/{month}", s.handleMonthlySummary)
	mux.HandleFunc("GET /api/stats/{year}", s.handleYearlyStats)
	mux.HandleFunc("GET /api/stats/{year}/{month}", s.handleMonthlyStats)

	mux.HandleFunc("POST /api/parse-fuzzy", s.handleParseFuzzy)

	mux.HandleFunc("GET /api/backup/json", s.handleBackupJSON)
	mux.HandleFunc("GET /api/backup/sql", s.handleBackupSQL)
	mux.HandleFunc("GET /api/database/status", s.handleDatabaseStatus)
}

// ListenAndServe starts the server and blocks until it stops.
func (s *Server) ListenAndServe() error {
	slog.Info("Starting HTTP server", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server and its background goroutines.
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		err = s.httpServer.Shutdown(ctx)
	})
	return err
}

// withSecurityHeaders adds request ids, request logging, rate limiting on
// mutating requests and a set of security headers.
func (s *Server) withSecurityHeaders(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := generateRequestID()
		clientIP := extractClientIP(r)

		slog.Info("Request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"client_ip", clientIP,
			"user_agent", r.UserAgent())

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodDelete {
			if !s.rateLimiter.allow(clientIP) {
				slog.Warn("Rate limit exceeded",
					"request_id", requestID,
					"client_ip", clientIP,
					"path", r.URL.Path)
				writeJSON(w, http.StatusTooManyRequests, map[string]string{"error": "rate limit exceeded"})
				return
			}
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("X-Request-ID", requestID)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(wrapped, r)

		slog.Info("Request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration_ms", time.Since(start).Milliseconds())
	}
}

// responseWriter captures the status code for request logging.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func generateRequestID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "req_unknown"
	}
	return "req_" + hex.EncodeToString(b)
}

// extractClientIP prefers the first X-Forwarded-For hop, then
// X-Real-IP, then the socket peer.
func extractClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			return strings.TrimSpace(fwd[:i])
		}
		return strings.TrimSpace(fwd)
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return strings.TrimSpace(real)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady checks that the data backend answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Counts(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
