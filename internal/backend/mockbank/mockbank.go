// Package mockbank is an in-memory stand-in for the account API. It serves
// the same routes and response envelopes the gateway's backend client
// expects, gated by a bearer token that is format-checked but not
// signature-verified. Used by cmd/mockbank for local development and by
// integration-style tests.
package mockbank

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

// Account is the mock account fixture.
type Account struct {
	UserID         string
	Name           string
	Email          string
	AccountType    string
	AccountNumber  string
	AccountStatus  string
	OpenedDate     string
	MainBalance    float64
	SavingsBalance float64
	SavingsRate    float64
	CardNumber     string
	CardStatus     string
	CardLimit      float64
	CardAvailable  float64
	CardExpiry     string
	Transactions   []Transaction
}

// Transaction is one mock ledger entry.
type Transaction struct {
	Date        string  `json:"date"`
	Description string  `json:"description"`
	Amount      float64 `json:"amount"`
	Type        string  `json:"type"`
}

// DefaultAccount is the fixture served when no custom account is supplied.
func DefaultAccount() Account {
	return Account{
		UserID:         "USR-001",
		Name:           "Alex Tan",
		Email:          "alex.tan@example.com",
		AccountType:    "Personal Account",
		AccountNumber:  "1234567890",
		AccountStatus:  "active",
		OpenedDate:     "2024-01-15",
		MainBalance:    15234.50,
		SavingsBalance: 42890.00,
		SavingsRate:    3.88,
		CardNumber:     "5123-****-****-8901",
		CardStatus:     "active",
		CardLimit:      5000.00,
		CardAvailable:  4850.00,
		CardExpiry:     "12/2028",
		Transactions: []Transaction{
			{Date: "2026-08-21", Description: "Grab Transport", Amount: -25.50, Type: "debit"},
			{Date: "2026-08-20", Description: "NTUC FairPrice", Amount: -87.30, Type: "debit"},
			{Date: "2026-08-19", Description: "Salary Credit", Amount: 5500.00, Type: "credit"},
			{Date: "2026-08-18", Description: "Kopitiam", Amount: -12.80, Type: "debit"},
			{Date: "2026-08-17", Description: "Streaming Subscription", Amount: -17.98, Type: "debit"},
		},
	}
}

// Server is the mock account API.
type Server struct {
	mu      sync.Mutex
	account Account
	router  chi.Router
}

// New creates a mock server around the given account fixture.
func New(account Account) *Server {
	s := &Server{account: account}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleRoot)
	r.Group(func(r chi.Router) {
		r.Use(s.requireBearer)
		r.Get("/api/account/balance", s.handleBalance)
		r.Get("/api/account/details", s.handleDetails)
		r.Get("/api/transactions/recent", s.handleTransactions)
		r.Get("/api/card/details", s.handleCard)
		r.Post("/api/card/freeze", s.handleFreeze)
		r.Post("/api/card/unfreeze", s.handleUnfreeze)
	})
	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// requireBearer rejects requests without a parseable bearer token. The token
// is not signature-verified; expiry is honoured when present.
func (s *Server) requireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			unauthorized(w, "no authorization token provided")
			return
		}
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			unauthorized(w, "invalid authorization format")
			return
		}
		tok, err := jwt.Parse([]byte(header[len(prefix):]), jwt.WithVerify(false), jwt.WithValidate(false))
		if err != nil {
			unauthorized(w, "invalid token")
			return
		}
		if exp := tok.Expiration(); !exp.IsZero() && exp.Before(time.Now()) {
			unauthorized(w, "token expired")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service": "mockbank",
		"version": "1.0.0",
		"endpoints": []string{
			"/api/account/balance",
			"/api/account/details",
			"/api/transactions/recent",
			"/api/card/details",
			"/api/card/freeze",
			"/api/card/unfreeze",
		},
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.account
	s.mu.Unlock()

	writeData(w, map[string]any{
		"accountNumber": a.AccountNumber,
		"mainAccount": map[string]any{
			"balance":     a.MainBalance,
			"currency":    "SGD",
			"accountName": "Main Account",
		},
		"savingsAccount": map[string]any{
			"balance":      a.SavingsBalance,
			"currency":     "SGD",
			"accountName":  "Savings Account",
			"interestRate": a.SavingsRate,
		},
		"totalBalance": a.MainBalance + a.SavingsBalance,
	})
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.account
	s.mu.Unlock()

	writeData(w, map[string]any{
		"userId":        a.UserID,
		"name":          a.Name,
		"email":         a.Email,
		"accountType":   a.AccountType,
		"accountNumber": a.AccountNumber,
		"accountStatus": a.AccountStatus,
		"openedDate":    a.OpenedDate,
		"mainAccount": map[string]any{
			"balance":  a.MainBalance,
			"currency": "SGD",
		},
		"savingsAccount": map[string]any{
			"balance":      a.SavingsBalance,
			"currency":     "SGD",
			"interestRate": a.SavingsRate,
		},
	})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"success": false,
				"detail":  fmt.Sprintf("invalid limit %q", v),
			})
			return
		}
		limit = n
	}

	s.mu.Lock()
	txns := s.account.Transactions
	s.mu.Unlock()

	if limit < len(txns) {
		txns = txns[:limit]
	}
	writeData(w, map[string]any{
		"transactions": txns,
		"count":        len(txns),
	})
}

func (s *Server) handleCard(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	a := s.account
	s.mu.Unlock()

	writeData(w, map[string]any{
		"cardNumber":      a.CardNumber,
		"cardStatus":      a.CardStatus,
		"cardType":        "Debit Card",
		"creditLimit":     a.CardLimit,
		"availableCredit": a.CardAvailable,
		"usedCredit":      a.CardLimit - a.CardAvailable,
		"expiryDate":      a.CardExpiry,
	})
}

func (s *Server) handleFreeze(w http.ResponseWriter, r *http.Request) {
	s.setCardStatus("frozen")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Card frozen successfully",
		"data":    map[string]any{"cardStatus": "frozen"},
	})
}

func (s *Server) handleUnfreeze(w http.ResponseWriter, r *http.Request) {
	s.setCardStatus("active")
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Card unfrozen successfully",
		"data":    map[string]any{"cardStatus": "active"},
	})
}

func (s *Server) setCardStatus(status string) {
	s.mu.Lock()
	s.account.CardStatus = status
	s.mu.Unlock()
	slog.Info("mockbank card status changed", "status", status)
}

// CardStatus reports the current card status. Test hook.
func (s *Server) CardStatus() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account.CardStatus
}

func unauthorized(w http.ResponseWriter, detail string) {
	writeJSON(w, http.StatusUnauthorized, map[string]any{
		"success": false,
		"detail":  detail,
	})
}

func writeData(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    data,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("mockbank encode response", "err", err)
	}
}
