package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"cryptofolio/internal/auth"
	"cryptofolio/internal/ledger"
	"cryptofolio/internal/models"
	"cryptofolio/internal/oracle"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Handler holds dependencies for the API endpoints.
type Handler struct {
	logger   *zap.Logger
	db       *gorm.DB
	auth     *auth.Service
	engine   *ledger.Engine
	valuator *ledger.Valuator
	oracle   oracle.PriceOracle
}

// NewHandler creates a new Handler.
func NewHandler(logger *zap.Logger, db *gorm.DB, authSvc *auth.Service, engine *ledger.Engine, valuator *ledger.Valuator, o oracle.PriceOracle) *Handler {
	return &Handler{
		logger:   logger,
		db:       db,
		auth:     authSvc,
		engine:   engine,
		valuator: valuator,
		oracle:   o,
	}
}

// Routes builds the HTTP router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Post("/api/register", h.Register)
	r.Post("/api/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(h.RequireAuth)
		r.Get("/api/quote", h.Quote)
		r.Post("/api/buy", h.Buy)
		r.Post("/api/sell", h.Sell)
		r.Get("/api/history", h.History)
		r.Get("/api/portfolio", h.Portfolio)
		r.Post("/api/change-password", h.ChangePassword)
	})

	return r
}

type credentialsRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	Confirmation string `json:"confirmation"`
}

// tradeRequest carries a buy or sell order. Quantity arrives as a string
// straight from the form field and is parsed in a single step.
type tradeRequest struct {
	Symbol   string `json:"symbol"`
	Quantity string `json:"quantity"`
}

type tradeResponse struct {
	Reference string `json:"reference"`
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	Quantity  int64  `json:"quantity"`
	Price     string `json:"price"`
	Cash      string `json:"cash"`
}

// Register creates a new user account.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	user, err := h.auth.Register(r.Context(), req.Username, req.Password, req.Confirmation)
	if err != nil {
		h.writeMappedError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"id":       user.ID,
		"username": user.Username,
		"cash":     user.Cash.StringFixed(2),
	})
}

// Login verifies credentials and returns a session token.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	token, user, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeMappedError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"token":    token,
		"username": user.Username,
	})
}

// Quote looks up the current price for a symbol.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	if symbol == "" {
		h.writeError(w, http.StatusBadRequest, "missing symbol")
		return
	}

	quote, err := h.oracle.Lookup(r.Context(), symbol)
	if err != nil {
		h.writeMappedError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"symbol": quote.Symbol,
		"name":   ledger.DisplayName(quote.Symbol),
		"price":  quote.Price.StringFixed(2),
	})
}

// Buy settles a purchase for the authenticated user.
func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.engine.Buy)
}

// Sell settles a disposal for the authenticated user.
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, h.engine.Sell)
}

type settleFunc func(ctx context.Context, userID uint, symbol string, quantity int64) (*models.Transaction, error)

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, op settleFunc) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	quantity, err := ledger.ParseQuantity(req.Quantity)
	if err != nil {
		h.writeMappedError(w, err)
		return
	}

	record, err := op(r.Context(), userID, req.Symbol, quantity)
	if err != nil {
		h.writeMappedError(w, err)
		return
	}

	// Re-read cash so the receipt shows the post-settlement balance.
	var user models.User
	if err := h.db.WithContext(r.Context()).First(&user, userID).Error; err != nil {
		h.logger.Error("Failed to load user after settlement", zap.Uint("user_id", userID), zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "settlement committed but balance could not be read")
		return
	}

	h.writeJSON(w, http.StatusOK, tradeResponse{
		Reference: record.Reference,
		Symbol:    record.Symbol,
		Name:      record.Name,
		Quantity:  record.Quantity,
		Price:     record.Price.StringFixed(2),
		Cash:      user.Cash.StringFixed(2),
	})
}

// History returns the user's transactions, most recent first.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var transactions []models.Transaction
	err := h.db.WithContext(r.Context()).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&transactions).Error
	if err != nil {
		h.logger.Error("Failed to get transactions from database", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "failed to get transactions")
		return
	}

	h.writeJSON(w, http.StatusOK, transactions)
}

// Portfolio returns cash, priced holdings and the total net worth.
func (h *Handler) Portfolio(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	valuation, err := h.valuator.Valuate(r.Context(), userID)
	if err != nil {
		h.writeMappedError(w, err)
		return
	}

	lines := make([]map[string]any, 0, len(valuation.Lines))
	for _, line := range valuation.Lines {
		lines = append(lines, map[string]any{
			"symbol":   line.Symbol,
			"name":     line.Name,
			"quantity": line.Quantity,
			"price":    line.Price.StringFixed(2),
			"subtotal": line.Subtotal.StringFixed(2),
			"unpriced": line.Unpriced,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"cash":  valuation.Cash.StringFixed(2),
		"lines": lines,
		"total": valuation.Total.StringFixed(2),
	})
}

type changePasswordRequest struct {
	OldPassword  string `json:"old_password"`
	NewPassword  string `json:"new_password"`
	Confirmation string `json:"confirmation"`
}

// ChangePassword updates the authenticated user's password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDFrom(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if err := h.auth.ChangePassword(r.Context(), userID, req.OldPassword, req.NewPassword, req.Confirmation); err != nil {
		h.writeMappedError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "password changed"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// writeMappedError translates service errors to HTTP statuses. Validation
// failures carry enough detail for the caller to correct the input; store
// failures surface as 500 without leaking internals.
func (h *Handler) writeMappedError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidInput), errors.Is(err, auth.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, oracle.ErrUnknownSymbol):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrInsufficientFunds), errors.Is(err, ledger.ErrInsufficientHoldings):
		h.writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrUsernameTaken):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		h.writeError(w, http.StatusUnauthorized, "invalid username or password")
	case errors.Is(err, oracle.ErrUnavailable):
		h.writeError(w, http.StatusBadGateway, "price oracle unavailable, try again later")
	default:
		h.logger.Error("Unhandled service error", zap.Error(err))
		h.writeError(w, http.StatusInternalServerError, "internal error")
	}
}
