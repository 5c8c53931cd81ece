package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"cryptofolio/internal/auth"
	"cryptofolio/internal/config"
	"cryptofolio/internal/database"
	"cryptofolio/internal/ledger"
	"cryptofolio/internal/models"
	"cryptofolio/internal/oracle"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// stubOracle serves fixed prices from a map; anything else is unknown.
type stubOracle struct {
	prices map[string]string
}

func (s *stubOracle) Lookup(_ context.Context, symbol string) (*oracle.Quote, error) {
	price, ok := s.prices[symbol]
	if !ok {
		return nil, fmt.Errorf("%w: %s", oracle.ErrUnknownSymbol, symbol)
	}
	return &oracle.Quote{
		Symbol: symbol,
		Name:   ledger.DisplayName(symbol),
		Price:  decimal.RequireFromString(price),
	}, nil
}

func setupHandler(t *testing.T, prices map[string]string) (*Handler, *gorm.DB) {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, database.AutoMigrate(db))

	cfg := config.Config{
		Server:  config.Server{JwtSecret: "test-secret", TokenTTLHours: 1},
		Trading: config.Trading{StartingCash: 1000.00},
	}

	log := zap.NewNop()
	o := &stubOracle{prices: prices}
	authService := auth.NewService(db, &cfg, log)
	engine := ledger.NewEngine(db, o, log)
	valuator := ledger.NewValuator(db, o, log)

	return NewHandler(log, db, authService, engine, valuator, o), db
}

func doJSON(t *testing.T, router http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		assert.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func registerAndLogin(t *testing.T, router http.Handler, username string) string {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/register", "", map[string]string{
		"username": username, "password": "pw", "confirmation": "pw",
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/login", "", map[string]string{
		"username": username, "password": "pw",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	token, _ := decodeBody(t, rec)["token"].(string)
	assert.NotEmpty(t, token)
	return token
}

func TestHandler_BuyPortfolioSellFlow(t *testing.T) {
	handler, _ := setupHandler(t, map[string]string{"BTC": "100.00"})
	router := handler.Routes()
	token := registerAndLogin(t, router, "alice")

	// Buy 5 BTC at 100.00 from 1000.00 starting cash.
	rec := doJSON(t, router, http.MethodPost, "/api/buy", token, map[string]string{
		"symbol": "BTC", "quantity": "5",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	receipt := decodeBody(t, rec)
	assert.Equal(t, "500.00", receipt["cash"])
	assert.Equal(t, "Bitcoin", receipt["name"])
	assert.NotEmpty(t, receipt["reference"])

	// Portfolio: 500 cash + 5 * 100.
	rec = doJSON(t, router, http.MethodGet, "/api/portfolio", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	portfolio := decodeBody(t, rec)
	assert.Equal(t, "500.00", portfolio["cash"])
	assert.Equal(t, "1000.00", portfolio["total"])

	// Sell 2 back.
	rec = doJSON(t, router, http.MethodPost, "/api/sell", token, map[string]string{
		"symbol": "BTC", "quantity": "2",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "700.00", decodeBody(t, rec)["cash"])

	// History shows both trades, most recent first.
	rec = doJSON(t, router, http.MethodGet, "/api/history", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var history []models.Transaction
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&history))
	assert.Len(t, history, 2)
	assert.Equal(t, int64(-2), history[0].Quantity)
	assert.Equal(t, int64(5), history[1].Quantity)
}

func TestHandler_ErrorMapping(t *testing.T) {
	handler, _ := setupHandler(t, map[string]string{"BTC": "100.00"})
	router := handler.Routes()
	token := registerAndLogin(t, router, "bob")

	t.Run("InvalidQuantity", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/buy", token, map[string]string{
			"symbol": "BTC", "quantity": "two",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("UnknownSymbol", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/buy", token, map[string]string{
			"symbol": "NOPE", "quantity": "1",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("InsufficientFunds", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/buy", token, map[string]string{
			"symbol": "BTC", "quantity": "50", // 5000.00 > 1000.00
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("InsufficientHoldings", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/sell", token, map[string]string{
			"symbol": "BTC", "quantity": "1",
		})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("DuplicateUsername", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/register", "", map[string]string{
			"username": "bob", "password": "pw", "confirmation": "pw",
		})
		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("BadCredentials", func(t *testing.T) {
		rec := doJSON(t, router, http.MethodPost, "/api/login", "", map[string]string{
			"username": "bob", "password": "wrong",
		})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestHandler_RequireAuth(t *testing.T) {
	handler, _ := setupHandler(t, nil)
	router := handler.Routes()

	rec := doJSON(t, router, http.MethodGet, "/api/portfolio", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/api/portfolio", "garbage-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHandler_Quote(t *testing.T) {
	handler, _ := setupHandler(t, map[string]string{"DOGE": "0.25"})
	router := handler.Routes()
	token := registerAndLogin(t, router, "carol")

	rec := doJSON(t, router, http.MethodGet, "/api/quote?symbol=DOGE", token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "DOGE", body["symbol"])
	assert.Equal(t, "Dogecoin", body["name"])
	assert.Equal(t, "0.25", body["price"])

	rec = doJSON(t, router, http.MethodGet, "/api/quote", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_ChangePassword(t *testing.T) {
	handler, _ := setupHandler(t, nil)
	router := handler.Routes()
	token := registerAndLogin(t, router, "dave")

	rec := doJSON(t, router, http.MethodPost, "/api/change-password", token, map[string]string{
		"old_password": "pw", "new_password": "pw2", "confirmation": "pw2",
	})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/login", "", map[string]string{
		"username": "dave", "password": "pw2",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}
