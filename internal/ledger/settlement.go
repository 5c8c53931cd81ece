package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"cryptofolio/internal/models"
	"cryptofolio/internal/oracle"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Engine validates and settles buy/sell requests against the ledger.
// Each settlement is a single atomic store transaction: cash and the new
// ledger entry commit together or not at all.
type Engine struct {
	db     *gorm.DB
	oracle oracle.PriceOracle
	logger *zap.Logger
}

// NewEngine creates a new trade settlement engine.
func NewEngine(db *gorm.DB, o oracle.PriceOracle, logger *zap.Logger) *Engine {
	return &Engine{
		db:     db,
		oracle: o,
		logger: logger,
	}
}

// ParseQuantity parses a trade quantity from user input in one step:
// a base-10 positive integer, or ErrInvalidInput.
func ParseQuantity(s string) (int64, error) {
	quantity, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || quantity < 1 {
		return 0, fmt.Errorf("%w: quantity must be a positive whole number, got %q", ErrInvalidInput, s)
	}
	return quantity, nil
}

func normalizeSymbol(symbol string) (string, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return "", fmt.Errorf("%w: missing symbol", ErrInvalidInput)
	}
	return symbol, nil
}

// Buy purchases quantity units of symbol at the oracle's current price,
// debiting the user's cash and appending a positive ledger entry. The
// price is resolved before the store transaction opens, so a slow oracle
// round trip never sits inside the write; cash is re-read inside the
// transaction immediately before the debit.
func (e *Engine) Buy(ctx context.Context, userID uint, symbol string, quantity int64) (*models.Transaction, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	quote, err := e.oracle.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	cost := quote.Price.Mul(decimal.NewFromInt(quantity))

	record := &models.Transaction{
		UserID:    userID,
		Reference: uuid.NewString(),
		Name:      DisplayName(symbol),
		Symbol:    symbol,
		Quantity:  quantity,
		Price:     quote.Price,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("failed to load user %d: %w", userID, err)
		}
		if user.Cash.LessThan(cost) {
			return fmt.Errorf("%w: cost %s exceeds cash %s", ErrInsufficientFunds, cost, user.Cash)
		}
		if err := tx.Model(&user).Update("cash", user.Cash.Sub(cost)).Error; err != nil {
			return fmt.Errorf("failed to debit cash: %w", err)
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to append trade record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Settled buy",
		zap.Uint("user_id", userID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.String("price", quote.Price.String()),
		zap.String("reference", record.Reference),
	)
	return record, nil
}

// Sell disposes of quantity units of symbol at the oracle's current price,
// crediting the user's cash and appending a negative ledger entry. The net
// holding is checked before the oracle call (so owning nothing fails fast
// without an oracle round trip) and re-checked inside the store
// transaction before the write.
func (e *Engine) Sell(ctx context.Context, userID uint, symbol string, quantity int64) (*models.Transaction, error) {
	symbol, err := normalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if quantity < 1 {
		return nil, fmt.Errorf("%w: quantity must be at least 1", ErrInvalidInput)
	}

	held, err := HoldingFor(e.db.WithContext(ctx), userID, symbol)
	if err != nil {
		return nil, err
	}
	if held < quantity {
		return nil, fmt.Errorf("%w: requested %d units of %s, holding %d", ErrInsufficientHoldings, quantity, symbol, held)
	}

	quote, err := e.oracle.Lookup(ctx, symbol)
	if err != nil {
		return nil, err
	}
	proceeds := quote.Price.Mul(decimal.NewFromInt(quantity))

	record := &models.Transaction{
		UserID:    userID,
		Reference: uuid.NewString(),
		Name:      DisplayName(symbol),
		Symbol:    symbol,
		Quantity:  -quantity,
		Price:     quote.Price,
	}

	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		held, err := HoldingFor(tx, userID, symbol)
		if err != nil {
			return err
		}
		if held < quantity {
			return fmt.Errorf("%w: requested %d units of %s, holding %d", ErrInsufficientHoldings, quantity, symbol, held)
		}

		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			return fmt.Errorf("failed to load user %d: %w", userID, err)
		}
		if err := tx.Model(&user).Update("cash", user.Cash.Add(proceeds)).Error; err != nil {
			return fmt.Errorf("failed to credit cash: %w", err)
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to append trade record: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("Settled sell",
		zap.Uint("user_id", userID),
		zap.String("symbol", symbol),
		zap.Int64("quantity", quantity),
		zap.String("price", quote.Price.String()),
		zap.String("reference", record.Reference),
	)
	return record, nil
}
