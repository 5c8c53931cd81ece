package ledger

import (
	"context"
	"fmt"

	"cryptofolio/internal/models"
	"cryptofolio/internal/oracle"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Line is one holding inside a Valuation, priced at the oracle's current
// quote. Unpriced marks a holding whose symbol the oracle could not
// resolve (delisted, or a transient outage); its price and subtotal are
// zero and it does not contribute to the total.
type Line struct {
	Symbol   string          `json:"symbol"`
	Name     string          `json:"name"`
	Quantity int64           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Unpriced bool            `json:"unpriced,omitempty"`
}

// Valuation is a point-in-time view of a user's net worth: cash plus the
// live value of every current holding.
type Valuation struct {
	Cash  decimal.Decimal `json:"cash"`
	Lines []Line          `json:"lines"`
	Total decimal.Decimal `json:"total"`
}

// Valuator computes portfolio valuations. Read-only: it never writes to
// the store.
type Valuator struct {
	db     *gorm.DB
	oracle oracle.PriceOracle
	logger *zap.Logger
}

// NewValuator creates a new portfolio valuator.
func NewValuator(db *gorm.DB, o oracle.PriceOracle, logger *zap.Logger) *Valuator {
	return &Valuator{
		db:     db,
		oracle: o,
		logger: logger,
	}
}

// Valuate prices every current holding and totals it with cash. A symbol
// the oracle cannot resolve degrades to an Unpriced line instead of
// failing the whole view, so one delisted coin never hides the rest of
// the portfolio.
func (v *Valuator) Valuate(ctx context.Context, userID uint) (*Valuation, error) {
	var user models.User
	if err := v.db.WithContext(ctx).First(&user, userID).Error; err != nil {
		return nil, fmt.Errorf("failed to load user %d: %w", userID, err)
	}

	holdings, err := Holdings(v.db.WithContext(ctx), userID)
	if err != nil {
		return nil, err
	}

	valuation := &Valuation{
		Cash:  user.Cash,
		Lines: make([]Line, 0, len(holdings)),
		Total: user.Cash,
	}

	for _, h := range holdings {
		line := Line{
			Symbol:   h.Symbol,
			Name:     DisplayName(h.Symbol),
			Quantity: h.Quantity,
		}

		quote, err := v.oracle.Lookup(ctx, h.Symbol)
		if err != nil {
			v.logger.Warn("Could not price held symbol",
				zap.Uint("user_id", userID),
				zap.String("symbol", h.Symbol),
				zap.Error(err),
			)
			line.Unpriced = true
			valuation.Lines = append(valuation.Lines, line)
			continue
		}

		line.Price = quote.Price
		line.Subtotal = quote.Price.Mul(decimal.NewFromInt(h.Quantity))
		valuation.Total = valuation.Total.Add(line.Subtotal)
		valuation.Lines = append(valuation.Lines, line)
	}

	return valuation, nil
}
