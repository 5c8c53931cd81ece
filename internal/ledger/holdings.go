package ledger

import (
	"fmt"

	"cryptofolio/internal/models"

	"gorm.io/gorm"
)

// Holding is the derived net position for one symbol. Holdings are never
// persisted; they are recomputed from the transaction ledger on demand.
type Holding struct {
	Symbol   string `json:"symbol"`
	Quantity int64  `json:"quantity"`
}

// Holdings returns the user's current net positions, grouped by ticker
// symbol and ordered by it. Symbol is the grouping key, not display name,
// so trades recorded under different names for the same ticker still net
// against each other. Symbols whose signed quantities sum to zero or less
// are fully divested and excluded.
func Holdings(db *gorm.DB, userID uint) ([]Holding, error) {
	var holdings []Holding
	err := db.Model(&models.Transaction{}).
		Select("symbol, SUM(quantity) AS quantity").
		Where("user_id = ?", userID).
		Group("symbol").
		Having("SUM(quantity) > 0").
		Order("symbol").
		Scan(&holdings).Error
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate holdings: %w", err)
	}
	return holdings, nil
}

// HoldingFor returns the net quantity held for a single symbol. A symbol
// the user never traded (or fully divested) yields zero.
func HoldingFor(db *gorm.DB, userID uint, symbol string) (int64, error) {
	var quantity int64
	row := db.Model(&models.Transaction{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("user_id = ? AND symbol = ?", userID, symbol).
		Row()
	if err := row.Scan(&quantity); err != nil {
		return 0, fmt.Errorf("failed to sum holding for %s: %w", symbol, err)
	}
	if quantity < 0 {
		return 0, nil
	}
	return quantity, nil
}
