package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a single immutable ledger entry. A positive quantity is a
// buy, a negative one a sell. The ledger is append-only: nothing in the
// codebase updates or deletes a row once written, and CreatedAt is the
// execution timestamp.
type Transaction struct {
	gorm.Model
	UserID    uint            `gorm:"index;not null" json:"user_id"`
	Reference string          `gorm:"uniqueIndex;size:36;not null" json:"reference"`
	Name      string          `json:"name"`
	Symbol    string          `gorm:"index;not null" json:"symbol"`
	Quantity  int64           `gorm:"not null" json:"quantity"`
	Price     decimal.Decimal `gorm:"type:decimal(32,8);not null" json:"price"`
}
