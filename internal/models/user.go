package models

import (
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// User represents a registered account holding virtual cash.
// Cash is only ever mutated by the settlement engine, inside a
// store transaction.
type User struct {
	gorm.Model
	Username     string          `gorm:"uniqueIndex;size:50;not null" json:"username"`
	PasswordHash string          `gorm:"not null" json:"-"`
	Cash         decimal.Decimal `gorm:"type:decimal(32,8);not null" json:"cash"`
}
