package ledger

import "errors"

// Error kinds surfaced by settlement and valuation. Oracle failures pass
// through as oracle.ErrUnknownSymbol / oracle.ErrUnavailable; store
// failures are wrapped with context and never swallowed.
var (
	// ErrInvalidInput means a request parameter failed validation, such as
	// a missing symbol or a non-positive quantity.
	ErrInvalidInput = errors.New("ledger: invalid input")

	// ErrInsufficientFunds means the cost of a buy exceeds the user's cash.
	ErrInsufficientFunds = errors.New("ledger: insufficient funds")

	// ErrInsufficientHoldings means a sell asks for more units than the
	// user's current net holding of the symbol.
	ErrInsufficientHoldings = errors.New("ledger: insufficient holdings")
)
