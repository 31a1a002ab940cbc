package market

import "github.com/shopspring/decimal"

// The engine moves value through three collaborators it does not own.
// Implementations must only fail before mutating anything, or undo what
// they did; the engine treats an error as "nothing moved" and aborts the
// surrounding command.

// CoinLedger moves coins between participants and the engine's escrow.
type CoinLedger interface {
	// TransferToCore pulls coins from an account into escrow.
	TransferToCore(from AccountID, amount decimal.Decimal) error
	// TransferFromCore pays coins out of escrow to an account.
	TransferFromCore(to AccountID, amount decimal.Decimal) error
	// Burn destroys escrowed coins.
	Burn(amount decimal.Decimal) error
}

// ItemCustody moves items between participants and the engine's custody.
type ItemCustody interface {
	TransferBatchToCore(from AccountID, items []ItemID, amounts []uint64) error
	TransferBatchFromCore(to AccountID, items []ItemID, amounts []uint64) error
}

// RoyaltyOracle reports the royalty terms for an item against a gross
// amount. The engine queries it with the fee basis as the gross so the
// returned amount reads directly as a rate in basis points.
type RoyaltyOracle interface {
	Info(item ItemID, gross decimal.Decimal) (AccountID, decimal.Decimal, error)
}
