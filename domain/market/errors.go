package market

import "errors"

var (
	// ErrNoQuantity rejects an order with zero quantity.
	ErrNoQuantity = errors.New("market: order has no quantity")

	// ErrQuantityTooLarge rejects a quantity that does not fit a slot.
	ErrQuantityTooLarge = errors.New("market: quantity exceeds slot width")

	// ErrPriceZero rejects an order with price zero.
	ErrPriceZero = errors.New("market: order price is zero")

	// ErrTokenDoesNotExist rejects orders on an item with no tick set.
	ErrTokenDoesNotExist = errors.New("market: item is not registered")

	// ErrPriceNotMultipleOfTick rejects prices off the item's tick grid.
	ErrPriceNotMultipleOfTick = errors.New("market: price is not a multiple of tick")

	// ErrLengthMismatch rejects parallel input arrays of unequal length.
	ErrLengthMismatch = errors.New("market: input arrays differ in length")

	// ErrBatchTooLarge rejects a limit-order batch above MaxBatchOrders.
	ErrBatchTooLarge = errors.New("market: too many orders in batch")

	// ErrNotMaker rejects a cancel or claim by anyone but the maker.
	ErrNotMaker = errors.New("market: caller is not the maker")

	// ErrNothingToClaim rejects a claim naming an id with zero claimable.
	ErrNothingToClaim = errors.New("market: nothing to claim")

	// ErrTooManyClaims rejects a claim sweeping more than MaxClaimOrders.
	ErrTooManyClaims = errors.New("market: too many orders in claim")

	// ErrTickCannotBeChanged rejects changing a registered item's tick.
	ErrTickCannotBeChanged = errors.New("market: tick cannot be changed")

	// ErrMaxOrdersNotMultiple rejects a per-price cap that is zero or not
	// a multiple of the segment width.
	ErrMaxOrdersNotMultiple = errors.New("market: max orders per price must be a positive multiple of the segment width")

	// ErrDevFeeTooHigh rejects a dev rate that does not fit its field.
	ErrDevFeeTooHigh = errors.New("market: dev fee rate too high")

	// ErrDevRecipientZero rejects a positive dev rate with no recipient.
	ErrDevRecipientZero = errors.New("market: dev fee recipient is the zero account")

	// ErrBurnFeeTooHigh rejects dev plus burn above the fee basis.
	ErrBurnFeeTooHigh = errors.New("market: burn fee rate too high")

	// ErrOrderIDExhausted means the 40-bit order id space ran out.
	ErrOrderIDExhausted = errors.New("market: order id space exhausted")
)
