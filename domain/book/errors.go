package book

import "errors"

var (
	// ErrPriceNotFound means the named price has no level on that side.
	ErrPriceNotFound = errors.New("book: no level at price")

	// ErrOrderNotFound means the level exists but does not hold the id.
	ErrOrderNotFound = errors.New("book: order not found at price")

	// ErrTooManyMatches means a single call consumed its match budget.
	ErrTooManyMatches = errors.New("book: too many orders hit")

	// ErrPriceExhausted means the overflow walk ran off the price range
	// before finding a level with room.
	ErrPriceExhausted = errors.New("book: no price left to overflow to")
)
