package market

import "github.com/shopspring/decimal"

// feeBasis is the denominator all fee rates are quoted against.
const feeBasis = 10000

var feeBasisDec = decimal.NewFromInt(feeBasis)

// coinValue is qty times price as an exact decimal.
func coinValue(qty uint32, price uint64) decimal.Decimal {
	return decimal.NewFromUint64(price).Mul(decimal.NewFromInt(int64(qty)))
}

// feeSplit is one gross amount divided across the three fee sinks.
type feeSplit struct {
	royalty decimal.Decimal
	dev     decimal.Decimal
	burn    decimal.Decimal
}

func (f feeSplit) total() decimal.Decimal {
	return f.royalty.Add(f.dev).Add(f.burn)
}

// splitFees computes each fee leg of a gross amount, flooring every leg so
// rounding always favors the payee of the remainder. The royalty rate is
// clamped to whatever headroom dev and burn leave, and a royalty with no
// recipient collects nothing.
func splitFees(gross decimal.Decimal, cfg FeeConfig) feeSplit {
	s := feeSplit{royalty: decimal.Zero, dev: decimal.Zero, burn: decimal.Zero}
	if !gross.IsPositive() {
		return s
	}

	if cfg.DevRate > 0 {
		s.dev = feePortion(gross, uint32(cfg.DevRate))
	}
	if cfg.BurnRate > 0 {
		s.burn = feePortion(gross, cfg.BurnRate)
	}

	royaltyRate := cfg.RoyaltyRate
	if headroom := uint32(feeBasis) - uint32(cfg.DevRate) - cfg.BurnRate; royaltyRate > headroom {
		royaltyRate = headroom
	}
	if royaltyRate > 0 && cfg.RoyaltyRecipient != 0 {
		s.royalty = feePortion(gross, royaltyRate)
	}
	return s
}

// feePortion is gross * rate / 10000, floored to a whole coin unit.
func feePortion(gross decimal.Decimal, rate uint32) decimal.Decimal {
	return gross.Mul(decimal.NewFromInt(int64(rate))).Div(feeBasisDec).Floor()
}
