package escrow

import "math/big"

// The single rounding step of the ledger: power added by a deposit is
// floor(amount * dt / maxPeriods). Everything derived from it is exact.
func addedPower(amount *big.Int, dt, maxPeriods Period) *big.Rat {
	if amount == nil || amount.Sign() <= 0 || dt == 0 {
		return new(big.Rat)
	}
	num := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(dt)))
	num.Quo(num, new(big.Int).SetUint64(uint64(maxPeriods)))
	return new(big.Rat).SetInt(num)
}

// coefficient returns dt / maxPeriods.
func coefficient(dt, maxPeriods Period) *big.Rat {
	return new(big.Rat).SetFrac(
		new(big.Int).SetUint64(uint64(dt)),
		new(big.Int).SetUint64(uint64(maxPeriods)),
	)
}

// valueAt evaluates the decay line of pt at p, clamped at zero.
// Account points are also zero from their End onward.
func valueAt(pt Point, p Period) *big.Rat {
	if pt.End > pt.Start && p >= pt.End {
		return new(big.Rat)
	}
	if p <= pt.Start {
		return new(big.Rat).Set(pt.Power)
	}
	shift := new(big.Rat).Mul(pt.Slope, ratFromPeriod(p-pt.Start))
	v := new(big.Rat).Sub(pt.Power, shift)
	if v.Sign() < 0 {
		return new(big.Rat)
	}
	return v
}

// subSat returns a-b, saturating at zero.
func subSat(a, b *big.Rat) *big.Rat {
	v := new(big.Rat).Sub(a, b)
	if v.Sign() < 0 {
		return new(big.Rat)
	}
	return v
}

func addRat(a, b *big.Rat) *big.Rat {
	return new(big.Rat).Add(a, b)
}

func ratFromPeriod(p Period) *big.Rat {
	return new(big.Rat).SetInt(new(big.Int).SetUint64(uint64(p)))
}

// Floor truncates a non-negative rational to an integer.
func Floor(r *big.Rat) *big.Int {
	if r == nil || r.Sign() <= 0 {
		return new(big.Int)
	}
	return new(big.Int).Quo(r.Num(), r.Denom())
}
