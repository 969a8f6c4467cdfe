package staking

import "math/big"

var (
	basisPoints = big.NewInt(10_000)

	// Ledger amounts live in the signed 128-bit range; any intermediate
	// value leaving it is a fault, not a rounding event.
	maxInt128 = mustBigInt("170141183460469231731687303715884105727")
	minInt128 = mustBigInt("-170141183460469231731687303715884105728")
)

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("invalid big integer constant")
	}
	return v
}

func fitsInt128(v *big.Int) bool {
	return v.Cmp(minInt128) >= 0 && v.Cmp(maxInt128) <= 0
}

func checkedAdd(op string, a, b *big.Int) (*big.Int, error) {
	sum := new(big.Int).Add(valueOrZero(a), valueOrZero(b))
	if !fitsInt128(sum) {
		return nil, newFault(op, ErrArithmeticOverflow)
	}
	return sum, nil
}

func checkedSub(op string, a, b *big.Int) (*big.Int, error) {
	diff := new(big.Int).Sub(valueOrZero(a), valueOrZero(b))
	if !fitsInt128(diff) {
		return nil, newFault(op, ErrArithmeticOverflow)
	}
	return diff, nil
}

func checkedMul(op string, a, b *big.Int) (*big.Int, error) {
	product := new(big.Int).Mul(valueOrZero(a), valueOrZero(b))
	if !fitsInt128(product) {
		return nil, newFault(op, ErrArithmeticOverflow)
	}
	return product, nil
}

func valueOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// saturatingElapsed returns now-since, clamping to zero when the clock reads
// earlier than the recorded timestamp.
func saturatingElapsed(now, since uint64) uint64 {
	if now <= since {
		return 0
	}
	return now - since
}
