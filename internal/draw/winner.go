package draw

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/lasagna-chain/lasagna/internal/params"
)

// IsWinner evaluates the winning predicate for a draw against the given
// stake-weighted ledger: value*(h*T + B*(M-h)) > h*T*M, where B is the
// signer's balance, T is the total money tracked by the ledger, M is 2^256,
// and h is params.Hardness.
//
// The left- and right-hand products can each exceed 256 bits (h*T alone can
// already approach 2^256 * 2^64), so the comparison is evaluated in
// math/big rather than uint256: value and h are kept as uint256.Int
// everywhere else in the system, B and T are the ledger's uint64 amounts,
// and all four are promoted to big.Int only for this one unbounded
// multiply-compare.
func IsWinner(value *uint256.Int, balance, totalMoney uint64) bool {
	v := value.ToBig()
	h := params.Hardness.ToBig()
	m := new(big.Int).Lsh(big.NewInt(1), 256)
	t := new(big.Int).SetUint64(totalMoney)
	b := new(big.Int).SetUint64(balance)

	// h*T + B*(M-h)
	hT := new(big.Int).Mul(h, t)
	mMinusH := new(big.Int).Sub(m, h)
	bTimesMMinusH := new(big.Int).Mul(b, mMinusH)
	lhsFactor := new(big.Int).Add(hT, bTimesMMinusH)
	lhs := new(big.Int).Mul(v, lhsFactor)

	rhs := new(big.Int).Mul(hT, m)

	return lhs.Cmp(rhs) > 0
}
