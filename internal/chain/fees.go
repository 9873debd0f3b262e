package chain

import (
	"fmt"
	"math/big"
)

// FeeParams are the EIP-1559 fee fields attached to every mutation.
type FeeParams struct {
	TipCap *big.Int
	MaxFee *big.Int
}

func computeFees(baseFee, tip, maxFeeCap *big.Int) (FeeParams, error) {
	if tip == nil {
		tip = new(big.Int)
	}
	maxFee := new(big.Int).Set(tip)
	if baseFee != nil {
		maxFee.Add(maxFee, new(big.Int).Mul(baseFee, big.NewInt(2)))
	}
	if maxFeeCap != nil && maxFeeCap.Sign() > 0 && maxFee.Cmp(maxFeeCap) > 0 {
		return FeeParams{}, fmt.Errorf("max fee %s exceeds cap %s", maxFee, maxFeeCap)
	}
	return FeeParams{TipCap: new(big.Int).Set(tip), MaxFee: maxFee}, nil
}

// GweiToWei converts a gwei amount into wei.
func GweiToWei(gwei uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(gwei), big.NewInt(1_000_000_000))
}
