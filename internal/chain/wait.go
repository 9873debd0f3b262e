package chain

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"vaultctl/internal/model"
)

// ErrReverted is returned with the receipt of a mined but failed transaction.
var ErrReverted = errors.New("transaction reverted")

var errNotConfirmed = errors.New("not confirmed yet")

// Wait blocks until txHash has the requested number of confirmations. The wait
// is bounded by Options.ConfirmTimeout; exceeding it (or cancelling ctx)
// yields a DivergenceTimeoutError and the transaction is never resubmitted.
func (c *Client) Wait(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error) {
	if confirmations == 0 {
		confirmations = 1
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.PollInterval
	bo.MaxInterval = 4 * c.opts.PollInterval
	bo.MaxElapsedTime = c.opts.ConfirmTimeout

	start := time.Now()
	var receipt *types.Receipt
	err := backoff.Retry(func() error {
		r, err := c.ethClient.TransactionReceipt(ctx, txHash)
		if err != nil {
			if errors.Is(err, ethereum.NotFound) {
				return errNotConfirmed
			}
			return err
		}
		if r.Status != types.ReceiptStatusSuccessful {
			receipt = r
			return backoff.Permanent(ErrReverted)
		}
		if confirmations > 1 {
			head, err := c.ethClient.BlockNumber(ctx)
			if err != nil {
				return err
			}
			if confirmationsOf(r, head) < confirmations {
				return errNotConfirmed
			}
		}
		receipt = r
		return nil
	}, backoff.WithContext(bo, ctx))

	switch {
	case err == nil:
		return receipt, nil
	case errors.Is(err, ErrReverted):
		return receipt, ErrReverted
	default:
		return nil, &model.DivergenceTimeoutError{
			TxHash: txHash.Hex(),
			Waited: time.Since(start).Round(time.Millisecond),
			Err:    err,
		}
	}
}

func confirmationsOf(r *types.Receipt, head uint64) uint64 {
	if r == nil || r.BlockNumber == nil {
		return 0
	}
	mined := r.BlockNumber.Uint64()
	if head < mined {
		return 0
	}
	return head - mined + 1
}
