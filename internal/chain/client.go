package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"vaultctl/internal/contracts"
	"vaultctl/internal/model"
)

// Reader issues side-effect-free contract calls.
type Reader interface {
	Call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error)
}

// Backend is the narrow chain surface the reconciler depends on.
type Backend interface {
	Reader
	Send(ctx context.Context, req SendRequest) (common.Hash, error)
	Wait(ctx context.Context, txHash common.Hash, confirmations uint64) (*types.Receipt, error)
	SuggestFees(ctx context.Context) (FeeParams, error)
}

// SendRequest describes one mutating contract call.
type SendRequest struct {
	Contract common.Address
	ABI      abi.ABI
	Method   string
	Args     []interface{}
	Signer   *Signer
	Fees     FeeParams
}

// Options tunes transaction submission and confirmation waits.
type Options struct {
	ConfirmTimeout time.Duration
	PollInterval   time.Duration
	MaxFeeCap      *big.Int
	GasHeadroomPct uint64
	ReadRetries    uint64
}

func (o Options) withDefaults() Options {
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 5 * time.Minute
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.GasHeadroomPct == 0 {
		o.GasHeadroomPct = 20
	}
	return o
}

// Client wraps go-ethereum RPC and implements Backend.
type Client struct {
	rpcClient *rpc.Client
	ethClient *ethclient.Client
	opts      Options

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the RPC URL.
func NewClient(ctx context.Context, rpcURL string, opts Options) (*Client, error) {
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return NewClientFromRPC(rpcClient, opts), nil
}

// NewClientFromRPC wraps an existing RPC client.
func NewClientFromRPC(rpcClient *rpc.Client, opts Options) *Client {
	return &Client{
		rpcClient: rpcClient,
		ethClient: ethclient.NewClient(rpcClient),
		opts:      opts.withDefaults(),
	}
}

// Close closes the underlying RPC client.
func (c *Client) Close() {
	if c.rpcClient != nil {
		c.rpcClient.Close()
	}
}

// ChainID returns the chain ID, fetched once.
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.chainID != nil {
		return new(big.Int).Set(c.chainID), nil
	}
	id, err := c.ethClient.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	c.chainID = id
	return new(big.Int).Set(id), nil
}

// Call performs an eth_call and unpacks the result.
func (c *Client) Call(ctx context.Context, contract common.Address, parsed abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &contract, Data: data}
	var resp []byte
	err = withRetry(ctx, c.opts.ReadRetries, c.opts.PollInterval, func() error {
		var callErr error
		resp, callErr = c.ethClient.CallContract(ctx, msg, nil)
		if callErr != nil && isExecutionError(callErr) {
			return backoff.Permanent(callErr)
		}
		return callErr
	})
	if err != nil {
		return nil, remoteError(contract, method, args, err)
	}

	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, remoteError(contract, method, args, fmt.Errorf("unpack: %w", err))
	}
	return values, nil
}

// Send signs and submits one EIP-1559 transaction. It does not wait.
func (c *Client) Send(ctx context.Context, req SendRequest) (common.Hash, error) {
	if req.Signer == nil {
		return common.Hash{}, fmt.Errorf("send %s: signer is nil", req.Method)
	}
	if req.Fees.MaxFee == nil || req.Fees.TipCap == nil {
		return common.Hash{}, fmt.Errorf("send %s: fee params are required", req.Method)
	}

	data, err := req.ABI.Pack(req.Method, req.Args...)
	if err != nil {
		return common.Hash{}, fmt.Errorf("pack %s: %w", req.Method, err)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("get chain id: %w", err)
	}

	nonce, err := c.ethClient.PendingNonceAt(ctx, req.Signer.Address)
	if err != nil {
		return common.Hash{}, remoteError(req.Contract, req.Method, req.Args, fmt.Errorf("pending nonce: %w", err))
	}

	to := req.Contract
	gas, err := c.ethClient.EstimateGas(ctx, ethereum.CallMsg{
		From:      req.Signer.Address,
		To:        &to,
		GasFeeCap: req.Fees.MaxFee,
		GasTipCap: req.Fees.TipCap,
		Data:      data,
	})
	if err != nil {
		return common.Hash{}, remoteError(req.Contract, req.Method, req.Args, fmt.Errorf("estimate gas: %w", err))
	}
	gas = gas * (100 + c.opts.GasHeadroomPct) / 100

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     nonce,
		GasTipCap: req.Fees.TipCap,
		GasFeeCap: req.Fees.MaxFee,
		Gas:       gas,
		To:        &to,
		Value:     new(big.Int),
		Data:      data,
	})
	signed, err := req.Signer.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, fmt.Errorf("sign %s: %w", req.Method, err)
	}

	if err := c.ethClient.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, remoteError(req.Contract, req.Method, req.Args, err)
	}
	return signed.Hash(), nil
}

// SuggestFees is the fee oracle: tip from the node, max fee = 2*baseFee + tip.
func (c *Client) SuggestFees(ctx context.Context) (FeeParams, error) {
	tip, err := c.ethClient.SuggestGasTipCap(ctx)
	if err != nil {
		return FeeParams{}, fmt.Errorf("suggest tip: %w", err)
	}
	header, err := c.ethClient.HeaderByNumber(ctx, nil)
	if err != nil {
		return FeeParams{}, fmt.Errorf("latest header: %w", err)
	}
	return computeFees(header.BaseFee, tip, c.opts.MaxFeeCap)
}

func remoteError(contract common.Address, method string, args []interface{}, err error) error {
	return &model.RemoteCallError{
		Contract: contract.Hex(),
		Method:   method,
		Args:     contracts.FormatArgs(args),
		Err:      err,
	}
}

func isExecutionError(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "execution reverted") || strings.Contains(msg, "invalid opcode")
}
