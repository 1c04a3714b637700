// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package remote implements a chain.StateSource reading state from an
// Ethereum JSON-RPC endpoint. All reads of a client are pinned to a single
// block such that a simulation observes a consistent snapshot.
package remote

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"time"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/consensus/misc/eip4844"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"
)

// Config describes the endpoint a Client connects to.
type Config struct {
	// URL is the HTTP(S) address of the JSON-RPC endpoint.
	URL string
	// Block is the number of the block to read state from. If nil, the
	// latest block at the time of dialing is used.
	Block *big.Int
	// Retries is the number of times a failed HTTP request is repeated.
	// Zero disables retries.
	Retries int
	// RetryWait is the minimum wait time between retries.
	RetryWait time.Duration
	// Timeout limits the duration of individual HTTP requests. Zero means
	// no limit.
	Timeout time.Duration
}

const defaultRetryWait = 500 * time.Millisecond

// Client is a chain.StateSource backed by a JSON-RPC endpoint. It is safe
// for concurrent use.
type Client struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	header  *types.Header
	chainID *big.Int
}

// Dial connects to the configured endpoint and resolves the block all
// subsequent reads are pinned to.
func Dial(ctx context.Context, config Config) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("%w: missing RPC endpoint", chain.ErrConfiguration)
	}
	if config.Retries < 0 {
		return nil, fmt.Errorf("%w: negative number of retries", chain.ErrConfiguration)
	}

	rpcClient, err := rpc.DialOptions(ctx, config.URL, rpc.WithHTTPClient(newHTTPClient(config)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrConfiguration, err)
	}
	client, err := newClient(ctx, rpcClient, config.Block)
	if err != nil {
		rpcClient.Close()
		return nil, err
	}
	log.Debug("Connected to RPC endpoint", "url", config.URL, "block", client.header.Number, "chain", client.chainID)
	return client, nil
}

func newClient(ctx context.Context, rpcClient *rpc.Client, block *big.Int) (*Client, error) {
	eth := ethclient.NewClient(rpcClient)
	header, err := eth.HeaderByNumber(ctx, block)
	if err != nil {
		return nil, unavailable(err, "failed to resolve block %v", blockName(block))
	}
	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, unavailable(err, "failed to fetch chain id")
	}
	return &Client{
		rpc:     rpcClient,
		eth:     eth,
		header:  header,
		chainID: chainID,
	}, nil
}

func newHTTPClient(config Config) *http.Client {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = config.Retries
	retryClient.RetryWaitMin = config.RetryWait
	if retryClient.RetryWaitMin <= 0 {
		retryClient.RetryWaitMin = defaultRetryWait
	}
	retryClient.RetryWaitMax = 4 * retryClient.RetryWaitMin
	retryClient.Logger = retryLogger{log.Root()}
	res := retryClient.StandardClient()
	res.Timeout = config.Timeout
	return res
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// Block returns the number of the block all reads are pinned to.
func (c *Client) Block() *big.Int {
	return new(big.Int).Set(c.header.Number)
}

// ChainID returns the id of the connected chain.
func (c *Client) ChainID() *big.Int {
	return new(big.Int).Set(c.chainID)
}

// FetchAccount requests balance, nonce and code of the given account
// concurrently.
func (c *Client) FetchAccount(ctx context.Context, addr chain.Address) (chain.AccountInfo, error) {
	var (
		balance *big.Int
		nonce   uint64
		code    []byte
	)
	account := common.Address(addr)
	block := c.header.Number

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() (err error) {
		balance, err = c.eth.BalanceAt(ctx, account, block)
		return err
	})
	group.Go(func() (err error) {
		nonce, err = c.eth.NonceAt(ctx, account, block)
		return err
	})
	group.Go(func() (err error) {
		code, err = c.eth.CodeAt(ctx, account, block)
		return err
	})
	if err := group.Wait(); err != nil {
		return chain.AccountInfo{}, unavailable(err, "failed to fetch account %v", addr)
	}

	value, overflow := uint256.FromBig(balance)
	if overflow || balance.Sign() < 0 {
		return chain.AccountInfo{}, unavailable(nil, "invalid balance of account %v: %v", addr, balance)
	}
	return chain.NewAccountInfo(chain.ValueFromUint256(value), nonce, code), nil
}

// FetchStorage requests the value of a single storage slot.
func (c *Client) FetchStorage(ctx context.Context, addr chain.Address, key chain.Key) (chain.Word, error) {
	data, err := c.eth.StorageAt(ctx, common.Address(addr), common.Hash(key), c.header.Number)
	if err != nil {
		return chain.Word{}, unavailable(err, "failed to fetch slot %v of %v", key, addr)
	}
	if len(data) > len(chain.Word{}) {
		return chain.Word{}, unavailable(nil, "invalid storage value of %v/%v: 0x%x", addr, key, data)
	}
	return chain.Word(common.BytesToHash(data)), nil
}

// BlockParameters describes the pinned block. The revision is set to the
// newest supported revision and may be adjusted by the caller.
func (c *Client) BlockParameters() chain.BlockParameters {
	res := chain.BlockParameters{
		ChainID:     chain.WordFromUint256(uint256.MustFromBig(c.chainID)),
		BlockNumber: c.header.Number.Int64(),
		Timestamp:   int64(c.header.Time),
		Coinbase:    chain.Address(c.header.Coinbase),
		GasLimit:    chain.Gas(c.header.GasLimit),
		PrevRandao:  chain.Hash(c.header.MixDigest),
		Revision:    chain.NewestRevision,
	}
	if c.header.BaseFee != nil {
		if fee, overflow := uint256.FromBig(c.header.BaseFee); !overflow {
			res.BaseFee = chain.ValueFromUint256(fee)
		}
	}
	if c.header.ExcessBlobGas != nil {
		if fee, overflow := uint256.FromBig(eip4844.CalcBlobFee(*c.header.ExcessBlobGas)); !overflow {
			res.BlobBaseFee = chain.ValueFromUint256(fee)
		}
	}
	return res
}

func unavailable(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if err == nil {
		return fmt.Errorf("%s: %w", msg, chain.ErrRemoteUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", msg, chain.ErrRemoteUnavailable, err)
}

func blockName(block *big.Int) string {
	if block == nil {
		return "latest"
	}
	return block.String()
}

// retryLogger forwards messages of the retrying HTTP client to the
// go-ethereum logger. Per-request messages are reduced to trace level.
type retryLogger struct {
	inner log.Logger
}

func (r retryLogger) Error(msg string, keysAndValues ...any) {
	r.inner.Warn(msg, keysAndValues...)
}

func (r retryLogger) Info(msg string, keysAndValues ...any) {
	r.inner.Debug(msg, keysAndValues...)
}

func (r retryLogger) Warn(msg string, keysAndValues ...any) {
	r.inner.Debug(msg, keysAndValues...)
}

func (r retryLogger) Debug(msg string, keysAndValues ...any) {
	r.inner.Trace(msg, keysAndValues...)
}
