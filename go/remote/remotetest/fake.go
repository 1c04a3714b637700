// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package remotetest provides an in-memory JSON-RPC endpoint serving chain
// state for tests.
package remotetest

import (
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// DefaultHead is the latest block number reported by a new FakeEth.
const DefaultHead = 100

// ChainID is the chain id reported by FakeEth.
const ChainID = 250

// FakeEth serves the subset of the eth namespace needed to read accounts,
// storage, and block headers from an in-memory world state. The state is
// the same at every block.
type FakeEth struct {
	world state.WorldState

	mu        sync.Mutex
	head      int64
	failing   map[common.Address]bool
	requested map[int64]int
}

// NewFakeEth creates a service serving the given state.
func NewFakeEth(world state.WorldState) *FakeEth {
	return &FakeEth{
		world:     world,
		head:      DefaultHead,
		failing:   map[common.Address]bool{},
		requested: map[int64]int{},
	}
}

// SetHead changes the latest block number.
func (f *FakeEth) SetHead(head int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.head = head
}

// Fail makes all requests for the given account fail.
func (f *FakeEth) Fail(addr chain.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failing[common.Address(addr)] = true
}

// Requests returns the number of account and storage requests served for
// the given block.
func (f *FakeEth) Requests(block int64) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requested[block]
}

func (f *FakeEth) resolve(block rpc.BlockNumber) int64 {
	if block == rpc.LatestBlockNumber || block == rpc.PendingBlockNumber {
		return f.head
	}
	return block.Int64()
}

func (f *FakeEth) account(addr common.Address, block rpc.BlockNumber) (state.Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	number := f.resolve(block)
	if number > f.head {
		return state.Account{}, fmt.Errorf("unknown block %d", number)
	}
	f.requested[number]++
	if f.failing[addr] {
		return state.Account{}, fmt.Errorf("account %v is unavailable", addr)
	}
	return f.world[chain.Address(addr)], nil
}

func (f *FakeEth) ChainId() (*hexutil.Big, error) {
	return (*hexutil.Big)(big.NewInt(ChainID)), nil
}

func (f *FakeEth) GetBlockByNumber(block rpc.BlockNumber, _ bool) (*types.Header, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	number := f.resolve(block)
	if number > f.head {
		return nil, nil
	}
	excess := uint64(0)
	return &types.Header{
		Number:        big.NewInt(number),
		Time:          uint64(1_700_000_000 + number),
		Coinbase:      common.Address{0xc0},
		GasLimit:      30_000_000,
		BaseFee:       big.NewInt(1_000),
		Difficulty:    big.NewInt(0),
		MixDigest:     common.Hash{0xaa},
		ExcessBlobGas: &excess,
	}, nil
}

func (f *FakeEth) GetBalance(addr common.Address, block rpc.BlockNumber) (*hexutil.Big, error) {
	account, err := f.account(addr, block)
	if err != nil {
		return nil, err
	}
	return (*hexutil.Big)(account.Balance.ToBig()), nil
}

func (f *FakeEth) GetTransactionCount(addr common.Address, block rpc.BlockNumber) (hexutil.Uint64, error) {
	account, err := f.account(addr, block)
	return hexutil.Uint64(account.Nonce), err
}

func (f *FakeEth) GetCode(addr common.Address, block rpc.BlockNumber) (hexutil.Bytes, error) {
	account, err := f.account(addr, block)
	return hexutil.Bytes(account.Code), err
}

func (f *FakeEth) GetStorageAt(addr common.Address, key common.Hash, block rpc.BlockNumber) (hexutil.Bytes, error) {
	account, err := f.account(addr, block)
	if err != nil {
		return nil, err
	}
	value := account.Storage[chain.Key(key)]
	return hexutil.Bytes(value[:]), nil
}

// Start serves the given fake over HTTP until the test ends and returns the
// URL of the endpoint. If wrap is not nil, it may intercept all requests.
func Start(t testing.TB, fake *FakeEth, wrap func(http.Handler) http.Handler) string {
	t.Helper()
	server := rpc.NewServer()
	if err := server.RegisterName("eth", fake); err != nil {
		t.Fatalf("failed to register fake service: %v", err)
	}
	var handler http.Handler = server
	if wrap != nil {
		handler = wrap(handler)
	}
	httpServer := httptest.NewServer(handler)
	t.Cleanup(func() {
		httpServer.Close()
		server.Stop()
	})
	return httpServer.URL
}
