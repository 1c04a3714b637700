// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package remote

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/remote/remotetest"
	"github.com/Fantom-foundation/Forksim/go/state"
	"github.com/holiman/uint256"
)

var testWorld = state.WorldState{
	{1}: {
		Balance: chain.NewValue(1, 2),
		Nonce:   7,
		Code:    chain.Code{0x60, 0x00, 0xf3},
		Storage: state.Storage{chain.NewKey(8): {0x64, 0xca}},
	},
}

func TestClient_Dial_PinsLatestBlock(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	client, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil)})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	if want, got := int64(100), client.Block().Int64(); want != got {
		t.Errorf("unexpected pinned block, wanted %d, got %d", want, got)
	}
	if want, got := int64(250), client.ChainID().Int64(); want != got {
		t.Errorf("unexpected chain id, wanted %d, got %d", want, got)
	}

	// Later blocks must not affect the pinned client.
	fake.SetHead(120)
	if _, err := client.FetchAccount(context.Background(), chain.Address{1}); err != nil {
		t.Fatalf("failed to fetch account: %v", err)
	}
	if want, got := 3, fake.Requests(100); want != got {
		t.Errorf("unexpected number of requests at pinned block, wanted %d, got %d", want, got)
	}
	if got := fake.Requests(120); got != 0 {
		t.Errorf("client read from unpinned block %d times", got)
	}
}

func TestClient_Dial_UsesConfiguredBlock(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	client, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil), Block: big.NewInt(42)})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	if want, got := int64(42), client.Block().Int64(); want != got {
		t.Errorf("unexpected pinned block, wanted %d, got %d", want, got)
	}
	if _, err := client.FetchStorage(context.Background(), chain.Address{1}, chain.NewKey(8)); err != nil {
		t.Fatalf("failed to fetch storage: %v", err)
	}
	if want, got := 1, fake.Requests(42); want != got {
		t.Errorf("unexpected number of requests at block 42, wanted %d, got %d", want, got)
	}
}

func TestClient_Dial_UnknownBlockIsReported(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	_, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil), Block: big.NewInt(1000)})
	if !errors.Is(err, chain.ErrRemoteUnavailable) {
		t.Errorf("expected remote unavailable error, got %v", err)
	}
}

func TestClient_Dial_RejectsInvalidConfiguration(t *testing.T) {
	tests := map[string]Config{
		"missing url":      {},
		"negative retries": {URL: "http://localhost:8545", Retries: -1},
		"bad scheme":       {URL: "foo://localhost"},
	}
	for name, config := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := Dial(context.Background(), config); !errors.Is(err, chain.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestClient_FetchAccount(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	client, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil)})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	got, err := client.FetchAccount(context.Background(), chain.Address{1})
	if err != nil {
		t.Fatalf("failed to fetch account: %v", err)
	}
	want := chain.NewAccountInfo(chain.NewValue(1, 2), 7, chain.Code{0x60, 0x00, 0xf3})
	if !want.Equal(&got) {
		t.Errorf("unexpected account, wanted %v, got %v", want, got)
	}

	got, err = client.FetchAccount(context.Background(), chain.Address{2})
	if err != nil {
		t.Fatalf("failed to fetch account: %v", err)
	}
	if !got.IsEmpty() || got.CodeHash != chain.EmptyCodeHash {
		t.Errorf("expected empty account, got %v", got)
	}
}

func TestClient_FetchStorage(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	client, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil)})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	tests := []struct {
		address chain.Address
		key     chain.Key
		want    chain.Word
	}{
		{chain.Address{1}, chain.NewKey(8), chain.Word{0x64, 0xca}},
		{chain.Address{1}, chain.NewKey(9), chain.Word{}},
		{chain.Address{2}, chain.NewKey(8), chain.Word{}},
	}
	for _, test := range tests {
		got, err := client.FetchStorage(context.Background(), test.address, test.key)
		if err != nil {
			t.Fatalf("failed to fetch storage: %v", err)
		}
		if want := test.want; want != got {
			t.Errorf("unexpected value of %v/%v, wanted %v, got %v", test.address, test.key, want, got)
		}
	}
}

func TestClient_FailuresAreReportedAsRemoteUnavailable(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	fake.Fail(chain.Address{1})
	client, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil)})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	if _, err := client.FetchAccount(context.Background(), chain.Address{1}); !errors.Is(err, chain.ErrRemoteUnavailable) {
		t.Errorf("expected remote unavailable error, got %v", err)
	}
	if _, err := client.FetchStorage(context.Background(), chain.Address{1}, chain.NewKey(1)); !errors.Is(err, chain.ErrRemoteUnavailable) {
		t.Errorf("expected remote unavailable error, got %v", err)
	}
}

func TestClient_RetriesFailedRequestsIfConfigured(t *testing.T) {
	for _, retries := range []int{0, 3} {
		t.Run(fmt.Sprintf("retries=%d", retries), func(t *testing.T) {
			var failures atomic.Int32
			failures.Store(2)
			flaky := func(next http.Handler) http.Handler {
				return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					if failures.Add(-1) >= 0 {
						w.WriteHeader(http.StatusServiceUnavailable)
						return
					}
					next.ServeHTTP(w, r)
				})
			}
			url := remotetest.Start(t, remotetest.NewFakeEth(testWorld), flaky)

			client, err := Dial(context.Background(), Config{URL: url, Retries: retries, RetryWait: time.Millisecond})
			if retries == 0 {
				if !errors.Is(err, chain.ErrRemoteUnavailable) {
					t.Errorf("expected remote unavailable error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("failed to dial despite retries: %v", err)
			}
			client.Close()
		})
	}
}

func TestClient_BlockParameters(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	client, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil)})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	params := client.BlockParameters()
	if want, got := int64(100), params.BlockNumber; want != got {
		t.Errorf("unexpected block number, wanted %d, got %d", want, got)
	}
	if want, got := int64(1_700_000_100), params.Timestamp; want != got {
		t.Errorf("unexpected timestamp, wanted %d, got %d", want, got)
	}
	if want, got := (chain.Address{0xc0}), params.Coinbase; want != got {
		t.Errorf("unexpected coinbase, wanted %v, got %v", want, got)
	}
	if want, got := chain.Gas(30_000_000), params.GasLimit; want != got {
		t.Errorf("unexpected gas limit, wanted %d, got %d", want, got)
	}
	if want, got := chain.NewValue(1_000), params.BaseFee; want != got {
		t.Errorf("unexpected base fee, wanted %v, got %v", want, got)
	}
	if want, got := chain.NewValue(1), params.BlobBaseFee; want != got {
		t.Errorf("unexpected blob base fee, wanted %v, got %v", want, got)
	}
	if want, got := (chain.Hash{0xaa}), params.PrevRandao; want != got {
		t.Errorf("unexpected prev randao, wanted %v, got %v", want, got)
	}
	if want, got := chain.WordFromUint256(uint256.NewInt(250)), params.ChainID; want != got {
		t.Errorf("unexpected chain id, wanted %v, got %v", want, got)
	}
	if want, got := chain.NewestRevision, params.Revision; want != got {
		t.Errorf("unexpected revision, wanted %v, got %v", want, got)
	}
}

func TestClient_ServesAsSourceOfView(t *testing.T) {
	fake := remotetest.NewFakeEth(testWorld)
	client, err := Dial(context.Background(), Config{URL: remotetest.Start(t, fake, nil)})
	if err != nil {
		t.Fatalf("failed to dial: %v", err)
	}
	defer client.Close()

	view := state.NewView(client)
	err = view.Prefetch(context.Background(),
		[]chain.Address{{1}, {2}},
		map[chain.Address][]chain.Key{{1}: {chain.NewKey(8)}},
	)
	if err != nil {
		t.Fatalf("failed to prefetch: %v", err)
	}
	view.Freeze()

	value, err := view.GetStorage(context.Background(), chain.Address{1}, chain.NewKey(8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (chain.Word{0x64, 0xca}); want != value {
		t.Errorf("unexpected value, wanted %v, got %v", want, value)
	}
	if want, got := (state.Stats{AccountFetches: 2, StorageFetches: 1}), view.Stats(); want != got {
		t.Errorf("unexpected fetch statistics, wanted %v, got %v", want, got)
	}
}
