// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/holiman/uint256"
	"go.uber.org/mock/gomock"
	"pgregory.net/rand"
)

func randomWord(rnd *rand.Rand) chain.Word {
	value := uint256.Int{rnd.Uint64(), rnd.Uint64(), rnd.Uint64(), rnd.Uint64()}
	return chain.WordFromUint256(&value)
}

func TestView_GetAccount_FetchesOnlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	want := chain.NewAccountInfo(chain.NewValue(42), 7, chain.Code{0x60, 0x00})
	source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(want, nil).Times(1)

	view := NewView(source)
	for i := 0; i < 3; i++ {
		got, err := view.GetAccount(ctx, chain.Address{1})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !want.Equal(&got) {
			t.Errorf("unexpected account, wanted %v, got %v", want, got)
		}
	}
	if want, got := 1, view.Stats().AccountFetches; want != got {
		t.Errorf("unexpected number of account fetches, wanted %d, got %d", want, got)
	}
}

func TestView_GetAccount_NormalizesMissingCodeHash(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)

	code := chain.Code{0x60, 0x01, 0x00}
	source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(chain.AccountInfo{Code: code}, nil)

	view := NewView(source)
	got, err := view.GetAccount(context.Background(), chain.Address{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := chain.HashCode(code), got.CodeHash; want != got {
		t.Errorf("unexpected code hash, wanted %v, got %v", want, got)
	}
}

func TestView_GetStorage_FetchesOnlyOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	rnd := rand.New(0)
	ctx := context.Background()

	keys := []chain.Key{chain.NewKey(0), chain.NewKey(8), chain.NewKey(1 << 40)}
	values := map[chain.Key]chain.Word{}
	for _, key := range keys {
		values[key] = randomWord(rnd)
		source.EXPECT().FetchStorage(gomock.Any(), chain.Address{1}, key).Return(values[key], nil).Times(1)
	}

	view := NewView(source)
	for i := 0; i < 2; i++ {
		for _, key := range keys {
			got, err := view.GetStorage(ctx, chain.Address{1}, key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := values[key]; want != got {
				t.Errorf("unexpected value for %v, wanted %v, got %v", key, want, got)
			}
		}
	}
	if want, got := len(keys), view.Stats().StorageFetches; want != got {
		t.Errorf("unexpected number of storage fetches, wanted %d, got %d", want, got)
	}
}

func TestView_SetStorage_TakesPrecedenceOverFetchedValue(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	source.EXPECT().FetchStorage(gomock.Any(), chain.Address{1}, chain.NewKey(8)).Return(chain.Word{1}, nil).Times(1)

	view := NewView(source)
	if _, err := view.GetStorage(ctx, chain.Address{1}, chain.NewKey(8)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view.SetStorage(chain.Address{1}, chain.NewKey(8), chain.Word{2})

	got, err := view.GetStorage(ctx, chain.Address{1}, chain.NewKey(8))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (chain.Word{2}); want != got {
		t.Errorf("override not effective, wanted %v, got %v", want, got)
	}
}

func TestView_InjectedEntriesAreNeverFetched(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	view := NewView(source)
	account := chain.NewAccountInfo(chain.NewValue(1), 2, nil)
	view.SetAccount(chain.Address{1}, account)
	view.SetStorage(chain.Address{1}, chain.NewKey(3), chain.Word{4})

	gotAccount, err := view.GetAccount(ctx, chain.Address{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !account.Equal(&gotAccount) {
		t.Errorf("unexpected account, wanted %v, got %v", account, gotAccount)
	}
	gotValue, err := view.GetStorage(ctx, chain.Address{1}, chain.NewKey(3))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (chain.Word{4}); want != gotValue {
		t.Errorf("unexpected value, wanted %v, got %v", want, gotValue)
	}
	if err := view.Prefetch(ctx, []chain.Address{{1}}, map[chain.Address][]chain.Key{{1}: {chain.NewKey(3)}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := (Stats{}), view.Stats(); want != got {
		t.Errorf("unexpected fetches, got %v", got)
	}
}

func TestView_FailedFetchIsReportedAndNotCached(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	issue := fmt.Errorf("connection refused")
	gomock.InOrder(
		source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(chain.AccountInfo{}, issue),
		source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(chain.NewAccountInfo(chain.NewValue(5), 0, nil), nil),
	)
	source.EXPECT().FetchStorage(gomock.Any(), chain.Address{1}, chain.NewKey(1)).Return(chain.Word{}, issue)

	view := NewView(source)
	_, err := view.GetAccount(ctx, chain.Address{1})
	if !errors.Is(err, chain.ErrRemoteUnavailable) {
		t.Errorf("expected remote unavailable error, got %v", err)
	}
	if !errors.Is(err, issue) {
		t.Errorf("expected error to wrap the source error, got %v", err)
	}
	if len(view.Accounts()) != 0 {
		t.Errorf("failed fetch should not store anything, got %v", view.Accounts())
	}

	account, err := view.GetAccount(ctx, chain.Address{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := chain.NewValue(5), account.Balance; want != got {
		t.Errorf("unexpected balance, wanted %v, got %v", want, got)
	}

	if _, err := view.GetStorage(ctx, chain.Address{1}, chain.NewKey(1)); !errors.Is(err, chain.ErrRemoteUnavailable) {
		t.Errorf("expected remote unavailable error, got %v", err)
	}
	if len(view.Storage(chain.Address{1})) != 0 {
		t.Errorf("failed fetch should not store anything")
	}
}

func TestView_SourceErrorsAreNotWrappedTwice(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)

	issue := fmt.Errorf("timeout: %w", chain.ErrRemoteUnavailable)
	source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(chain.AccountInfo{}, issue)

	_, err := NewView(source).GetAccount(context.Background(), chain.Address{1})
	if want, got := "failed to fetch account 0x0100000000000000000000000000000000000000: timeout: remote state unavailable", err.Error(); want != got {
		t.Errorf("unexpected error message, wanted %q, got %q", want, got)
	}
}

func TestView_PartialAccountOverridesRetainOtherFields(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	code := chain.Code{0x60, 0x00}
	source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(chain.NewAccountInfo(chain.NewValue(1), 2, code), nil).Times(1)

	view := NewView(source)
	if err := view.SetBalance(ctx, chain.Address{1}, chain.NewValue(100)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := view.SetNonce(ctx, chain.Address{1}, 9); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := view.GetAccount(ctx, chain.Address{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := chain.NewAccountInfo(chain.NewValue(100), 9, code)
	if !want.Equal(&got) {
		t.Errorf("unexpected account, wanted %v, got %v", want, got)
	}

	newCode := chain.Code{0xfe}
	if err := view.SetCode(ctx, chain.Address{1}, newCode); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err = view.GetAccount(ctx, chain.Address{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want = chain.NewAccountInfo(chain.NewValue(100), 9, newCode)
	if !want.Equal(&got) {
		t.Errorf("unexpected account, wanted %v, got %v", want, got)
	}
}

func TestView_PartialAccountOverrideFailsIfAccountCanNotBeResolved(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)

	source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(chain.AccountInfo{}, fmt.Errorf("offline"))

	view := NewView(source)
	if err := view.SetNonce(context.Background(), chain.Address{1}, 1); !errors.Is(err, chain.ErrRemoteUnavailable) {
		t.Errorf("expected remote unavailable error, got %v", err)
	}
}

func TestView_ReplaceStorage_UnlistedSlotsAreZero(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	source.EXPECT().FetchStorage(gomock.Any(), chain.Address{1}, chain.NewKey(1)).Return(chain.Word{1}, nil)
	source.EXPECT().FetchStorage(gomock.Any(), chain.Address{2}, chain.NewKey(1)).Return(chain.Word{3}, nil)

	view := NewView(source)
	if _, err := view.GetStorage(ctx, chain.Address{1}, chain.NewKey(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	view.ReplaceStorage(chain.Address{1}, map[chain.Key]chain.Word{chain.NewKey(2): {2}})

	tests := []struct {
		address chain.Address
		key     chain.Key
		want    chain.Word
	}{
		{chain.Address{1}, chain.NewKey(1), chain.Word{}},
		{chain.Address{1}, chain.NewKey(2), chain.Word{2}},
		{chain.Address{1}, chain.NewKey(3), chain.Word{}},
		{chain.Address{2}, chain.NewKey(1), chain.Word{3}},
	}
	for _, test := range tests {
		got, err := view.GetStorage(ctx, test.address, test.key)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := test.want; want != got {
			t.Errorf("unexpected value of %v/%v, wanted %v, got %v", test.address, test.key, want, got)
		}
	}
}

func TestView_Prefetch_ResolvesAllMissingEntriesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	rnd := rand.New(0)
	ctx := context.Background()

	accounts := []chain.Address{{1}, {2}, {3}, {1}}
	for _, addr := range accounts[:3] {
		info := chain.NewAccountInfo(chain.NewValue(uint64(addr[0])), 0, nil)
		source.EXPECT().FetchAccount(gomock.Any(), addr).Return(info, nil).Times(1)
	}
	slots := map[chain.Address][]chain.Key{
		{1}: {chain.NewKey(0), chain.NewKey(1), chain.NewKey(0)},
		{4}: {chain.NewKey(8)},
	}
	values := map[chain.Key]chain.Word{}
	for addr, keys := range slots {
		for _, key := range keys[:min(len(keys), 2)] {
			values[key] = randomWord(rnd)
			source.EXPECT().FetchStorage(gomock.Any(), addr, key).Return(values[key], nil).Times(1)
		}
	}

	view := NewView(source, WithParallelism(2))
	if err := view.Prefetch(ctx, accounts, slots); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want, got := (Stats{AccountFetches: 3, StorageFetches: 3}), view.Stats(); want != got {
		t.Errorf("unexpected fetch statistics, wanted %v, got %v", want, got)
	}

	for addr, keys := range slots {
		for _, key := range keys {
			got, err := view.GetStorage(ctx, addr, key)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if want := values[key]; want != got {
				t.Errorf("unexpected value of %v/%v, wanted %v, got %v", addr, key, want, got)
			}
		}
	}
	for _, addr := range accounts {
		got, err := view.GetAccount(ctx, addr)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if want := chain.NewValue(uint64(addr[0])); want != got.Balance {
			t.Errorf("unexpected balance of %v, wanted %v, got %v", addr, want, got.Balance)
		}
	}
}

func TestView_Prefetch_FailureLeavesViewUnmodified(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	source.EXPECT().FetchAccount(gomock.Any(), chain.Address{1}).Return(chain.AccountInfo{}, nil).AnyTimes()
	source.EXPECT().FetchAccount(gomock.Any(), chain.Address{2}).Return(chain.AccountInfo{}, fmt.Errorf("offline")).AnyTimes()

	view := NewView(source)
	err := view.Prefetch(ctx, []chain.Address{{1}, {2}}, nil)
	if !errors.Is(err, chain.ErrRemoteUnavailable) {
		t.Errorf("expected remote unavailable error, got %v", err)
	}
	if got := view.Accounts(); len(got) != 0 {
		t.Errorf("view should be unmodified, got accounts %v", got)
	}
	if want, got := (Stats{}), view.Stats(); want != got {
		t.Errorf("unexpected fetch statistics, wanted %v, got %v", want, got)
	}
}

func TestView_Freeze_MissesResolveToEmptyState(t *testing.T) {
	ctrl := gomock.NewController(t)
	source := chain.NewMockStateSource(ctrl)
	ctx := context.Background()

	view := NewView(source)
	view.Freeze()
	if !view.Frozen() {
		t.Fatalf("view should be frozen")
	}

	account, err := view.GetAccount(ctx, chain.Address{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !account.IsEmpty() || account.CodeHash != chain.EmptyCodeHash {
		t.Errorf("expected empty account, got %v", account)
	}
	value, err := view.GetStorage(ctx, chain.Address{1}, chain.NewKey(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if value != (chain.Word{}) {
		t.Errorf("expected zero word, got %v", value)
	}
	if want, got := []chain.Address{{1}}, view.Accounts(); len(got) != 1 || got[0] != want[0] {
		t.Errorf("misses should be materialized, wanted %v, got %v", want, got)
	}
	if want, got := (Stats{}), view.Stats(); want != got {
		t.Errorf("frozen view should not fetch, got %v", got)
	}
}

func TestView_ViewsAreIsolated(t *testing.T) {
	state := WorldState{
		{1}: Account{Storage: Storage{chain.NewKey(1): {1}}},
	}
	ctx := context.Background()

	a := NewView(state)
	b := NewView(state)
	a.SetStorage(chain.Address{1}, chain.NewKey(1), chain.Word{2})

	got, err := b.GetStorage(ctx, chain.Address{1}, chain.NewKey(1))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := (chain.Word{1}); want != got {
		t.Errorf("override leaked between views, wanted %v, got %v", want, got)
	}
}

func TestView_DumpsAreSorted(t *testing.T) {
	view := NewView(nil)
	view.SetAccount(chain.Address{3}, chain.AccountInfo{})
	view.SetAccount(chain.Address{1}, chain.AccountInfo{})
	view.SetAccount(chain.Address{2}, chain.AccountInfo{})
	view.SetStorage(chain.Address{1}, chain.NewKey(9), chain.Word{9})
	view.SetStorage(chain.Address{1}, chain.NewKey(2), chain.Word{2})
	view.SetStorage(chain.Address{2}, chain.NewKey(1), chain.Word{1})

	accounts := view.Accounts()
	if want, got := 3, len(accounts); want != got {
		t.Fatalf("unexpected number of accounts, wanted %d, got %d", want, got)
	}
	for i, addr := range accounts {
		if want, got := byte(i+1), addr[0]; want != got {
			t.Errorf("unexpected order of accounts: %v", accounts)
		}
	}

	slots := view.Storage(chain.Address{1})
	want := []Slot{{chain.NewKey(2), chain.Word{2}}, {chain.NewKey(9), chain.Word{9}}}
	if len(slots) != len(want) {
		t.Fatalf("unexpected slots, wanted %v, got %v", want, slots)
	}
	for i := range want {
		if want[i] != slots[i] {
			t.Errorf("unexpected slot %d, wanted %v, got %v", i, want[i], slots[i])
		}
	}
}

func TestView_SnapshotReflectsContent(t *testing.T) {
	view := NewView(nil)
	view.SetAccount(chain.Address{1}, chain.NewAccountInfo(chain.NewValue(5), 1, chain.Code{0x00}))
	view.SetStorage(chain.Address{1}, chain.NewKey(1), chain.Word{7})
	view.SetStorage(chain.Address{2}, chain.NewKey(2), chain.Word{8})

	want := WorldState{
		{1}: Account{Balance: chain.NewValue(5), Nonce: 1, Code: chain.Code{0x00}, Storage: Storage{chain.NewKey(1): {7}}},
		{2}: Account{Storage: Storage{chain.NewKey(2): {8}}},
	}
	if got := view.Snapshot(); !want.Equal(got) {
		t.Errorf("unexpected snapshot: %v", want.Diff(got))
	}
}
