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
	"os"
	"path/filepath"
	"testing"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/common"
)

const overrideJSON = `{
	"0x0100000000000000000000000000000000000000": {
		"balance": "0x64",
		"nonce": "0x2",
		"code": "0x6000",
		"state": {
			"0x0000000000000000000000000000000000000000000000000000000000000008": "0x64ca691b00000000000000001d11899c51780000000003aa5712d4e77e453b6c"
		}
	},
	"0x0200000000000000000000000000000000000000": {
		"stateDiff": {
			"0x0000000000000000000000000000000000000000000000000000000000000001": "0x000000000000000000000000000000000000000000000000000000000000002a"
		}
	}
}`

func writeOverrides(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "overrides.json")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write override file: %v", err)
	}
	return path
}

func TestOverrides_LoadAndApply(t *testing.T) {
	ctx := context.Background()
	overrides, err := LoadOverrides(writeOverrides(t, overrideJSON))
	if err != nil {
		t.Fatalf("failed to load overrides: %v", err)
	}

	base := WorldState{
		{1}: {Balance: chain.NewValue(1), Storage: Storage{chain.NewKey(1): {1}}},
		{2}: {Nonce: 5, Storage: Storage{chain.NewKey(2): {2}}},
	}
	view := NewView(base)
	if err := overrides.Apply(ctx, view); err != nil {
		t.Fatalf("failed to apply overrides: %v", err)
	}

	account, err := view.GetAccount(ctx, chain.Address{1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := chain.NewAccountInfo(chain.NewValue(100), 2, chain.Code{0x60, 0x00})
	if !want.Equal(&account) {
		t.Errorf("unexpected account, wanted %v, got %v", want, account)
	}

	packed := chain.Word(common.HexToHash("0x64ca691b00000000000000001d11899c51780000000003aa5712d4e77e453b6c"))

	tests := []struct {
		address chain.Address
		key     chain.Key
		want    chain.Word
	}{
		{chain.Address{1}, chain.NewKey(8), packed},
		{chain.Address{1}, chain.NewKey(1), chain.Word{}}, // replaced storage
		{chain.Address{2}, chain.NewKey(1), chain.Word{31: 0x2a}},
		{chain.Address{2}, chain.NewKey(2), chain.Word{2}},
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

func TestOverrides_InvalidFilesAreRejected(t *testing.T) {
	tests := map[string]string{
		"not json":       "{",
		"bad address":    `{"0x01": {}}`,
		"bad balance":    `{"0x0100000000000000000000000000000000000000": {"balance": "12"}}`,
		"state and diff": `{"0x0100000000000000000000000000000000000000": {"state": {}, "stateDiff": {}}}`,
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadOverrides(writeOverrides(t, content))
			if !errors.Is(err, chain.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestOverrides_MissingFileIsReported(t *testing.T) {
	if _, err := LoadOverrides(filepath.Join(t.TempDir(), "missing.json")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
