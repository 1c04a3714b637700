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
	"bytes"
	"context"
	"fmt"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"golang.org/x/exp/maps"
)

// ----------------------------------------------------------------------------
// WorldState
// ----------------------------------------------------------------------------

// WorldState is a plain in-memory model of chain state. It serves as a
// fixture for tests, as an offline state source, and as the format in which
// the content of a View is reported. Accounts missing in the map are empty.
type WorldState map[chain.Address]Account

// GetAccount implements chain.StateReader.
func (s WorldState) GetAccount(_ context.Context, addr chain.Address) (chain.AccountInfo, error) {
	account := s[addr]
	return chain.NewAccountInfo(account.Balance, account.Nonce, bytes.Clone(account.Code)), nil
}

// GetStorage implements chain.StateReader.
func (s WorldState) GetStorage(_ context.Context, addr chain.Address, key chain.Key) (chain.Word, error) {
	return s[addr].Storage[key], nil
}

// FetchAccount implements chain.StateSource.
func (s WorldState) FetchAccount(ctx context.Context, addr chain.Address) (chain.AccountInfo, error) {
	return s.GetAccount(ctx, addr)
}

// FetchStorage implements chain.StateSource.
func (s WorldState) FetchStorage(ctx context.Context, addr chain.Address, key chain.Key) (chain.Word, error) {
	return s.GetStorage(ctx, addr, key)
}

func (s WorldState) Equal(other WorldState) bool {
	return equalMapsIgnoringZero(s, other, func(a, b Account) bool {
		return a.Equal(&b)
	})
}

func (s WorldState) Clone() WorldState {
	if s == nil {
		return nil
	}
	res := make(WorldState, len(s))
	for k, v := range s {
		res[k] = v.Clone()
	}
	return res
}

// Diff lists the differences between two world states in a human readable
// form. Equal states produce an empty list.
func (s WorldState) Diff(other WorldState) []string {
	return diffMaps("", s, other, func(address chain.Address, a, b Account) []string {
		if a.Equal(&b) {
			return nil
		}
		return a.Diff(fmt.Sprintf("%v/", address), &b)
	})
}

// ----------------------------------------------------------------------------
// Account
// ----------------------------------------------------------------------------

// Account is a single entry of a WorldState. The zero value is the empty
// account.
type Account struct {
	Balance chain.Value
	Nonce   uint64
	Code    chain.Code
	Storage Storage
}

func (a *Account) Equal(other *Account) bool {
	return a.Balance == other.Balance &&
		a.Nonce == other.Nonce &&
		bytes.Equal(a.Code, other.Code) &&
		a.Storage.Equal(other.Storage)
}

func (a *Account) Clone() Account {
	return Account{
		Balance: a.Balance,
		Nonce:   a.Nonce,
		Code:    bytes.Clone(a.Code),
		Storage: a.Storage.Clone(),
	}
}

func (a *Account) Diff(prefix string, other *Account) []string {
	var res []string
	if a.Balance != other.Balance {
		res = append(res, fmt.Sprintf("different balance: %v != %v", a.Balance, other.Balance))
	}
	if a.Nonce != other.Nonce {
		res = append(res, fmt.Sprintf("different nonce: %v != %v", a.Nonce, other.Nonce))
	}
	if !bytes.Equal(a.Code, other.Code) {
		res = append(res, fmt.Sprintf("different code: 0x%x != 0x%x", a.Code, other.Code))
	}
	res = append(res, a.Storage.Diff("storage/", other.Storage)...)
	for i, diff := range res {
		res[i] = prefix + diff
	}
	return res
}

// ----------------------------------------------------------------------------
// Storage
// ----------------------------------------------------------------------------

// Storage maps slot keys to values. Zero-valued entries are equivalent to
// missing entries.
type Storage map[chain.Key]chain.Word

func (s Storage) Equal(other Storage) bool {
	return equalMapsIgnoringZero(s, other, func(a, b chain.Word) bool {
		return a == b
	})
}

func (s Storage) Clone() Storage {
	if s == nil {
		return nil
	}
	return maps.Clone(s)
}

func (s Storage) Diff(prefix string, other Storage) []string {
	return diffMaps(prefix, s, other, func(k chain.Key, a, b chain.Word) []string {
		if a == b {
			return nil
		}
		return []string{
			fmt.Sprintf("different value for key %v: %v != %v", k, a, b),
		}
	})
}

// ----------------------------------------------------------------------------
// Helpers
// ----------------------------------------------------------------------------

func equalMapsIgnoringZero[K comparable, V any](a, b map[K]V, equal func(V, V) bool) bool {
	for k, v := range a {
		if !equal(v, b[k]) {
			return false
		}
	}
	for k, v := range b {
		if !equal(v, a[k]) {
			return false
		}
	}
	return true
}

func diffMaps[K comparable, V any](prefix string, a, b map[K]V, diff func(K, V, V) []string) []string {
	var diffs []string
	for k, v := range a {
		diffs = append(diffs, diff(k, v, b[k])...)
	}
	for k, v := range b {
		if _, overlap := a[k]; !overlap {
			diffs = append(diffs, diff(k, a[k], v)...)
		}
	}
	for i, diff := range diffs {
		diffs[i] = prefix + diff
	}
	return diffs
}
