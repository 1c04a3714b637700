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
	"encoding/json"
	"fmt"
	"os"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"golang.org/x/exp/maps"
)

// OverrideAccount lists the properties of an account to be replaced before a
// call is simulated. It uses the JSON format of the eth_call state override
// set. State and StateDiff are mutually exclusive: State replaces the full
// storage of the account, StateDiff patches individual slots.
type OverrideAccount struct {
	Nonce     *hexutil.Uint64             `json:"nonce,omitempty"`
	Code      *hexutil.Bytes              `json:"code,omitempty"`
	Balance   *hexutil.Big                `json:"balance,omitempty"`
	State     map[common.Hash]common.Hash `json:"state,omitempty"`
	StateDiff map[common.Hash]common.Hash `json:"stateDiff,omitempty"`
}

// Overrides is a set of account overrides indexed by address.
type Overrides map[chain.Address]OverrideAccount

// LoadOverrides reads an override set from a JSON file.
func LoadOverrides(path string) (Overrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var res Overrides
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, fmt.Errorf("%w: invalid override file %s: %w", chain.ErrConfiguration, path, err)
	}
	if err := res.Check(); err != nil {
		return nil, err
	}
	return res, nil
}

// Check verifies that all entries are well formed.
func (o Overrides) Check() error {
	for addr, account := range o {
		if account.State != nil && account.StateDiff != nil {
			return fmt.Errorf("%w: account %v has both state and stateDiff overrides", chain.ErrConfiguration, addr)
		}
		if account.Balance != nil {
			if account.Balance.ToInt().Sign() < 0 {
				return fmt.Errorf("%w: negative balance override for %v", chain.ErrConfiguration, addr)
			}
			if _, overflow := uint256.FromBig(account.Balance.ToInt()); overflow {
				return fmt.Errorf("%w: balance override for %v exceeds 256 bit", chain.ErrConfiguration, addr)
			}
		}
	}
	return nil
}

// Apply injects the overrides into the given view. Accounts are processed in
// ascending address order. Partial account overrides resolve the account
// through the view first, which may trigger remote fetches.
func (o Overrides) Apply(ctx context.Context, view *View) error {
	if err := o.Check(); err != nil {
		return err
	}
	for _, addr := range sortedAddresses(maps.Keys(o)) {
		account := o[addr]
		if account.Balance != nil {
			balance, _ := uint256.FromBig(account.Balance.ToInt())
			if err := view.SetBalance(ctx, addr, chain.ValueFromUint256(balance)); err != nil {
				return err
			}
		}
		if account.Nonce != nil {
			if err := view.SetNonce(ctx, addr, uint64(*account.Nonce)); err != nil {
				return err
			}
		}
		if account.Code != nil {
			if err := view.SetCode(ctx, addr, chain.Code(*account.Code)); err != nil {
				return err
			}
		}
		if account.State != nil {
			slots := make(map[chain.Key]chain.Word, len(account.State))
			for key, value := range account.State {
				slots[chain.Key(key)] = chain.Word(value)
			}
			view.ReplaceStorage(addr, slots)
		}
		for key, value := range account.StateDiff {
			view.SetStorage(addr, chain.Key(key), chain.Word(value))
		}
	}
	return nil
}
