// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package executor

import (
	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/stateless"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/params"
	"github.com/ethereum/go-ethereum/trie/utils"
	"github.com/holiman/uint256"
)

// stateDbAdapter exposes a runContext as a vm.StateDB to the go-ethereum
// interpreter.
type stateDbAdapter struct {
	context *runContext
}

var _ vm.StateDB = (*stateDbAdapter)(nil)

func (s *stateDbAdapter) CreateAccount(addr common.Address) {
	s.context.createAccount(chain.Address(addr))
}

func (s *stateDbAdapter) CreateContract(addr common.Address) {
	s.context.markCreated(chain.Address(addr))
}

func (s *stateDbAdapter) SubBalance(addr common.Address, diff *uint256.Int, _ tracing.BalanceChangeReason) {
	account := chain.Address(addr)
	cur := s.context.getBalance(account)
	s.context.setBalance(account, chain.Sub(cur, chain.ValueFromUint256(diff)))
}

func (s *stateDbAdapter) AddBalance(addr common.Address, diff *uint256.Int, _ tracing.BalanceChangeReason) {
	account := chain.Address(addr)
	cur := s.context.getBalance(account)
	s.context.setBalance(account, chain.Add(cur, chain.ValueFromUint256(diff)))
}

func (s *stateDbAdapter) GetBalance(addr common.Address) *uint256.Int {
	return s.context.getBalance(chain.Address(addr)).ToUint256()
}

func (s *stateDbAdapter) GetNonce(addr common.Address) uint64 {
	return s.context.getNonce(chain.Address(addr))
}

func (s *stateDbAdapter) SetNonce(addr common.Address, nonce uint64) {
	s.context.setNonce(chain.Address(addr), nonce)
}

func (s *stateDbAdapter) GetCodeHash(addr common.Address) common.Hash {
	return common.Hash(s.context.getCodeHash(chain.Address(addr)))
}

func (s *stateDbAdapter) GetCode(addr common.Address) []byte {
	return s.context.getCode(chain.Address(addr))
}

func (s *stateDbAdapter) SetCode(addr common.Address, code []byte) {
	s.context.setCode(chain.Address(addr), code)
}

func (s *stateDbAdapter) GetCodeSize(addr common.Address) int {
	return len(s.context.getCode(chain.Address(addr)))
}

func (s *stateDbAdapter) AddRefund(value uint64) {
	s.context.addRefund(value)
}

func (s *stateDbAdapter) SubRefund(value uint64) {
	s.context.subRefund(value)
}

func (s *stateDbAdapter) GetRefund() uint64 {
	return s.context.refund
}

func (s *stateDbAdapter) GetCommittedState(addr common.Address, key common.Hash) common.Hash {
	return common.Hash(s.context.getCommittedStorage(chain.Address(addr), chain.Key(key)))
}

func (s *stateDbAdapter) GetState(addr common.Address, key common.Hash) common.Hash {
	return common.Hash(s.context.getStorage(chain.Address(addr), chain.Key(key)))
}

func (s *stateDbAdapter) SetState(addr common.Address, key common.Hash, value common.Hash) {
	s.context.setStorage(chain.Address(addr), chain.Key(key), chain.Word(value))
}

func (s *stateDbAdapter) GetStorageRoot(common.Address) common.Hash {
	// Storage tries are not available; only consulted for address collision
	// checks on contract creation.
	return types.EmptyRootHash
}

func (s *stateDbAdapter) GetTransientState(addr common.Address, key common.Hash) common.Hash {
	return common.Hash(s.context.getTransientStorage(chain.Address(addr), chain.Key(key)))
}

func (s *stateDbAdapter) SetTransientState(addr common.Address, key, value common.Hash) {
	s.context.setTransientStorage(chain.Address(addr), chain.Key(key), chain.Word(value))
}

func (s *stateDbAdapter) SelfDestruct(addr common.Address) {
	s.context.selfDestruct(chain.Address(addr))
}

func (s *stateDbAdapter) HasSelfDestructed(addr common.Address) bool {
	return s.context.hasSelfDestructed(chain.Address(addr))
}

func (s *stateDbAdapter) Selfdestruct6780(addr common.Address) {
	s.context.selfDestructIfCreated(chain.Address(addr))
}

func (s *stateDbAdapter) Exist(addr common.Address) bool {
	return s.context.accountExists(chain.Address(addr))
}

func (s *stateDbAdapter) Empty(addr common.Address) bool {
	return s.context.isEmpty(chain.Address(addr))
}

func (s *stateDbAdapter) AddressInAccessList(addr common.Address) bool {
	return s.context.isAddressWarm(chain.Address(addr))
}

func (s *stateDbAdapter) SlotInAccessList(addr common.Address, slot common.Hash) (addressOk bool, slotOk bool) {
	return s.context.isSlotWarm(chain.Address(addr), chain.Key(slot))
}

func (s *stateDbAdapter) AddAddressToAccessList(addr common.Address) {
	s.context.warmAddress(chain.Address(addr))
}

func (s *stateDbAdapter) AddSlotToAccessList(addr common.Address, slot common.Hash) {
	s.context.warmSlot(chain.Address(addr), chain.Key(slot))
}

// Prepare warms up the accounts and slots accessed by every transaction as
// defined by EIP-2929, EIP-2930 and EIP-3651.
func (s *stateDbAdapter) Prepare(rules params.Rules, sender, coinbase common.Address, dest *common.Address, precompiles []common.Address, txAccesses types.AccessList) {
	if !rules.IsBerlin {
		return
	}
	s.AddAddressToAccessList(sender)
	if dest != nil {
		s.AddAddressToAccessList(*dest)
	}
	for _, addr := range precompiles {
		s.AddAddressToAccessList(addr)
	}
	for _, el := range txAccesses {
		s.AddAddressToAccessList(el.Address)
		for _, key := range el.StorageKeys {
			s.AddSlotToAccessList(el.Address, key)
		}
	}
	if rules.IsShanghai {
		s.AddAddressToAccessList(coinbase)
	}
}

func (s *stateDbAdapter) RevertToSnapshot(snapshot int) {
	s.context.restore(snapshot)
}

func (s *stateDbAdapter) Snapshot() int {
	return s.context.snapshot()
}

func (s *stateDbAdapter) AddLog(log *types.Log) {
	topics := make([]chain.Hash, 0, len(log.Topics))
	for _, cur := range log.Topics {
		topics = append(topics, chain.Hash(cur))
	}
	s.context.emitLog(chain.Log{
		Address: chain.Address(log.Address),
		Topics:  topics,
		Data:    log.Data,
	})
}

func (s *stateDbAdapter) AddPreimage(common.Hash, []byte) {}

func (s *stateDbAdapter) PointCache() *utils.PointCache {
	// only needed by verkle trees, which are not supported by any revision
	return nil
}

func (s *stateDbAdapter) Witness() *stateless.Witness {
	return nil
}
