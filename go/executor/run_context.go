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
	"bytes"
	"context"
	"fmt"
	"slices"

	"github.com/Fantom-foundation/Forksim/go/chain"
)

type slot struct {
	address chain.Address
	key     chain.Key
}

// runContext is the transaction-scoped state of a single call. It layers a
// journaled write overlay over a read-only chain.StateReader. Nothing is ever
// written to the reader; all modifications are dropped with the context.
//
// Read failures of the underlying reader can not be reported through the
// interpreter. The first failure is retained and the affected entry reads as
// empty; the executor reports the retained failure after the execution.
type runContext struct {
	ctx    context.Context
	reader chain.StateReader
	err    error

	accounts   map[chain.Address]chain.AccountInfo
	storage    map[slot]chain.Word
	committed  map[slot]chain.Word
	transient  map[slot]chain.Word
	cleared    map[chain.Address]bool
	created    map[chain.Address]bool
	destructed map[chain.Address]bool

	warmAccounts map[chain.Address]bool
	warmSlots    map[slot]bool

	logs   []chain.Log
	refund uint64
	undo   []func()
}

func newRunContext(ctx context.Context, reader chain.StateReader) *runContext {
	return &runContext{
		ctx:          ctx,
		reader:       reader,
		accounts:     map[chain.Address]chain.AccountInfo{},
		storage:      map[slot]chain.Word{},
		committed:    map[slot]chain.Word{},
		transient:    map[slot]chain.Word{},
		cleared:      map[chain.Address]bool{},
		created:      map[chain.Address]bool{},
		destructed:   map[chain.Address]bool{},
		warmAccounts: map[chain.Address]bool{},
		warmSlots:    map[slot]bool{},
	}
}

// failure returns the first read failure of the underlying state, if any.
func (c *runContext) failure() error {
	return c.err
}

func (c *runContext) fail(err error) {
	if c.err == nil {
		c.err = err
	}
}

// --- accounts ---

func (c *runContext) getAccount(addr chain.Address) chain.AccountInfo {
	if info, found := c.accounts[addr]; found {
		return info
	}
	info, err := c.reader.GetAccount(c.ctx, addr)
	if err != nil {
		c.fail(fmt.Errorf("failed to read account %v: %w", addr, err))
		return chain.AccountInfo{}
	}
	info = info.Normalize()
	c.accounts[addr] = info
	return info
}

func (c *runContext) updateAccount(addr chain.Address, update func(*chain.AccountInfo)) {
	original, loaded := c.accounts[addr]
	if !loaded {
		original = c.getAccount(addr)
	}
	modified := original.Clone()
	update(&modified)
	c.accounts[addr] = modified
	c.undo = append(c.undo, func() { c.accounts[addr] = original })
}

func (c *runContext) accountExists(addr chain.Address) bool {
	if c.created[addr] || c.destructed[addr] {
		return true
	}
	info := c.getAccount(addr)
	return !info.IsEmpty()
}

func (c *runContext) isEmpty(addr chain.Address) bool {
	info := c.getAccount(addr)
	return info.IsEmpty()
}

func (c *runContext) getBalance(addr chain.Address) chain.Value {
	return c.getAccount(addr).Balance
}

func (c *runContext) setBalance(addr chain.Address, value chain.Value) {
	c.updateAccount(addr, func(info *chain.AccountInfo) {
		info.Balance = value
	})
}

func (c *runContext) getNonce(addr chain.Address) uint64 {
	return c.getAccount(addr).Nonce
}

func (c *runContext) setNonce(addr chain.Address, nonce uint64) {
	c.updateAccount(addr, func(info *chain.AccountInfo) {
		info.Nonce = nonce
	})
}

func (c *runContext) getCode(addr chain.Address) chain.Code {
	return c.getAccount(addr).Code
}

func (c *runContext) getCodeHash(addr chain.Address) chain.Hash {
	if !c.accountExists(addr) {
		return chain.Hash{}
	}
	return c.getAccount(addr).CodeHash
}

func (c *runContext) setCode(addr chain.Address, code chain.Code) {
	c.updateAccount(addr, func(info *chain.AccountInfo) {
		info.Code = bytes.Clone(code)
		info.CodeHash = chain.HashCode(code)
	})
}

// createAccount resets the given account to an empty account retaining only
// its balance. Storage of a re-created account reads as zero.
func (c *runContext) createAccount(addr chain.Address) {
	c.updateAccount(addr, func(info *chain.AccountInfo) {
		*info = chain.NewAccountInfo(info.Balance, 0, nil)
	})
	for id := range c.storage {
		if id.address == addr {
			value := c.storage[id]
			delete(c.storage, id)
			c.undo = append(c.undo, func() { c.storage[id] = value })
		}
	}
	wasCleared := c.cleared[addr]
	c.cleared[addr] = true
	c.undo = append(c.undo, func() { c.cleared[addr] = wasCleared })
}

// markCreated records that the given account was created by the current
// transaction, which is relevant for EIP-6780 self-destructs.
func (c *runContext) markCreated(addr chain.Address) {
	wasCreated := c.created[addr]
	c.created[addr] = true
	c.undo = append(c.undo, func() { c.created[addr] = wasCreated })
}

func (c *runContext) selfDestruct(addr chain.Address) {
	if !c.accountExists(addr) {
		return
	}
	wasDestructed := c.destructed[addr]
	c.destructed[addr] = true
	c.undo = append(c.undo, func() { c.destructed[addr] = wasDestructed })
	c.setBalance(addr, chain.Value{})
}

func (c *runContext) selfDestructIfCreated(addr chain.Address) {
	if c.created[addr] {
		c.selfDestruct(addr)
	}
}

func (c *runContext) hasSelfDestructed(addr chain.Address) bool {
	return c.destructed[addr]
}

// --- storage ---

func (c *runContext) getCommittedStorage(addr chain.Address, key chain.Key) chain.Word {
	if c.cleared[addr] {
		return chain.Word{}
	}
	id := slot{addr, key}
	if value, found := c.committed[id]; found {
		return value
	}
	value, err := c.reader.GetStorage(c.ctx, addr, key)
	if err != nil {
		c.fail(fmt.Errorf("failed to read slot %v of %v: %w", key, addr, err))
		return chain.Word{}
	}
	c.committed[id] = value
	return value
}

func (c *runContext) getStorage(addr chain.Address, key chain.Key) chain.Word {
	if value, found := c.storage[slot{addr, key}]; found {
		return value
	}
	return c.getCommittedStorage(addr, key)
}

func (c *runContext) setStorage(addr chain.Address, key chain.Key, value chain.Word) {
	id := slot{addr, key}
	original, found := c.storage[id]
	c.storage[id] = value
	c.undo = append(c.undo, func() {
		if found {
			c.storage[id] = original
		} else {
			delete(c.storage, id)
		}
	})
}

func (c *runContext) getTransientStorage(addr chain.Address, key chain.Key) chain.Word {
	return c.transient[slot{addr, key}]
}

func (c *runContext) setTransientStorage(addr chain.Address, key chain.Key, value chain.Word) {
	id := slot{addr, key}
	original := c.transient[id]
	c.transient[id] = value
	c.undo = append(c.undo, func() { c.transient[id] = original })
}

// --- access lists ---

func (c *runContext) isAddressWarm(addr chain.Address) bool {
	return c.warmAccounts[addr]
}

func (c *runContext) isSlotWarm(addr chain.Address, key chain.Key) (addressWarm, slotWarm bool) {
	return c.warmAccounts[addr], c.warmSlots[slot{addr, key}]
}

func (c *runContext) warmAddress(addr chain.Address) {
	if c.warmAccounts[addr] {
		return
	}
	c.warmAccounts[addr] = true
	c.undo = append(c.undo, func() { delete(c.warmAccounts, addr) })
}

func (c *runContext) warmSlot(addr chain.Address, key chain.Key) {
	c.warmAddress(addr)
	id := slot{addr, key}
	if c.warmSlots[id] {
		return
	}
	c.warmSlots[id] = true
	c.undo = append(c.undo, func() { delete(c.warmSlots, id) })
}

// --- logs and refunds ---

func (c *runContext) emitLog(log chain.Log) {
	size := len(c.logs)
	c.logs = append(c.logs, log)
	c.undo = append(c.undo, func() { c.logs = c.logs[:size] })
}

func (c *runContext) getLogs() []chain.Log {
	return slices.Clone(c.logs)
}

func (c *runContext) addRefund(gas uint64) {
	original := c.refund
	c.refund += gas
	c.undo = append(c.undo, func() { c.refund = original })
}

func (c *runContext) subRefund(gas uint64) {
	original := c.refund
	if gas > c.refund {
		panic(fmt.Sprintf("refund counter below zero (gas: %d > refund: %d)", gas, c.refund))
	}
	c.refund -= gas
	c.undo = append(c.undo, func() { c.refund = original })
}

// --- snapshots ---

func (c *runContext) snapshot() int {
	return len(c.undo)
}

func (c *runContext) restore(snapshot int) {
	for len(c.undo) > snapshot {
		c.undo[len(c.undo)-1]()
		c.undo = c.undo[:len(c.undo)-1]
	}
}
