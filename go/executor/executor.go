// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package executor runs a single message call on the go-ethereum EVM against
// a read-only chain.StateReader. All state modifications of the call are kept
// in a transaction-local overlay and discarded once the call completed.
package executor

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/tracing"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
)

// Config customizes an Executor.
type Config struct {
	// GasLimit is used for calls not specifying a gas limit. If zero,
	// DefaultGasLimit is used.
	GasLimit chain.Gas
	// SkipIntrinsicGas disables charging the intrinsic gas of a transaction,
	// making the full gas limit available to the executed code.
	SkipIntrinsicGas bool
}

// Environment describes the call to be executed. Unset fields default to a
// zero caller, a zero value, and a zero gas price.
type Environment struct {
	Caller     chain.Address
	Target     chain.Address
	Input      chain.Data
	Value      chain.Value
	GasLimit   chain.Gas
	GasPrice   chain.Value
	AccessList []chain.AccessTuple
	Block      chain.BlockParameters
}

// DefaultBlockParameters describes a block of a chain with ID 1 at the
// newest supported revision.
func DefaultBlockParameters() chain.BlockParameters {
	return chain.BlockParameters{
		ChainID:     chain.WordFromUint256(uint256.NewInt(1)),
		BlockNumber: 1,
		GasLimit:    DefaultGasLimit,
		BaseFee:     chain.Value{},
		BlobBaseFee: chain.NewValue(1),
		Revision:    chain.NewestRevision,
	}
}

// Executor runs single calls. It holds no state between calls and may be
// used concurrently.
type Executor struct {
	config Config
}

func New(config Config) *Executor {
	if config.GasLimit <= 0 {
		config.GasLimit = DefaultGasLimit
	}
	return &Executor{config: config}
}

// Execute runs the call described by the environment against the given
// state. Reverted and halted executions are reported through the outcome. An
// error is returned if no state is provided, if the state could not be read,
// or if the EVM failed for reasons not caused by the executed code.
func (e *Executor) Execute(ctx context.Context, env Environment, state chain.StateReader) (Outcome, error) {
	if state == nil {
		return Outcome{}, fmt.Errorf("%w: no state bound to executor", chain.ErrConfiguration)
	}
	revision := env.Block.Revision
	if revision < chain.R07_Istanbul || revision > chain.NewestRevision {
		return Outcome{}, fmt.Errorf("%w: unsupported revision %v", chain.ErrConfiguration, revision)
	}

	gasLimit := env.GasLimit
	if gasLimit <= 0 {
		gasLimit = e.config.GasLimit
	}
	gas := gasLimit
	if !e.config.SkipIntrinsicGas {
		intrinsic := intrinsicGas(env.Input, env.AccessList)
		if gas < intrinsic {
			return Outcome{Kind: Halt, HaltReason: HaltIntrinsicGas, GasUsed: gasLimit}, nil
		}
		gas -= intrinsic
	}

	txContext := newRunContext(ctx, state)
	stateDb := &stateDbAdapter{context: txContext}
	evm := newEVM(env, stateDb)

	rules := evm.ChainConfig().Rules(evm.Context.BlockNumber, evm.Context.Random != nil, evm.Context.Time)
	precompiles := vm.ActivePrecompiles(rules)
	target := common.Address(env.Target)
	stateDb.Prepare(rules, common.Address(env.Caller), evm.Context.Coinbase, &target, precompiles, toAccessList(env.AccessList))

	output, gasLeft, err := evm.Call(
		vm.AccountRef(common.Address(env.Caller)),
		target,
		env.Input,
		uint64(gas),
		env.Value.ToUint256(),
	)
	if failure := txContext.failure(); failure != nil {
		return Outcome{}, failure
	}

	kind, reason, err := classify(err)
	if err != nil {
		if !slices.Contains(precompiles, target) {
			return Outcome{}, err
		}
		reason = HaltPrecompileFailure
	}

	gasUsed := gasLimit - chain.Gas(gasLeft)
	refund := min(chain.Gas(txContext.refund), refundCap(revision, gasUsed))
	gasUsed -= refund

	res := Outcome{
		Kind:       kind,
		HaltReason: reason,
		GasUsed:    gasUsed,
		GasRefund:  refund,
	}
	switch kind {
	case Success:
		res.Output = chain.Data(output)
		res.Logs = txContext.getLogs()
	case Revert:
		res.Output = chain.Data(output)
	}

	log.Debug("Executed call", "caller", env.Caller, "target", env.Target, "outcome", kind, "gas", gasUsed, "refund", refund)
	return res, nil
}

func newEVM(env Environment, stateDb vm.StateDB) *vm.EVM {
	block := env.Block
	chainConfig := makeChainConfig(block.ChainID.ToUint256().ToBig(), block.Revision)

	blockCtx := vm.BlockContext{
		CanTransfer: canTransfer,
		Transfer:    transfer,
		GetHash:     func(uint64) common.Hash { return common.Hash{} },
		Coinbase:    common.Address(block.Coinbase),
		GasLimit:    uint64(max(block.GasLimit, 0)),
		BlockNumber: big.NewInt(max(block.BlockNumber, 0)),
		Time:        uint64(max(block.Timestamp, 0)),
		Difficulty:  big.NewInt(0),
		BaseFee:     block.BaseFee.ToBig(),
		BlobBaseFee: block.BlobBaseFee.ToBig(),
	}
	if block.Revision >= chain.R11_Paris {
		// A non-nil random value enables post-merge rules.
		random := common.Hash(block.PrevRandao)
		blockCtx.Random = &random
	}

	txCtx := vm.TxContext{
		Origin:   common.Address(env.Caller),
		GasPrice: env.GasPrice.ToBig(),
	}

	return vm.NewEVM(blockCtx, txCtx, stateDb, chainConfig, vm.Config{NoBaseFee: true})
}

func transfer(stateDB vm.StateDB, sender, recipient common.Address, amount *uint256.Int) {
	stateDB.SubBalance(sender, amount, tracing.BalanceChangeTransfer)
	stateDB.AddBalance(recipient, amount, tracing.BalanceChangeTransfer)
}

func canTransfer(stateDB vm.StateDB, addr common.Address, amount *uint256.Int) bool {
	return stateDB.GetBalance(addr).Cmp(amount) >= 0
}

func toAccessList(tuples []chain.AccessTuple) types.AccessList {
	res := make(types.AccessList, 0, len(tuples))
	for _, tuple := range tuples {
		keys := make([]common.Hash, 0, len(tuple.Keys))
		for _, key := range tuple.Keys {
			keys = append(keys, common.Hash(key))
		}
		res = append(res, types.AccessTuple{
			Address:     common.Address(tuple.Address),
			StorageKeys: keys,
		})
	}
	return res
}
