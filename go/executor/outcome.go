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
	"errors"
	"fmt"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/core/vm"
)

// OutcomeKind distinguishes the ways an execution may end.
type OutcomeKind int

const (
	// Success indicates a call ending with STOP or RETURN.
	Success OutcomeKind = iota
	// Revert indicates a call ending with REVERT. All state changes are
	// rolled back and the output holds the revert data.
	Revert
	// Halt indicates an exceptional end of the call, such as running out of
	// gas or hitting an invalid instruction.
	Halt
)

func (k OutcomeKind) String() string {
	switch k {
	case Success:
		return "success"
	case Revert:
		return "revert"
	case Halt:
		return "halt"
	}
	return fmt.Sprintf("OutcomeKind(%d)", int(k))
}

// HaltReason names the cause of a Halt outcome.
type HaltReason string

const (
	HaltOutOfGas              HaltReason = "out of gas"
	HaltIntrinsicGas          HaltReason = "intrinsic gas too low"
	HaltCodeStoreOutOfGas     HaltReason = "contract creation code storage out of gas"
	HaltDepth                 HaltReason = "max call depth exceeded"
	HaltInsufficientBalance   HaltReason = "insufficient balance for transfer"
	HaltContractCollision     HaltReason = "contract address collision"
	HaltMaxCodeSizeExceeded   HaltReason = "max code size exceeded"
	HaltInvalidJump           HaltReason = "invalid jump destination"
	HaltWriteProtection       HaltReason = "write protection"
	HaltReturnDataOutOfBounds HaltReason = "return data out of bounds"
	HaltGasUintOverflow       HaltReason = "gas uint64 overflow"
	HaltInvalidCode           HaltReason = "invalid code"
	HaltStackOverflow         HaltReason = "stack overflow"
	HaltStackUnderflow        HaltReason = "stack underflow"
	HaltInvalidOpCode         HaltReason = "invalid opcode"
	HaltPrecompileFailure     HaltReason = "precompiled contract failed"
)

// Outcome summarizes the execution of a call.
type Outcome struct {
	Kind OutcomeKind
	// Output is the return data of a successful call or the revert data of a
	// reverted call. It is empty for halted calls.
	Output     chain.Data
	HaltReason HaltReason
	// GasUsed is the gas consumed by the call, including intrinsic costs and
	// after applying refunds.
	GasUsed   chain.Gas
	GasRefund chain.Gas
	// Logs lists the logs emitted by a successful call.
	Logs []chain.Log
}

func (o Outcome) String() string {
	switch o.Kind {
	case Success:
		return fmt.Sprintf("success(output: 0x%x, gas used: %d)", []byte(o.Output), o.GasUsed)
	case Revert:
		return fmt.Sprintf("revert(data: 0x%x, gas used: %d)", []byte(o.Output), o.GasUsed)
	case Halt:
		return fmt.Sprintf("halt(%s, gas used: %d)", o.HaltReason, o.GasUsed)
	}
	return o.Kind.String()
}

var haltReasons = []struct {
	err    error
	reason HaltReason
}{
	{vm.ErrOutOfGas, HaltOutOfGas},
	{vm.ErrCodeStoreOutOfGas, HaltCodeStoreOutOfGas},
	{vm.ErrDepth, HaltDepth},
	{vm.ErrInsufficientBalance, HaltInsufficientBalance},
	{vm.ErrContractAddressCollision, HaltContractCollision},
	{vm.ErrMaxCodeSizeExceeded, HaltMaxCodeSizeExceeded},
	{vm.ErrInvalidJump, HaltInvalidJump},
	{vm.ErrWriteProtection, HaltWriteProtection},
	{vm.ErrReturnDataOutOfBounds, HaltReturnDataOutOfBounds},
	{vm.ErrGasUintOverflow, HaltGasUintOverflow},
	{vm.ErrInvalidCode, HaltInvalidCode},
}

// classify maps the error reported by the EVM to an outcome kind. Errors
// not caused by the executed code are returned as internal errors.
func classify(err error) (OutcomeKind, HaltReason, error) {
	if err == nil {
		return Success, "", nil
	}
	if errors.Is(err, vm.ErrExecutionReverted) {
		return Revert, "", nil
	}
	for _, cur := range haltReasons {
		if errors.Is(err, cur.err) {
			return Halt, cur.reason, nil
		}
	}

	var stackOverflow *vm.ErrStackOverflow
	if errors.As(err, &stackOverflow) {
		return Halt, HaltStackOverflow, nil
	}
	var stackUnderflow *vm.ErrStackUnderflow
	if errors.As(err, &stackUnderflow) {
		return Halt, HaltStackUnderflow, nil
	}
	var invalidOpCode *vm.ErrInvalidOpCode
	if errors.As(err, &invalidOpCode) {
		return Halt, HaltInvalidOpCode, nil
	}

	return Halt, "", fmt.Errorf("internal EVM error: %w", err)
}
