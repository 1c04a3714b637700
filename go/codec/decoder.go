// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package codec

import (
	"fmt"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/executor"
	"github.com/ethereum/go-ethereum/accounts/abi"
)

// DecodeError reports return data not matching the declared results of a
// function. The raw data is retained for diagnosis.
type DecodeError struct {
	Data chain.Data
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("failed to decode output 0x%x: %v", []byte(e.Data), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// RevertedError reports a call ending in a revert. Reason is set if the
// revert data holds a Solidity error message or panic code.
type RevertedError struct {
	Data   chain.Data
	Reason string
}

func (e *RevertedError) Error() string {
	if e.Reason != "" {
		return "execution reverted: " + e.Reason
	}
	if len(e.Data) > 0 {
		return fmt.Sprintf("execution reverted with data 0x%x", []byte(e.Data))
	}
	return "execution reverted"
}

// HaltedError reports a call ending in an exceptional halt.
type HaltedError struct {
	Reason executor.HaltReason
}

func (e *HaltedError) Error() string {
	return fmt.Sprintf("execution halted: %s", e.Reason)
}

// Decode interprets the outcome of a call to the function with the given
// signature. Only successful outcomes carry values; reverts and halts are
// reported as *RevertedError and *HaltedError respectively.
func Decode(c Codec, outcome executor.Outcome, sig Signature) ([]any, error) {
	switch outcome.Kind {
	case executor.Success:
		values, err := c.DecodeOutput(sig, outcome.Output)
		if err != nil {
			return nil, &DecodeError{Data: outcome.Output, Err: err}
		}
		return values, nil
	case executor.Revert:
		return nil, NewRevertedError(outcome.Output)
	case executor.Halt:
		return nil, &HaltedError{Reason: outcome.HaltReason}
	}
	return nil, fmt.Errorf("unknown outcome kind %v", outcome.Kind)
}

// NewRevertedError builds the error of a revert with the given data.
func NewRevertedError(data chain.Data) *RevertedError {
	reason, err := abi.UnpackRevert(data)
	if err != nil {
		reason = ""
	}
	return &RevertedError{Data: data, Reason: reason}
}
