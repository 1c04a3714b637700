// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package examples provides contracts with a single (int)->int entry point.
// They are installed through code overrides, so they can be simulated on top
// of any chain state, and serve as end-to-end tests and benchmarks of the
// simulation pipeline.
package examples

import (
	"context"
	"fmt"
	"math/big"
	"strconv"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/codec"
	"github.com/Fantom-foundation/Forksim/go/simulation"
	"github.com/Fantom-foundation/Forksim/go/state"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/exp/maps"
)

// Address is the account example contracts are installed at.
var Address = chain.Address{0xe0}

// Example describes a contract and an entry point with an (int)->int
// signature.
type Example struct {
	Name      string
	Code      chain.Code
	Signature codec.Signature
	// State is the chain state the example expects to read. It is nil for
	// examples not accessing storage.
	State     state.WorldState
	reference func(int) int // computes the same function in Go
}

type exampleSpec struct {
	Name      string
	Code      chain.Code
	Signature string
	reference func(int) int
}

func (s exampleSpec) build() Example {
	signature := s.Signature
	if signature == "" {
		signature = s.Name + "(uint256)(uint256)"
	}
	return Example{
		Name:      s.Name,
		Code:      s.Code,
		Signature: codec.MustParseSignature(signature),
		reference: s.reference,
	}
}

// All lists all examples.
func All() []Example {
	return []Example{
		GetArithmeticExample(),
		GetSha3Example(),
		GetGasBurnerExample(),
		GetStaticOverheadExample(),
		GetJumpdestAnalysisExample(),
		GetStopAnalysisExample(),
		GetPush1AnalysisExample(),
		GetPush32AnalysisExample(),
		GetReservesExample(),
	}
}

type Result struct {
	Result  int
	UsedGas chain.Gas
}

// Request creates a simulation request calling the example with the given
// argument. The code of the example is injected as an override, while the
// storage slots listed in the example state are prefetched from the
// simulated chain.
func (e *Example) Request(argument int) (simulation.Request, error) {
	args, err := codec.ParseArguments(e.Signature.Inputs, []string{strconv.Itoa(argument)})
	if err != nil {
		return simulation.Request{}, err
	}
	code := hexutil.Bytes(e.Code)
	var slots map[chain.Address][]chain.Key
	for addr, account := range e.State {
		if slots == nil {
			slots = map[chain.Address][]chain.Key{}
		}
		slots[addr] = maps.Keys(account.Storage)
	}
	return simulation.Request{
		Target:    Address,
		Signature: e.Signature,
		Args:      args,
		Overrides: state.Overrides{Address: {Code: &code}},
		Slots:     slots,
	}, nil
}

// RunOn runs this example on the given simulator, using the given argument.
func (e *Example) RunOn(ctx context.Context, simulator *simulation.Simulator, argument int) (Result, error) {
	request, err := e.Request(argument)
	if err != nil {
		return Result{}, err
	}
	res, err := simulator.Run(ctx, request)
	if err != nil {
		return Result{}, err
	}
	values, err := res.Values()
	if err != nil {
		return Result{}, err
	}
	result, err := toInt(values[0])
	if err != nil {
		return Result{}, err
	}
	return Result{
		Result:  result,
		UsedGas: res.Outcome.GasUsed,
	}, nil
}

// RunReference runs the reference function of this example to produce the
// expected result.
func (e *Example) RunReference(argument int) int {
	return e.reference(argument)
}

func toInt(value any) (int, error) {
	switch v := value.(type) {
	case *big.Int:
		if !v.IsInt64() {
			return 0, fmt.Errorf("result %v exceeds int64", v)
		}
		return int(v.Int64()), nil
	case uint32:
		return int(v), nil
	}
	return 0, fmt.Errorf("unsupported result type %T", value)
}
