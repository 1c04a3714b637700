// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package examples

import (
	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/codec"
	"github.com/Fantom-foundation/Forksim/go/state"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// reservesSlot is the storage slot a Uniswap V2 pair keeps its packed
// reserves in.
var reservesSlot = chain.NewKey(8)

// GetReservesExample provides a contract returning field x of the packed
// reserves of a Uniswap V2 pair. Unlike the other examples, it reads state:
// the reserves are served by the forked chain, while only the code is
// injected.
func GetReservesExample() Example {
	code := []byte{
		// Compute the shift of the requested field.
		byte(vm.PUSH1), 4,
		byte(vm.CALLDATALOAD),
		byte(vm.PUSH1), 112,
		byte(vm.MUL),

		// Load the packed reserves and extract the field.
		byte(vm.PUSH1), 8,
		byte(vm.SLOAD),
		byte(vm.SWAP1),
		byte(vm.SHR),
		byte(vm.PUSH14),
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		byte(vm.AND),

		// Return the result.
		byte(vm.PUSH1), 0,
		byte(vm.MSTORE),
		byte(vm.PUSH1), 32,
		byte(vm.PUSH1), 0,
		byte(vm.RETURN),
	}

	reserves, err := codec.UniswapV2Reserves.Pack(
		uint256.NewInt(1_500_000),
		uint256.NewInt(42_000_000_000),
		uint256.NewInt(1690986779),
	)
	if err != nil {
		panic(err)
	}

	example := exampleSpec{
		Name:      "reserves",
		Code:      code,
		Signature: "getReserve(uint256)(uint256)",
		reference: func(x int) int {
			fields := codec.UniswapV2Reserves.Unpack(reserves)
			if x < 0 || x >= len(fields) {
				return 0
			}
			return int(fields[x].Uint64())
		},
	}.build()
	example.State = state.WorldState{
		Address: {
			Balance: chain.NewValue(1),
			Storage: state.Storage{reservesSlot: reserves},
		},
	}
	return example
}
