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
	"github.com/ethereum/go-ethereum/core/vm"
)

// GetStaticOverheadExample provides a minimal contract returning the lowest
// four bytes of its argument. It measures the fixed costs of a simulation
// run, since the interpretation itself is negligible.
func GetStaticOverheadExample() Example {
	code := []byte{
		byte(vm.PUSH1), 4, // push size 4
		byte(vm.PUSH1), 32, // push offset 32
		byte(vm.PUSH1), 28, // push destOffset 28
		byte(vm.CALLDATACOPY), // copy 4 bytes at offset 32 from call data into memory at offset 28
		byte(vm.PUSH1), 32,    // push len 32
		byte(vm.PUSH1), 0, // push offset 0
		byte(vm.RETURN), // return 32 bytes at offset 0
	}

	return exampleSpec{
		Name:      "static_overhead",
		Code:      code,
		reference: staticOverhead,
	}.build()
}

func staticOverhead(x int) int {
	return x & 0xffffffff
}
