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

import "github.com/Fantom-foundation/Forksim/go/chain"

const (
	TxGas                     = 21_000
	TxDataNonZeroGasEIP2028   = 16
	TxDataZeroGasEIP2028      = 4
	TxAccessListAddressGas    = 2400
	TxAccessListStorageKeyGas = 1900

	// DefaultGasLimit is the gas limit of calls not specifying a limit.
	DefaultGasLimit chain.Gas = 30_000_000
)

// intrinsicGas computes the gas charged for a call before any code is
// executed.
func intrinsicGas(input chain.Data, accessList []chain.AccessTuple) chain.Gas {
	gas := chain.Gas(TxGas)

	if len(input) > 0 {
		nonZeroBytes := chain.Gas(0)
		for _, inputByte := range input {
			if inputByte != 0 {
				nonZeroBytes++
			}
		}
		zeroBytes := chain.Gas(len(input)) - nonZeroBytes
		gas += zeroBytes * TxDataZeroGasEIP2028
		gas += nonZeroBytes * TxDataNonZeroGasEIP2028
	}

	gas += chain.Gas(len(accessList)) * TxAccessListAddressGas
	for _, accessTuple := range accessList {
		gas += chain.Gas(len(accessTuple.Keys)) * TxAccessListStorageKeyGas
	}
	return gas
}

// refundCap limits the refund granted for a call consuming the given amount
// of gas. EIP-3529 lowered the cap from a half to a fifth starting with
// London.
func refundCap(revision chain.Revision, gasUsed chain.Gas) chain.Gas {
	if revision >= chain.R10_London {
		return gasUsed / 5
	}
	return gasUsed / 2
}
