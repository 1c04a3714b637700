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
	"math/big"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/params"
)

// makeChainConfig returns a chain config for the given chain ID in which all
// forks up to the target revision are active from genesis on. Later forks
// are disabled.
func makeChainConfig(chainID *big.Int, revision chain.Revision) *params.ChainConfig {
	genesis := big.NewInt(0)
	genesisTime := uint64(0)

	config := &params.ChainConfig{
		ChainID:             chainID,
		HomesteadBlock:      genesis,
		EIP150Block:         genesis,
		EIP155Block:         genesis,
		EIP158Block:         genesis,
		ByzantiumBlock:      genesis,
		ConstantinopleBlock: genesis,
		PetersburgBlock:     genesis,
		IstanbulBlock:       genesis,
		MuirGlacierBlock:    genesis,
		Ethash:              new(params.EthashConfig),
	}
	if revision >= chain.R09_Berlin {
		config.BerlinBlock = genesis
	}
	if revision >= chain.R10_London {
		config.LondonBlock = genesis
	}
	if revision >= chain.R11_Paris {
		config.MergeNetsplitBlock = genesis
		config.TerminalTotalDifficulty = genesis
	}
	if revision >= chain.R12_Shanghai {
		config.ShanghaiTime = &genesisTime
	}
	if revision >= chain.R13_Cancun {
		config.CancunTime = &genesisTime
	}
	return config
}
