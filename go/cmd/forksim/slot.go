// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package main

import (
	"fmt"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/state"
	"github.com/urfave/cli/v2"
)

var SlotCmd = cli.Command{
	Action: doSlot,
	Name:   "slot",
	Usage:  "Read storage slots of a contract and optionally unpack their values",
	Flags: append([]cli.Flag{
		TargetFlag,
		RequiredSlotFlag,
		LayoutFlag,
	}, rpcFlags...),
}

func doSlot(context *cli.Context) error {
	target, err := TargetFlag.Fetch(context)
	if err != nil {
		return err
	}
	keys, err := RequiredSlotFlag.Fetch(context)
	if err != nil {
		return err
	}
	layout, err := LayoutFlag.Fetch(context)
	if err != nil {
		return err
	}

	client, err := dial(context)
	if err != nil {
		return err
	}
	defer client.Close()

	view := state.NewView(client)
	if err := view.Prefetch(context.Context, nil, map[chain.Address][]chain.Key{target: keys}); err != nil {
		return err
	}
	view.Freeze()

	out := context.App.Writer
	for _, key := range keys {
		word, err := view.GetStorage(context.Context, target, key)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%v: %v\n", key, word)
		for i, value := range layout.Unpack(word) {
			fmt.Fprintf(out, "  %s (%d bits): %v\n", layout[i].Name, layout[i].Bits, value.Dec())
		}
	}
	return nil
}
