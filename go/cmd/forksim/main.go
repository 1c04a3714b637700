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
	"os"

	"github.com/Fantom-foundation/Forksim/go/remote"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:      "forksim",
		Usage:     "Simulate contract calls on top of the state of a remote chain",
		Copyright: "(c) 2024 Fantom Foundation",
		Flags: []cli.Flag{
			VerbosityFlag,
		},
		Before: setupLogging,
		Commands: []*cli.Command{
			&CallCmd,
			&SlotCmd,
		},
	}
}

func setupLogging(context *cli.Context) error {
	level := log.FromLegacyLevel(VerbosityFlag.Fetch(context))
	log.SetDefault(log.NewLogger(log.NewTerminalHandlerWithLevel(context.App.ErrWriter, level, false)))
	return nil
}

var rpcFlags = []cli.Flag{
	RpcFlag,
	BlockFlag,
	RetriesFlag,
	TimeoutFlag,
}

// dial connects to the endpoint configured by the rpcFlags.
func dial(context *cli.Context) (*remote.Client, error) {
	url, err := RpcFlag.Fetch(context)
	if err != nil {
		return nil, err
	}
	block, err := BlockFlag.Fetch(context)
	if err != nil {
		return nil, err
	}
	client, err := remote.Dial(context.Context, remote.Config{
		URL:     url,
		Block:   block,
		Retries: RetriesFlag.Fetch(context),
		Timeout: TimeoutFlag.Fetch(context),
	})
	if err != nil {
		return nil, err
	}
	log.Info("Connected to chain", "chain", client.ChainID(), "block", client.Block())
	return client, nil
}
