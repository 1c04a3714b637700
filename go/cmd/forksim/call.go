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
	"io"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/codec"
	"github.com/Fantom-foundation/Forksim/go/executor"
	"github.com/Fantom-foundation/Forksim/go/simulation"
	"github.com/dsnet/golib/unitconv"
	"github.com/urfave/cli/v2"
)

var CallCmd = cli.Command{
	Action: doCall,
	Name:   "call",
	Usage:  "Simulate a call of a contract function and print its results",
	Flags: append([]cli.Flag{
		TargetFlag,
		SigFlag,
		AbiFlag,
		ArgsFlag,
		CallerFlag,
		ValueFlag,
		SlotFlag,
		OverridesFlag,
		LazyFlag,
		GasFlag,
		SkipIntrinsicGasFlag,
		RevisionFlag,
		JobsFlag,
	}, rpcFlags...),
}

func doCall(context *cli.Context) error {
	abiCodec, err := codec.NewAbiCodec(codec.DefaultSignatureCacheSize)
	if err != nil {
		return err
	}
	request, err := parseCallRequest(context, abiCodec)
	if err != nil {
		return err
	}
	revision, err := RevisionFlag.Fetch(context)
	if err != nil {
		return err
	}

	client, err := dial(context)
	if err != nil {
		return err
	}
	defer client.Close()

	block := client.BlockParameters()
	block.Revision = revision
	simulator := simulation.New(client,
		simulation.WithCodec(abiCodec),
		simulation.WithBlock(block),
		simulation.WithParallelism(JobsFlag.Fetch(context)),
		simulation.WithExecutorConfig(executor.Config{
			SkipIntrinsicGas: SkipIntrinsicGasFlag.Fetch(context),
		}),
	)

	result, err := simulator.Run(context.Context, request)
	if err != nil {
		return err
	}
	return printResult(context.App.Writer, request.Signature, result)
}

func parseCallRequest(context *cli.Context, abiCodec *codec.AbiCodec) (simulation.Request, error) {
	target, err := TargetFlag.Fetch(context)
	if err != nil {
		return simulation.Request{}, err
	}
	caller, err := CallerFlag.Fetch(context)
	if err != nil {
		return simulation.Request{}, err
	}
	sig, err := SigFlag.Fetch(context, abiCodec)
	if err != nil {
		return simulation.Request{}, err
	}
	args, err := ArgsFlag.Fetch(context, sig)
	if err != nil {
		return simulation.Request{}, err
	}
	value, err := ValueFlag.Fetch(context)
	if err != nil {
		return simulation.Request{}, err
	}
	slots, err := SlotFlag.Fetch(context)
	if err != nil {
		return simulation.Request{}, err
	}
	overrides, err := OverridesFlag.Fetch(context)
	if err != nil {
		return simulation.Request{}, err
	}
	gas, err := GasFlag.Fetch(context)
	if err != nil {
		return simulation.Request{}, err
	}

	request := simulation.Request{
		Caller:    caller,
		Target:    target,
		Signature: sig,
		Args:      args,
		Value:     value,
		GasLimit:  gas,
		Overrides: overrides,
		LazyFetch: LazyFlag.Fetch(context),
	}
	if len(slots) > 0 {
		request.Slots = map[chain.Address][]chain.Key{target: slots}
	}
	return request, nil
}

func printResult(out io.Writer, sig codec.Signature, result simulation.Result) error {
	outcome := result.Outcome
	fmt.Fprintf(out, "outcome:  %v\n", outcome.Kind)
	fmt.Fprintf(out, "gas used: %sgas (refund %d)\n",
		unitconv.FormatPrefix(float64(outcome.GasUsed), unitconv.SI, 2), outcome.GasRefund)
	fmt.Fprintf(out, "fetched:  %d accounts, %d slots\n", result.Stats.AccountFetches, result.Stats.StorageFetches)

	values, err := result.Values()
	if err != nil {
		return err
	}
	if values == nil && outcome.Kind == executor.Success && len(sig.Outputs) == 0 {
		fmt.Fprintf(out, "output:   0x%x\n", []byte(outcome.Output))
	}
	for i, value := range values {
		output := sig.Outputs[i]
		name := output.Name
		if name == "" {
			name = fmt.Sprintf("[%d]", i)
		}
		fmt.Fprintf(out, "%s (%s): %s\n", name, output.Type.String(), codec.FormatValue(value))
	}
	for _, entry := range outcome.Logs {
		fmt.Fprintf(out, "log %v: topics %v data 0x%x\n", entry.Address, entry.Topics, []byte(entry.Data))
	}
	return nil
}
