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
	"flag"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/codec"
	"github.com/Fantom-foundation/Forksim/go/state"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/urfave/cli/v2"
)

type rpcFlagType struct {
	cli.StringFlag
}

var RpcFlag = &rpcFlagType{
	cli.StringFlag{
		Name:    "rpc",
		Usage:   "HTTP(S) URL of the JSON-RPC endpoint to read state from",
		EnvVars: []string{"FORKSIM_RPC", "HTTP_URL"},
	},
}

// Apply registers the flag for a new run. A value picked up from the
// environment by an earlier run is dropped first, since the flag is shared
// by all apps of the process.
func (f *rpcFlagType) Apply(set *flag.FlagSet) error {
	f.Value = ""
	f.HasBeenSet = false
	return f.StringFlag.Apply(set)
}

func (f *rpcFlagType) Fetch(context *cli.Context) (string, error) {
	url := context.String(f.Name)
	if url == "" {
		return "", fmt.Errorf("%w: no RPC endpoint, use --%s or set %s", chain.ErrConfiguration, f.Name, strings.Join(f.EnvVars, "/"))
	}
	return url, nil
}

type addressFlagType struct {
	cli.StringFlag
}

var TargetFlag = &addressFlagType{
	cli.StringFlag{
		Name:     "target",
		Aliases:  []string{"t"},
		Usage:    "address of the contract to call",
		Required: true,
	},
}

var CallerFlag = &addressFlagType{
	cli.StringFlag{
		Name:  "caller",
		Usage: "address the call is sent from",
		Value: "0x0000000000000000000000000000000000000000",
	},
}

func (f *addressFlagType) Fetch(context *cli.Context) (chain.Address, error) {
	return parseAddress(f.Name, context.String(f.Name))
}

func parseAddress(name, value string) (chain.Address, error) {
	if !common.IsHexAddress(value) {
		return chain.Address{}, fmt.Errorf("%w: invalid --%s address %q", chain.ErrConfiguration, name, value)
	}
	return chain.Address(common.HexToAddress(value)), nil
}

type sigFlagType struct {
	cli.StringFlag
}

var SigFlag = &sigFlagType{
	cli.StringFlag{
		Name:     "sig",
		Aliases:  []string{"s"},
		Usage:    "function to call, e.g. \"getReserves()(uint112,uint112,uint32)\", or a method name if --abi is given",
		Required: true,
	},
}

type abiFlagType struct {
	cli.PathFlag
}

var AbiFlag = &abiFlagType{
	cli.PathFlag{
		Name:      "abi",
		Usage:     "JSON ABI file describing the target contract",
		TakesFile: true,
	},
}

// Fetch resolves the signature given by --sig, using the ABI file given by
// --abi if present.
func (f *sigFlagType) Fetch(context *cli.Context, c *codec.AbiCodec) (codec.Signature, error) {
	sig := context.String(f.Name)
	if path := context.Path(AbiFlag.Name); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return codec.Signature{}, err
		}
		res, err := codec.SignatureFromABI(string(data), sig)
		if err != nil {
			return codec.Signature{}, fmt.Errorf("%w: %w", chain.ErrConfiguration, err)
		}
		return res, nil
	}
	res, err := c.Parse(sig)
	if err != nil {
		return codec.Signature{}, fmt.Errorf("%w: %w", chain.ErrConfiguration, err)
	}
	return res, nil
}

type argsFlagType struct {
	cli.StringFlag
}

var ArgsFlag = &argsFlagType{
	cli.StringFlag{
		Name:    "args",
		Aliases: []string{"a"},
		Usage:   "comma separated call arguments, arrays as [a,b] and tuples as (a,b)",
	},
}

func (f *argsFlagType) Fetch(context *cli.Context, sig codec.Signature) ([]any, error) {
	res, err := codec.ParseArguments(sig.Inputs, codec.SplitArguments(context.String(f.Name)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrConfiguration, err)
	}
	return res, nil
}

type valueFlagType struct {
	cli.StringFlag
}

var ValueFlag = &valueFlagType{
	cli.StringFlag{
		Name:  "value",
		Usage: "amount of wei sent with the call, in decimal or 0x-prefixed hex",
		Value: "0",
	},
}

func (f *valueFlagType) Fetch(context *cli.Context) (chain.Value, error) {
	value, ok := new(big.Int).SetString(context.String(f.Name), 0)
	if !ok || value.Sign() < 0 {
		return chain.Value{}, fmt.Errorf("%w: invalid --%s %q", chain.ErrConfiguration, f.Name, context.String(f.Name))
	}
	res, overflow := uint256.FromBig(value)
	if overflow {
		return chain.Value{}, fmt.Errorf("%w: --%s exceeds 256 bit", chain.ErrConfiguration, f.Name)
	}
	return chain.ValueFromUint256(res), nil
}

type blockFlagType struct {
	cli.StringFlag
}

var BlockFlag = &blockFlagType{
	cli.StringFlag{
		Name:    "block",
		Aliases: []string{"b"},
		Usage:   "number of the block to read state from, or \"latest\"",
		Value:   "latest",
	},
}

// Fetch returns the requested block number, or nil for the latest block.
func (f *blockFlagType) Fetch(context *cli.Context) (*big.Int, error) {
	value := context.String(f.Name)
	if value == "" || value == "latest" {
		return nil, nil
	}
	res, ok := new(big.Int).SetString(value, 0)
	if !ok || res.Sign() < 0 {
		return nil, fmt.Errorf("%w: invalid --%s %q", chain.ErrConfiguration, f.Name, value)
	}
	return res, nil
}

type slotFlagType struct {
	cli.StringSliceFlag
}

var SlotFlag = &slotFlagType{
	cli.StringSliceFlag{
		Name:  "slot",
		Usage: "storage slot of the target to fetch before the execution, as index or 32-byte hex key (may be repeated)",
	},
}

var RequiredSlotFlag = &slotFlagType{
	cli.StringSliceFlag{
		Name:     "slot",
		Usage:    "storage slot to read, as index or 32-byte hex key (may be repeated)",
		Required: true,
	},
}

func (f *slotFlagType) Fetch(context *cli.Context) ([]chain.Key, error) {
	var res []chain.Key
	for _, value := range context.StringSlice(f.Name) {
		key, err := parseKey(value)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid --%s: %w", chain.ErrConfiguration, f.Name, err)
		}
		res = append(res, key)
	}
	return res, nil
}

// parseKey accepts slot indexes in decimal or hex, as well as full 32-byte
// keys such as the slots of mapping entries.
func parseKey(value string) (chain.Key, error) {
	index, ok := new(big.Int).SetString(value, 0)
	if !ok || index.Sign() < 0 {
		return chain.Key{}, fmt.Errorf("invalid slot %q", value)
	}
	res, overflow := uint256.FromBig(index)
	if overflow {
		return chain.Key{}, fmt.Errorf("slot %q exceeds 256 bit", value)
	}
	return chain.KeyFromUint256(res), nil
}

type overridesFlagType struct {
	cli.PathFlag
}

var OverridesFlag = &overridesFlagType{
	cli.PathFlag{
		Name:      "overrides",
		Usage:     "JSON file with state overrides in eth_call format",
		TakesFile: true,
	},
}

func (f *overridesFlagType) Fetch(context *cli.Context) (state.Overrides, error) {
	path := context.Path(f.Name)
	if path == "" {
		return nil, nil
	}
	return state.LoadOverrides(path)
}

type boolFlagType struct {
	cli.BoolFlag
}

var LazyFlag = &boolFlagType{
	cli.BoolFlag{
		Name:  "lazy",
		Usage: "fetch state read by the call on demand instead of treating it as empty",
	},
}

var SkipIntrinsicGasFlag = &boolFlagType{
	cli.BoolFlag{
		Name:  "skip-intrinsic-gas",
		Usage: "make the full gas limit available to the called code",
	},
}

func (f *boolFlagType) Fetch(context *cli.Context) bool {
	return context.Bool(f.Name)
}

type gasFlagType struct {
	cli.Uint64Flag
}

var GasFlag = &gasFlagType{
	cli.Uint64Flag{
		Name:  "gas",
		Usage: "gas limit of the call, 0 for the default",
	},
}

func (f *gasFlagType) Fetch(context *cli.Context) (chain.Gas, error) {
	gas := context.Uint64(f.Name)
	if gas > uint64(1)<<62 {
		return 0, fmt.Errorf("%w: --%s too large", chain.ErrConfiguration, f.Name)
	}
	return chain.Gas(gas), nil
}

type revisionFlagType struct {
	cli.StringFlag
}

var RevisionFlag = &revisionFlagType{
	cli.StringFlag{
		Name:  "revision",
		Usage: fmt.Sprintf("EVM revision to execute with, one of %v", chain.GetAllKnownRevisions()),
		Value: chain.NewestRevision.String(),
	},
}

func (f *revisionFlagType) Fetch(context *cli.Context) (chain.Revision, error) {
	res, err := chain.ParseRevision(context.String(f.Name))
	if err != nil {
		return 0, fmt.Errorf("%w: %w", chain.ErrConfiguration, err)
	}
	return res, nil
}

type intFlagType struct {
	cli.IntFlag
}

var RetriesFlag = &intFlagType{
	cli.IntFlag{
		Name:  "retries",
		Usage: "number of times a failed RPC request is repeated",
	},
}

var JobsFlag = &intFlagType{
	cli.IntFlag{
		Name:    "jobs",
		Aliases: []string{"j"},
		Usage:   "maximum number of concurrent RPC requests",
		Value:   state.DefaultParallelism,
	},
}

var VerbosityFlag = &intFlagType{
	cli.IntFlag{
		Name:  "verbosity",
		Usage: "log level, 0=crit, 1=error, 2=warn, 3=info, 4=debug, 5=trace",
		Value: 3,
	},
}

func (f *intFlagType) Fetch(context *cli.Context) int {
	return context.Int(f.Name)
}

type timeoutFlagType struct {
	cli.DurationFlag
}

var TimeoutFlag = &timeoutFlagType{
	cli.DurationFlag{
		Name:  "timeout",
		Usage: "limit for individual RPC requests, 0 for none",
	},
}

type layoutFlagType struct {
	cli.StringFlag
}

var LayoutFlag = &layoutFlagType{
	cli.StringFlag{
		Name:  "layout",
		Usage: "widths in bits of values packed into the slot, starting at the least significant bit, e.g. 112,112,32",
	},
}

// Fetch returns the requested layout, or nil if none was given.
func (f *layoutFlagType) Fetch(context *cli.Context) (codec.Layout, error) {
	value := context.String(f.Name)
	if value == "" {
		return nil, nil
	}
	res, err := codec.ParseLayout(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", chain.ErrConfiguration, err)
	}
	return res, nil
}

func (f *timeoutFlagType) Fetch(context *cli.Context) time.Duration {
	return context.Duration(f.Name)
}
