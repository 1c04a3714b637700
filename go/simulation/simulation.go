// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package simulation runs single contract calls against the state of a
// remote chain. Each run seeds a fresh state view, executes the call on top
// of it, and decodes the result.
package simulation

import (
	"context"
	"fmt"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/Fantom-foundation/Forksim/go/codec"
	"github.com/Fantom-foundation/Forksim/go/executor"
	"github.com/Fantom-foundation/Forksim/go/state"
	"github.com/ethereum/go-ethereum/log"
)

// Stage names a step of a simulation run.
type Stage string

const (
	StageSeed    Stage = "seed"
	StageExecute Stage = "execute"
	StageDecode  Stage = "decode"
)

// StageError reports the failure of a simulation run and the stage it
// failed in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s stage failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Request describes a single call to simulate.
type Request struct {
	Caller chain.Address
	Target chain.Address
	// Signature is used to encode the call data from Args and to decode the
	// result. It may be left empty if Input is set.
	Signature codec.Signature
	Args      []any
	// Input, if not nil, is used as call data instead of encoding Args.
	// Without a Signature the output is not decoded.
	Input    chain.Data
	Value    chain.Value
	GasLimit chain.Gas
	// Block overrides the block parameters configured for the simulator.
	Block *chain.BlockParameters

	// Overrides are injected into the state before anything is fetched.
	Overrides state.Overrides
	// Accounts and Slots are fetched in addition to the caller and the
	// target before the execution starts.
	Accounts []chain.Address
	Slots    map[chain.Address][]chain.Key
	// LazyFetch permits the execution to fetch state it reads but which was
	// not fetched in advance. Otherwise such state reads as empty.
	LazyFetch bool
}

// Result summarizes a completed simulation run.
type Result struct {
	Outcome executor.Outcome
	// Stats counts the remote requests issued during the run.
	Stats state.Stats
	// State holds the accounts and storage slots resolved during the run.
	// Modifications made by the call are not included.
	State state.WorldState

	values []any
	err    error
}

// Values returns the decoded results of a successful call. For reverted or
// halted calls a *codec.RevertedError or *codec.HaltedError is returned.
func (r Result) Values() ([]any, error) {
	return r.values, r.err
}

// Simulator runs simulations against a single state source. It keeps no
// state between runs and may be used concurrently if its source supports
// concurrent requests.
type Simulator struct {
	source      chain.StateSource
	codec       codec.Codec
	config      executor.Config
	block       chain.BlockParameters
	parallelism int
}

// Option customizes a Simulator.
type Option func(*Simulator)

// WithCodec replaces the default ABI codec.
func WithCodec(c codec.Codec) Option {
	return func(s *Simulator) {
		s.codec = c
	}
}

// WithExecutorConfig configures the executor running the calls.
func WithExecutorConfig(config executor.Config) Option {
	return func(s *Simulator) {
		s.config = config
	}
}

// WithBlock sets the block parameters calls are executed in.
func WithBlock(block chain.BlockParameters) Option {
	return func(s *Simulator) {
		s.block = block
	}
}

// WithParallelism bounds the number of concurrent remote requests while
// seeding the state.
func WithParallelism(n int) Option {
	return func(s *Simulator) {
		s.parallelism = n
	}
}

// New creates a simulator fetching state from the given source. A nil
// source makes all state not given by overrides read as empty.
func New(source chain.StateSource, opts ...Option) *Simulator {
	res := &Simulator{
		source:      source,
		block:       executor.DefaultBlockParameters(),
		parallelism: state.DefaultParallelism,
	}
	for _, opt := range opts {
		opt(res)
	}
	if res.codec == nil {
		abiCodec, err := codec.NewAbiCodec(codec.DefaultSignatureCacheSize)
		if err != nil {
			panic(fmt.Sprintf("failed to create ABI codec: %v", err))
		}
		res.codec = abiCodec
	}
	return res
}

// Run simulates the requested call. The first failing stage aborts the run
// and is reported as a *StageError. Reverted and halted calls are not
// failures; they are described by the returned Result.
func (s *Simulator) Run(ctx context.Context, request Request) (Result, error) {
	view, err := s.seed(ctx, request)
	if err != nil {
		return Result{}, &StageError{Stage: StageSeed, Err: err}
	}

	outcome, err := s.execute(ctx, request, view)
	if err != nil {
		return Result{}, &StageError{Stage: StageExecute, Err: err}
	}
	log.Debug("Executed call", "target", request.Target, "outcome", outcome.Kind, "gas", outcome.GasUsed)

	res := Result{Outcome: outcome, Stats: view.Stats(), State: view.Snapshot()}
	if outcome.Kind == executor.Success && request.Signature.Name == "" {
		return res, nil
	}
	res.values, res.err = codec.Decode(s.codec, outcome, request.Signature)
	if outcome.Kind == executor.Success && res.err != nil {
		return Result{}, &StageError{Stage: StageDecode, Err: res.err}
	}
	return res, nil
}

// seed creates the view of the run, applies the overrides of the request,
// and fetches the state the call is expected to read.
func (s *Simulator) seed(ctx context.Context, request Request) (*state.View, error) {
	view := state.NewView(s.source, state.WithParallelism(s.parallelism))
	if err := request.Overrides.Apply(ctx, view); err != nil {
		return nil, err
	}
	accounts := make([]chain.Address, 0, len(request.Accounts)+2)
	accounts = append(accounts, request.Caller, request.Target)
	accounts = append(accounts, request.Accounts...)
	if err := view.Prefetch(ctx, accounts, request.Slots); err != nil {
		return nil, err
	}
	if !request.LazyFetch {
		view.Freeze()
	}
	stats := view.Stats()
	log.Debug("Seeded state", "accounts", stats.AccountFetches, "slots", stats.StorageFetches, "overrides", len(request.Overrides), "lazy", request.LazyFetch)
	return view, nil
}

func (s *Simulator) execute(ctx context.Context, request Request, view *state.View) (executor.Outcome, error) {
	input := request.Input
	if input == nil && request.Signature.Name == "" {
		return executor.Outcome{}, fmt.Errorf("%w: request has neither a signature nor raw input", chain.ErrConfiguration)
	}
	if input == nil {
		var err error
		input, err = s.codec.EncodeCall(request.Signature, request.Args...)
		if err != nil {
			return executor.Outcome{}, err
		}
	}
	env := executor.Environment{
		Caller:   request.Caller,
		Target:   request.Target,
		Input:    input,
		Value:    request.Value,
		GasLimit: request.GasLimit,
		Block:    s.block,
	}
	if request.Block != nil {
		env.Block = *request.Block
	}
	return executor.New(s.config).Execute(ctx, env, view)
}
