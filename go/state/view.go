// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package state provides the overridable state view a simulation runs
// against. A View shadows a remote chain.StateSource with a local store that
// is filled on first access and may be overridden by the caller.
package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"golang.org/x/sync/errgroup"
)

// DefaultParallelism is the number of concurrent remote requests issued by
// Prefetch unless configured otherwise.
const DefaultParallelism = 8

// View is a read-through cache of accounts and storage slots. Every entry is
// resolved at most once: either it is injected through one of the setters,
// or it is fetched from the remote source on the first read and retained for
// the lifetime of the view. A View is owned by a single simulation run and
// is not safe for concurrent use.
type View struct {
	source      chain.StateSource
	parallelism int

	accounts map[chain.Address]chain.AccountInfo
	storage  map[slot]chain.Word
	replaced map[chain.Address]struct{}

	stats Stats
}

// Stats counts the entries a View obtained from its remote source.
type Stats struct {
	AccountFetches int
	StorageFetches int
}

// Slot is a single storage entry as listed by View.Storage.
type Slot struct {
	Key   chain.Key
	Value chain.Word
}

type slot struct {
	address chain.Address
	key     chain.Key
}

// ViewOption customizes a View at construction time.
type ViewOption func(*View)

// WithParallelism bounds the number of remote requests Prefetch has in
// flight at any time. Values below 1 are ignored.
func WithParallelism(n int) ViewOption {
	return func(v *View) {
		if n > 0 {
			v.parallelism = n
		}
	}
}

// NewView creates an empty view backed by the given source. A nil source
// creates a purely local view in which every miss resolves to an empty
// account or a zero word.
func NewView(source chain.StateSource, opts ...ViewOption) *View {
	res := &View{
		source:      source,
		parallelism: DefaultParallelism,
		accounts:    map[chain.Address]chain.AccountInfo{},
		storage:     map[slot]chain.Word{},
		replaced:    map[chain.Address]struct{}{},
	}
	for _, opt := range opts {
		opt(res)
	}
	return res
}

// GetAccount returns the account stored for the given address. On a miss the
// account is fetched from the remote source and retained. A failing fetch
// leaves the view unmodified.
func (v *View) GetAccount(ctx context.Context, addr chain.Address) (chain.AccountInfo, error) {
	if info, found := v.accounts[addr]; found {
		return info, nil
	}
	remote := v.source != nil
	info, err := v.fetchAccount(ctx, addr)
	if err != nil {
		return chain.AccountInfo{}, err
	}
	if remote {
		v.stats.AccountFetches++
	}
	v.accounts[addr] = info
	return info, nil
}

// GetStorage returns the value of the given storage slot, fetching it from
// the remote source on a miss.
func (v *View) GetStorage(ctx context.Context, addr chain.Address, key chain.Key) (chain.Word, error) {
	id := slot{addr, key}
	if value, found := v.storage[id]; found {
		return value, nil
	}
	if _, replaced := v.replaced[addr]; replaced || v.source == nil {
		v.storage[id] = chain.Word{}
		return chain.Word{}, nil
	}
	value, err := v.fetchStorage(ctx, addr, key)
	if err != nil {
		return chain.Word{}, err
	}
	v.stats.StorageFetches++
	v.storage[id] = value
	return value, nil
}

// SetAccount overrides the account stored for the given address, replacing
// any previously fetched or injected entry.
func (v *View) SetAccount(addr chain.Address, info chain.AccountInfo) {
	v.accounts[addr] = info.Normalize()
}

// SetStorage overrides a single storage slot, replacing any previously
// fetched or injected value.
func (v *View) SetStorage(addr chain.Address, key chain.Key, value chain.Word) {
	v.storage[slot{addr, key}] = value
}

// SetBalance overrides the balance of an account while retaining its other
// properties. The account is resolved first if it is not yet known.
func (v *View) SetBalance(ctx context.Context, addr chain.Address, balance chain.Value) error {
	return v.patchAccount(ctx, addr, func(info *chain.AccountInfo) {
		info.Balance = balance
	})
}

// SetNonce overrides the nonce of an account while retaining its other
// properties.
func (v *View) SetNonce(ctx context.Context, addr chain.Address, nonce uint64) error {
	return v.patchAccount(ctx, addr, func(info *chain.AccountInfo) {
		info.Nonce = nonce
	})
}

// SetCode overrides the code of an account and updates its code hash.
func (v *View) SetCode(ctx context.Context, addr chain.Address, code chain.Code) error {
	return v.patchAccount(ctx, addr, func(info *chain.AccountInfo) {
		info.Code = bytes.Clone(code)
		info.CodeHash = chain.HashCode(code)
	})
}

func (v *View) patchAccount(ctx context.Context, addr chain.Address, patch func(*chain.AccountInfo)) error {
	info, err := v.GetAccount(ctx, addr)
	if err != nil {
		return err
	}
	info = info.Clone()
	patch(&info)
	v.accounts[addr] = info
	return nil
}

// ReplaceStorage discards the storage of the given account and replaces it
// by the given slots. Slots not listed read as zero and are never fetched.
func (v *View) ReplaceStorage(addr chain.Address, slots map[chain.Key]chain.Word) {
	for id := range v.storage {
		if id.address == addr {
			delete(v.storage, id)
		}
	}
	for key, value := range slots {
		v.storage[slot{addr, key}] = value
	}
	v.replaced[addr] = struct{}{}
}

// Prefetch resolves all given accounts and storage slots not yet present in
// the view. Remote requests are issued concurrently; their results are only
// added to the view once all of them succeeded. If any request fails, the
// view is left unmodified.
func (v *View) Prefetch(ctx context.Context, accounts []chain.Address, slots map[chain.Address][]chain.Key) error {
	missingAccounts := v.missingAccounts(accounts)
	missingSlots := v.missingSlots(slots)
	if len(missingAccounts) == 0 && len(missingSlots) == 0 {
		return nil
	}

	accountInfos := make([]chain.AccountInfo, len(missingAccounts))
	values := make([]chain.Word, len(missingSlots))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(v.parallelism)
	for i, addr := range missingAccounts {
		i, addr := i, addr
		group.Go(func() error {
			info, err := v.fetchAccount(groupCtx, addr)
			accountInfos[i] = info
			return err
		})
	}
	for i, id := range missingSlots {
		i, id := i, id
		group.Go(func() error {
			value, err := v.fetchStorage(groupCtx, id.address, id.key)
			values[i] = value
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	for i, addr := range missingAccounts {
		v.accounts[addr] = accountInfos[i]
	}
	for i, id := range missingSlots {
		v.storage[id] = values[i]
	}
	if v.source != nil {
		v.stats.AccountFetches += len(missingAccounts)
		v.stats.StorageFetches += len(missingSlots)
	}
	log.Debug("Prefetched state", "accounts", len(missingAccounts), "slots", len(missingSlots))
	return nil
}

func (v *View) missingAccounts(accounts []chain.Address) []chain.Address {
	var res []chain.Address
	seen := map[chain.Address]struct{}{}
	for _, addr := range accounts {
		if _, found := v.accounts[addr]; found {
			continue
		}
		if _, found := seen[addr]; found {
			continue
		}
		seen[addr] = struct{}{}
		res = append(res, addr)
	}
	return res
}

func (v *View) missingSlots(slots map[chain.Address][]chain.Key) []slot {
	var res []slot
	seen := map[slot]struct{}{}
	for _, addr := range sortedAddresses(maps.Keys(slots)) {
		if _, replaced := v.replaced[addr]; replaced {
			continue
		}
		for _, key := range slots[addr] {
			id := slot{addr, key}
			if _, found := v.storage[id]; found {
				continue
			}
			if _, found := seen[id]; found {
				continue
			}
			seen[id] = struct{}{}
			res = append(res, id)
		}
	}
	return res
}

// Freeze detaches the view from its remote source. Subsequent misses resolve
// to empty accounts and zero words, which are retained like fetched entries.
func (v *View) Freeze() {
	v.source = nil
}

// Frozen reports whether the view has no remote source attached.
func (v *View) Frozen() bool {
	return v.source == nil
}

// Stats returns the number of entries fetched from the remote source so far.
func (v *View) Stats() Stats {
	return v.stats
}

// Accounts lists the addresses of all accounts present in the view in
// ascending order.
func (v *View) Accounts() []chain.Address {
	return sortedAddresses(maps.Keys(v.accounts))
}

// Storage lists the storage slots of the given account present in the view
// in ascending key order.
func (v *View) Storage(addr chain.Address) []Slot {
	var res []Slot
	for id, value := range v.storage {
		if id.address == addr {
			res = append(res, Slot{Key: id.key, Value: value})
		}
	}
	slices.SortFunc(res, func(a, b Slot) int {
		return bytes.Compare(a.Key[:], b.Key[:])
	})
	return res
}

// Snapshot copies the current content of the view into a WorldState.
func (v *View) Snapshot() WorldState {
	res := make(WorldState, len(v.accounts))
	for addr, info := range v.accounts {
		res[addr] = Account{
			Balance: info.Balance,
			Nonce:   info.Nonce,
			Code:    bytes.Clone(info.Code),
		}
	}
	for id, value := range v.storage {
		account := res[id.address]
		if account.Storage == nil {
			account.Storage = Storage{}
		}
		account.Storage[id.key] = value
		res[id.address] = account
	}
	return res
}

func (v *View) fetchAccount(ctx context.Context, addr chain.Address) (chain.AccountInfo, error) {
	if v.source == nil {
		return chain.NewAccountInfo(chain.Value{}, 0, nil), nil
	}
	info, err := v.source.FetchAccount(ctx, addr)
	if err != nil {
		return chain.AccountInfo{}, remoteError(err, "failed to fetch account %v", addr)
	}
	log.Trace("Fetched account", "address", addr, "balance", info.Balance, "nonce", info.Nonce, "code", len(info.Code))
	return info.Normalize(), nil
}

func (v *View) fetchStorage(ctx context.Context, addr chain.Address, key chain.Key) (chain.Word, error) {
	if v.source == nil {
		return chain.Word{}, nil
	}
	value, err := v.source.FetchStorage(ctx, addr, key)
	if err != nil {
		return chain.Word{}, remoteError(err, "failed to fetch slot %v of %v", key, addr)
	}
	log.Trace("Fetched storage", "address", addr, "key", key, "value", value)
	return value, nil
}

func remoteError(err error, format string, args ...any) error {
	msg := fmt.Sprintf(format, args...)
	if errors.Is(err, chain.ErrRemoteUnavailable) {
		return fmt.Errorf("%s: %w", msg, err)
	}
	return fmt.Errorf("%s: %w: %w", msg, chain.ErrRemoteUnavailable, err)
}

func sortedAddresses(addresses []chain.Address) []chain.Address {
	slices.SortFunc(addresses, func(a, b chain.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	return addresses
}
