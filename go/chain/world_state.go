// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package chain

import (
	"bytes"
	"context"
	"fmt"

	"golang.org/x/crypto/sha3"
)

//go:generate mockgen -source world_state.go -destination world_state_mock.go -package chain

// StateSource is the capability of fetching account and storage data of a
// chain at an implicit block height. Each call is a single request from the
// point of view of the caller; implementations neither batch nor retry on
// behalf of their users. Failures are reported as errors wrapping
// ErrRemoteUnavailable.
type StateSource interface {
	FetchAccount(ctx context.Context, addr Address) (AccountInfo, error)
	FetchStorage(ctx context.Context, addr Address, key Key) (Word, error)
}

// StateReader is the read contract an execution engine needs from the state
// it is bound to. It is satisfied by live-fetching views as well as by plain
// in-memory fixtures.
type StateReader interface {
	GetAccount(ctx context.Context, addr Address) (AccountInfo, error)
	GetStorage(ctx context.Context, addr Address, key Key) (Word, error)
}

// AccountInfo summarizes the top-level properties of an account. Within a
// simulation run it is treated as immutable once resolved.
type AccountInfo struct {
	Balance  Value
	Nonce    uint64
	CodeHash Hash
	Code     Code
}

// EmptyCodeHash is the hash of an empty code, which is the code hash of all
// accounts without code.
var EmptyCodeHash = HashCode(nil)

// HashCode computes the keccak256 hash of the given code.
func HashCode(code Code) (res Hash) {
	hasher := sha3.NewLegacyKeccak256()
	hasher.Write(code)
	hasher.Sum(res[:0])
	return res
}

// NewAccountInfo creates an account with the given properties and a code
// hash matching the given code.
func NewAccountInfo(balance Value, nonce uint64, code Code) AccountInfo {
	return AccountInfo{
		Balance:  balance,
		Nonce:    nonce,
		CodeHash: HashCode(code),
		Code:     code,
	}
}

// IsEmpty is true for accounts with no balance, no nonce, and no code.
func (a *AccountInfo) IsEmpty() bool {
	return a.Balance == (Value{}) && a.Nonce == 0 && len(a.Code) == 0
}

// Normalize fills in a missing code hash. Sources may omit the hash if they
// only transfer the code itself.
func (a AccountInfo) Normalize() AccountInfo {
	if a.CodeHash == (Hash{}) {
		a.CodeHash = HashCode(a.Code)
	}
	return a
}

func (a *AccountInfo) Equal(other *AccountInfo) bool {
	return a.Balance == other.Balance &&
		a.Nonce == other.Nonce &&
		a.CodeHash == other.CodeHash &&
		bytes.Equal(a.Code, other.Code)
}

func (a *AccountInfo) Clone() AccountInfo {
	res := *a
	res.Code = bytes.Clone(a.Code)
	return res
}

func (a AccountInfo) String() string {
	return fmt.Sprintf("{balance: %v, nonce: %d, code hash: %v, code size: %d}",
		a.Balance, a.Nonce, a.CodeHash, len(a.Code))
}
