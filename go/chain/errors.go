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

// ConstError is an error type that can be used to define immutable
// error constants.
type ConstError string

func (e ConstError) Error() string {
	return string(e)
}

const (
	// ErrRemoteUnavailable is reported whenever the remote chain data source
	// failed to deliver a requested account or storage slot. Simulation runs
	// hitting this error are aborted; retrying is up to the caller.
	ErrRemoteUnavailable = ConstError("remote state unavailable")

	// ErrConfiguration signals a violated precondition, for instance an
	// executor run without a bound state. It indicates a programming error.
	ErrConfiguration = ConstError("configuration error")
)
