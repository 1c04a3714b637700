// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package codec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/holiman/uint256"
)

// Field is a range of bits within a packed storage word.
type Field struct {
	Name string
	Bits uint
}

// Layout describes how several values are packed into a single storage
// word. Fields are listed starting at the least significant bit, the way
// Solidity packs consecutive state variables.
type Layout []Field

// UniswapV2Reserves is the layout of slot 8 of a Uniswap V2 pair.
var UniswapV2Reserves = Layout{
	{Name: "reserve0", Bits: 112},
	{Name: "reserve1", Bits: 112},
	{Name: "blockTimestampLast", Bits: 32},
}

// ParseLayout parses a comma separated list of field widths in bits, for
// instance "112,112,32". Fields are named field0, field1, and so on.
func ParseLayout(s string) (Layout, error) {
	var res Layout
	for i, part := range strings.Split(s, ",") {
		bits, err := strconv.ParseUint(strings.TrimSpace(part), 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid field width %q: %w", part, err)
		}
		res = append(res, Field{Name: fmt.Sprintf("field%d", i), Bits: uint(bits)})
	}
	if err := res.Check(); err != nil {
		return nil, err
	}
	return res, nil
}

// Check verifies that all fields are non-empty and fit into a word.
func (l Layout) Check() error {
	total := uint(0)
	for _, field := range l {
		if field.Bits == 0 {
			return fmt.Errorf("field %q has no bits", field.Name)
		}
		total += field.Bits
	}
	if total > 256 {
		return fmt.Errorf("layout needs %d bits, a word has 256", total)
	}
	return nil
}

// Unpack extracts the values of all fields from the given word.
func (l Layout) Unpack(word chain.Word) []*uint256.Int {
	value := word.ToUint256()
	res := make([]*uint256.Int, 0, len(l))
	offset := uint(0)
	for _, field := range l {
		res = append(res, extract(value, offset, field.Bits))
		offset += field.Bits
	}
	return res
}

// Pack combines the given values into a word. Each value must fit into its
// field.
func (l Layout) Pack(values ...*uint256.Int) (chain.Word, error) {
	if want, got := len(l), len(values); want != got {
		return chain.Word{}, fmt.Errorf("layout has %d fields, got %d values", want, got)
	}
	if err := l.Check(); err != nil {
		return chain.Word{}, err
	}
	res := new(uint256.Int)
	offset := uint(0)
	for i, field := range l {
		if values[i].BitLen() > int(field.Bits) {
			return chain.Word{}, fmt.Errorf("value %v exceeds %d bits of field %q", values[i], field.Bits, field.Name)
		}
		res.Or(res, new(uint256.Int).Lsh(values[i], offset))
		offset += field.Bits
	}
	return chain.WordFromUint256(res), nil
}

func extract(value *uint256.Int, offset, bits uint) *uint256.Int {
	res := new(uint256.Int).Rsh(value, offset)
	if bits >= 256 {
		return res
	}
	mask := new(uint256.Int).Lsh(uint256.NewInt(1), bits)
	mask.SubUint64(mask, 1)
	return res.And(res, mask)
}
