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
	"math/big"
	"slices"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestParseArguments_ProducesEncoderTypes(t *testing.T) {
	sig := MustParseSignature("f(uint8,uint32,uint112,int64,bool,address,bytes2)")
	values, err := ParseArguments(sig.Inputs, []string{"255", "0x10", "1000000000000000000000", "-5", "true", "0x00000000000000000000000000000000000000aa", "0xbeef"})
	if err != nil {
		t.Fatalf("failed to parse arguments: %v", err)
	}
	if want, got := uint8(255), values[0].(uint8); want != got {
		t.Errorf("unexpected uint8, wanted %v, got %v", want, got)
	}
	if want, got := uint32(16), values[1].(uint32); want != got {
		t.Errorf("unexpected uint32, wanted %v, got %v", want, got)
	}
	want, _ := new(big.Int).SetString("1000000000000000000000", 10)
	if got := values[2].(*big.Int); want.Cmp(got) != 0 {
		t.Errorf("unexpected uint112, wanted %v, got %v", want, got)
	}
	if want, got := int64(-5), values[3].(int64); want != got {
		t.Errorf("unexpected int64, wanted %v, got %v", want, got)
	}
	if want, got := true, values[4].(bool); want != got {
		t.Errorf("unexpected bool, wanted %v, got %v", want, got)
	}
	if want, got := common.HexToAddress("0xaa"), values[5].(common.Address); want != got {
		t.Errorf("unexpected address, wanted %v, got %v", want, got)
	}
	if want, got := [2]byte{0xbe, 0xef}, values[6].([2]byte); want != got {
		t.Errorf("unexpected bytes2, wanted %x, got %x", want, got)
	}
}

func TestParseArguments_RejectsInvalidValues(t *testing.T) {
	tests := map[string]struct {
		sig   string
		value string
	}{
		"not a number":      {"f(uint256)", "abc"},
		"uint8 overflow":    {"f(uint8)", "256"},
		"negative uint":     {"f(uint256)", "-1"},
		"int8 overflow":     {"f(int8)", "128"},
		"int8 underflow":    {"f(int8)", "-129"},
		"short address":     {"f(address)", "0x12"},
		"bool":              {"f(bool)", "maybe"},
		"bytes without 0x":  {"f(bytes)", "0102"},
		"bytes2 length":     {"f(bytes2)", "0x01"},
		"array length":      {"f(uint16[3])", "[1,2]"},
		"unbalanced array":  {"f(uint16[])", "[1,2"},
		"bad element":       {"f(uint16[])", "[1,x]"},
		"tuple field count": {"f((uint256,bool))", "(1)"},
		"tuple syntax":      {"f((uint256,bool))", "[1,true]"},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			sig := MustParseSignature(test.sig)
			if _, err := ParseArguments(sig.Inputs, []string{test.value}); err == nil {
				t.Errorf("expected %q to be rejected for %s", test.value, test.sig)
			}
		})
	}
}

func TestParseArguments_RejectsWrongNumberOfArguments(t *testing.T) {
	sig := MustParseSignature("f(uint256,uint256)")
	if _, err := ParseArguments(sig.Inputs, []string{"1"}); err == nil {
		t.Errorf("missing argument should be rejected")
	}
}

func TestSplitArguments_KeepsNestedLists(t *testing.T) {
	tests := map[string][]string{
		"":                   nil,
		"1":                  {"1"},
		"1, 2":               {"1", "2"},
		"[1,2],(3,[4,5]),6":  {"[1,2]", "(3,[4,5])", "6"},
		" 0xaa , hello, [] ": {"0xaa", "hello", "[]"},
	}
	for input, want := range tests {
		if got := SplitArguments(input); !slices.Equal(want, got) {
			t.Errorf("unexpected split of %q, wanted %q, got %q", input, want, got)
		}
	}
}

func TestFormatValue(t *testing.T) {
	tests := []struct {
		value any
		want  string
	}{
		{big.NewInt(-12), "-12"},
		{uint32(7), "7"},
		{true, "true"},
		{"text", `"text"`},
		{[]byte{0x01, 0x02}, "0x0102"},
		{[2]byte{0xbe, 0xef}, "0xbeef"},
		{[]uint16{1, 2}, "[1,2]"},
		{common.HexToAddress("0x01"), "0x0000000000000000000000000000000000000001"},
		{struct {
			A *big.Int
			B bool
		}{big.NewInt(1), false}, "(1,false)"},
	}
	for _, test := range tests {
		if got := FormatValue(test.value); test.want != got {
			t.Errorf("unexpected format of %v, wanted %q, got %q", test.value, test.want, got)
		}
	}
}
