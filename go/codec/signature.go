// Copyright (c) 2024 Fantom Foundation
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at fantom.foundation/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

// Package codec encodes contract calls and decodes their results using the
// Ethereum contract ABI. It also interprets storage words holding several
// packed values.
package codec

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Signature describes a contract function by its name and the types of its
// parameters and results.
type Signature struct {
	Name    string
	Inputs  abi.Arguments
	Outputs abi.Arguments
}

// ParseSignature parses a human readable function signature. Supported forms
// are
//
//	getReserves()(uint112,uint112,uint32)
//	balanceOf(address) returns (uint256)
//	function getReserves() external view returns (uint112 reserve0, uint112 reserve1, uint32 blockTimestampLast)
//
// Parameters may be named and may carry a data location. Tuples are written
// in parentheses, optionally preceded by the keyword tuple. Arrays of tuples
// must be dynamic. Only the names of top level parameters are retained.
func ParseSignature(s string) (Signature, error) {
	header := functionHeader.FindStringSubmatchIndex(s)
	if header == nil {
		return Signature{}, fmt.Errorf("invalid signature %q: missing function name or parameter list", s)
	}
	name := s[header[2]:header[3]]

	inputList, rest, err := splitParenthesized(s[header[1]-1:])
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature %q: %w", s, err)
	}
	inputs, err := parseArguments(inputList)
	if err != nil {
		return Signature{}, fmt.Errorf("invalid signature %q: %w", s, err)
	}

	var outputs abi.Arguments
	rest = strings.TrimSpace(modifiers.ReplaceAllString(rest, ""))
	if rest != "" {
		outputList, tail, err := splitParenthesized(rest)
		if err != nil {
			return Signature{}, fmt.Errorf("invalid signature %q: %w", s, err)
		}
		if tail = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(tail), ";")); tail != "" {
			return Signature{}, fmt.Errorf("invalid signature %q: unexpected trailing %q", s, tail)
		}
		if outputs, err = parseArguments(outputList); err != nil {
			return Signature{}, fmt.Errorf("invalid signature %q: %w", s, err)
		}
	}

	return Signature{Name: name, Inputs: inputs, Outputs: outputs}, nil
}

// MustParseSignature is like ParseSignature but panics on errors.
func MustParseSignature(s string) Signature {
	res, err := ParseSignature(s)
	if err != nil {
		panic(err)
	}
	return res
}

// method converts the signature into an ABI method description.
func (s Signature) method() abi.Method {
	return abi.NewMethod(s.Name, s.Name, abi.Function, "view", false, false, s.Inputs, s.Outputs)
}

// Selector returns the 4-byte function selector.
func (s Signature) Selector() [4]byte {
	var res [4]byte
	copy(res[:], s.method().ID)
	return res
}

// String produces the canonical form name(inputs)(outputs).
func (s Signature) String() string {
	var buffer bytes.Buffer
	buffer.WriteString(s.method().Sig)
	buffer.WriteString(typeList(s.Outputs))
	return buffer.String()
}

func typeList(args abi.Arguments) string {
	types := make([]string, 0, len(args))
	for _, arg := range args {
		types = append(types, arg.Type.String())
	}
	return "(" + strings.Join(types, ",") + ")"
}

const identifierPattern = `[A-Za-z_$][A-Za-z0-9_$]*`

var (
	functionHeader = regexp.MustCompile(`^\s*(?:function\s+)?(` + identifierPattern + `)\s*\(`)
	modifiers      = regexp.MustCompile(`^(?:\s*\b(?:external|public|view|pure|payable|nonpayable|virtual|returns)\b)*`)

	locations        = regexp.MustCompile(`\s+(?:memory|calldata|storage|indexed|payable)\b`)
	tupleKeyword     = regexp.MustCompile(`\btuple\s*\(`)
	spaceBeforeClose = regexp.MustCompile(`\s+([,)\]])`)
	spaceAfterOpen   = regexp.MustCompile(`([(\[,])\s+`)
	namedParameter   = regexp.MustCompile(`^(.*?)\s+(` + identifierPattern + `)$`)
	componentName    = regexp.MustCompile(`([A-Za-z0-9_$\])])\s+` + identifierPattern + `([,)])`)
	integerAlias     = regexp.MustCompile(`\b(u?int)\b`)
)

// parseArguments parses a comma separated parameter list. Unnamed parameters
// are named argN by their position.
func parseArguments(list string) (abi.Arguments, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}
	var res abi.Arguments
	for i, param := range splitTopLevel(list) {
		typ, name, err := splitParameter(param)
		if err != nil {
			return nil, err
		}
		if name == "" {
			name = fmt.Sprintf("arg%d", i)
		}
		selector, err := abi.ParseSelector("f(" + typ + ")")
		if err != nil {
			return nil, fmt.Errorf("invalid parameter %q: %w", strings.TrimSpace(param), err)
		}
		if len(selector.Inputs) != 1 {
			return nil, fmt.Errorf("invalid parameter %q", strings.TrimSpace(param))
		}
		marshaling := selector.Inputs[0]
		parsed, err := abi.NewType(marshaling.Type, "", marshaling.Components)
		if err != nil {
			return nil, err
		}
		res = append(res, abi.Argument{Name: name, Type: parsed})
	}
	return res, nil
}

// splitParameter reduces a parameter of the form "type [location] [name]" to
// its canonical type and its name, which is empty if absent. Names of tuple
// components are dropped.
func splitParameter(param string) (string, string, error) {
	typ := strings.TrimSpace(param)
	if typ == "" {
		return "", "", fmt.Errorf("empty parameter")
	}
	typ = locations.ReplaceAllString(typ, "")
	typ = tupleKeyword.ReplaceAllString(typ, "(")
	typ = spaceBeforeClose.ReplaceAllString(typ, "$1")
	typ = spaceAfterOpen.ReplaceAllString(typ, "$1")
	for _, part := range strings.FieldsFunc(typ, isSeparator) {
		if len(strings.Fields(part)) > 2 {
			return "", "", fmt.Errorf("unexpected tokens in parameter %q", strings.TrimSpace(param))
		}
	}

	var name string
	if match := namedParameter.FindStringSubmatch(typ); match != nil {
		typ, name = match[1], match[2]
	}
	for {
		stripped := componentName.ReplaceAllString(typ, "$1$2")
		if stripped == typ {
			break
		}
		typ = stripped
	}
	if strings.ContainsAny(typ, " \t\r\n") {
		return "", "", fmt.Errorf("unexpected tokens in parameter %q", strings.TrimSpace(param))
	}
	return integerAlias.ReplaceAllString(typ, "${1}256"), name, nil
}

func isSeparator(c rune) bool {
	return c == '(' || c == ')' || c == ','
}

// splitParenthesized splits a string starting with a parenthesized list into
// the content of the list and the remainder following the closing
// parenthesis.
func splitParenthesized(s string) (string, string, error) {
	if !strings.HasPrefix(s, "(") {
		return "", "", fmt.Errorf("expected '(' at %q", s)
	}
	depth := 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], s[i+1:], nil
			}
		}
	}
	return "", "", fmt.Errorf("unbalanced parentheses in %q", s)
}

// splitTopLevel splits a comma separated list, ignoring commas nested in
// parentheses.
func splitTopLevel(s string) []string {
	var res []string
	depth, start := 0, 0
	for i, c := range s {
		switch c {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				res = append(res, s[start:i])
				start = i + 1
			}
		}
	}
	return append(res, s[start:])
}
