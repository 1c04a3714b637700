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
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// ParseArguments converts textual arguments into the Go values expected by
// the ABI encoder for the given argument types. Integers may be given in
// decimal or in 0x-prefixed hex, byte sequences in hex. Arrays are written
// as [a,b] and tuples as (a,b).
func ParseArguments(args abi.Arguments, values []string) ([]any, error) {
	if want, got := len(args), len(values); want != got {
		return nil, fmt.Errorf("expected %d arguments, got %d", want, got)
	}
	res := make([]any, 0, len(values))
	for i, arg := range args {
		value, err := parseValue(arg.Type, strings.TrimSpace(values[i]))
		if err != nil {
			return nil, fmt.Errorf("argument %d (%s): %w", i, arg.Type.String(), err)
		}
		res = append(res, value.Interface())
	}
	return res, nil
}

// SplitArguments splits a comma separated argument list, keeping commas
// inside brackets and parentheses.
func SplitArguments(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	var res []string
	depth, start := 0, 0
	for i, c := range list {
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				res = append(res, strings.TrimSpace(list[start:i]))
				start = i + 1
			}
		}
	}
	return append(res, strings.TrimSpace(list[start:]))
}

func parseValue(t abi.Type, s string) (reflect.Value, error) {
	res := reflect.New(t.GetType()).Elem()
	switch t.T {
	case abi.UintTy, abi.IntTy:
		value, ok := new(big.Int).SetString(s, 0)
		if !ok {
			return res, fmt.Errorf("invalid integer %q", s)
		}
		if err := checkRange(value, t.Size, t.T == abi.IntTy); err != nil {
			return res, err
		}
		switch {
		case t.Size > 64:
			res.Set(reflect.ValueOf(value))
		case t.T == abi.UintTy:
			res.SetUint(value.Uint64())
		default:
			res.SetInt(value.Int64())
		}
	case abi.BoolTy:
		value, err := strconv.ParseBool(s)
		if err != nil {
			return res, err
		}
		res.SetBool(value)
	case abi.AddressTy:
		if !common.IsHexAddress(s) {
			return res, fmt.Errorf("invalid address %q", s)
		}
		res.Set(reflect.ValueOf(common.HexToAddress(s)))
	case abi.StringTy:
		res.SetString(s)
	case abi.BytesTy:
		data, err := hexutil.Decode(s)
		if err != nil {
			return res, err
		}
		res.SetBytes(data)
	case abi.FixedBytesTy:
		data, err := hexutil.Decode(s)
		if err != nil {
			return res, err
		}
		if len(data) != t.Size {
			return res, fmt.Errorf("expected %d bytes, got %d", t.Size, len(data))
		}
		reflect.Copy(res, reflect.ValueOf(data))
	case abi.ArrayTy, abi.SliceTy:
		elems, err := unwrap(s, '[', ']')
		if err != nil {
			return res, err
		}
		if t.T == abi.ArrayTy && len(elems) != t.Size {
			return res, fmt.Errorf("expected %d elements, got %d", t.Size, len(elems))
		}
		if t.T == abi.SliceTy {
			res.Set(reflect.MakeSlice(res.Type(), len(elems), len(elems)))
		}
		for i, elem := range elems {
			value, err := parseValue(*t.Elem, elem)
			if err != nil {
				return res, fmt.Errorf("element %d: %w", i, err)
			}
			res.Index(i).Set(value)
		}
	case abi.TupleTy:
		elems, err := unwrap(s, '(', ')')
		if err != nil {
			return res, err
		}
		if want, got := len(t.TupleElems), len(elems); want != got {
			return res, fmt.Errorf("expected %d tuple fields, got %d", want, got)
		}
		for i, elem := range elems {
			value, err := parseValue(*t.TupleElems[i], elem)
			if err != nil {
				return res, fmt.Errorf("field %d: %w", i, err)
			}
			res.Field(i).Set(value)
		}
	default:
		return res, fmt.Errorf("unsupported type %s", t.String())
	}
	return res, nil
}

func unwrap(s string, open, close byte) ([]string, error) {
	if len(s) < 2 || s[0] != open || s[len(s)-1] != close {
		return nil, fmt.Errorf("expected %c...%c, got %q", open, close, s)
	}
	return SplitArguments(s[1 : len(s)-1]), nil
}

func checkRange(value *big.Int, bits int, signed bool) error {
	if !signed {
		if value.Sign() < 0 || value.BitLen() > bits {
			return fmt.Errorf("%v out of range for uint%d", value, bits)
		}
		return nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	min := new(big.Int).Neg(limit)
	if value.Cmp(min) < 0 || value.Cmp(limit) >= 0 {
		return fmt.Errorf("%v out of range for int%d", value, bits)
	}
	return nil
}

// FormatValue renders a decoded value for display. Apart from quoted
// strings the result is accepted by ParseArguments.
func FormatValue(value any) string {
	switch v := value.(type) {
	case *big.Int:
		return v.String()
	case common.Address:
		return v.Hex()
	case []byte:
		return hexutil.Encode(v)
	case string:
		return strconv.Quote(v)
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			data := make([]byte, rv.Len())
			reflect.Copy(reflect.ValueOf(data), rv)
			return hexutil.Encode(data)
		}
		return formatElements(rv, "[", "]")
	case reflect.Slice:
		return formatElements(rv, "[", "]")
	case reflect.Struct:
		parts := make([]string, 0, rv.NumField())
		for i := 0; i < rv.NumField(); i++ {
			parts = append(parts, FormatValue(rv.Field(i).Interface()))
		}
		return "(" + strings.Join(parts, ",") + ")"
	}
	return fmt.Sprint(value)
}

func formatElements(rv reflect.Value, open, close string) string {
	parts := make([]string, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		parts = append(parts, FormatValue(rv.Index(i).Interface()))
	}
	return open + strings.Join(parts, ",") + close
}
