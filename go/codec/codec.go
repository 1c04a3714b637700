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
	"strings"

	"github.com/Fantom-foundation/Forksim/go/chain"
	"github.com/ethereum/go-ethereum/accounts/abi"
	lru "github.com/hashicorp/golang-lru/v2"
)

//go:generate mockgen -source codec.go -destination codec_mock.go -package codec

// Codec converts between typed Go values and the byte representation used
// for call data and return data of contract functions.
type Codec interface {
	// EncodeCall produces the call data invoking the given function with the
	// given arguments.
	EncodeCall(sig Signature, args ...any) (chain.Data, error)
	// DecodeOutput converts return data into the typed results of the given
	// function.
	DecodeOutput(sig Signature, data chain.Data) ([]any, error)
}

// DefaultSignatureCacheSize is the number of parsed signatures retained by
// an AbiCodec.
const DefaultSignatureCacheSize = 256

// AbiCodec implements the Codec interface using the Ethereum contract ABI.
// It also retains recently parsed signatures.
type AbiCodec struct {
	signatures *lru.Cache[string, Signature]
}

// NewAbiCodec creates a codec retaining up to cacheSize parsed signatures.
func NewAbiCodec(cacheSize int) (*AbiCodec, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSignatureCacheSize
	}
	cache, err := lru.New[string, Signature](cacheSize)
	if err != nil {
		return nil, err
	}
	return &AbiCodec{signatures: cache}, nil
}

// Parse parses the given signature, reusing earlier results for the same
// input.
func (c *AbiCodec) Parse(signature string) (Signature, error) {
	if res, found := c.signatures.Get(signature); found {
		return res, nil
	}
	res, err := ParseSignature(signature)
	if err != nil {
		return Signature{}, err
	}
	c.signatures.Add(signature, res)
	return res, nil
}

func (c *AbiCodec) EncodeCall(sig Signature, args ...any) (chain.Data, error) {
	if want, got := len(sig.Inputs), len(args); want != got {
		return nil, fmt.Errorf("%s expects %d arguments, got %d", sig.Name, want, got)
	}
	packed, err := sig.Inputs.Pack(args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode arguments of %s: %w", sig.Name, err)
	}
	selector := sig.Selector()
	res := make(chain.Data, 0, len(selector)+len(packed))
	res = append(res, selector[:]...)
	return append(res, packed...), nil
}

func (c *AbiCodec) DecodeOutput(sig Signature, data chain.Data) ([]any, error) {
	if len(sig.Outputs) == 0 {
		if len(data) != 0 {
			return nil, fmt.Errorf("%s returns nothing, got %d bytes", sig.Name, len(data))
		}
		return nil, nil
	}
	if size, static := staticSize(sig.Outputs); static && size != len(data) {
		return nil, fmt.Errorf("%s returns %d bytes, got %d", sig.Name, size, len(data))
	}
	res, err := sig.Outputs.Unpack(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode results of %s: %w", sig.Name, err)
	}
	return res, nil
}

// staticSize computes the encoded size of a list of arguments if none of
// them has a dynamic size.
func staticSize(args abi.Arguments) (int, bool) {
	size := 0
	for _, arg := range args {
		s, static := typeSize(arg.Type)
		if !static {
			return 0, false
		}
		size += s
	}
	return size, true
}

func typeSize(t abi.Type) (int, bool) {
	switch t.T {
	case abi.StringTy, abi.BytesTy, abi.SliceTy:
		return 0, false
	case abi.ArrayTy:
		elem, static := typeSize(*t.Elem)
		return elem * t.Size, static
	case abi.TupleTy:
		size := 0
		for _, elem := range t.TupleElems {
			s, static := typeSize(*elem)
			if !static {
				return 0, false
			}
			size += s
		}
		return size, true
	}
	return 32, true
}

// SignatureFromABI extracts the signature of the named method from a JSON
// encoded contract ABI.
func SignatureFromABI(json string, method string) (Signature, error) {
	parsed, err := abi.JSON(strings.NewReader(json))
	if err != nil {
		return Signature{}, fmt.Errorf("invalid ABI: %w", err)
	}
	m, found := parsed.Methods[method]
	if !found {
		return Signature{}, fmt.Errorf("ABI has no method %q", method)
	}
	return Signature{Name: m.RawName, Inputs: m.Inputs, Outputs: m.Outputs}, nil
}
