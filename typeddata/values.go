/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package typeddata

import (
	"encoding/json"
	"math/big"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

var (
	two256 = new(big.Int).Lsh(big.NewInt(1), 256)
)

func isPrimitive(typ string) bool {
	switch typ {
	case "string", "bytes", "address", "bool":
		return true
	}
	if n, ok := sizeSuffix(typ, "bytes"); ok {
		return n >= 1 && n <= 32
	}
	if n, ok := sizeSuffix(typ, "uint"); ok {
		return n >= 8 && n <= 256 && n%8 == 0
	}
	if n, ok := sizeSuffix(typ, "int"); ok {
		return n >= 8 && n <= 256 && n%8 == 0
	}
	return false
}

// sizeSuffix parses the bit or byte width of types such as uint64 or
// bytes32. A bare "uint"/"int" means 256 bits.
func sizeSuffix(typ, prefix string) (int, bool) {
	if !strings.HasPrefix(typ, prefix) {
		return 0, false
	}
	rest := typ[len(prefix):]
	if rest == "" {
		if prefix == "bytes" {
			return 0, false
		}
		return 256, true
	}
	n, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return n, true
}

// encodePrimitive returns the 32-byte word for an atomic or dynamic value.
func encodePrimitive(typ string, v interface{}) ([]byte, error) {
	switch typ {
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, typeMismatch(typ, v)
		}
		return crypto.Keccak256([]byte(s)), nil
	case "bytes":
		b, err := toBytes(v)
		if err != nil {
			return nil, errors.WithMessage(err, typ)
		}
		return crypto.Keccak256(b), nil
	case "address":
		a, err := toAddress(v)
		if err != nil {
			return nil, err
		}
		word := make([]byte, 32)
		copy(word[12:], a[:])
		return word, nil
	case "bool":
		b, ok := v.(bool)
		if !ok {
			return nil, typeMismatch(typ, v)
		}
		word := make([]byte, 32)
		if b {
			word[31] = 1
		}
		return word, nil
	}

	if n, ok := sizeSuffix(typ, "bytes"); ok {
		b, err := toBytes(v)
		if err != nil {
			return nil, errors.WithMessage(err, typ)
		}
		if len(b) != n {
			return nil, errors.Wrapf(ErrEncoding, "%s expects %d bytes, got %d", typ, n, len(b))
		}
		word := make([]byte, 32)
		copy(word, b)
		return word, nil
	}
	if n, ok := sizeSuffix(typ, "uint"); ok {
		x, err := toBigInt(v)
		if err != nil {
			return nil, errors.WithMessage(err, typ)
		}
		if x.Sign() < 0 || x.BitLen() > n {
			return nil, errors.Wrapf(ErrEncoding, "value %s out of range for %s", x, typ)
		}
		return padWord(x), nil
	}
	if n, ok := sizeSuffix(typ, "int"); ok {
		x, err := toBigInt(v)
		if err != nil {
			return nil, errors.WithMessage(err, typ)
		}
		limit := new(big.Int).Lsh(big.NewInt(1), uint(n-1))
		if x.Cmp(limit) >= 0 || x.Cmp(new(big.Int).Neg(limit)) < 0 {
			return nil, errors.Wrapf(ErrEncoding, "value %s out of range for %s", x, typ)
		}
		if x.Sign() < 0 {
			x = new(big.Int).Add(two256, x)
		}
		return padWord(x), nil
	}
	return nil, errors.Wrapf(ErrEncoding, "unsupported type %s", typ)
}

func padWord(x *big.Int) []byte {
	word := make([]byte, 32)
	x.FillBytes(word)
	return word
}

func typeMismatch(typ string, v interface{}) error {
	return errors.Wrapf(ErrEncoding, "expected %s, got %T", typ, v)
}

func toBytes(v interface{}) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case crypto.Hash:
		return b[:], nil
	case [32]byte:
		return b[:], nil
	case string:
		raw, err := crypto.FromHex(b)
		if err != nil {
			return nil, errors.Wrapf(ErrEncoding, "invalid hex string %q", b)
		}
		return raw, nil
	}
	return nil, errors.Wrapf(ErrEncoding, "cannot use %T as bytes", v)
}

func toAddress(v interface{}) (crypto.Address, error) {
	switch a := v.(type) {
	case crypto.Address:
		return a, nil
	case string:
		addr, err := crypto.HexToAddress(a)
		if err != nil {
			return addr, errors.Wrap(ErrEncoding, err.Error())
		}
		return addr, nil
	}
	return crypto.Address{}, typeMismatch("address", v)
}

func toBigInt(v interface{}) (*big.Int, error) {
	switch x := v.(type) {
	case *big.Int:
		if x == nil {
			return nil, errors.Wrap(ErrEncoding, "nil integer")
		}
		return x, nil
	case uint64:
		return new(big.Int).SetUint64(x), nil
	case uint32:
		return new(big.Int).SetUint64(uint64(x)), nil
	case uint:
		return new(big.Int).SetUint64(uint64(x)), nil
	case int64:
		return big.NewInt(x), nil
	case int32:
		return big.NewInt(int64(x)), nil
	case int:
		return big.NewInt(int64(x)), nil
	case json.Number:
		return toBigInt(x.String())
	case string:
		n, ok := new(big.Int).SetString(x, 0)
		if !ok {
			return nil, errors.Wrapf(ErrEncoding, "invalid integer %q", x)
		}
		return n, nil
	}
	return nil, errors.Wrapf(ErrEncoding, "cannot use %T as integer", v)
}

// String returns the string field name.
func (m Message) String(name string) (string, error) {
	s, ok := m[name].(string)
	if !ok {
		return "", errors.WithMessagef(typeMismatch("string", m[name]), "field %s", name)
	}
	return s, nil
}

// Bytes32 returns the bytes32 field name.
func (m Message) Bytes32(name string) (crypto.Hash, error) {
	b, err := toBytes(m[name])
	if err != nil {
		return crypto.Hash{}, errors.WithMessagef(err, "field %s", name)
	}
	if len(b) != crypto.HashLength {
		return crypto.Hash{}, errors.Wrapf(ErrEncoding, "field %s expects %d bytes, got %d", name, crypto.HashLength, len(b))
	}
	return crypto.BytesToHash(b), nil
}

// Uint64 returns the unsigned integer field name if it fits in 64 bits.
func (m Message) Uint64(name string) (uint64, error) {
	x, err := toBigInt(m[name])
	if err != nil {
		return 0, errors.WithMessagef(err, "field %s", name)
	}
	if x.Sign() < 0 || !x.IsUint64() {
		return 0, errors.Wrapf(ErrEncoding, "field %s value %s does not fit in uint64", name, x)
	}
	return x.Uint64(), nil
}
