/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package typeddata

import (
	"math/big"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

var mailTypes = Types{
	"Person": {
		{Name: "name", Type: "string"},
		{Name: "wallet", Type: "address"},
	},
	"Mail": {
		{Name: "from", Type: "Person"},
		{Name: "to", Type: "Person"},
		{Name: "contents", Type: "string"},
	},
}

func mailDomain(t *testing.T) Domain {
	contract, err := crypto.HexToAddress("0xCcCCccccCCCCcCCCCCCcCcCccCcCCCcCcccccccC")
	require.NoError(t, err)
	return Domain{Name: "Ether Mail", Version: "1", ChainID: 1, VerifyingContract: contract}
}

func mailMessage() Message {
	return Message{
		"from": Message{
			"name":   "Cow",
			"wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826",
		},
		"to": map[string]interface{}{
			"name":   "Bob",
			"wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
		},
		"contents": "Hello, Bob!",
	}
}

// Reference values are the worked example published with EIP-712.
func TestEtherMailVector(t *testing.T) {
	enc, err := NewEncoder(mailTypes)
	require.NoError(t, err)

	typ, err := enc.EncodeType("Mail")
	require.NoError(t, err)
	assert.Equal(t, "Mail(Person from,Person to,string contents)Person(string name,address wallet)", typ)

	typeHash, err := enc.TypeHash("Mail")
	require.NoError(t, err)
	assert.Equal(t, "0xa0cedeb2dc280ba39b857546d74f5549c3a1d7bdc2dd96bf881f76108e23dac2", typeHash.Hex())

	domain := mailDomain(t)
	assert.Equal(t, "0xf2cee375fa42b42143804025fc449deafd50cc031ca257e0b194a650a912090f", domain.Separator().Hex())

	structHash, err := enc.HashStruct("Mail", mailMessage())
	require.NoError(t, err)
	assert.Equal(t, "0xc52c0ee5d84264471806290a3f2c4cecfc5490626bf912d01f240d7a274b371e", structHash.Hex())

	digest, err := enc.Digest(domain, "Mail", mailMessage())
	require.NoError(t, err)
	assert.Equal(t, "0xbe609aee343fb3c4b28e1df9e632fca64fcfaede20f02e86244efddf30957bd2", digest.Hex())

	cow, err := crypto.HexToPrivateKey(crypto.Keccak256Hash([]byte("cow")).Hex())
	require.NoError(t, err)
	assert.Equal(t, "0xcd2a3d9f938e13cd947ec05abc7fe734df8dd826", cow.Address().Hex())

	sig := crypto.Signature{V: 28}
	r, _ := crypto.HexToHash("0x4355c47d63924e8a72e509b65029052eb6c299d53a04e167c5775fd466751c9d")
	s, _ := crypto.HexToHash("0x07299936d304c153f6443dfa05f40ff007d72911b6f72307f996231605b91562")
	sig.R, sig.S = r, s
	signer, err := crypto.Recover(digest[:], sig)
	require.NoError(t, err)
	assert.Equal(t, cow.Address(), signer)
}

func TestDigestIsDeterministic(t *testing.T) {
	enc, err := NewEncoder(mailTypes)
	require.NoError(t, err)
	domain := mailDomain(t)

	d1, err := enc.Digest(domain, "Mail", mailMessage())
	require.NoError(t, err)
	d2, err := enc.Digest(domain, "Mail", mailMessage())
	require.NoError(t, err)
	assert.Equal(t, d1, d2)

	changed := mailMessage()
	changed["contents"] = "Hello, Bob?"
	d3, err := enc.Digest(domain, "Mail", changed)
	require.NoError(t, err)
	assert.NotEqual(t, d1, d3)

	other := domain
	other.ChainID = 5
	d4, err := enc.Digest(other, "Mail", mailMessage())
	require.NoError(t, err)
	assert.NotEqual(t, d1, d4)
}

func TestEncodingErrors(t *testing.T) {
	enc, err := NewEncoder(Types{
		"Doc": {
			{Name: "hash", Type: "bytes32"},
			{Name: "size", Type: "uint8"},
			{Name: "tags", Type: "string[2]"},
			{Name: "delta", Type: "int16"},
			{Name: "final", Type: "bool"},
		},
	})
	require.NoError(t, err)

	valid := func() Message {
		return Message{
			"hash":  crypto.Hash{1},
			"size":  uint64(255),
			"tags":  []interface{}{"a", "b"},
			"delta": -5,
			"final": true,
		}
	}
	_, err = enc.HashStruct("Doc", valid())
	require.NoError(t, err)

	cases := map[string]func(Message){
		"missing field":   func(m Message) { delete(m, "final") },
		"extra field":     func(m Message) { m["extra"] = "x" },
		"nil value":       func(m Message) { m["final"] = nil },
		"wrong arity":     func(m Message) { m["tags"] = []interface{}{"a"} },
		"not an array":    func(m Message) { m["tags"] = "a,b" },
		"short bytes32":   func(m Message) { m["hash"] = []byte{1, 2} },
		"bad hex bytes32": func(m Message) { m["hash"] = "0xzz" },
		"uint overflow":   func(m Message) { m["size"] = 256 },
		"negative uint":   func(m Message) { m["size"] = -1 },
		"int underflow":   func(m Message) { m["delta"] = big.NewInt(-40000) },
		"wrong bool type": func(m Message) { m["final"] = "true" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			m := valid()
			mutate(m)
			_, err := enc.HashStruct("Doc", m)
			require.Error(t, err)
			assert.Equal(t, ErrEncoding, errors.Cause(err))
		})
	}

	_, err = enc.HashStruct("Unknown", valid())
	assert.Equal(t, ErrEncoding, errors.Cause(err))
}

func TestHexBytesPrefixOptional(t *testing.T) {
	enc, err := NewEncoder(Types{"Doc": {{Name: "hash", Type: "bytes32"}, {Name: "blob", Type: "bytes"}}})
	require.NoError(t, err)

	h := crypto.Keccak256Hash([]byte("doc"))
	want, err := enc.HashStruct("Doc", Message{"hash": h, "blob": []byte{0xca, 0xfe}})
	require.NoError(t, err)

	for _, m := range []Message{
		{"hash": h.Hex(), "blob": "0xcafe"},
		{"hash": h.Hex()[2:], "blob": "cafe"},
	} {
		got, err := enc.HashStruct("Doc", m)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	parsed, err := crypto.HexToHash(h.Hex()[2:])
	require.NoError(t, err)
	assert.Equal(t, h, parsed)
}

func TestNewEncoderRejectsUnknownTypes(t *testing.T) {
	_, err := NewEncoder(Types{"A": {{Name: "b", Type: "B"}}})
	assert.Equal(t, ErrEncoding, errors.Cause(err))

	_, err = NewEncoder(Types{"A": {{Name: "x", Type: "uint7"}}})
	assert.Equal(t, ErrEncoding, errors.Cause(err))

	_, err = NewEncoder(Types{"A": {{Name: "x", Type: "string"}, {Name: "x", Type: "string"}}})
	assert.Equal(t, ErrEncoding, errors.Cause(err))
}
