/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package typeddata builds EIP-712 style domain-separated digests of
// structured messages so that an off-chain signer and an on-ledger
// verifier arrive at byte-identical hashes.
package typeddata

import (
	"math/big"

	"github.com/pkg/errors"
	"github.com/zhigui-projects/go-attest/common/crypto"
)

// ErrEncoding is the cause of every encoding failure: a missing,
// superfluous or mistyped field, or an array of the wrong length.
var ErrEncoding = errors.New("encoding error")

// DomainType is the reserved name of the domain struct.
const DomainType = "EIP712Domain"

// Field is one member of a struct type.
type Field struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

// Types maps struct type names to their ordered members.
type Types map[string][]Field

// Message carries the field values of one struct instance. Nested struct
// values are Messages too; arrays are []interface{}.
type Message map[string]interface{}

// Domain scopes a digest to one application deployment so a signature made
// for one domain cannot be replayed against another.
type Domain struct {
	Name              string         `json:"name" yaml:"name"`
	Version           string         `json:"version" yaml:"version"`
	ChainID           uint64         `json:"chainId" yaml:"chainId"`
	VerifyingContract crypto.Address `json:"verifyingContract" yaml:"verifyingContract"`
}

var domainFields = []Field{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
	{Name: "verifyingContract", Type: "address"},
}

func (d Domain) message() Message {
	return Message{
		"name":              d.Name,
		"version":           d.Version,
		"chainId":           new(big.Int).SetUint64(d.ChainID),
		"verifyingContract": d.VerifyingContract,
	}
}

// Separator returns hashStruct(EIP712Domain(domain)).
func (d Domain) Separator() crypto.Hash {
	enc := &Encoder{types: Types{DomainType: domainFields}}
	h, err := enc.HashStruct(DomainType, d.message())
	if err != nil {
		// every domain field is a plain Go value of the right type
		panic(err)
	}
	return h
}
