/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/sha3"
)

const (
	// AddressLength is the byte length of an identity address.
	AddressLength = 20
	// HashLength is the byte length of a Keccak-256 digest.
	HashLength = 32
)

// Address is the last 20 bytes of the Keccak-256 hash of an uncompressed
// secp256k1 public key.
type Address [AddressLength]byte

// HexToAddress parses a 0x-prefixed (or bare) 40 character hex string.
func HexToAddress(s string) (Address, error) {
	var a Address
	b, err := decodeHex(s, AddressLength)
	if err != nil {
		return a, errors.WithMessage(err, "invalid address")
	}
	copy(a[:], b)
	return a, nil
}

func (a Address) Hex() string {
	return "0x" + hex.EncodeToString(a[:])
}

func (a Address) String() string {
	return a.Hex()
}

func (a Address) IsZero() bool {
	return a == Address{}
}

func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

func (a *Address) UnmarshalText(text []byte) error {
	v, err := HexToAddress(string(text))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

// Hash is a 32-byte digest, used for document content hashes and
// typed-data digests alike.
type Hash [HashLength]byte

// HexToHash parses a 0x-prefixed (or bare) 64 character hex string.
func HexToHash(s string) (Hash, error) {
	var h Hash
	b, err := decodeHex(s, HashLength)
	if err != nil {
		return h, errors.WithMessage(err, "invalid hash")
	}
	copy(h[:], b)
	return h, nil
}

// BytesToHash left-pads b to 32 bytes. Longer input keeps the trailing bytes.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

func (h Hash) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

func (h Hash) String() string {
	return h.Hex()
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) IsZero() bool {
	return h == Hash{}
}

func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.Hex()), nil
}

func (h *Hash) UnmarshalText(text []byte) error {
	v, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

// Keccak256 returns the legacy Keccak-256 digest of the concatenated inputs.
func Keccak256(data ...[]byte) []byte {
	d := sha3.NewLegacyKeccak256()
	for _, b := range data {
		d.Write(b)
	}
	return d.Sum(nil)
}

// Keccak256Hash is Keccak256 returning a Hash.
func Keccak256Hash(data ...[]byte) (h Hash) {
	copy(h[:], Keccak256(data...))
	return h
}

// FromHex decodes a hex string with or without a 0x prefix.
func FromHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return b, nil
}

func decodeHex(s string, size int) ([]byte, error) {
	b, err := FromHex(s)
	if err != nil {
		return nil, err
	}
	if len(b) != size {
		return nil, errors.Errorf("expected %d hex characters, got %d", size*2, len(b)*2)
	}
	return b, nil
}
