/*
Copyright Zhigui.com. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package crypto

import (
	"encoding/hex"
	"io/ioutil"
	"strings"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
	"github.com/pkg/errors"
)

const (
	// SignatureLength is the size of an r || s || v signature.
	SignatureLength = 65

	// recoveryOffset is the legacy offset added to the recovery id in v.
	recoveryOffset = 27
)

// ErrInvalidSignature is the cause of every signature parse or recovery failure.
var ErrInvalidSignature = errors.New("invalid signature")

// Signature is a recoverable secp256k1 signature. V is stored normalized
// to 27 or 28.
type Signature struct {
	R [32]byte
	S [32]byte
	V byte
}

// ParseSignature decodes a 65-byte r || s || v signature. V may be given
// as 0/1 or 27/28.
func ParseSignature(b []byte) (Signature, error) {
	var sig Signature
	if len(b) != SignatureLength {
		return sig, errors.Wrapf(ErrInvalidSignature, "failed unmashalling signature [%d bytes, want %d]", len(b), SignatureLength)
	}
	copy(sig.R[:], b[:32])
	copy(sig.S[:], b[32:64])
	v := b[64]
	if v < recoveryOffset {
		v += recoveryOffset
	}
	if v != recoveryOffset && v != recoveryOffset+1 {
		return sig, errors.Wrapf(ErrInvalidSignature, "invalid recovery indicator [%d]", b[64])
	}
	sig.V = v
	return sig, nil
}

// HexToSignature parses the hex encoding of an r || s || v signature.
func HexToSignature(s string) (Signature, error) {
	b, err := decodeHex(s, SignatureLength)
	if err != nil {
		return Signature{}, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return ParseSignature(b)
}

// Bytes returns the 65-byte r || s || v form.
func (sig Signature) Bytes() []byte {
	b := make([]byte, SignatureLength)
	copy(b[:32], sig.R[:])
	copy(b[32:64], sig.S[:])
	b[64] = sig.V
	return b
}

func (sig Signature) Hex() string {
	return "0x" + hex.EncodeToString(sig.Bytes())
}

func (sig Signature) MarshalText() ([]byte, error) {
	return []byte(sig.Hex()), nil
}

func (sig *Signature) UnmarshalText(text []byte) error {
	v, err := HexToSignature(string(text))
	if err != nil {
		return err
	}
	*sig = v
	return nil
}

// validate checks the scalar ranges: r and s in [1, N-1] and s in the
// lower half of the group order.
func (sig Signature) validate() error {
	var r, s secp256k1.ModNScalar
	if overflow := r.SetByteSlice(sig.R[:]); overflow || r.IsZero() {
		return errors.Wrap(ErrInvalidSignature, "invalid R. Must be in [1, N-1]")
	}
	if overflow := s.SetByteSlice(sig.S[:]); overflow || s.IsZero() {
		return errors.Wrap(ErrInvalidSignature, "invalid S. Must be in [1, N-1]")
	}
	if s.IsOverHalfOrder() {
		return errors.Wrap(ErrInvalidSignature, "invalid S. Must be smaller than half the order")
	}
	if sig.V != recoveryOffset && sig.V != recoveryOffset+1 {
		return errors.Wrapf(ErrInvalidSignature, "invalid recovery indicator [%d]", sig.V)
	}
	return nil
}

// Recover returns the address of the key that produced sig over digest.
func Recover(digest []byte, sig Signature) (Address, error) {
	if len(digest) != HashLength {
		return Address{}, errors.Wrapf(ErrInvalidSignature, "digest must be %d bytes, got %d", HashLength, len(digest))
	}
	if err := sig.validate(); err != nil {
		return Address{}, err
	}

	compact := make([]byte, SignatureLength)
	compact[0] = sig.V
	copy(compact[1:33], sig.R[:])
	copy(compact[33:], sig.S[:])
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return Address{}, errors.Wrap(ErrInvalidSignature, err.Error())
	}
	return PubkeyToAddress(pub), nil
}

// PubkeyToAddress derives the identity address of a public key.
func PubkeyToAddress(pub *secp256k1.PublicKey) Address {
	var a Address
	h := Keccak256(pub.SerializeUncompressed()[1:])
	copy(a[:], h[HashLength-AddressLength:])
	return a
}

// PrivateKey is a secp256k1 signing key. It implements api.Signer.
type PrivateKey struct {
	key *secp256k1.PrivateKey
}

// GenerateKey creates a new random key.
func GenerateKey() (*PrivateKey, error) {
	k, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, errors.Wrap(err, "failed generating secp256k1 key")
	}
	return &PrivateKey{key: k}, nil
}

// HexToPrivateKey parses a 32-byte hex encoded private scalar.
func HexToPrivateKey(s string) (*PrivateKey, error) {
	b, err := decodeHex(s, 32)
	if err != nil {
		return nil, errors.WithMessage(err, "invalid private key")
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(b); overflow || scalar.IsZero() {
		return nil, errors.New("invalid private key: scalar out of range")
	}
	return &PrivateKey{key: secp256k1.NewPrivateKey(&scalar)}, nil
}

// LoadPrivateKey reads a hex encoded key from path.
func LoadPrivateKey(path string) (*PrivateKey, error) {
	raw, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error reading key file [%s]", path)
	}
	return HexToPrivateKey(strings.TrimSpace(string(raw)))
}

func (k *PrivateKey) Hex() string {
	return "0x" + hex.EncodeToString(k.key.Serialize())
}

func (k *PrivateKey) Address() Address {
	return PubkeyToAddress(k.key.PubKey())
}

// Sign signs a 32-byte digest. The result always has a low S value.
func (k *PrivateKey) Sign(digest []byte) (Signature, error) {
	if len(digest) != HashLength {
		return Signature{}, errors.Errorf("digest must be %d bytes, got %d", HashLength, len(digest))
	}
	compact := ecdsa.SignCompact(k.key, digest, false)
	var sig Signature
	sig.V = compact[0]
	copy(sig.R[:], compact[1:33])
	copy(sig.S[:], compact[33:])
	return sig, nil
}
